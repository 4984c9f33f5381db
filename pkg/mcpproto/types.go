// Package mcpproto implements the MCP (model-context protocol) framing and
// dispatch layer: the JSON-RPC 2.0 dialect shared by the hub's connections to
// supervised servers (client role) and to remote clients (server role).
package mcpproto

import (
	"encoding/json"
	"time"
)

// ProtocolVersion is the MCP protocol version this engine negotiates.
const ProtocolVersion = "2024-11-05"

// DefaultRequestTimeout bounds a Call when the caller supplies no deadline.
const DefaultRequestTimeout = 30 * time.Second

// ServerInfo identifies an MCP server during the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo identifies an MCP client during the initialize handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams carries the client's announced identity and desired
// capability tree.
type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ClientInfo      ClientInfo   `json:"clientInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// InitializeResult carries the server's identity and negotiated capability
// tree in reply to initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// Resource is a server-addressable artifact identified by a URI.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourcesListResult is the response to resources/list.
type ResourcesListResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor *string    `json:"nextCursor,omitempty"`
}

// ResourceReadParams carries the parameters of resources/read.
type ResourceReadParams struct {
	URI string `json:"uri"`
}

// ResourceContents is one item returned from resources/read.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ResourceReadResult is the response to resources/read.
type ResourceReadResult struct {
	Contents []ResourceContents `json:"contents"`
}

// ResourceSubscribeParams carries the parameters shared by
// resources/subscribe and resources/unsubscribe.
type ResourceSubscribeParams struct {
	URI string `json:"uri"`
}

// Tool is a server-exposed callable addressed by name.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolsListResult is the response to tools/list.
type ToolsListResult struct {
	Tools      []Tool  `json:"tools"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// ToolCallParams carries the parameters of tools/call.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Content is one item of tool or sampling output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewTextContent builds a text content item.
func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// ToolCallResult is the response to tools/call.
type ToolCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Prompt is a server-exposed named template addressed by id.
type Prompt struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PromptsListResult is the response to prompts/list.
type PromptsListResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor *string  `json:"nextCursor,omitempty"`
}

// PromptGetParams carries the parameters of prompts/get.
type PromptGetParams struct {
	ID        string         `json:"id"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// PromptMessage is one rendered message of a prompt.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// PromptGetResult is the response to prompts/get.
type PromptGetResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// SamplingMessage is one message in a sampling/sample conversation.
type SamplingMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// SamplingParams carries the parameters of sampling/sample, sent by a
// server-role connection to elicit a completion from a remote client.
type SamplingParams struct {
	Messages    []SamplingMessage `json:"messages"`
	MaxTokens   int               `json:"maxTokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

// SamplingResult is the response to sampling/sample.
type SamplingResult struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
	Model   string  `json:"model,omitempty"`
}

// ResourceUpdatedParams carries the parameters of
// notifications/resources/updated.
type ResourceUpdatedParams struct {
	URI string `json:"uri"`
}
