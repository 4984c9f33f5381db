package clients

import (
	"context"
	"fmt"

	"github.com/nexushq/nexushub/pkg/mcpproto"
)

// notifyGuard returns the client's protocol if it is present and has
// completed the handshake, logging (and treating as a no-op) otherwise —
// mirroring the original's "no-op with a warning" contract for every
// notify_* method on an uninitialized client.
func (r *Registry) notifyGuard(clientID string) (*mcpproto.ServerProtocol, bool) {
	r.mu.RLock()
	client, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("cannot notify client: not found", "client", clientID)
		return nil, false
	}
	if !client.Initialized() {
		r.logger.Warn("cannot notify client: not initialized", "client", clientID)
		return nil, false
	}
	return client.Protocol, true
}

// NotifyResourceUpdated sends notifications/resources/updated to a client.
func (r *Registry) NotifyResourceUpdated(clientID, uri string) bool {
	protocol, ok := r.notifyGuard(clientID)
	if !ok {
		return false
	}
	if err := protocol.NotifyResourceUpdated(uri); err != nil {
		r.logger.Error("failed to notify client of resource update", "client", clientID, "error", err)
		return false
	}
	return true
}

// NotifyResourcesChanged sends notifications/resources/list_changed.
func (r *Registry) NotifyResourcesChanged(clientID string) bool {
	protocol, ok := r.notifyGuard(clientID)
	if !ok {
		return false
	}
	if err := protocol.NotifyResourcesListChanged(); err != nil {
		r.logger.Error("failed to notify client of resources list change", "client", clientID, "error", err)
		return false
	}
	return true
}

// NotifyToolsChanged sends notifications/tools/list_changed.
func (r *Registry) NotifyToolsChanged(clientID string) bool {
	protocol, ok := r.notifyGuard(clientID)
	if !ok {
		return false
	}
	if err := protocol.NotifyToolsListChanged(); err != nil {
		r.logger.Error("failed to notify client of tools list change", "client", clientID, "error", err)
		return false
	}
	return true
}

// NotifyPromptsChanged sends notifications/prompts/list_changed.
func (r *Registry) NotifyPromptsChanged(clientID string) bool {
	protocol, ok := r.notifyGuard(clientID)
	if !ok {
		return false
	}
	if err := protocol.NotifyPromptsListChanged(); err != nil {
		r.logger.Error("failed to notify client of prompts list change", "client", clientID, "error", err)
		return false
	}
	return true
}

// Sample requests a completion from a client via sampling/sample.
func (r *Registry) Sample(ctx context.Context, clientID string, params mcpproto.SamplingParams) (*mcpproto.SamplingResult, error) {
	protocol, ok := r.notifyGuard(clientID)
	if !ok {
		return nil, fmt.Errorf("client %s is not available for sampling", clientID)
	}
	result, rpcErr := protocol.Sample(ctx, params)
	if rpcErr != nil {
		return nil, fmt.Errorf("sampling from client %s: %s", clientID, rpcErr.Message)
	}
	return result, nil
}
