// Command nexushubd runs the central MCP hub: a supervisor for local MCP
// servers, a protocol engine bridging stdio/http/container transports, a
// message router, and an access-controlled administrative REST API.
package main

func main() {
	Execute()
}
