// Package registry is a client for the barndoor registry API, which lists
// the MCP servers an organization can reach and drives the per-server
// OAuth connection that lets the proxy act on the user's behalf.
//
// Every request carries the caller's access token as a bearer token:
//
//	client := registry.NewClient(apiOrigin, cred.AccessToken)
//	servers, err := client.ListServers(ctx)
//
// EnsureServerConnected combines lookup, connection initiation, browser
// launch and status polling for the interactive CLI.
package registry
