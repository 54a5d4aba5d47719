// Package api provides the local HTTP API and event stream for camnode.
//
// The API is an operator surface next to the console. It is disabled by
// default and binds to loopback:
//
//	GET  /api/v1/health            liveness and bus connectivity
//	GET  /api/v1/metrics           runtime statistics
//	GET  /api/v1/device            agent state snapshot
//	POST /api/v1/commands/{name}   status, reset, delete, sensor
//	PUT  /api/v1/identity          manual identifier override
//	POST /api/v1/samples           one distance sample
//	GET  /api/v1/events            WebSocket stream of node events
//
// Every command goes through the agent, so the API never touches pairing
// state directly.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
