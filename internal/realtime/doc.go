// Package realtime implements the dashboard event stream client.
//
// The client:
//   - Maintains one logical WebSocket connection to the hub's /api/ws endpoint
//   - Multiplexes event categories (tasks, sysInfo) over it with
//     reference-counted listeners
//   - Reconnects with exponential backoff and re-subscribes the active
//     categories after every reopen
//   - Routes inbound frames to listeners by category, isolating callback
//     panics from the read loop and from other listeners
//
// Connection setup is lazy: the first Connect call or listener attach dials.
package realtime
