// Package hub implements the server side of the dashboard event socket.
//
// The Hub:
//   - Accepts /api/ws connections and tracks a subscription set per connection
//   - Applies subscribe/unsubscribe control frames sent by clients
//   - Fans published payloads out to subscribed connections only
//   - Replays the most recent payload per category to new subscribers
//   - Drops connections whose send queue stays full
package hub
