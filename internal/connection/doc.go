// Package connection implements the real-time socket.
//
// A Socket owns one websocket connection and multiplexes requests and
// subscriptions over it:
//   - outbound requests are framed by the protocol package and correlated
//     to their responses by request id
//   - a keep-alive frame is written whenever the heartbeat interval elapses
//   - broadcast frames fan out to subscription listeners matching on
//     chart id, contract id, or (for account sync) any user data
//
// Every inbound frame is handled by one dispatch goroutine in arrival
// order, so listeners are never invoked concurrently.
package connection
