// Package protocol implements the text framing used by the real-time API.
//
// Inbound frames start with a one-character type tag:
//   - o: socket opened, authorization may begin
//   - a: JSON array of messages
//   - h: server heartbeat
//   - c: server closing the socket
//
// Outbound requests are four newline-separated fields:
// endpoint, request id, query string and JSON body.
package protocol
