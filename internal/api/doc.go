// Package api provides the REST client used alongside the real-time socket.
//
// REST endpoints:
//   - Demo: https://demo.tradovateapi.com/v1
//   - Live: https://live.tradovateapi.com/v1
//
// Authenticated calls send the access token as a bearer token. The socket
// layer only needs contract lookup and the access-token request; account and
// order listings are passed through as raw JSON.
package api
