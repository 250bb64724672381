// Package server carries the run/cancel protocol to remote clients.
//
// A client sends Run, Cancel or StatusQuery messages. A Run is answered
// with a Started frame, one Event frame per event the invocation produces
// and a final Done or Error frame. Cancel and StatusQuery are answered
// immediately with an Ack; cancelling an unknown invocation is an Ack with
// cancelled=false, never an error.
//
// Dispatcher implements those semantics independent of the transport.
// Server maps them onto HTTP routes and streams Run frames as server-sent
// events:
//
//	POST /v1/apps/{app}/users/{user}/sessions/{session}/run   {"newMessage": "..."}
//	GET  /v1/apps/{app}/users/{user}/sessions/{session}
//	POST /v1/invocations/{id}/cancel
//	GET  /v1/invocations/{id}/status
//	GET  /healthz
package server
