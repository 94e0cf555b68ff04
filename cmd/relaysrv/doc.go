// Package `relaysrv` implements server application which relays fixed-size text frames over TCP.
//
// Every 32-byte frame received from any client is broadcasted to all connected clients,
// including the sender.
//
// To compile relay server locally, run from package directory:
//
//	go install .
//
// Or quickly launch server with command:
//
//	go run . -port 6000
//
// Use -ws option to accept browser clients over WebSocket in addition to TCP.
package main
