// Package websocket pushes operation snapshots and dataset events to
// browser clients. A single Hub goroutine owns the client set; every client
// runs a read pump and a write pump.
package websocket
