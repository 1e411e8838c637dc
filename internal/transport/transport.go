// Package transport defines the duplex byte-frame carrier contract the
// dispatcher reads frames from and writes responses to, plus two
// implementations: a websocket-backed one standing in for USB-CDC/BLE-NUS
// over a network socket, and an in-memory loopback for tests. Grounded on
// the teacher's server/websocket.go connection-management idiom.
package transport

import "errors"

// ErrClosed is returned by Send once a transport has been closed.
var ErrClosed = errors.New("transport: closed")

// Transport is the external interface a dispatcher drives (§6 of the
// spec). Two or more Transports may be registered with a dispatcher at
// once (e.g. USB-CDC and BLE-NUS); the dispatcher auto-selects the first
// one whose IsOpen reports true for each outgoing frame.
type Transport interface {
	// Name identifies this transport for logging (e.g. "usb-cdc",
	// "ble-nus", "netbridge").
	Name() string
	// IsOpen reports whether this transport currently has a live peer to
	// carry bytes to/from.
	IsOpen() bool
	// Send writes a complete outgoing frame's bytes. Returns ErrClosed if
	// no peer is currently connected.
	Send(b []byte) error
	// Recv returns the channel bytes arrive on as they are read off the
	// wire; the dispatcher's feeder goroutine drains it byte-by-byte into
	// a frame.Parser. Closed when the transport is closed.
	Recv() <-chan []byte
}
