package transport

import "sync"

// Loopback is an in-memory Transport for tests and local tooling: bytes
// written with Send are delivered on Recv of its Peer (see NewLoopbackPair),
// with no network or framing of its own.
type Loopback struct {
	name string

	mu     sync.Mutex
	open   bool
	closed bool

	out  chan []byte // bytes this end sends (read by the peer's feeder)
	in   chan []byte // bytes this end receives
}

// NewLoopbackPair returns two Loopback transports wired to each other:
// whatever is sent on a arrives on b's Recv channel, and vice versa.
func NewLoopbackPair(nameA, nameB string) (a, b *Loopback) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	a = &Loopback{name: nameA, open: true, out: ab, in: ba}
	b = &Loopback{name: nameB, open: true, out: ba, in: ab}
	return a, b
}

func (l *Loopback) Name() string { return l.name }

func (l *Loopback) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open && !l.closed
}

// SetOpen simulates a transport-level connect/disconnect (e.g. BLE-NUS
// subscribing/unsubscribing) without tearing down the channels.
func (l *Loopback) SetOpen(open bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = open
}

func (l *Loopback) Send(b []byte) error {
	l.mu.Lock()
	open, closed := l.open, l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !open {
		return ErrClosed
	}
	cp := append([]byte(nil), b...)
	l.out <- cp
	return nil
}

func (l *Loopback) Recv() <-chan []byte { return l.in }

// Close marks this end closed; it does not close the shared channels,
// since the peer may still be draining them.
func (l *Loopback) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.open = false
}
