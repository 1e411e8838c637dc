package transport

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// NetBridge is a Transport carrying raw frame bytes over a websocket
// connection, standing in for BLE-NUS/USB-CDC so the dispatcher is
// reachable over a network socket in environments with no real USB/BLE
// hardware. It carries opaque binary messages with no envelope of its
// own (the frame package owns all framing). Grounded on the teacher's
// server/websocket.go connection bookkeeping.
type NetBridge struct {
	name string

	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn

	in     chan []byte
	closed chan struct{}
}

// NewNetBridge returns a NetBridge with no connection yet; ServeHTTP (or
// Dial) attaches one.
func NewNetBridge(name string) *NetBridge {
	return &NetBridge{
		name: name,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (n *NetBridge) Name() string { return n.name }

func (n *NetBridge) IsOpen() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn != nil
}

// ServeHTTP upgrades an incoming HTTP request to a websocket connection
// and starts the read pump, replacing any previous connection.
func (n *NetBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) error {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	n.attach(conn)
	return nil
}

// Dial connects outward to a peer NetBridge's ServeHTTP endpoint,
// replacing any previous connection.
func (n *NetBridge) Dial(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	n.attach(conn)
	return nil
}

func (n *NetBridge) attach(conn *websocket.Conn) {
	n.mu.Lock()
	if n.conn != nil {
		n.conn.Close()
	}
	n.conn = conn
	n.mu.Unlock()
	go n.readPump(conn)
}

func (n *NetBridge) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[transport:%s] read error: %v", n.name, err)
			n.mu.Lock()
			if n.conn == conn {
				n.conn = nil
			}
			n.mu.Unlock()
			conn.Close()
			return
		}
		select {
		case n.in <- data:
		case <-n.closed:
			return
		}
	}
}

func (n *NetBridge) Send(b []byte) error {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.BinaryMessage, b)
}

func (n *NetBridge) Recv() <-chan []byte { return n.in }

// Close tears down any live connection and stops the read pump.
func (n *NetBridge) Close() error {
	select {
	case <-n.closed:
		return nil
	default:
		close(n.closed)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		err := n.conn.Close()
		n.conn = nil
		return err
	}
	return nil
}
