package main

import (
	"log"
	"net/http"

	"github.com/chameleonultra/chamelgo/internal/transport"
)

// serveNetBridge runs an HTTP server whose single endpoint upgrades to
// the websocket carrying bridge's frame bytes, standing in for the
// BLE-NUS/USB-CDC link a real device exposes. Runs until addr fails to
// bind or the process exits.
func serveNetBridge(addr string, bridge *transport.NetBridge, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if err := bridge.ServeHTTP(w, r); err != nil {
			logger.Printf("netbridge: upgrade failed: %v", err)
		}
	})
	logger.Printf("netbridge: listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("netbridge: server stopped: %v", err)
	}
}
