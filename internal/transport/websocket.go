// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net"
	"net/http"
	"sync"

	applog "rtio/internal/log"

	"github.com/gorilla/websocket"
)

var wsLog = applog.Named("websocket")

// WebSocketTransport broadcasts every sent value as JSON to all clients
// connected on /ws.
type WebSocketTransport struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	listener  net.Listener
	server    *http.Server
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketTransport listens on addr and starts serving.
func NewWebSocketTransport(addr string) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Meters are read-only; any origin may watch.
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, 256),
		listener:  ln,
		done:      make(chan struct{}),
	}
	wst.start()
	return wst, nil
}

// Addr returns the address the server listens on.
func (wst *WebSocketTransport) Addr() net.Addr { return wst.listener.Addr() }

func (wst *WebSocketTransport) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	wst.server = &http.Server{Handler: mux}

	go func() {
		wsLog.Infof("Starting WebSocket server on %s", wst.listener.Addr())
		if err := wst.server.Serve(wst.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wsLog.Errorf("Server error: %v", err)
		}
	}()

	go wst.handleBroadcasts()
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLog.Warnf("Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	wsLog.Infof("Client connected, total: %d", total)

	go func() {
		// Clients never send; a read only returns once they go away.
		if _, _, err := conn.ReadMessage(); err != nil {
			wst.clientsMu.Lock()
			delete(wst.clients, conn)
			total := len(wst.clients)
			wst.clientsMu.Unlock()
			conn.Close()
			wsLog.Infof("Client disconnected, total: %d", total)
		}
	}()
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				if err := client.WriteJSON(data); err != nil {
					wsLog.Warnf("Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		case <-wst.done:
			return
		}
	}
}

// Send queues data for broadcast. When the queue is full the value is dropped.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case wst.broadcast <- data:
	default:
	}
	return nil
}

// Close disconnects all clients and shuts the server down.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		wsLog.Infof("Closing server")
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		err = wst.server.Close()
	})
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
