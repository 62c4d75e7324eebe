// Package web streams session events to browsers over websockets so a
// running game can be watched live.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tatianab/autoplay/internal/orchestrator"
)

// clientBuffer is the per-connection event backlog. A client that falls
// further behind than this is dropped.
const clientBuffer = 64

// Monitor is an orchestrator hook that fans events out to connected
// websocket clients. Events are fire-and-forget; a slow client never
// stalls the game loop.
type Monitor struct {
	addr     string
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	history []orchestrator.Event
}

// historyDepth is how many past events a newly connected client is
// caught up with.
const historyDepth = 100

// NewMonitor builds a monitor that will listen on addr.
func NewMonitor(addr string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Serve blocks running the monitor's HTTP server.
func (m *Monitor) Serve() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.handleWS)
	m.logger.Info("web monitor listening", "addr", m.addr)
	return http.ListenAndServe(m.addr, mux)
}

func (m *Monitor) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	send := make(chan []byte, clientBuffer)
	m.mu.Lock()
	m.clients[conn] = send
	backlog := make([]orchestrator.Event, len(m.history))
	copy(backlog, m.history)
	m.mu.Unlock()
	m.logger.Info("monitor client connected", "remote", conn.RemoteAddr().String())

	go m.writePump(conn, send)
	for _, evt := range backlog {
		m.enqueue(send, evt)
	}

	// Drain reads so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				m.drop(conn)
				return
			}
		}
	}()
}

func (m *Monitor) writePump(conn *websocket.Conn, send chan []byte) {
	for msg := range send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			m.drop(conn)
			return
		}
	}
	conn.Close()
}

func (m *Monitor) drop(conn *websocket.Conn) {
	m.mu.Lock()
	send, ok := m.clients[conn]
	if ok {
		delete(m.clients, conn)
		close(send)
	}
	m.mu.Unlock()
	if ok {
		m.logger.Info("monitor client dropped", "remote", conn.RemoteAddr().String())
	}
	conn.Close()
}

func (m *Monitor) enqueue(send chan []byte, evt orchestrator.Event) bool {
	msg, err := json.Marshal(evt)
	if err != nil {
		return false
	}
	select {
	case send <- msg:
		return true
	default:
		return false
	}
}

// OnEvent implements orchestrator.Hook.
func (m *Monitor) OnEvent(evt orchestrator.Event) {
	m.mu.Lock()
	m.history = append(m.history, evt)
	if len(m.history) > historyDepth {
		m.history = m.history[len(m.history)-historyDepth:]
	}
	var stale []*websocket.Conn
	for conn, send := range m.clients {
		if !m.enqueue(send, evt) {
			stale = append(stale, conn)
		}
	}
	m.mu.Unlock()

	for _, conn := range stale {
		m.drop(conn)
	}
}
