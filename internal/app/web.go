package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/gps_bridge/internal/gps"
	"github.com/relabs-tech/gps_bridge/internal/metrics"
	"github.com/relabs-tech/gps_bridge/internal/status"
)

// StatusProvider supplies status snapshots to the monitor.
type StatusProvider interface {
	Status() status.Snapshot
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Monitor is a read-only HTTP view of the bridge: status, the latest fix,
// a websocket feed of published fixes and prometheus metrics.
type Monitor struct {
	addr   string
	status StatusProvider
	router *mux.Router

	mu      sync.RWMutex
	lastFix *gps.FixRecord

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
}

// NewMonitor builds the monitor; Run serves it on addr.
func NewMonitor(addr string, st StatusProvider) *Monitor {
	m := &Monitor{
		addr:    addr,
		status:  st,
		router:  mux.NewRouter(),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	m.router.HandleFunc("/api/status", m.handleStatus).Methods("GET")
	m.router.HandleFunc("/api/fix", m.handleFix).Methods("GET")
	m.router.HandleFunc("/ws", m.handleWS)
	m.router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")
	return m
}

// Handler returns the monitor's routes.
func (m *Monitor) Handler() http.Handler { return m.router }

// Run serves until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              m.addr,
		Handler:           m.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web: monitor listening on %s", m.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Broadcast records fix as the latest and sends it to websocket clients.
// Slow clients miss messages.
func (m *Monitor) Broadcast(fix *gps.FixRecord) {
	data, err := json.Marshal(fix)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.lastFix = fix
	m.mu.Unlock()

	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	for c := range m.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (m *Monitor) clientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, m.status.Status())
}

func (m *Monitor) handleFix(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	fix := m.lastFix
	m.mu.RUnlock()

	if fix == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, fix)
}

func (m *Monitor) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, 64)}
	m.clientsMu.Lock()
	m.clients[c] = struct{}{}
	m.clientsMu.Unlock()

	go func() {
		defer conn.Close()
		for msg := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reads only detect disconnects.
	go func() {
		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, c)
			m.clientsMu.Unlock()
			close(c.send)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}
