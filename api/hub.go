package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pmehra7/gridflow/queue"
)

const maxWSConnections = 200

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WorkerSnapshot is one worker's row in a cluster snapshot.
type WorkerSnapshot struct {
	ID        string `json:"id"`
	Live      bool   `json:"live"`
	Inflight  int    `json:"inflight"`
	Completed int    `json:"completed"`
	Queued    int64  `json:"queued"`
}

// ClusterSnapshot is what the hub broadcasts once per second.
type ClusterSnapshot struct {
	QueueHigh int64            `json:"q_high_len"`
	QueueMed  int64            `json:"q_med_len"`
	QueueLow  int64            `json:"q_low_len"`
	Workers   []WorkerSnapshot `json:"workers"`
}

// Hub manages websocket clients and broadcasts cluster snapshots.
// A single broadcaster keeps N clients from driving N store scans.
type Hub struct {
	server     *Server
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewHub creates an empty hub bound to the server's store.
func NewHub(server *Server) *Hub {
	return &Hub{
		server:     server,
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run drives registration and the broadcast ticker until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxWSConnections {
				h.mu.Unlock()
				conn.Close()
				h.server.logger.Warn().Int("max", maxWSConnections).Msg("Websocket client rejected: connection cap reached")
				continue
			}
			h.clients[conn] = true
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case <-ticker.C:
			h.broadcast(ctx)
		}
	}
}

// ServeWS upgrades the connection and registers it with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.server.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	h.register <- conn

	// Read pump: discard client messages, unregister on close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister <- conn
				return
			}
		}
	}()
}

func (h *Hub) broadcast(ctx context.Context) {
	h.mu.RLock()
	idle := len(h.clients) == 0
	h.mu.RUnlock()
	if idle {
		return
	}

	snapshot, err := h.collect(ctx)
	if err != nil {
		h.server.logger.Warn().Err(err).Msg("Snapshot collection failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(snapshot); err != nil {
			go func(c *websocket.Conn) { h.unregister <- c }(conn)
		}
	}
}

func (h *Hub) collect(ctx context.Context) (*ClusterSnapshot, error) {
	high, med, low, err := queue.Lengths(ctx, h.server.store)
	if err != nil {
		return nil, err
	}
	ids, err := queue.ListWorkers(ctx, h.server.store)
	if err != nil {
		return nil, err
	}
	workers := make([]WorkerSnapshot, 0, len(ids))
	for _, id := range ids {
		live, err := queue.IsLive(ctx, h.server.store, id, h.server.cfg.HeartbeatStale)
		if err != nil {
			return nil, err
		}
		inflight, completed, err := queue.WorkerStats(ctx, h.server.store, id)
		if err != nil {
			return nil, err
		}
		queued, err := queue.WorkerQueueLen(ctx, h.server.store, id)
		if err != nil {
			return nil, err
		}
		workers = append(workers, WorkerSnapshot{ID: id, Live: live, Inflight: inflight, Completed: completed, Queued: queued})
	}
	return &ClusterSnapshot{QueueHigh: high, QueueMed: med, QueueLow: low, Workers: workers}, nil
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}
