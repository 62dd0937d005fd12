package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dbfleet/dbfleet/internal/alarm"
	"github.com/dbfleet/dbfleet/internal/api"
	"github.com/dbfleet/dbfleet/internal/store"
	"github.com/dbfleet/dbfleet/pkg/types"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the connection
	// as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub manages WebSocket client connections and broadcasts the fleet snapshot.
type Hub struct {
	store    *store.Store
	registry *alarm.Registry
	interval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	// engine restricts the pushed snapshot to one engine; empty means all.
	engine types.Engine
}

// New creates a Hub that reads from st and reg and also broadcasts every
// interval.
func New(st *store.Store, reg *alarm.Registry, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		registry: reg,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// Run broadcasts on every published snapshot and every interval. It blocks
// until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	updates, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-updates:
			h.broadcast()
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the connection, sends the current snapshot and then
// serves broadcasts until the connection closes. The optional ?engine= query
// parameter limits the stream to one engine.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var engine types.Engine
	if q := r.URL.Query().Get("engine"); q != "" {
		e, err := types.ParseEngine(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		engine = e
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
		engine: engine,
	}
	if data, err := encode(h.current(), engine); err == nil {
		c.send <- data
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast() {
	snap := h.current()

	// One encoding per distinct filter. Sends happen under the read lock so
	// unregister cannot close a channel mid-send.
	encoded := make(map[types.Engine][]byte)
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		data, ok := encoded[c.engine]
		if !ok {
			var err error
			if data, err = encode(snap, c.engine); err != nil {
				slog.Error("ws: encode snapshot", "engine", c.engine, "err", err)
				continue
			}
			encoded[c.engine] = data
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("ws: dropping slow client", "remote", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
}

func (h *Hub) current() api.SnapshotResponse {
	return api.BuildSnapshot(h.store, h.registry, time.Now())
}

// encode wraps snap in a Message, keeping only engine's entries when engine
// is set. Counts are recomputed from what remains.
func encode(snap api.SnapshotResponse, engine types.Engine) ([]byte, error) {
	if engine != "" {
		snap = filterEngine(snap, engine)
	}
	return json.Marshal(Message{Event: "snapshot", Data: snap})
}

func filterEngine(snap api.SnapshotResponse, engine types.Engine) api.SnapshotResponse {
	out := snap
	out.Engines = []types.EngineSnapshot{}
	out.Suppressed = map[string]bool{}
	out.ClusterCounts = types.Counts{}
	var nodes types.Counts
	for _, es := range snap.Engines {
		if es.Engine != engine {
			continue
		}
		out.Engines = append(out.Engines, es)
		nodes.Merge(es.Counts)
		out.ClusterCounts.Merge(es.ClusterCounts)
		for _, cg := range es.Clusters {
			for _, n := range cg.Members {
				out.Suppressed[n.Key()] = snap.Suppressed[n.Key()]
			}
		}
	}
	out.CriticalCount = nodes.Critical
	out.WarningCount = nodes.Warning
	out.HealthyCount = nodes.Healthy
	return out
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump drains the client's send channel and forwards messages to the
// connection. It also sends periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump processes control frames and detects disconnects. Blocks until the
// connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
