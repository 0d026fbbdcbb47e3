// Package ws implements the WebSocket adapter for browser push delivery.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection owned by a user.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
	userID int64
	mu     sync.Mutex // serializes writes
}

func (c *conn) write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Hub manages active WebSocket sessions grouped by user.
type Hub struct {
	mu             sync.RWMutex
	conns          map[int64]map[*conn]struct{}
	originPatterns []string
}

// NewHub creates a hub. originPatterns restricts browser origins allowed
// to connect; an empty list accepts any origin.
func NewHub(originPatterns ...string) *Hub {
	return &Hub{
		conns:          make(map[int64]map[*conn]struct{}),
		originPatterns: originPatterns,
	}
}

// HandleWS upgrades the request to a WebSocket session for the user named
// by the user_id query parameter.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: h.originPatterns}
	if len(h.originPatterns) == 0 {
		opts.InsecureSkipVerify = true
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The session outlives the upgrade request.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, cancel: cancel, userID: userID}
	h.add(c)

	slog.Info("websocket connected", "user_id", userID, "remote", r.RemoteAddr)

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends a message to every connected session.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}
	for _, c := range h.snapshot(0, true) {
		h.deliver(ctx, c, data)
	}
}

// SendToUser sends a message to the sessions of userID and reports how
// many sessions accepted it.
func (h *Hub) SendToUser(ctx context.Context, userID int64, msg Message) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, c := range h.snapshot(userID, false) {
		if h.deliver(ctx, c, data) {
			delivered++
		}
	}
	return delivered, nil
}

func (h *Hub) deliver(ctx context.Context, c *conn, data []byte) bool {
	if err := c.write(ctx, data); err != nil {
		slog.Debug("websocket write failed", "user_id", c.userID, "error", err)
		h.remove(c)
		return false
	}
	return true
}

// snapshot copies the target connections so writes happen without the lock.
func (h *Hub) snapshot(userID int64, all bool) []*conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*conn
	for uid, set := range h.conns {
		if !all && uid != userID {
			continue
		}
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionCount returns the number of active sessions.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.conns {
		n += len(set)
	}
	return n
}

// UserConnectionCount returns the number of active sessions of userID.
func (h *Hub) UserConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Close ends every session.
func (h *Hub) Close() {
	for _, c := range h.snapshot(0, true) {
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
		h.remove(c)
	}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		c.cancel()
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.userID)
		}
		slog.Info("websocket disconnected", "user_id", c.userID)
	}
}
