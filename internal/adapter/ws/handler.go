// Package ws streams execution status changes to WebSocket clients, so
// review dashboards learn about pending approvals without polling.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/Strob0t/agentrelay/internal/domain/execution"
)

// sendBuffer is how many messages a client may fall behind before it is
// disconnected.
const sendBuffer = 32

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection. Writes happen only on the
// handler goroutine that owns ws.
type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	status execution.Status // empty means every status
	cancel context.CancelFunc
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	originPatterns []string

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub. originPatterns lists the hosts
// allowed to connect cross-origin; same-origin clients are always accepted.
func NewHub(originPatterns ...string) *Hub {
	return &Hub{
		originPatterns: originPatterns,
		conns:          make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request and streams events until the client goes
// away. The optional status query parameter limits the stream to one
// execution status.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	status := execution.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		http.Error(w, "unknown status "+string(status), http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The client never sends anything; CloseRead consumes control frames
	// and cancels ctx once the connection drops.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	ctx = ws.CloseRead(ctx)
	c := &conn{ws: ws, send: make(chan []byte, sendBuffer), status: status, cancel: cancel}
	h.add(c)
	defer h.remove(c)

	slog.Info("websocket connected", "remote", r.RemoteAddr, "status_filter", string(status))

	for {
		select {
		case <-ctx.Done():
			_ = ws.Close(websocket.StatusNormalClosure, "")
			return
		case data := <-c.send:
			if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// broadcast queues msg for every client whose filter matches status. A
// client whose buffer is full is dropped rather than slowing the caller.
func (h *Hub) broadcast(msg Message, status execution.Status) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if c.status != "" && c.status != status {
			continue
		}
		select {
		case c.send <- data:
		default:
			slog.Warn("websocket client too slow, disconnecting")
			c.cancel()
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
