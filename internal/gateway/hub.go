// Package gateway streams monitor actions and pass status to dashboard
// clients over WebSocket.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"option-monitor/internal/model"
)

// DefaultReplaySize is the number of action envelopes kept for replay.
const DefaultReplaySize = 500

// Hub manages WebSocket clients and fans out published envelopes.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	replay   *ReplayBuffer
	upgrader websocket.Upgrader
	now      func() time.Time

	// OnClientsChanged is called with the client count after every
	// connect and disconnect (optional).
	OnClientsChanged func(n int)
}

// NewHub creates a Hub keeping replaySize action envelopes.
func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = DefaultReplaySize
	}
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
		},
		now: time.Now,
	}
}

// PublishAction broadcasts a stamped action on the actions channel.
func (h *Hub) PublishAction(a model.Action) int64 {
	return h.Publish(ChannelActions, a.JSON())
}

// PublishStatus broadcasts v encoded as JSON on the status channel.
func (h *Hub) PublishStatus(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] status marshal error: %v", err)
		return
	}
	h.Publish(ChannelStatus, data)
}

// RecentActions returns up to n buffered actions, newest first.
func (h *Hub) RecentActions(n int) []model.Action {
	entries := h.replay.Latest(n)
	out := make([]model.Action, 0, len(entries))
	for _, e := range entries {
		raw := gjson.GetBytes(e.Data, "data").Raw
		var a model.Action
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
// Query parameters: last_seq replays only envelopes after that sequence
// number, trade_id (comma separated) restricts actions to those trades.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}

	var lastSeq int64
	if v := r.URL.Query().Get("last_seq"); v != "" {
		lastSeq, _ = strconv.ParseInt(v, 10, 64)
	}
	var tradeIDs []string
	if v := r.URL.Query().Get("trade_id"); v != "" {
		tradeIDs = strings.Split(v, ",")
	}
	h.register(conn, lastSeq, tradeIDs)
}

func (h *Hub) register(conn *websocket.Conn, lastSeq int64, tradeIDs []string) {
	client := newClient(h, conn)
	client.setFilter(tradeIDs)

	conn.EnableWriteCompression(true)

	count := h.addClient(client, lastSeq)
	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientsChanged != nil {
		h.OnClientsChanged(count)
	}

	go client.writePump()
	go client.readPump()
}

// addClient queues the replay after lastSeq for client and adds it to the
// live set. Both happen under the lock Publish holds, so every envelope
// reaches the client once: from the replay or live, never both.
func (h *Hub) addClient(client *Client, lastSeq int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.replay.Since(lastSeq) {
		if !client.wants(ChannelActions, gjsonData(e.Data)) {
			continue
		}
		select {
		case client.send <- e.Data:
		default:
		}
	}
	h.clients[client] = true
	return len(h.clients)
}

func gjsonData(env []byte) []byte {
	return []byte(gjson.GetBytes(env, "data").Raw)
}

// RemoveClient removes a client from the hub. Safe to call twice.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	if h.OnClientsChanged != nil {
		h.OnClientsChanged(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the last published sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.RemoveClient(c)
	}
}
