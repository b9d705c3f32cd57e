package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Trade ids this client wants actions for; empty means all.
	filterMu sync.RWMutex
	tradeIDs map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
}

// controlMsg is a message sent by the dashboard.
type controlMsg struct {
	Type     string   `json:"type"`
	TradeIDs []string `json:"trade_ids"`
	Ping     int64    `json:"ping"`
}

func (c *Client) setFilter(ids []string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	if len(ids) == 0 {
		c.tradeIDs = nil
		return
	}
	c.tradeIDs = make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			c.tradeIDs[id] = true
		}
	}
}

// wants reports whether the payload on channel should reach this client.
// Only action payloads are filtered.
func (c *Client) wants(channel string, data []byte) bool {
	if channel != ChannelActions {
		return true
	}
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	if len(c.tradeIDs) == 0 {
		return true
	}
	return c.tradeIDs[gjson.GetBytes(data, "trade_id").String()]
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Write coalescing: batch queued messages into a single frame
			// with newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var ctl controlMsg
		if json.Unmarshal(msg, &ctl) != nil {
			continue
		}

		switch ctl.Type {
		case "SUBSCRIBE":
			c.setFilter(ctl.TradeIDs)
			log.Printf("[gateway] client subscribed: trade_ids=%v", ctl.TradeIDs)
		case "UNSUBSCRIBE":
			c.setFilter(nil)
		default:
			if ctl.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      ctl.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.trySend(pong)
			}
		}
	}
}

// trySend queues msg unless the client is gone or its buffer is full.
func (c *Client) trySend(msg []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
