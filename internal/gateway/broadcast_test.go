package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-monitor/internal/model"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      string          `json:"ts"`
	Seq     int64           `json:"seq"`
}

func testAction(tradeID string, kind model.ActionKind) model.Action {
	return model.Action{
		Kind:    kind,
		Side:    model.SideCall,
		Strike:  60000,
		Mark:    120,
		TS:      time.Date(2025, 9, 20, 10, 5, 0, 0, time.UTC),
		TradeID: tradeID,
	}
}

// attach registers a connection-less client for fan-out tests.
func attach(h *Hub, tradeIDs ...string) *Client {
	c := newClient(h, nil)
	c.setFilter(tradeIDs)
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)
	buf := buildEnvelope(ChannelActions, []byte(`{"kind":"EXIT_STOP"}`), now, 42)

	var env envelope
	require.NoError(t, json.Unmarshal(buf, &env), "raw: %s", buf)
	assert.Equal(t, ChannelActions, env.Channel)
	assert.Equal(t, int64(42), env.Seq)
	assert.JSONEq(t, `{"kind":"EXIT_STOP"}`, string(env.Data))

	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}

func TestHub_PublishFansOutWithFilters(t *testing.T) {
	h := NewHub(10)
	all := attach(h)
	one := attach(h, "t1")

	h.PublishAction(testAction("t1", model.ActionEntryInitial))
	h.PublishAction(testAction("t2", model.ActionEntryInitial))
	h.PublishStatus(map[string]int{"monitors": 2})

	assert.Len(t, all.send, 3)
	assert.Len(t, one.send, 2, "t2 filtered, status always delivered")

	var env envelope
	require.NoError(t, json.Unmarshal(<-one.send, &env))
	assert.Equal(t, int64(1), env.Seq)
	require.NoError(t, json.Unmarshal(<-one.send, &env))
	assert.Equal(t, ChannelStatus, env.Channel)
	assert.Equal(t, int64(3), h.Seq())
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	h := NewHub(10)
	c := attach(h)
	for i := 0; i < cap(c.send)+10; i++ {
		h.PublishStatus(i)
	}
	assert.Len(t, c.send, cap(c.send))
}

func TestHub_RecentActions(t *testing.T) {
	h := NewHub(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		h.PublishAction(testAction(id, model.ActionTrailUpdate))
	}
	h.PublishStatus("ignored")

	got := h.RecentActions(10)
	require.Len(t, got, 3)
	assert.Equal(t, "d", got[0].TradeID)
	assert.Equal(t, "b", got[2].TradeID)
	assert.Equal(t, model.ActionTrailUpdate, got[0].Kind)
}

func TestHub_RemoveClientTwice(t *testing.T) {
	h := NewHub(10)
	var counts []int
	h.OnClientsChanged = func(n int) { counts = append(counts, n) }
	c := attach(h)
	h.RemoveClient(c)
	h.RemoveClient(c)
	assert.Zero(t, h.ClientCount())
	assert.Equal(t, []int{0}, counts)
}

func TestHub_WebSocketReplayAndLive(t *testing.T) {
	h := NewHub(10)
	h.PublishAction(testAction("t1", model.ActionEntryInitial))
	h.PublishAction(testAction("t2", model.ActionEntryInitial))

	srv := httptest.NewServer(h)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?trade_id=t2"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, int64(2), env.Seq, "only the t2 action is replayed")

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.PublishAction(testAction("t2", model.ActionExitStop))

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &env))
	var a model.Action
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, model.ActionExitStop, a.Kind)
	assert.Equal(t, int64(3), env.Seq)
}

func TestHub_ConnectDuringPublishSeesEachEnvelopeOnce(t *testing.T) {
	const total = 200
	h := NewHub(total)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			h.PublishAction(testAction("t1", model.ActionTrailUpdate))
		}
	}()

	clients := make([]*Client, 0, 20)
	for i := 0; i < 20; i++ {
		c := newClient(h, nil)
		h.addClient(c, 0)
		clients = append(clients, c)
		time.Sleep(50 * time.Microsecond)
	}
	wg.Wait()

	for i, c := range clients {
		var seqs []int64
	drain:
		for {
			select {
			case msg := <-c.send:
				var env envelope
				require.NoError(t, json.Unmarshal(msg, &env))
				seqs = append(seqs, env.Seq)
			default:
				break drain
			}
		}
		require.Len(t, seqs, total, "client %d", i)
		for j, seq := range seqs {
			assert.Equal(t, int64(j+1), seq, "client %d position %d", i, j)
		}
	}
}
