package gateway

import (
	"strconv"
	"time"
)

// Envelope channels.
const (
	ChannelActions = "actions"
	ChannelStatus  = "status"
)

// buildEnvelope wraps an already-encoded payload:
// {"channel":"...","data":...,"ts":"...","seq":N}.
// The payload must be valid JSON; the envelope is built by hand so the
// payload is never re-encoded.
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.UTC().AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// Publish stamps data with the next sequence number and fans it out to every
// client subscribed to channel. Action envelopes are kept in the replay
// buffer for reconnecting clients. Sequencing, the replay push and the
// fan-out share one critical section with register, so a connecting client
// sees each envelope exactly once. Slow clients drop messages rather than
// block the publisher.
func (h *Hub) Publish(channel string, data []byte) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	seq := h.seq
	env := buildEnvelope(channel, data, h.now(), seq)
	if channel == ChannelActions {
		h.replay.Push(seq, env)
	}
	for client := range h.clients {
		if !client.wants(channel, data) {
			continue
		}
		select {
		case client.send <- env:
		default:
		}
	}
	return seq
}
