package session

import (
	"hash/fnv"

	"github.com/collabcore/editorcore/internal/protocol"
)

// palette is the set of colors assigned to clients, stable per user_id via
// an FNV hash of the id.
var palette = []string{
	"#e57373", "#f06292", "#ba68c8", "#9575cd",
	"#7986cb", "#64b5f6", "#4fc3f7", "#4dd0e1",
	"#4db6ac", "#81c784", "#aed581", "#ffb74d",
}

// ColorForUser deterministically maps a user id to a palette entry so the
// same user always renders with the same color across reconnects.
func ColorForUser(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return palette[h.Sum32()%uint32(len(palette))]
}

// ClientHandle is the actor's view of one connected client. It is owned
// exclusively by the Actor goroutine once Joined; the Connection Handler
// that created it reads from Outbound, supplies Evict, and at most enqueues
// a soft error frame onto Outbound without blocking.
type ClientHandle struct {
	ClientID uint64
	UserID   string
	Name     string
	Color    string

	// Outbound is the per-client frame queue. The actor only ever sends to
	// it with a non-blocking select; a full queue evicts the client
	// instead of blocking the actor.
	Outbound chan *protocol.ServerMsg

	// Evict is called by the actor, at most once, when Outbound overflows.
	// The Connection Handler supplies a closure that closes the WebSocket
	// with the given code and reason; it must not block.
	Evict func(code int, reason string)

	Cursor        *protocol.Cursor
	Selection     *protocol.Range
	CursorVersion uint64

	evicted bool
}

// send enqueues msg without blocking. A full queue is treated as a slow
// consumer: the client is evicted once and further sends are dropped.
func (h *ClientHandle) send(msg *protocol.ServerMsg) {
	if h.evicted {
		return
	}
	select {
	case h.Outbound <- msg:
	default:
		h.evicted = true
		if h.Evict != nil {
			h.Evict(protocol.CloseSlowConsumer, "slow_consumer")
		}
	}
}

func (h *ClientHandle) summary() protocol.Peer {
	return protocol.Peer{
		ClientID:  h.ClientID,
		UserID:    h.UserID,
		Name:      h.Name,
		Color:     h.Color,
		Cursor:    h.Cursor,
		Selection: h.Selection,
	}
}
