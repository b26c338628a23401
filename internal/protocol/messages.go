package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/collabcore/editorcore/pkg/ot"
)

// Range is a selection anchor/head pair, in UTF-16 code units.
type Range struct {
	Anchor uint32 `json:"anchor"`
	Head   uint32 `json:"head"`
}

// Cursor is a single caret position, in UTF-16 code units.
type Cursor struct {
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
}

// Peer is one connected user's presence, as sent in a `sync` frame's peer
// list.
type Peer struct {
	ClientID  uint64  `json:"client_id"`
	UserID    string  `json:"user_id"`
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	Cursor    *Cursor `json:"cursor,omitempty"`
	Selection *Range  `json:"selection,omitempty"`
}

// ClientMsg is the tagged union of messages a client may send, decoded
// from its `type` field rather than matched against string-keyed event
// names.
type ClientMsg struct {
	Op     *OpMsg     `json:"-"`
	Cursor *CursorMsg `json:"-"`
	Pong   *PongMsg   `json:"-"`
}

// OpMsg submits an edit (`type: "op"`).
type OpMsg struct {
	BaseVersion uint64       `json:"base_version"`
	Operation   *ot.Operation `json:"-"` // decoded from "components"/"author_id" fields below
	ClientSeq   uint64       `json:"client_seq"`
}

// CursorMsg is a presence update (`type: "cursor"`).
type CursorMsg struct {
	Line        uint32 `json:"line"`
	Column      uint32 `json:"column"`
	Selection   *Range `json:"selection"`
	AtVersion   uint64 `json:"at_version"`
}

// PongMsg answers a server `ping` (`type: "pong"`).
type PongMsg struct {
	Nonce string `json:"nonce"`
}

type clientEnvelope struct {
	Type        string          `json:"type"`
	BaseVersion uint64          `json:"base_version"`
	Components  json.RawMessage `json:"components"`
	AuthorID    string          `json:"author_id"`
	ClientSeq   uint64          `json:"client_seq"`
	Line        uint32          `json:"line"`
	Column      uint32          `json:"column"`
	Selection   *Range          `json:"selection"`
	AtVersion   uint64          `json:"at_version"`
	Nonce       string          `json:"nonce"`
}

// ErrUnknownMessageType is returned by UnmarshalJSON when `type` is not one
// of the client message types the protocol defines; the Connection Handler
// treats this as a protocol violation (close 4008).
var ErrUnknownMessageType = fmt.Errorf("protocol: unknown message type")

// UnmarshalJSON decodes a ClientMsg from its `type`-discriminated wire
// form.
func (m *ClientMsg) UnmarshalJSON(data []byte) error {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("protocol: decode envelope: %w", err)
	}

	switch env.Type {
	case "op":
		op := &ot.Operation{BaseLen: 0}
		opWire := struct {
			Components []interface{} `json:"components"`
			AuthorID   string         `json:"author_id"`
		}{}
		if len(env.Components) > 0 {
			if err := json.Unmarshal(env.Components, &opWire.Components); err != nil {
				return fmt.Errorf("protocol: decode components: %w", err)
			}
		}
		op = ot.New(env.AuthorID)
		for _, raw := range opWire.Components {
			switch v := raw.(type) {
			case float64:
				if v >= 0 {
					op.Retain(uint64(v))
				} else {
					op.Delete(uint64(-v))
				}
			case string:
				op.Insert(v)
			default:
				return fmt.Errorf("protocol: unrecognized component %v", raw)
			}
		}
		m.Op = &OpMsg{BaseVersion: env.BaseVersion, Operation: op, ClientSeq: env.ClientSeq}
		return nil
	case "cursor":
		m.Cursor = &CursorMsg{Line: env.Line, Column: env.Column, Selection: env.Selection, AtVersion: env.AtVersion}
		return nil
	case "pong":
		m.Pong = &PongMsg{Nonce: env.Nonce}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// ServerMsg is the tagged union of messages the server may send. Exactly
// one constructor below should be used per outbound frame.
type ServerMsg struct {
	typeName string
	payload  interface{}
}

func (m *ServerMsg) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"type": m.typeName, "v": Version}
	body, err := json.Marshal(m.payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// SyncMsg (`type: "sync"`) sends the full document state: initial join or
// a forced resync after VersionTooOld/InvalidOperation.
type SyncMsg struct {
	Text    string `json:"text"`
	Version uint64 `json:"version"`
	Peers   []Peer `json:"peers"`
}

func NewSyncMsg(text string, version uint64, peers []Peer) *ServerMsg {
	if peers == nil {
		peers = []Peer{}
	}
	return &ServerMsg{typeName: "sync", payload: SyncMsg{Text: text, Version: version, Peers: peers}}
}

// RemoteOpMsg (`type: "remote_op"`) fans a transformed op out to every
// client except its author. Components is the operation's compact wire
// array, not the operation's own marshaled form, so the frame reads as
// `components: [...]` rather than nesting a `{components, base_len, ...}`
// object under that key.
type RemoteOpMsg struct {
	Components []interface{} `json:"components"`
	Version    uint64        `json:"version"`
	AuthorID   string        `json:"author_id"`
}

func NewRemoteOpMsg(op *ot.Operation, version uint64, authorID string) *ServerMsg {
	components, err := op.WireComponents()
	if err != nil {
		components = []interface{}{}
	}
	return &ServerMsg{typeName: "remote_op", payload: RemoteOpMsg{Components: components, Version: version, AuthorID: authorID}}
}

// AckMsg (`type: "ack"`) confirms the author's own op was applied.
type AckMsg struct {
	ClientSeq uint64 `json:"client_seq"`
	Version   uint64 `json:"version"`
}

func NewAckMsg(clientSeq, version uint64) *ServerMsg {
	return &ServerMsg{typeName: "ack", payload: AckMsg{ClientSeq: clientSeq, Version: version}}
}

// RemoteCursorMsg (`type: "remote_cursor"`) broadcasts a rebased cursor.
type RemoteCursorMsg struct {
	ClientID  uint64  `json:"client_id"`
	Cursor    Cursor  `json:"cursor"`
	Selection *Range  `json:"selection,omitempty"`
	Version   uint64  `json:"version"`
}

func NewRemoteCursorMsg(clientID uint64, cursor Cursor, selection *Range, version uint64) *ServerMsg {
	return &ServerMsg{typeName: "remote_cursor", payload: RemoteCursorMsg{ClientID: clientID, Cursor: cursor, Selection: selection, Version: version}}
}

// UserJoinedMsg / UserLeftMsg (`type: "user_joined"` / `"user_left"`)
// announce roster changes.
type UserJoinedMsg struct {
	ClientID uint64 `json:"client_id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
}

func NewUserJoinedMsg(p Peer) *ServerMsg {
	return &ServerMsg{typeName: "user_joined", payload: UserJoinedMsg{ClientID: p.ClientID, UserID: p.UserID, Name: p.Name, Color: p.Color}}
}

type UserLeftMsg struct {
	ClientID uint64 `json:"client_id"`
}

func NewUserLeftMsg(clientID uint64) *ServerMsg {
	return &ServerMsg{typeName: "user_left", payload: UserLeftMsg{ClientID: clientID}}
}

// ErrorMsg (`type: "error"`) is a soft, connection-preserving error.
type ErrorMsg struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewErrorMsg(kind, message string) *ServerMsg {
	return &ServerMsg{typeName: "error", payload: ErrorMsg{Kind: kind, Message: message}}
}

// PingMsg (`type: "ping"`) is a liveness probe expecting a `pong` reply.
type PingMsg struct {
	Nonce string `json:"nonce"`
}

func NewPingMsg(nonce string) *ServerMsg {
	return &ServerMsg{typeName: "ping", payload: PingMsg{Nonce: nonce}}
}

// Type reports the wire `type` discriminant; used by tests to assert which
// frame was produced without re-parsing JSON.
func (m *ServerMsg) Type() string { return m.typeName }

// Payload exposes the typed payload for tests and in-process forwarding.
func (m *ServerMsg) Payload() interface{} { return m.payload }
