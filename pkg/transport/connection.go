// Package transport implements the connection handler: one goroutine pair
// per accepted WebSocket, wired to a session actor via its mailbox and
// never touching document state directly.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/collabcore/editorcore/internal/protocol"
	"github.com/collabcore/editorcore/pkg/logger"
	"github.com/collabcore/editorcore/pkg/session"
)

// Config holds the connection handler's tunables: outbound queue depth,
// maximum accepted operation size, ping/pong liveness timing, and the
// per-connection rate limit.
type Config struct {
	OutboundHighWater int
	MaxOpBytes        int
	PingInterval      time.Duration
	PongTimeout       time.Duration
	RateLimit         RateLimitConfig
}

// DefaultConfig returns the connection handler's default tunables,
// including a 100-frame outbound high-water mark.
func DefaultConfig() Config {
	return Config{
		OutboundHighWater: 100,
		MaxOpBytes:        1 << 20,
		PingInterval:      30 * time.Second,
		PongTimeout:       10 * time.Second,
		RateLimit:         DefaultRateLimitConfig(),
	}
}

// Connection owns one accepted WebSocket's lifecycle: handshake already
// done by the caller, Join, inbound read loop, outbound write loop, and
// idempotent close.
type Connection struct {
	connID     string
	clientID   uint64
	userID     string
	documentID string

	actor *session.Actor
	conn  *websocket.Conn
	cfg   Config

	handle  *session.ClientHandle
	limiter *tokenBucket

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeCode int
	closeReas string
}

// NewConnection wires conn to actor as clientID/userID on documentID. The
// caller has already completed the handshake (token verification,
// Registry.GetOrCreate).
func NewConnection(ctx context.Context, conn *websocket.Conn, actor *session.Actor, documentID, userID string, clientID uint64, cfg Config) *Connection {
	cctx, cancel := context.WithCancel(ctx)
	c := &Connection{
		connID:     uuid.NewString(),
		clientID:   clientID,
		userID:     userID,
		documentID: documentID,
		actor:      actor,
		conn:       conn,
		cfg:        cfg,
		limiter:    newTokenBucket(cfg.RateLimit),
		ctx:        cctx,
		cancel:     cancel,
	}
	c.handle = &session.ClientHandle{
		ClientID: clientID,
		UserID:   userID,
		Name:     userID,
		Color:    session.ColorForUser(userID),
		Outbound: make(chan *protocol.ServerMsg, cfg.OutboundHighWater),
		Evict:    c.evict,
	}
	return c
}

// Handle runs the connection to completion: Join, then pump inbound and
// outbound frames concurrently until either side ends it. If the actor
// handed to NewConnection was already draining, Handle returns
// session.ErrActorDraining without touching the WebSocket further; the
// caller (server.go) re-resolves the actor via Registry.GetOrCreate and
// constructs a fresh Connection to retry.
func (c *Connection) Handle() error {
	if err := c.actor.Join(c.handle); err != nil {
		return err
	}
	defer c.cleanup()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writeLoop() }()
	go func() { defer wg.Done(); c.readLoop() }()
	wg.Wait()

	return nil
}

// readLoop decodes inbound frames and forwards them to the actor.
func (c *Connection) readLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		readCtx, cancel := context.WithTimeout(c.ctx, c.cfg.PongTimeout+c.cfg.PingInterval)
		_, data, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			c.close(protocol.CloseNormal, "")
			return
		}

		if len(data) > c.cfg.MaxOpBytes {
			c.close(protocol.CloseProtocolViolation, "frame too large")
			return
		}
		if !c.limiter.Allow(len(data)) {
			select {
			case c.handle.Outbound <- protocolErrorMsg():
			default:
			}
			continue
		}

		var msg protocol.ClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.close(protocol.CloseProtocolViolation, "malformed frame")
			return
		}

		switch {
		case msg.Op != nil:
			c.actor.SubmitOp(c.clientID, msg.Op.Operation, msg.Op.BaseVersion, msg.Op.ClientSeq)
		case msg.Cursor != nil:
			cursor := protocol.Cursor{Line: msg.Cursor.Line, Column: msg.Cursor.Column}
			c.actor.UpdateCursor(c.clientID, cursor, msg.Cursor.Selection, msg.Cursor.AtVersion)
		case msg.Pong != nil:
			// liveness acknowledged; nothing further to do.
		}
	}
}

// writeLoop drains the outbound queue and writes frames, plus liveness
// pings on a timer.
func (c *Connection) writeLoop() {
	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case msg, ok := <-c.handle.Outbound:
			if !ok {
				return
			}
			if err := c.write(msg); err != nil {
				c.close(protocol.CloseNormal, "")
				return
			}

		case <-pingTicker.C:
			if err := c.write(protocol.NewPingMsg(generateNonce())); err != nil {
				c.close(protocol.CloseNormal, "")
				return
			}
		}
	}
}

func (c *Connection) write(msg *protocol.ServerMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

// evict is called by the Session Actor (via ClientHandle.Evict) when the
// outbound queue overflows. It must not block, matching the actor's
// "never blocks on a single client" invariant.
func (c *Connection) evict(code int, reason string) {
	c.close(code, reason)
}

func (c *Connection) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReas = reason
		c.cancel()
	})
}

func (c *Connection) cleanup() {
	c.actor.Leave(c.clientID)
	code := c.closeCode
	if code == 0 {
		code = protocol.CloseNormal
	}
	c.conn.Close(websocket.StatusCode(code), c.closeReas)
	logger.Info("session %s: client %d (conn %s) disconnected (code %d)", c.documentID, c.clientID, c.connID, code)
}

func protocolErrorMsg() *protocol.ServerMsg {
	return protocol.NewErrorMsg(protocol.ErrKindRateLimited, "rate limit exceeded")
}
