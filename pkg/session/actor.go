// Package session implements the session actor and session registry: the
// single-writer execution context that owns one document's state, and the
// process-wide map that routes connections to it.
package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/collabcore/editorcore/internal/protocol"
	"github.com/collabcore/editorcore/pkg/document"
	"github.com/collabcore/editorcore/pkg/logger"
	"github.com/collabcore/editorcore/pkg/ot"
	"github.com/collabcore/editorcore/pkg/store"
)

// Config holds the actor's tunables: history retention, idle shutdown, and
// persistence cadence. MaxDocumentSize is carried alongside them; the actor
// does not check documents or operations against it.
type Config struct {
	HistoryWindow   int
	IdleTimeout     time.Duration
	PersistInterval time.Duration
	MaxDocumentSize int
}

// DefaultConfig returns the actor's default tunables: 5 minute idle
// shutdown, 10 second persistence cadence, 2000-operation history window.
func DefaultConfig() Config {
	return Config{
		HistoryWindow:   document.DefaultHistoryWindow,
		IdleTimeout:     5 * time.Minute,
		PersistInterval: 10 * time.Second,
		MaxDocumentSize: 10 * 1024 * 1024,
	}
}

// Actor is one logical single-threaded executor per document. All fields
// below this point are only ever touched from the run goroutine; draining
// and done are the sole exceptions, read by other goroutines to implement
// the join-during-drain protocol that lets a racing Join detect a dying
// actor and retry against its replacement instead of hanging.
type Actor struct {
	documentID string
	mailbox    chan actorMsg
	done       chan struct{}
	draining   atomic.Bool

	registry *Registry
	store    store.Store
	cfg      Config

	doc     *document.Document
	clients map[uint64]*ClientHandle
	dirty   bool
}

func newActor(documentID, text string, version uint64, registry *Registry, st store.Store, cfg Config) *Actor {
	return &Actor{
		documentID: documentID,
		mailbox:    make(chan actorMsg),
		done:       make(chan struct{}),
		registry:   registry,
		store:      st,
		cfg:        cfg,
		doc:        document.New(documentID, text, version, cfg.HistoryWindow),
		clients:    make(map[uint64]*ClientHandle),
	}
}

// Join admits handle to the session. It rendezvous with the actor's
// receive loop over the unbuffered mailbox; if the actor has already
// started draining, the send never lands and Join returns
// ErrActorDraining instead of blocking forever.
func (a *Actor) Join(handle *ClientHandle) error {
	reply := make(chan error, 1)
	select {
	case a.mailbox <- joinMsg{handle: handle, reply: reply}:
		return <-reply
	case <-a.done:
		return ErrActorDraining
	}
}

// Leave removes a client. It is fire-and-forget and idempotent: a second
// Leave for the same client_id, or one racing with the actor's own drain,
// is simply dropped.
func (a *Actor) Leave(clientID uint64) {
	select {
	case a.mailbox <- leaveMsg{clientID: clientID}:
	case <-a.done:
	}
}

// SubmitOp forwards a client's edit to the actor.
func (a *Actor) SubmitOp(clientID uint64, op *ot.Operation, baseVersion, clientSeq uint64) {
	select {
	case a.mailbox <- clientOpMsg{clientID: clientID, op: op, baseVersion: baseVersion, clientSeq: clientSeq}:
	case <-a.done:
	}
}

// UpdateCursor forwards a presence update to the actor.
func (a *Actor) UpdateCursor(clientID uint64, cursor protocol.Cursor, selection *protocol.Range, atVersion uint64) {
	select {
	case a.mailbox <- cursorUpdateMsg{clientID: clientID, cursor: cursor, selection: selection, atVersion: atVersion}:
	case <-a.done:
	}
}

// run is the actor's single-threaded loop. It owns the Document and the
// client roster exclusively for as long as it executes; every message is
// processed to completion before the next is dequeued, so no other
// goroutine ever observes partially-applied document state.
func (a *Actor) run() {
	idleTimer := time.NewTimer(a.cfg.IdleTimeout)
	persistTicker := time.NewTicker(a.cfg.PersistInterval)
	defer idleTimer.Stop()
	defer persistTicker.Stop()
	defer close(a.done)

	for {
		select {
		case msg := <-a.mailbox:
			a.dispatch(msg)
			stopTimer(idleTimer)
			if len(a.clients) == 0 {
				idleTimer.Reset(a.cfg.IdleTimeout)
			}

		case <-persistTicker.C:
			a.persistIfDirty(context.Background())

		case <-idleTimer.C:
			if len(a.clients) == 0 {
				a.drain()
				return
			}
		}
	}
}

// stopTimer drains a timer's channel if it already fired, so Reset never
// races with a pending stale tick (the standard library's documented
// idiom for reusing a time.Timer from a select loop).
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func (a *Actor) dispatch(msg actorMsg) {
	switch m := msg.(type) {
	case joinMsg:
		a.handleJoin(m)
	case leaveMsg:
		a.handleLeave(m)
	case clientOpMsg:
		a.handleClientOp(m)
	case cursorUpdateMsg:
		a.handleCursorUpdate(m)
	case flushMsg:
		a.persistIfDirty(context.Background())
		close(m.reply)
	}
}

// Flush forces a persist of pending changes through the actor's own
// goroutine, used on process shutdown. It is a no-op if the actor has
// already drained.
func (a *Actor) Flush(ctx context.Context) {
	reply := make(chan struct{})
	select {
	case a.mailbox <- flushMsg{reply: reply}:
	case <-a.done:
		return
	}
	select {
	case <-reply:
	case <-ctx.Done():
	case <-a.done:
	}
}

func (a *Actor) handleJoin(m joinMsg) {
	a.clients[m.handle.ClientID] = m.handle

	text, version := a.doc.Snapshot()
	m.handle.send(protocol.NewSyncMsg(text, version, a.peerSummaries()))
	a.broadcastExcept(m.handle.ClientID, protocol.NewUserJoinedMsg(m.handle.summary()))

	m.reply <- nil
}

func (a *Actor) handleLeave(m leaveMsg) {
	if _, ok := a.clients[m.clientID]; !ok {
		return
	}
	delete(a.clients, m.clientID)
	a.broadcastAll(protocol.NewUserLeftMsg(m.clientID))
}

func (a *Actor) handleClientOp(m clientOpMsg) {
	author, ok := a.clients[m.clientID]
	if !ok {
		return
	}

	transformed, newVersion, err := a.doc.ApplyClientOp(m.op, m.baseVersion)
	if err != nil {
		a.handleOpError(author, err)
		return
	}

	a.dirty = true
	a.broadcastExcept(m.clientID, protocol.NewRemoteOpMsg(transformed, newVersion, m.op.AuthorID))
	author.send(protocol.NewAckMsg(m.clientSeq, newVersion))
}

func (a *Actor) handleOpError(author *ClientHandle, err error) {
	switch {
	case isResyncable(err):
		text, version := a.doc.Snapshot()
		author.send(protocol.NewSyncMsg(text, version, a.peerSummaries()))
	case isFatalToClient(err):
		author.Evict(protocol.CloseProtocolViolation, "future base version")
	default:
		logger.Error("session %s: client %d op rejected: %v", a.documentID, author.ClientID, err)
		author.send(protocol.NewErrorMsg(protocol.ErrKindBadRequest, err.Error()))
	}
}

func (a *Actor) handleCursorUpdate(m cursorUpdateMsg) {
	client, ok := a.clients[m.clientID]
	if !ok {
		return
	}

	ops := make([]*ot.Operation, 0)
	for _, entry := range a.doc.HistorySince(m.atVersion) {
		ops = append(ops, entry.Operation)
	}

	rebasedColumn := rebaseCursorThrough(m.cursor.Column, ops)
	cursor := protocol.Cursor{Line: m.cursor.Line, Column: rebasedColumn}

	var selection *protocol.Range
	if m.selection != nil {
		selection = &protocol.Range{
			Anchor: rebaseCursorThrough(m.selection.Anchor, ops),
			Head:   rebaseCursorThrough(m.selection.Head, ops),
		}
	}

	_, version := a.doc.Snapshot()
	client.Cursor = &cursor
	client.Selection = selection
	client.CursorVersion = version

	a.broadcastExcept(m.clientID, protocol.NewRemoteCursorMsg(m.clientID, cursor, selection, version))
}

func (a *Actor) broadcastExcept(exceptClientID uint64, msg *protocol.ServerMsg) {
	for id, client := range a.clients {
		if id == exceptClientID {
			continue
		}
		client.send(msg)
	}
}

func (a *Actor) broadcastAll(msg *protocol.ServerMsg) {
	for _, client := range a.clients {
		client.send(msg)
	}
}

func (a *Actor) peerSummaries() []protocol.Peer {
	out := make([]protocol.Peer, 0, len(a.clients))
	for _, client := range a.clients {
		out = append(out, client.summary())
	}
	return out
}

func (a *Actor) persistIfDirty(ctx context.Context) {
	if !a.dirty {
		return
	}
	text, version := a.doc.Snapshot()
	if err := a.store.Save(ctx, a.documentID, text, version); err != nil {
		logger.Error("session %s: persist failed, will retry next tick: %v", a.documentID, err)
		return
	}
	a.dirty = false
}

// drain runs the actor's shutdown sequence: flip draining, persist one
// last time, then remove from the registry. The caller (run)
// closes done immediately after this returns, which is what lets a
// racing Join observe the drain and retry instead of hanging.
func (a *Actor) drain() {
	a.draining.Store(true)
	a.persistIfDirty(context.Background())
	a.registry.remove(a.documentID, a)
	logger.Info("session %s: idle, actor shut down", a.documentID)
}

func isResyncable(err error) bool {
	return errors.Is(err, document.ErrVersionTooOld) || errors.Is(err, ot.ErrInvalidOperation) || errors.Is(err, ot.ErrIndexOutOfBounds)
}

func isFatalToClient(err error) bool {
	return errors.Is(err, document.ErrFutureVersion)
}
