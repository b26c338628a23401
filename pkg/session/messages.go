package session

import "github.com/collabcore/editorcore/pkg/ot"
import "github.com/collabcore/editorcore/internal/protocol"

// actorMsg is the sum type accepted by an Actor's mailbox: one variant per
// kind of event the actor's receive loop handles.
type actorMsg interface{ isActorMsg() }

type joinMsg struct {
	handle *ClientHandle
	reply  chan error
}

type leaveMsg struct {
	clientID uint64
}

type clientOpMsg struct {
	clientID    uint64
	op          *ot.Operation
	baseVersion uint64
	clientSeq   uint64
}

type cursorUpdateMsg struct {
	clientID  uint64
	cursor    protocol.Cursor
	selection *protocol.Range
	atVersion uint64
}

// flushMsg forces an out-of-cycle persistIfDirty, used by Registry.Shutdown
// to flush pending writes through the actor's own goroutine rather than
// touching its Document State from outside.
type flushMsg struct {
	reply chan struct{}
}

func (joinMsg) isActorMsg()         {}
func (leaveMsg) isActorMsg()        {}
func (clientOpMsg) isActorMsg()     {}
func (cursorUpdateMsg) isActorMsg() {}
func (flushMsg) isActorMsg()        {}
