package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collabcore/editorcore/internal/protocol"
	"github.com/collabcore/editorcore/pkg/ot"
	"github.com/collabcore/editorcore/pkg/store"
)

func newTestActor(t *testing.T, cfg Config) (*Actor, *Registry) {
	t.Helper()
	st := store.NewMemory()
	registry := NewRegistry(st, cfg)
	a, err := registry.GetOrCreate(context.Background(), "doc-1")
	require.NoError(t, err)
	return a, registry
}

func newTestHandle(clientID uint64, userID string, buf int) *ClientHandle {
	return &ClientHandle{
		ClientID: clientID,
		UserID:   userID,
		Name:     userID,
		Color:    ColorForUser(userID),
		Outbound: make(chan *protocol.ServerMsg, buf),
		Evict:    func(int, string) {},
	}
}

func recvMsg(t *testing.T, ch <-chan *protocol.ServerMsg) *protocol.ServerMsg {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestActorJoinSendsSyncAndBroadcastsUserJoined(t *testing.T) {
	cfg := DefaultConfig()
	a, _ := newTestActor(t, cfg)

	alice := newTestHandle(1, "alice", 10)
	require.NoError(t, a.Join(alice))

	sync := recvMsg(t, alice.Outbound)
	require.Equal(t, "sync", sync.Type())

	bob := newTestHandle(2, "bob", 10)
	require.NoError(t, a.Join(bob))

	// bob gets his own sync frame first...
	bobSync := recvMsg(t, bob.Outbound)
	require.Equal(t, "sync", bobSync.Type())

	// ...and alice is told bob joined.
	joined := recvMsg(t, alice.Outbound)
	require.Equal(t, "user_joined", joined.Type())
	payload := joined.Payload().(protocol.UserJoinedMsg)
	require.Equal(t, uint64(2), payload.ClientID)
}

func TestActorFanOutExcludesAuthor(t *testing.T) {
	cfg := DefaultConfig()
	a, _ := newTestActor(t, cfg)

	alice := newTestHandle(1, "alice", 10)
	bob := newTestHandle(2, "bob", 10)
	require.NoError(t, a.Join(alice))
	recvMsg(t, alice.Outbound) // sync
	require.NoError(t, a.Join(bob))
	recvMsg(t, bob.Outbound)   // sync
	recvMsg(t, alice.Outbound) // user_joined for bob

	op := ot.New("alice")
	op.Retain(0).Insert("hi")
	a.SubmitOp(alice.ClientID, op, 0, 1)

	remote := recvMsg(t, bob.Outbound)
	require.Equal(t, "remote_op", remote.Type())

	ack := recvMsg(t, alice.Outbound)
	require.Equal(t, "ack", ack.Type())

	select {
	case msg := <-alice.Outbound:
		t.Fatalf("author should not receive its own op echoed back, got %s", msg.Type())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestActorLeaveBroadcastsUserLeft(t *testing.T) {
	cfg := DefaultConfig()
	a, _ := newTestActor(t, cfg)

	alice := newTestHandle(1, "alice", 10)
	bob := newTestHandle(2, "bob", 10)
	require.NoError(t, a.Join(alice))
	recvMsg(t, alice.Outbound)
	require.NoError(t, a.Join(bob))
	recvMsg(t, bob.Outbound)
	recvMsg(t, alice.Outbound) // user_joined

	a.Leave(bob.ClientID)

	left := recvMsg(t, alice.Outbound)
	require.Equal(t, "user_left", left.Type())
	require.Equal(t, uint64(2), left.Payload().(protocol.UserLeftMsg).ClientID)
}

func TestActorLeaveIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	a, _ := newTestActor(t, cfg)

	alice := newTestHandle(1, "alice", 10)
	require.NoError(t, a.Join(alice))
	recvMsg(t, alice.Outbound)

	a.Leave(alice.ClientID)
	a.Leave(alice.ClientID) // must not panic or hang
	a.Leave(alice.ClientID)
}

func TestActorSlowConsumerIsEvicted(t *testing.T) {
	cfg := DefaultConfig()
	a, _ := newTestActor(t, cfg)

	evicted := make(chan int, 1)
	alice := &ClientHandle{
		ClientID: 1,
		UserID:   "alice",
		Outbound: make(chan *protocol.ServerMsg, 1),
		Evict:    func(code int, reason string) { evicted <- code },
	}
	require.NoError(t, a.Join(alice))
	recvMsg(t, alice.Outbound) // drain the sync frame, queue now empty again

	bob := newTestHandle(2, "bob", 10)
	require.NoError(t, a.Join(bob))
	// alice's 1-deep queue now holds bob's user_joined frame; flood it
	// without draining to force an overflow.
	for i := 0; i < 5; i++ {
		op := ot.New("bob")
		op.Retain(0).Insert("x")
		a.SubmitOp(bob.ClientID, op, uint64(i), uint64(i))
	}

	select {
	case code := <-evicted:
		require.Equal(t, protocol.CloseSlowConsumer, code)
	case <-time.After(2 * time.Second):
		t.Fatal("expected alice to be evicted as a slow consumer")
	}
}

func TestActorOpWithFutureVersionEvictsClient(t *testing.T) {
	cfg := DefaultConfig()
	a, _ := newTestActor(t, cfg)

	evicted := make(chan int, 1)
	alice := &ClientHandle{
		ClientID: 1,
		UserID:   "alice",
		Outbound: make(chan *protocol.ServerMsg, 10),
		Evict:    func(code int, reason string) { evicted <- code },
	}
	require.NoError(t, a.Join(alice))
	recvMsg(t, alice.Outbound) // sync

	op := ot.New("alice")
	op.Retain(0)
	a.SubmitOp(alice.ClientID, op, 99, 1)

	select {
	case code := <-evicted:
		require.Equal(t, protocol.CloseProtocolViolation, code)
	case <-time.After(2 * time.Second):
		t.Fatal("expected future base_version to evict the client")
	}
}

func TestActorIdleTimeoutDrainsAndRemovesFromRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	st := store.NewMemory()
	registry := NewRegistry(st, cfg)

	a, err := registry.GetOrCreate(context.Background(), "doc-idle")
	require.NoError(t, err)

	select {
	case <-a.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected actor to drain after idle timeout")
	}

	b, err := registry.GetOrCreate(context.Background(), "doc-idle")
	require.NoError(t, err)
	require.NotSame(t, a, b)
}

func TestActorFlushPersistsDirtyState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PersistInterval = time.Hour
	st := store.NewMemory()
	registry := NewRegistry(st, cfg)

	a, err := registry.GetOrCreate(context.Background(), "doc-flush")
	require.NoError(t, err)

	alice := newTestHandle(1, "alice", 10)
	require.NoError(t, a.Join(alice))
	recvMsg(t, alice.Outbound)

	op := ot.New("alice")
	op.Retain(0).Insert("hello")
	a.SubmitOp(alice.ClientID, op, 0, 1)
	recvMsg(t, alice.Outbound) // ack

	a.Flush(context.Background())

	text, version, err := st.Load(context.Background(), "doc-flush")
	require.NoError(t, err)
	require.Equal(t, "hello", text)
	require.Equal(t, uint64(1), version)
}
