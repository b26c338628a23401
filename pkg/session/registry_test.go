package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collabcore/editorcore/pkg/ot"
	"github.com/collabcore/editorcore/pkg/store"
)

func TestRegistryGetOrCreateReusesLiveActor(t *testing.T) {
	cfg := DefaultConfig()
	registry := NewRegistry(store.NewMemory(), cfg)

	a, err := registry.GetOrCreate(context.Background(), "doc-1")
	require.NoError(t, err)

	b, err := registry.GetOrCreate(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestRegistryGetOrCreateIsolatesDocuments(t *testing.T) {
	cfg := DefaultConfig()
	registry := NewRegistry(store.NewMemory(), cfg)

	a, err := registry.GetOrCreate(context.Background(), "doc-a")
	require.NoError(t, err)
	b, err := registry.GetOrCreate(context.Background(), "doc-b")
	require.NoError(t, err)
	require.NotSame(t, a, b)
}

func TestRegistryLoadsPersistedDocumentOnFirstCreate(t *testing.T) {
	cfg := DefaultConfig()
	st := store.NewMemory()
	require.NoError(t, st.Save(context.Background(), "doc-1", "preexisting", 42))

	registry := NewRegistry(st, cfg)
	a, err := registry.GetOrCreate(context.Background(), "doc-1")
	require.NoError(t, err)

	text, version := a.doc.Snapshot()
	require.Equal(t, "preexisting", text)
	require.Equal(t, uint64(42), version)
}

// TestRegistryJoinDuringDrainRetriesOntoFreshActor exercises the S5 race: a
// joiner calling Join on an actor that has already drained must get
// ErrActorDraining instead of hanging, and the registry must hand the next
// resolver a live replacement rather than the drained actor.
func TestRegistryJoinDuringDrainRetriesOntoFreshActor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 20 * time.Millisecond
	registry := NewRegistry(store.NewMemory(), cfg)

	a, err := registry.GetOrCreate(context.Background(), "doc-race")
	require.NoError(t, err)

	<-a.done // actor has drained (no clients ever joined, so it idles out)

	handle := newTestHandle(1, "alice", 10)
	err = a.Join(handle)
	require.ErrorIs(t, err, ErrActorDraining)

	b, err := registry.GetOrCreate(context.Background(), "doc-race")
	require.NoError(t, err)
	require.NotSame(t, a, b)

	require.NoError(t, b.Join(handle))
}

func TestRegistryShutdownFlushesAllActors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PersistInterval = time.Hour
	st := store.NewMemory()
	registry := NewRegistry(st, cfg)

	a, err := registry.GetOrCreate(context.Background(), "doc-1")
	require.NoError(t, err)
	b, err := registry.GetOrCreate(context.Background(), "doc-2")
	require.NoError(t, err)

	alice := newTestHandle(1, "alice", 10)
	require.NoError(t, a.Join(alice))
	recvMsg(t, alice.Outbound)
	opA := ot.New("alice")
	opA.Insert("one")
	a.SubmitOp(alice.ClientID, opA, 0, 1)
	recvMsg(t, alice.Outbound) // ack

	bobOnB := newTestHandle(2, "bob", 10)
	require.NoError(t, b.Join(bobOnB))
	recvMsg(t, bobOnB.Outbound)
	opB := ot.New("bob")
	opB.Insert("two")
	b.SubmitOp(bobOnB.ClientID, opB, 0, 1)
	recvMsg(t, bobOnB.Outbound) // ack

	registry.Shutdown(context.Background())

	text, version, err := st.Load(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, "one", text)
	require.Equal(t, uint64(1), version)
	text, version, err = st.Load(context.Background(), "doc-2")
	require.NoError(t, err)
	require.Equal(t, "two", text)
	require.Equal(t, uint64(1), version)
}

func TestRegistryRemoveIsNoopForStaleActor(t *testing.T) {
	cfg := DefaultConfig()
	registry := NewRegistry(store.NewMemory(), cfg)

	a, err := registry.GetOrCreate(context.Background(), "doc-1")
	require.NoError(t, err)

	stale := newActor("doc-1", "", 0, registry, store.NewMemory(), cfg)
	registry.remove("doc-1", stale) // must not evict the real occupant

	b, err := registry.GetOrCreate(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Same(t, a, b)
}
