package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/collabcore/editorcore/pkg/logger"
	"github.com/collabcore/editorcore/pkg/store"
)

// Registry is the process-wide map from document_id to session actor. It
// is the only place global state lives; everything else is per-session,
// owned exclusively by its actor.
type Registry struct {
	mu     sync.Mutex
	actors map[string]*Actor
	store  store.Store
	cfg    Config
}

// NewRegistry creates a Registry backed by st, spawning actors with cfg.
func NewRegistry(st store.Store, cfg Config) *Registry {
	return &Registry{
		actors: make(map[string]*Actor),
		store:  st,
		cfg:    cfg,
	}
}

// GetOrCreate returns the live actor for documentID, loading the document
// from the store and spawning a fresh actor if none exists yet. If the
// slot currently holds a draining actor, GetOrCreate waits for its done
// channel to close (meaning it has already removed itself) before
// installing a replacement. This guarantees a joiner always gets a live
// actor; the other half of that guarantee is Actor.Join's unbuffered-send
// race against the same done channel.
func (r *Registry) GetOrCreate(ctx context.Context, documentID string) (*Actor, error) {
	for {
		r.mu.Lock()
		if a, ok := r.actors[documentID]; ok {
			if !a.draining.Load() {
				r.mu.Unlock()
				return a, nil
			}
			r.mu.Unlock()
			select {
			case <-a.done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		text, version, err := r.store.Load(ctx, documentID)
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("session: load document %s: %w", documentID, err)
		}

		a := newActor(documentID, text, version, r, r.store, r.cfg)
		r.actors[documentID] = a
		r.mu.Unlock()

		go a.run()
		logger.Info("session %s: actor spawned at version %d", documentID, version)
		return a, nil
	}
}

// remove drops a's slot if it is still the current occupant. Called only
// by the actor itself during drain, while draining is already true, so a
// concurrent GetOrCreate that observes the map entry first always sees
// draining set before it can possibly see the entry disappear.
func (r *Registry) remove(documentID string, a *Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.actors[documentID]; ok && cur == a {
		delete(r.actors, documentID)
	}
}

// Shutdown flushes every live actor's pending writes through the actor's
// own goroutine, used on process exit. The actors are not drained: they
// keep running and stay registered.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	actors := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.mu.Unlock()

	for _, a := range actors {
		a.Flush(ctx)
	}
}
