package session

import "errors"

// ErrActorDraining is returned by Actor.Join when the actor has already
// begun its idle-shutdown drain. The caller must retry via
// Registry.GetOrCreate, which installs a fresh actor once this one has
// finished removing itself.
var ErrActorDraining = errors.New("session: actor is draining")

// ErrUnknownClient names the case of a message for a client_id that is not
// (or no longer) on the actor's roster. The actor does not return it: such
// messages are dropped silently, which keeps leave/close handling
// idempotent.
var ErrUnknownClient = errors.New("session: unknown client id")
