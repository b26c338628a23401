// Package document holds the per-document text buffer, version counter,
// and bounded operation history. A Document is a plain data structure; it
// is never touched by more than one goroutine at a time, that single-writer
// discipline is enforced by its owning session actor (pkg/session), not by
// this package.
package document

import (
	"fmt"

	"github.com/collabcore/editorcore/pkg/ot"
)

// DefaultHistoryWindow is the minimum number of recent operations retained
// so a client lagging by up to this many versions can still be rebased
// instead of force-resynced.
const DefaultHistoryWindow = 2000

// HistoryEntry pairs an applied operation with the version it produced.
type HistoryEntry struct {
	Version   uint64
	Operation *ot.Operation
}

// Document is the mutable state owned by one Session Actor.
type Document struct {
	ID            string
	Text          string
	Version       uint64
	History       []HistoryEntry
	HistoryWindow int
}

// New creates a Document seeded with text at the given starting version
// (0 for a brand-new document, or the version recorded by the Document
// Store when resuming one).
func New(id, text string, version uint64, historyWindow int) *Document {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Document{
		ID:            id,
		Text:          text,
		Version:       version,
		HistoryWindow: historyWindow,
	}
}

// Snapshot returns the data needed for a client sync / resync frame.
func (d *Document) Snapshot() (text string, version uint64) {
	return d.Text, d.Version
}

// oldestRetainedVersion is the lowest base_version a client can submit
// without being declared out of sync; operations at exactly this version
// are still transformable since HistorySince/ApplyClientOp index from it.
func (d *Document) oldestRetainedVersion() uint64 {
	if uint64(len(d.History)) >= d.Version {
		return 0
	}
	return d.Version - uint64(len(d.History))
}

// HistorySince returns a copy of every operation applied after fromVersion
// (exclusive), for replaying an in-window client back up to date.
func (d *Document) HistorySince(fromVersion uint64) []HistoryEntry {
	start := d.oldestRetainedVersion()
	if fromVersion < start {
		fromVersion = start
	}
	if fromVersion >= d.Version {
		return nil
	}
	idx := int(fromVersion - start)
	out := make([]HistoryEntry, len(d.History)-idx)
	copy(out, d.History[idx:])
	return out
}

// ApplyClientOp applies a client-submitted operation against the current
// document state:
//
//  1. reject a baseVersion ahead of the current version (ErrFutureVersion);
//  2. reject a baseVersion older than the retained window (ErrVersionTooOld);
//  3. transform op forward through every operation applied since
//     baseVersion, so it lands on top of the current version;
//  4. apply the transformed operation, bump the version, append to
//     history (evicting anything older than the window), and return the
//     transformed operation plus its new version.
func (d *Document) ApplyClientOp(op *ot.Operation, baseVersion uint64) (*ot.Operation, uint64, error) {
	if baseVersion > d.Version {
		return nil, 0, fmt.Errorf("%w: client base version %d, server is at %d", ErrFutureVersion, baseVersion, d.Version)
	}
	if baseVersion < d.oldestRetainedVersion() {
		return nil, 0, fmt.Errorf("%w: client base version %d, oldest retained is %d", ErrVersionTooOld, baseVersion, d.oldestRetainedVersion())
	}

	transformed := op
	for _, entry := range d.HistorySince(baseVersion) {
		_, bPrime, err := ot.Transform(entry.Operation, transformed)
		if err != nil {
			return nil, 0, fmt.Errorf("transform against version %d: %w", entry.Version, err)
		}
		transformed = bPrime
	}

	newText, err := ot.Apply(d.Text, transformed)
	if err != nil {
		return nil, 0, err
	}

	d.Text = newText
	d.Version++
	d.History = append(d.History, HistoryEntry{Version: d.Version, Operation: transformed})
	if over := len(d.History) - d.HistoryWindow; over > 0 {
		d.History = d.History[over:]
	}

	return transformed, d.Version, nil
}

// SquashForSnapshot composes every retained history entry into a single
// operation describing the net change over the retained window, for audit
// logging on a persistence tick. It never mutates History itself — that
// slice stays per-version so future clients can still be rebased.
func (d *Document) SquashForSnapshot() (*ot.Operation, error) {
	if len(d.History) == 0 {
		return ot.New(""), nil
	}
	composed := d.History[0].Operation
	for _, entry := range d.History[1:] {
		var err error
		composed, err = ot.Compose(composed, entry.Operation)
		if err != nil {
			return nil, fmt.Errorf("squash history: %w", err)
		}
	}
	return composed, nil
}
