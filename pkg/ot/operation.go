// Package ot implements the operational-transformation algebra shared by
// every document in the collaborative editing core: operation values, their
// application to a document string, and the transform/compose functions
// that let concurrent edits converge.
//
// The package is pure: no I/O, no locking, no shared state. Every function
// takes its operands as arguments and returns new values.
package ot

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Component is one step of an Operation: Retain, Insert, or Delete.
// N is measured in UTF-16 code units for Retain/Delete; Insert carries the
// literal text to splice in.
type Component interface {
	isComponent()
	// Len returns the component's length in UTF-16 code units: the number
	// of input units it consumes (Retain, Delete) or output units it
	// produces (Insert).
	Len() uint64
}

// Retain advances the cursor n UTF-16 code units without changing the text.
type Retain uint64

func (Retain) isComponent()    {}
func (r Retain) Len() uint64   { return uint64(r) }

// Delete removes n UTF-16 code units at the current cursor.
type Delete uint64

func (Delete) isComponent()   {}
func (d Delete) Len() uint64  { return uint64(d) }

// Insert splices Text in at the current cursor. The cursor does not advance
// over the document being edited, since Insert doesn't consume base text.
type Insert string

func (Insert) isComponent() {}
func (i Insert) Len() uint64 {
	return uint64(len(utf16.Encode([]rune(string(i)))))
}

// Operation is an ordered sequence of Components applied to a document from
// offset 0, plus the author that produced it. AuthorID is compared
// lexicographically to break ties between simultaneous inserts.
type Operation struct {
	Components []Component
	BaseLen    int
	TargetLen  int
	AuthorID   string
}

// New creates an empty operation authored by authorID.
func New(authorID string) *Operation {
	return &Operation{AuthorID: authorID}
}

// IsNoop reports whether the operation has no effect on the document.
func (op *Operation) IsNoop() bool {
	if len(op.Components) == 0 {
		return true
	}
	if len(op.Components) == 1 {
		_, ok := op.Components[0].(Retain)
		return ok
	}
	return false
}

// Retain appends a retain run, merging with a trailing retain if present.
func (op *Operation) Retain(n uint64) *Operation {
	if n == 0 {
		return op
	}
	op.BaseLen += int(n)
	op.TargetLen += int(n)

	if last := op.lastIndex(); last >= 0 {
		if r, ok := op.Components[last].(Retain); ok {
			op.Components[last] = r + Retain(n)
			return op
		}
	}
	op.Components = append(op.Components, Retain(n))
	return op
}

// Delete appends a delete run, merging with a trailing delete if present.
func (op *Operation) Delete(n uint64) *Operation {
	if n == 0 {
		return op
	}
	op.BaseLen += int(n)

	if last := op.lastIndex(); last >= 0 {
		if d, ok := op.Components[last].(Delete); ok {
			op.Components[last] = d + Delete(n)
			return op
		}
	}
	op.Components = append(op.Components, Delete(n))
	return op
}

// Insert appends an insert run: merge into a trailing Insert, and if the
// trailing component is a Delete, reorder so Insert precedes Delete
// (canonical form; inserting "before" a delete at the same position is
// equivalent either way, and keeping inserts first lets Transform/Compose
// assume that shape).
func (op *Operation) Insert(s string) *Operation {
	if s == "" {
		return op
	}
	op.TargetLen += int(Insert(s).Len())

	n := len(op.Components)
	if n == 0 {
		op.Components = append(op.Components, Insert(s))
		return op
	}

	if ins, ok := op.Components[n-1].(Insert); ok {
		op.Components[n-1] = ins + Insert(s)
		return op
	}

	if del, ok := op.Components[n-1].(Delete); ok {
		if n >= 2 {
			if ins, ok := op.Components[n-2].(Insert); ok {
				op.Components[n-2] = ins + Insert(s)
				return op
			}
		}
		op.Components[n-1] = Insert(s)
		op.Components = append(op.Components, del)
		return op
	}

	op.Components = append(op.Components, Insert(s))
	return op
}

func (op *Operation) lastIndex() int {
	return len(op.Components) - 1
}

// String renders the operation for debug logs, e.g. "retain 4, insert
// \"hi\", delete 2".
func (op *Operation) String() string {
	parts := make([]string, len(op.Components))
	for i, c := range op.Components {
		switch v := c.(type) {
		case Retain:
			parts[i] = fmt.Sprintf("retain %d", uint64(v))
		case Delete:
			parts[i] = fmt.Sprintf("delete %d", uint64(v))
		case Insert:
			parts[i] = fmt.Sprintf("insert %q", string(v))
		}
	}
	return strings.Join(parts, ", ")
}

// wireOp is the JSON envelope for an Operation: a compact mixed array for
// Components (positive int = retain, negative int = delete, string =
// insert — the ot.js-family wire shape), plus the sibling metadata fields.
type wireOp struct {
	Components []interface{} `json:"components"`
	BaseLen    int            `json:"base_len"`
	TargetLen  int            `json:"target_len"`
	AuthorID   string         `json:"author_id"`
}

// WireComponents renders Components as the compact mixed array used on the
// wire (positive number = retain, negative number = delete, string =
// insert), for callers that need to splice the array into a larger
// envelope rather than get the full {components, base_len, ...} object
// MarshalJSON produces.
func (op *Operation) WireComponents() ([]interface{}, error) {
	out := make([]interface{}, len(op.Components))
	for i, c := range op.Components {
		switch v := c.(type) {
		case Retain:
			out[i] = float64(v)
		case Delete:
			out[i] = -float64(v)
		case Insert:
			out[i] = string(v)
		default:
			return nil, fmt.Errorf("ot: unknown component type %T", c)
		}
	}
	return out, nil
}

// MarshalJSON encodes the operation using the compact component array.
func (op *Operation) MarshalJSON() ([]byte, error) {
	components, err := op.WireComponents()
	if err != nil {
		return nil, err
	}
	w := wireOp{
		Components: components,
		BaseLen:    op.BaseLen,
		TargetLen:  op.TargetLen,
		AuthorID:   op.AuthorID,
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an operation from the compact component array,
// rebuilding BaseLen/TargetLen from the components themselves so a
// malformed client payload can't lie about its own lengths.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	fresh := New(w.AuthorID)
	for _, raw := range w.Components {
		switch v := raw.(type) {
		case float64:
			if v >= 0 {
				fresh.Retain(uint64(v))
			} else {
				fresh.Delete(uint64(-v))
			}
		case string:
			fresh.Insert(v)
		default:
			return fmt.Errorf("ot: unrecognized component %v (%T)", raw, raw)
		}
	}
	*op = *fresh
	return nil
}
