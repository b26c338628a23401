package ot

import (
	"fmt"
	"unicode/utf16"
)

// splitAtUnit splits s at UTF-16 unit offset n, returning (s[:n], s[n:]) in
// rune-safe fashion. n must be <= utf16Len(s).
func splitAtUnit(s string, n uint64) (string, string) {
	if n == 0 {
		return "", s
	}
	units := utf16.Encode([]rune(s))
	if n >= uint64(len(units)) {
		return s, ""
	}
	return string(utf16.Decode(units[:n])), string(utf16.Decode(units[n:]))
}

// Compose combines two sequential operations (a applied, then b applied to
// a's result) into a single operation c such that apply(apply(D, a), b) ==
// apply(D, c). Used by the Document State to squash a window of history
// into one operation, e.g. for an audit snapshot, without touching the raw
// per-version history used to transform late-arriving client ops.
//
// The composed operation has no single author; AuthorID is left empty.
func Compose(a, b *Operation) (*Operation, error) {
	if a.TargetLen != b.BaseLen {
		return nil, fmt.Errorf("%w: compose target length %d does not match next base length %d", ErrInvalidOperation, a.TargetLen, b.BaseLen)
	}

	out := New("")
	ca := newCursor(a.Components)
	cb := newCursor(b.Components)

	for ca.current != nil || cb.current != nil {
		if ca.current != nil {
			if d, ok := ca.current.(Delete); ok {
				out.Delete(uint64(d))
				ca.take()
				continue
			}
		}
		if cb.current != nil {
			if ins, ok := cb.current.(Insert); ok {
				out.Insert(string(ins))
				cb.take()
				continue
			}
		}

		if ca.current == nil {
			return nil, fmt.Errorf("%w: first operand is shorter than the second", ErrInvalidOperation)
		}
		if cb.current == nil {
			return nil, fmt.Errorf("%w: second operand is shorter than the first", ErrInvalidOperation)
		}

		aIns, aIsIns := ca.current.(Insert)
		_, bIsDel := cb.current.(Delete)

		switch {
		case !aIsIns && !bIsDel: // retain/retain
			n := minU64(ca.current.Len(), cb.current.Len())
			out.Retain(n)
			consume(ca, ca.current.Len(), n)
			consume(cb, cb.current.Len(), n)

		case aIsIns && bIsDel: // insert cancels (part of) a delete
			n := minU64(utf16Len(string(aIns)), cb.current.Len())
			_, rest := splitAtUnit(string(aIns), n)
			if rest == "" {
				ca.take()
			} else {
				ca.current = Insert(rest)
			}
			consume(cb, cb.current.Len(), n)

		case aIsIns: // insert/retain: splice in (part of) the insert verbatim
			rLen := cb.current.Len()
			n := minU64(utf16Len(string(aIns)), rLen)
			head, rest := splitAtUnit(string(aIns), n)
			out.Insert(head)
			if rest == "" {
				ca.take()
			} else {
				ca.current = Insert(rest)
			}
			consume(cb, rLen, n)

		default: // retain/delete: b deletes what a retained
			n := minU64(ca.current.Len(), cb.current.Len())
			out.Delete(n)
			consume(ca, ca.current.Len(), n)
			consume(cb, cb.current.Len(), n)
		}
	}

	return out, nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
