package ot

import "fmt"

// cursor walks an Operation's components one at a time, splitting a
// component when only part of it is consumed by the other side.
type cursor struct {
	components []Component
	idx        int
	current    Component
}

func newCursor(components []Component) *cursor {
	c := &cursor{components: components}
	c.advance()
	return c
}

func (c *cursor) advance() {
	if c.idx < len(c.components) {
		c.current = c.components[c.idx]
		c.idx++
	} else {
		c.current = nil
	}
}

// take returns the head component and advances past it.
func (c *cursor) take() Component {
	v := c.current
	c.advance()
	return v
}

// shrinkRetain replaces the head Retain with a smaller one of length n,
// without advancing (used after only partially consuming it).
func (c *cursor) shrinkRetain(n uint64) { c.current = Retain(n) }
func (c *cursor) shrinkDelete(n uint64) { c.current = Delete(n) }

// Transform transforms two operations that were both computed against the
// same base document version so that applying a then b' (or b then a')
// converges on the same result: apply(apply(D, a), b') == apply(apply(D,
// b), a'). This is the TP1 property.
//
// Simultaneous inserts at the same position are ordered by comparing
// AuthorID lexicographically — the operation with the smaller AuthorID is
// treated as having inserted first, and the rule is symmetric: swapping
// the arguments swaps which return value plays which role.
func Transform(a, b *Operation) (*Operation, *Operation, error) {
	if a.BaseLen != b.BaseLen {
		return nil, nil, fmt.Errorf("%w: transform operands have base lengths %d and %d", ErrInvalidOperation, a.BaseLen, b.BaseLen)
	}

	aPrime := New(a.AuthorID)
	bPrime := New(b.AuthorID)

	ca := newCursor(a.Components)
	cb := newCursor(b.Components)

	for ca.current != nil || cb.current != nil {
		_, aIns := ca.current.(Insert)
		_, bIns := cb.current.(Insert)

		switch {
		case aIns && bIns:
			aText := string(ca.current.(Insert))
			bText := string(cb.current.(Insert))
			if a.AuthorID <= b.AuthorID {
				aPrime.Insert(aText)
				bPrime.Retain(utf16Len(aText))
				ca.take()
			} else {
				aPrime.Retain(utf16Len(bText))
				bPrime.Insert(bText)
				cb.take()
			}

		case aIns:
			text := string(ca.current.(Insert))
			aPrime.Insert(text)
			bPrime.Retain(utf16Len(text))
			ca.take()

		case bIns:
			text := string(cb.current.(Insert))
			aPrime.Retain(utf16Len(text))
			bPrime.Insert(text)
			cb.take()

		case ca.current == nil:
			return nil, nil, fmt.Errorf("%w: first operand is shorter than the second", ErrInvalidOperation)

		case cb.current == nil:
			return nil, nil, fmt.Errorf("%w: second operand is shorter than the first", ErrInvalidOperation)

		default:
			aLen, bLen := ca.current.Len(), cb.current.Len()
			n := aLen
			if bLen < n {
				n = bLen
			}

			aDel := isDelete(ca.current)
			bDel := isDelete(cb.current)

			switch {
			case !aDel && !bDel: // retain/retain
				aPrime.Retain(n)
				bPrime.Retain(n)
			case aDel && bDel: // delete/delete: both remove the same text, no-op for both
			case aDel && !bDel: // delete/retain: a's delete wins, b must not retain that text
				aPrime.Delete(n)
			default: // retain/delete: b's delete wins
				bPrime.Delete(n)
			}

			consume(ca, aLen, n)
			consume(cb, bLen, n)
		}
	}

	return aPrime, bPrime, nil
}

func isDelete(c Component) bool {
	_, ok := c.(Delete)
	return ok
}

// consume advances cur past n units of its current (non-insert) component,
// shrinking it in place if n leaves a remainder.
func consume(cur *cursor, full, n uint64) {
	if n == full {
		cur.take()
		return
	}
	remaining := full - n
	if _, ok := cur.current.(Delete); ok {
		cur.shrinkDelete(remaining)
	} else {
		cur.shrinkRetain(remaining)
	}
}
