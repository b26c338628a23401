package ot

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// Apply runs op against doc and returns the resulting text.
//
// Positions inside op (Retain/Delete lengths) are UTF-16 code units, to
// match how the client editors address text, while doc is a UTF-8 Go
// string. Apply builds a UTF-16-unit -> rune-index table once so multi-unit
// runes (astral plane, i.e. outside the Basic Multilingual Plane) are
// retained/deleted as whole units rather than split.
func Apply(doc string, op *Operation) (string, error) {
	runes := []rune(doc)

	// unitToRune[u] is the rune index corresponding to UTF-16 unit offset u.
	// The table has one entry per UTF-16 unit plus a sentinel for the end.
	unitToRune := make([]int, 0, len(runes)+1)
	units := 0
	for ri, r := range runes {
		unitToRune = append(unitToRune, ri)
		if r1, r2 := utf16.EncodeRune(r); r1 != 0xFFFD || r2 != 0xFFFD {
			// astral character: two UTF-16 units map to the same rune index
			unitToRune = append(unitToRune, ri)
			units += 2
		} else {
			units++
		}
	}
	unitToRune = append(unitToRune, len(runes))

	if op.BaseLen != units {
		return "", fmt.Errorf("%w: op base length %d, document has %d UTF-16 units", ErrInvalidOperation, op.BaseLen, units)
	}

	var b strings.Builder
	b.Grow(op.TargetLen)
	pos := 0

	for _, c := range op.Components {
		switch v := c.(type) {
		case Retain:
			end := pos + int(v)
			if end > len(unitToRune)-1 {
				return "", fmt.Errorf("%w: retain past end of document", ErrIndexOutOfBounds)
			}
			b.WriteString(string(runes[unitToRune[pos]:unitToRune[end]]))
			pos = end
		case Delete:
			end := pos + int(v)
			if end > len(unitToRune)-1 {
				return "", fmt.Errorf("%w: delete past end of document", ErrIndexOutOfBounds)
			}
			pos = end
		case Insert:
			b.WriteString(string(v))
		}
	}

	if pos != units {
		return "", fmt.Errorf("%w: operation did not consume the whole document (%d of %d units)", ErrInvalidOperation, pos, units)
	}

	return b.String(), nil
}

// utf16Len returns the number of UTF-16 code units needed to encode s.
func utf16Len(s string) uint64 {
	return uint64(len(utf16.Encode([]rune(s))))
}

// UTF16Len exposes utf16Len for callers outside the package that need to
// size an Insert's contribution to a position, e.g. the session package's
// cursor rebase.
func UTF16Len(s string) uint64 {
	return utf16Len(s)
}
