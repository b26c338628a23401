package session

import "github.com/collabcore/editorcore/pkg/ot"

// rebasePosition transforms a single UTF-16 column offset forward through
// op: retains and deletes consume from the original offset while inserts
// encountered before the offset is reached shift it right. A delete that
// straddles the offset clamps it to the delete's start rather than letting
// it go negative.
func rebasePosition(pos uint32, op *ot.Operation) uint32 {
	index := int64(pos)
	newIndex := index

	for _, c := range op.Components {
		switch v := c.(type) {
		case ot.Retain:
			index -= int64(v)
		case ot.Insert:
			newIndex += int64(ot.UTF16Len(string(v)))
		case ot.Delete:
			n := int64(v)
			if index >= n {
				newIndex -= n
			} else if index > 0 {
				newIndex -= index
			}
			index -= n
		}
		if index < 0 {
			break
		}
	}

	if newIndex < 0 {
		return 0
	}
	return uint32(newIndex)
}

// rebaseCursorThrough transforms a presence column through each op in ops,
// in order, treating the column as a flat UTF-16 offset into the document,
// which is the coordinate the operation components address. Only the
// column is rebased; the caller passes the line number through unchanged.
func rebaseCursorThrough(column uint32, ops []*ot.Operation) uint32 {
	for _, op := range ops {
		column = rebasePosition(column, op)
	}
	return column
}
