package xref

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/wudi/pdfstore/ir/raw"
)

// Table is the cross-reference index for a fully merged revision chain.
// It is never mutated after Resolve returns it, so it may be shared across
// concurrent readers without synchronization.
type Table struct {
	entries map[int]Entry
	trailer Trailer
}

func newTable(entries map[int]Entry, trailer Trailer) *Table {
	return &Table{entries: entries, trailer: trailer}
}

// Trailer returns the newest revision's trailer.
func (t *Table) Trailer() Trailer { return t.trailer }

// Len returns the number of recorded entries.
func (t *Table) Len() int { return len(t.entries) }

// Entry returns the raw index entry for an object number.
func (t *Table) Entry(num int) (Entry, bool) {
	e, ok := t.entries[num]
	return e, ok
}

// Objects returns every recorded object number in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Lookup resolves a reference to the location of its bytes. A missing,
// free or null entry is not an error: the second return is false and the
// caller decides whether a dangling reference matters in its context.
//
// The reference's generation number is accepted but not checked against
// the stored entry; documents in the wild disagree about generations too
// often for a strict check to be safe.
//
// A Compressed entry resolves through its container, which must itself be
// InUse: exactly one level of nesting is legal, and a container that is
// itself compressed is reported as an error rather than followed.
func (t *Table) Lookup(ref raw.ObjectRef) (Location, bool, error) {
	e, ok := t.entries[ref.Num]
	if !ok {
		return nil, false, nil
	}
	switch e := e.(type) {
	case InUse:
		return MainFile{Offset: e.Offset}, true, nil
	case Free, Null:
		return nil, false, nil
	case Compressed:
		ce, ok := t.entries[e.Container]
		if !ok {
			return nil, false, nil
		}
		switch ce := ce.(type) {
		case InUse:
			return ObjectStream{
				ContainerOffset: ce.Offset,
				ContainerNum:    e.Container,
				Index:           e.Index,
			}, true, nil
		case Compressed:
			return nil, false, errors.Errorf(
				"object %d: container %d is itself stored in an object stream", ref.Num, e.Container)
		default:
			return nil, false, nil
		}
	}
	return nil, false, nil
}

// mergePrevious folds an older revision's table under this one: keys the
// accumulator already holds win, keys only the older table holds are
// inserted.
func (t *Table) mergePrevious(older *Table) {
	for num, e := range older.entries {
		if _, ok := t.entries[num]; !ok {
			t.entries[num] = e
		}
	}
}
