// Package table implements the string-keyed open-addressing hash table used
// throughout the interpreter for string interning, globals, class method
// tables, and instance field tables. It deliberately does not reuse a
// general-purpose map library: spec.md's testable invariants (tombstone
// encoding, 0.75 max load factor, linear probing, and — for the intern table
// specifically — pointer-identity lookups keyed by precomputed hash) require
// a table shaped exactly this way, so it is grounded directly on the
// original C implementation's hasht.c rather than on any library in the
// example pack (see DESIGN.md).
package table

import "github.com/mna/aster/lang/value"

const maxLoad = 0.75

// entry is a single slot. A tombstone is encoded as {Key: nil, Value: a true
// boolean}; an empty slot is {Key: nil, Value: null}.
type entry struct {
	key *value.String
	val value.Value
}

func (e entry) isTombstone() bool {
	return e.key == nil && e.val.IsBool() && e.val.AsBool()
}

func (e entry) isEmptySlot() bool {
	return e.key == nil && !e.val.IsBool()
}

// Table is an open-addressing hash table with linear probing.
type Table struct {
	count   int // live entries + tombstones
	entries []entry
}

// New returns an empty table; its backing array is allocated lazily on first
// Set, exactly as the original grows from capacity 0.
func New() *Table { return &Table{} }

// Count returns the number of live (non-tombstone) entries.
func (t *Table) Count() int { return t.liveCount() }

func (t *Table) liveCount() int {
	if t.entries == nil {
		return 0
	}
	n := 0
	for _, e := range t.entries {
		if e.key != nil {
			n++
		}
	}
	return n
}

// Get returns the value stored for key, if any.
func (t *Table) Get(key *value.String) (value.Value, bool) {
	if t.entries == nil {
		return value.Value{}, false
	}
	e := t.find(key)
	if t.entries[e].key == nil {
		return value.Value{}, false
	}
	return t.entries[e].val, true
}

// Set stores value for key, growing the table first if the load factor
// would exceed 0.75. It reports whether the key is new (was not already
// present).
func (t *Table) Set(key *value.String, v value.Value) bool {
	if t.entries == nil || float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow()
	}

	idx := t.find(key)
	e := &t.entries[idx]
	isNew := e.key == nil
	if isNew && e.isEmptySlot() {
		t.count++
	}
	e.key = key
	e.val = v
	return isNew
}

// Delete removes key, leaving a tombstone behind so that later probes past
// this slot keep working. It reports whether the key was present.
func (t *Table) Delete(key *value.String) bool {
	if t.entries == nil {
		return false
	}
	idx := t.find(key)
	e := &t.entries[idx]
	if e.key == nil {
		return false
	}
	e.key = nil
	e.val = value.Bool_(true) // tombstone marker
	return true
}

// AddAll copies every entry from src into t (used by OP_INHERIT to copy a
// parent class's methods into a child class).
func (t *Table) AddAll(src *Table) {
	if src == nil || src.entries == nil {
		return
	}
	for _, e := range src.entries {
		if e.key != nil {
			t.Set(e.key, e.val)
		}
	}
}

// FindString looks up an interned string by its raw bytes and precomputed
// hash, used by the heap manager's string interning fast path. It never
// allocates.
func (t *Table) FindString(b []byte, hash uint32) (*value.String, bool) {
	if t.entries == nil {
		return nil, false
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		switch {
		case e.key == nil && !e.isTombstone():
			return nil, false
		case e.key != nil && e.key.Hash == hash && string(e.key.Bytes) == string(b):
			return e.key, true
		}
		idx = (idx + 1) & mask
	}
}

// RemoveWhite deletes every entry whose key object is unmarked. Called by
// the GC just before sweeping the object list, so the intern table never
// holds a dangling reference to a string about to be freed.
func (t *Table) RemoveWhite() {
	if t.entries == nil {
		return
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !value.Marked(e.key) {
			e.key = nil
			e.val = value.Bool_(true)
		}
	}
}

// Mark marks every live key and value in the table as part of the GC's root
// marking / tracing pass. markFn is expected to push newly-grayed objects
// onto the collector's gray worklist.
func (t *Table) Mark(markValue func(value.Value), markObj func(value.Obj)) {
	if t.entries == nil {
		return
	}
	for _, e := range t.entries {
		if e.key != nil {
			markObj(e.key)
			markValue(e.val)
		}
	}
}

// Each calls fn for every live entry; fn must not mutate the table.
func (t *Table) Each(fn func(key *value.String, v value.Value)) {
	if t.entries == nil {
		return
	}
	for _, e := range t.entries {
		if e.key != nil {
			fn(e.key, e.val)
		}
	}
}

func (t *Table) grow() {
	newCap := 8
	if t.entries != nil {
		newCap = len(t.entries) * 2
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for _, e := range old {
		if e.key == nil {
			continue
		}
		idx := t.find(e.key)
		t.entries[idx] = e
		t.count++
	}
}

// find returns the slot index for key: either the slot already holding it,
// the first empty slot on its probe sequence, or the first tombstone seen
// along the way (reused to keep future lookups short), matching the
// original's findEntry.
func (t *Table) find(key *value.String) int {
	mask := uint32(len(t.entries) - 1)
	idx := key.Hash & mask
	var tombstone = -1
	for {
		e := &t.entries[idx]
		switch {
		case e.key == nil:
			if e.isTombstone() {
				if tombstone == -1 {
					tombstone = int(idx)
				}
			} else {
				if tombstone != -1 {
					return tombstone
				}
				return int(idx)
			}
		case e.key == key:
			return int(idx)
		}
		idx = (idx + 1) & mask
	}
}
