// Package paramset holds the caller-supplied parameter-set context that
// structured header decoders consult. Decoders only ever call Lookup; a
// table is built by the caller (or by inspect.Harvest) before decoding.
package paramset

import (
	"sort"

	"github.com/zsiec/bitscope/internal/parseerr"
)

// Table maps small integer ids to decoded parameter-set records of one
// class (VPS, SPS, PPS, ...).
type Table[T any] struct {
	class   string
	entries map[uint32]T
}

// NewTable returns an empty table for the named class.
func NewTable[T any](class string) *Table[T] {
	return &Table[T]{class: class, entries: make(map[uint32]T)}
}

// Class returns the parameter-set class name.
func (t *Table[T]) Class() string {
	if t == nil {
		return ""
	}
	return t.class
}

// Set stores v under id, replacing any earlier record, and returns t. A
// nil table is replaced by a new unnamed one, so the result must be kept.
func (t *Table[T]) Set(id uint32, v T) *Table[T] {
	if t == nil {
		t = &Table[T]{}
	}
	if t.entries == nil {
		t.entries = make(map[uint32]T)
	}
	t.entries[id] = v
	return t
}

// Lookup returns the record stored under id. An absent id, or a nil table,
// fails with a *parseerr.MissingParameterSetError.
func (t *Table[T]) Lookup(id uint32) (T, error) {
	var zero T
	if t == nil {
		return zero, &parseerr.MissingParameterSetError{ID: id}
	}
	v, ok := t.entries[id]
	if !ok {
		return zero, &parseerr.MissingParameterSetError{Class: t.class, ID: id}
	}
	return v, nil
}

// Len returns the number of records.
func (t *Table[T]) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// IDs returns the stored ids in ascending order.
func (t *Table[T]) IDs() []uint32 {
	if t == nil {
		return nil
	}
	ids := make([]uint32, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
