// Package registry provides a concurrency-safe table keyed by opaque integer
// tokens.
package registry

import (
	"slices"
	"sync"
)

// Token identifies an entry in a Table. The zero value is never issued.
type Token uint64

// Entry is a token and its value.
type Entry[V any] struct {
	Token Token
	Value V
}

// Table maps tokens to values. Snapshots are returned in insertion order.
type Table[V any] struct {
	mu    sync.RWMutex
	next  Token
	items map[Token]V
}

// NewTable creates an empty table.
func NewTable[V any]() *Table[V] {
	return &Table[V]{items: make(map[Token]V)}
}

// Insert stores v and returns its token.
func (t *Table[V]) Insert(v V) Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.items[t.next] = v
	return t.next
}

// Get returns the value for tok.
func (t *Table[V]) Get(tok Token) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.items[tok]
	return v, ok
}

// Remove deletes tok and returns the removed value.
func (t *Table[V]) Remove(tok Token) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.items[tok]
	if ok {
		delete(t.items, tok)
	}
	return v, ok
}

// Len returns the number of entries.
func (t *Table[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Snapshot copies the entries ordered by token.
func (t *Table[V]) Snapshot() []Entry[V] {
	t.mu.RLock()
	out := make([]Entry[V], 0, len(t.items))
	for tok, v := range t.items {
		out = append(out, Entry[V]{Token: tok, Value: v})
	}
	t.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry[V]) int {
		switch {
		case a.Token < b.Token:
			return -1
		case a.Token > b.Token:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Filter returns the entries whose value satisfies keep, ordered by token.
func (t *Table[V]) Filter(keep func(V) bool) []Entry[V] {
	all := t.Snapshot()
	out := all[:0]
	for _, e := range all {
		if keep(e.Value) {
			out = append(out, e)
		}
	}
	return out
}
