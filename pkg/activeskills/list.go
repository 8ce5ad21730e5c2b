// Package activeskills holds the server-ordered list of skills whose content
// is currently relevant to the presentation surface. Every positional argument
// comes from the network, so each mutation validates its bounds first and
// leaves the list untouched when they do not hold.
package activeskills

import (
	"slices"
	"sync"
)

// List is an ordered sequence of unique skill identifiers. It is safe for
// concurrent use. The zero value is an empty list.
type List struct {
	mu    sync.RWMutex
	items []string
}

// New creates a List holding ids in order. Duplicates after the first
// occurrence are skipped.
func New(ids ...string) *List {
	l := &List{}
	for _, id := range ids {
		if !slices.Contains(l.items, id) {
			l.items = append(l.items, id)
		}
	}
	return l
}

// Len returns the number of skills.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Skills returns a copy of the list in order.
func (l *List) Skills() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.items)
}

// Index returns the position of id, or -1.
func (l *List) Index(id string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Index(l.items, id)
}

// Contains reports whether id is in the list.
func (l *List) Contains(id string) bool { return l.Index(id) >= 0 }

// Front returns the first skill, which is conventionally the foreground one.
func (l *List) Front() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.items) == 0 {
		return "", false
	}
	return l.items[0], true
}

// InsertUnique inserts id at position. It returns false without mutating the
// list when id is already present or position is outside [0, Len()].
func (l *List) InsertUnique(position int, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if position < 0 || position > len(l.items) {
		return false
	}
	if slices.Contains(l.items, id) {
		return false
	}

	l.items = slices.Insert(l.items, position, id)
	return true
}

// RemoveRange removes count skills starting at position and returns them in
// order. The request is rejected, with ok false and the list unchanged, unless
// 0 <= position <= Len()-1 and 0 <= count <= Len()-position.
func (l *List) RemoveRange(position, count int) (removed []string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.items)
	if position < 0 || position > n-1 {
		return nil, false
	}
	if count < 0 || count > n-position {
		return nil, false
	}

	removed = slices.Clone(l.items[position : position+count])
	l.items = slices.Delete(l.items, position, position+count)
	return removed, true
}

// MoveRange moves the block of count skills starting at from so that its first
// element ends up at index to. The block keeps its internal order. If the
// block would overrun the end of the list it is placed at the tail. The
// request is rejected unless from and to are in [0, Len()-1] and count is in
// [1, Len()-from].
func (l *List) MoveRange(from, count, to int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.items)
	if from < 0 || from > n-1 {
		return false
	}
	if to < 0 || to > n-1 {
		return false
	}
	if count <= 0 || count > n-from {
		return false
	}

	block := slices.Clone(l.items[from : from+count])
	rest := slices.Delete(slices.Clone(l.items), from, from+count)

	at := min(to, len(rest))
	l.items = slices.Insert(rest, at, block...)
	return true
}

// Clear removes every skill and returns what was there.
func (l *List) Clear() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.items
	l.items = nil
	return old
}
