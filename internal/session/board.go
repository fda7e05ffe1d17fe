package session

import (
	"sync"

	"hypoforge/domain/hypothesis"
	"hypoforge/internal/errors"
)

// Board is the live hypothesis list of one dataset selection. Sets from the
// generation stream replace it wholesale, except that a hypothesis whose test
// has started keeps the value it had at that moment.
type Board struct {
	mu       sync.RWMutex
	set      hypothesis.Set
	frozen   map[int]hypothesis.Hypothesis
	inFlight map[int]bool
}

func NewBoard() *Board {
	return &Board{
		frozen:   make(map[int]hypothesis.Hypothesis),
		inFlight: make(map[int]bool),
	}
}

// Replace installs a new set and returns what the board now shows
func (b *Board) Replace(set hypothesis.Set) hypothesis.Set {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := set.Clone()
	for i := len(next); i < len(b.set); i++ {
		if _, ok := b.frozen[i]; !ok {
			break
		}
		next = append(next, b.set[i])
	}
	for i, h := range b.frozen {
		if i < len(next) {
			next[i] = h
		}
	}
	b.set = next
	return next.Clone()
}

// Begin resolves index to its current hypothesis and freezes it. A second
// Begin on the same index fails with TEST_IN_FLIGHT until release is called.
func (b *Board) Begin(index int) (hypothesis.Hypothesis, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.set.At(index)
	if !ok {
		return hypothesis.Hypothesis{}, nil, errors.NotFound("hypothesis")
	}
	if b.inFlight[index] {
		return hypothesis.Hypothesis{}, nil, errors.TestInFlight(index)
	}
	b.inFlight[index] = true
	b.frozen[index] = h

	var once sync.Once
	release := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.inFlight, index)
			b.mu.Unlock()
		})
	}
	return h, release, nil
}

// Snapshot returns the hypotheses currently shown
func (b *Board) Snapshot() hypothesis.Set {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.set.Clone()
}

// Frozen reports whether index has been tested and no longer follows the stream
func (b *Board) Frozen(index int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.frozen[index]
	return ok
}
