// Package vector provides the flat in-memory vector store used by the semantic index.
package vector

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyVector is returned when a zero-length vector is stored.
	ErrEmptyVector = errors.New("empty vector")
	// ErrOutOfRange is returned for a position outside the store.
	ErrOutOfRange = errors.New("position out of range")
)

// Neighbor is a single search hit: the store position and its squared L2 distance to the query.
type Neighbor struct {
	Position int
	Distance float64
}

// Store is a positional, append-only array of vectors with brute-force search.
// Positions are dense and stable until Rebuild or Compact. Removed positions are
// tombstoned and skipped by Search until the next Compact.
type Store struct {
	dimensions int
	vectors    [][]float32
	dead       *bitset.BitSet
	mu         sync.RWMutex
}

// NewStore creates a store. A zero dimension is fixed by the first stored vector.
func NewStore(dimensions int) (*Store, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative")
	}
	return &Store{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
		dead:       bitset.New(0),
	}, nil
}

// Dimensions returns the vector length, or 0 if no vector has been stored yet.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// Len returns the number of physical positions, tombstoned ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Dead returns the number of tombstoned positions.
func (s *Store) Dead() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.dead.Count())
}

// Live returns the number of positions that are not tombstoned.
func (s *Store) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors) - int(s.dead.Count())
}

func (s *Store) checkLocked(vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	if s.dimensions != 0 && len(vec) != s.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), s.dimensions)
	}
	return nil
}

// Append stores a copy of vec at the next position and returns that position.
func (s *Store) Append(vec []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(vec); err != nil {
		return 0, err
	}
	if s.dimensions == 0 {
		s.dimensions = len(vec)
	}
	s.vectors = append(s.vectors, clone(vec))
	return len(s.vectors) - 1, nil
}

// Set overwrites the vector at pos in place.
func (s *Store) Set(pos int, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 0 || pos >= len(s.vectors) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, pos)
	}
	if err := s.checkLocked(vec); err != nil {
		return err
	}
	s.vectors[pos] = clone(vec)
	return nil
}

// Rebuild replaces the whole content with vecs and clears all tombstones.
// All vectors are validated before anything is replaced.
func (s *Store) Rebuild(vecs [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := s.dimensions
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("vector %d: %w", i, ErrEmptyVector)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return fmt.Errorf("vector %d: %w: got %d, expected %d", i, ErrDimensionMismatch, len(v), dim)
		}
	}
	next := make([][]float32, len(vecs))
	for i, v := range vecs {
		next[i] = clone(v)
	}
	s.dimensions = dim
	s.vectors = next
	s.dead = bitset.New(0)
	return nil
}

// Tombstone marks pos as removed. Search never returns a tombstoned position.
func (s *Store) Tombstone(pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 0 || pos >= len(s.vectors) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, pos)
	}
	s.dead.Set(uint(pos))
	return nil
}

// IsDead reports whether pos is tombstoned.
func (s *Store) IsDead(pos int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pos >= 0 && s.dead.Test(uint(pos))
}

// Compact physically drops tombstoned positions. It returns, for each new position,
// the position it had before compaction.
func (s *Store) Compact() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]int, 0, len(s.vectors))
	next := make([][]float32, 0, len(s.vectors))
	for i, v := range s.vectors {
		if s.dead.Test(uint(i)) {
			continue
		}
		kept = append(kept, i)
		next = append(next, v)
	}
	s.vectors = next
	s.dead = bitset.New(0)
	return kept
}

// Vector returns a copy of the vector at pos.
func (s *Store) Vector(pos int) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos < 0 || pos >= len(s.vectors) {
		return nil, false
	}
	return clone(s.vectors[pos]), true
}

// LiveVectors returns the positions and vectors of all live entries in position order.
// The returned vectors alias the store and must not be modified.
func (s *Store) LiveVectors() ([]int, [][]float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	positions := make([]int, 0, len(s.vectors))
	vecs := make([][]float32, 0, len(s.vectors))
	for i, v := range s.vectors {
		if s.dead.Test(uint(i)) {
			continue
		}
		positions = append(positions, i)
		vecs = append(vecs, v)
	}
	return positions, vecs
}

// Search scans every live vector and returns the k nearest by squared L2 distance,
// ascending, ties broken by lower position. exclude may be nil.
func (s *Store) Search(query []float32, k int, exclude func(pos int) bool) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || len(s.vectors) == 0 {
		return nil, nil
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query %w: got %d, expected %d", ErrDimensionMismatch, len(query), s.dimensions)
	}
	if live := len(s.vectors) - int(s.dead.Count()); k > live {
		k = live
	}
	h := make(neighborHeap, 0, k)
	for i, v := range s.vectors {
		if s.dead.Test(uint(i)) || (exclude != nil && exclude(i)) {
			continue
		}
		n := Neighbor{Position: i, Distance: SquaredL2(query, v)}
		if len(h) < k {
			heap.Push(&h, n)
			continue
		}
		if closer(n, h[0]) {
			h[0] = n
			heap.Fix(&h, 0)
		}
	}
	out := []Neighbor(h)
	sort.Slice(out, func(a, b int) bool { return closer(out[a], out[b]) })
	return out, nil
}

// closer orders neighbors by distance, then by position.
func closer(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Position < b.Position
}

// neighborHeap is a max-heap keeping the farthest of the current k best at the root.
type neighborHeap []Neighbor

func (h neighborHeap) Len() int            { return len(h) }
func (h neighborHeap) Less(i, j int) bool  { return closer(h[j], h[i]) }
func (h neighborHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x interface{}) { *h = append(*h, x.(Neighbor)) }
func (h *neighborHeap) Pop() interface{} {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
