// Package preset stores the absolute four-axis goals recalled by
// synchronized moves. Presets live for the lifetime of the process only.
package preset

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cjeanneret/rigd/internal/logic/axis"
)

// MinCapacity is the smallest table the rig supports.
const MinCapacity = 8

// ErrIndexOutOfRange is returned for a slot index outside the table.
var ErrIndexOutOfRange = errors.New("preset index out of range")

// Store is a fixed-capacity table of presets. Each slot is published as a
// whole, so a concurrent reader sees either the old or the new goals.
type Store struct {
	slots []atomic.Pointer[axis.Vector]
}

// NewStore creates a table with the given capacity (at least MinCapacity).
// Every slot starts at the origin.
func NewStore(capacity int) *Store {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	return &Store{slots: make([]atomic.Pointer[axis.Vector], capacity)}
}

// Len returns the capacity of the table.
func (s *Store) Len() int {
	return len(s.slots)
}

// Set overwrites slot index with goals.
func (s *Store) Set(index int, goals axis.Vector) error {
	if err := s.check(index); err != nil {
		return err
	}
	s.slots[index].Store(&goals)
	return nil
}

// Get returns the goals stored in slot index. A slot that was never set
// holds the origin.
func (s *Store) Get(index int) (axis.Vector, error) {
	if err := s.check(index); err != nil {
		return axis.Vector{}, err
	}
	if v := s.slots[index].Load(); v != nil {
		return *v, nil
	}
	return axis.Vector{}, nil
}

// Snapshot returns a copy of every slot, in index order.
func (s *Store) Snapshot() []axis.Vector {
	out := make([]axis.Vector, len(s.slots))
	for i := range s.slots {
		if v := s.slots[i].Load(); v != nil {
			out[i] = *v
		}
	}
	return out
}

func (s *Store) check(index int) error {
	if index < 0 || index >= len(s.slots) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(s.slots))
	}
	return nil
}
