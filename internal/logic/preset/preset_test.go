package preset

import (
	"errors"
	"sync"
	"testing"

	"github.com/cjeanneret/rigd/internal/logic/axis"
)

func TestNewStore_MinimumCapacity(t *testing.T) {
	if got := NewStore(2).Len(); got != MinCapacity {
		t.Errorf("Len() = %d, want %d", got, MinCapacity)
	}
	if got := NewStore(16).Len(); got != 16 {
		t.Errorf("Len() = %d, want 16", got)
	}
}

func TestSetGet(t *testing.T) {
	s := NewStore(8)
	goals := axis.Vector{100, 200, 300, 400}
	if err := s.Set(0, goals); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != goals {
		t.Errorf("Get(0) = %v, want %v", got, goals)
	}

	if err := s.Set(0, axis.Vector{1, 2, 3, 4}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.Get(0)
	if got != (axis.Vector{1, 2, 3, 4}) {
		t.Errorf("overwrite not applied: %v", got)
	}
}

func TestGet_UnsetSlotIsOrigin(t *testing.T) {
	s := NewStore(8)
	got, err := s.Get(7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != (axis.Vector{}) {
		t.Errorf("unset slot = %v, want origin", got)
	}
}

func TestIndexOutOfRange(t *testing.T) {
	s := NewStore(8)
	for _, idx := range []int{-1, 8, 1000} {
		if err := s.Set(idx, axis.Vector{}); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Set(%d) err = %v, want ErrIndexOutOfRange", idx, err)
		}
		if _, err := s.Get(idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Get(%d) err = %v, want ErrIndexOutOfRange", idx, err)
		}
	}
}

func TestSnapshot(t *testing.T) {
	s := NewStore(8)
	_ = s.Set(3, axis.Vector{3, 3, 3, 3})
	snap := s.Snapshot()
	if len(snap) != 8 {
		t.Fatalf("len = %d, want 8", len(snap))
	}
	if snap[3] != (axis.Vector{3, 3, 3, 3}) || snap[0] != (axis.Vector{}) {
		t.Errorf("unexpected snapshot: %v", snap)
	}
	snap[3][0] = 99
	if got, _ := s.Get(3); got[0] != 3 {
		t.Error("snapshot must be a copy")
	}
}

func TestConcurrentSetNeverTears(t *testing.T) {
	s := NewStore(8)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := int64(0); i < 2000; i++ {
			_ = s.Set(1, axis.Vector{i, i, i, i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			v, _ := s.Get(1)
			if v[0] != v[1] || v[1] != v[2] || v[2] != v[3] {
				t.Errorf("torn read: %v", v)
				return
			}
		}
	}()
	wg.Wait()
}
