package motion

import (
	"sync"

	"github.com/cjeanneret/rigd/internal/logic/axis"
)

// fakeMotors records targets. When teleport is set, an axis reaches its
// target as soon as it is issued.
type fakeMotors struct {
	mu       sync.Mutex
	pos      axis.Vector
	target   axis.Vector
	history  [axis.NumAxes][]int64
	teleport bool
}

func (f *fakeMotors) SetTarget(a axis.Axis, pos int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target[a] = pos
	f.history[a] = append(f.history[a], pos)
	if f.teleport {
		f.pos[a] = pos
	}
}

func (f *fakeMotors) CurrentPosition(a axis.Axis) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos[a]
}

func (f *fakeMotors) TargetPosition(a axis.Axis) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target[a]
}

func (f *fakeMotors) IsRunning(a axis.Axis) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos[a] != f.target[a]
}

func (f *fakeMotors) place(v axis.Vector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = v
	f.target = v
}

func (f *fakeMotors) targets() axis.Vector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target
}

func (f *fakeMotors) issued(a axis.Axis) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.history[a]...)
}
