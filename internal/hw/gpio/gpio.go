package gpio

import (
	"sync"

	"github.com/cjeanneret/rigd/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC. Implementations must be safe for use
// by several stepper pulse loops at once.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

// MockDriver keeps pin levels in memory and counts rising edges, so a
// simulated rig can be checked against the pulses it would have emitted.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	rises  map[int]int
}

// NewMockDriver returns an empty mock.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		levels: make(map[int]Level),
		rises:  make(map[int]int),
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
		m.rises = make(map[int]int)
	}
	if level == High && m.levels[pin] == Low {
		m.rises[pin]++
	}
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

// Rises returns the number of low-to-high transitions written to pin.
func (m *MockDriver) Rises(pin int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rises[pin]
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
