package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Event is one frame pushed to websocket clients: either a log line or a
// rig status snapshot.
type Event struct {
	Type   string      `json:"type"`
	Time   string      `json:"t"`
	Level  string      `json:"l,omitempty"`
	Msg    string      `json:"msg,omitempty"`
	Status interface{} `json:"status,omitempty"`
}

// StatusBroadcaster distributes events to multiple websocket clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast events and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a log line to all subscribed clients.
// Events are sent as JSON: {"type":"log","t":"...","l":"info","msg":"..."}
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(Event{Type: "log", Level: level, Msg: msg})
}

// BroadcastStatus sends a status snapshot to all subscribed clients.
func (b *StatusBroadcaster) BroadcastStatus(status interface{}) {
	b.publish(Event{Type: "status", Status: status})
}

// publish encodes evt once and fans it out. Slow clients may miss events
// (non-blocking, buffered).
func (b *StatusBroadcaster) publish(evt Event) {
	evt.Time = time.Now().Format(time.RFC3339Nano)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastWriter implements io.Writer; each Write broadcasts one log line.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.Broadcast(levelOf(msg), msg)
	}
	return len(p), nil
}

// levelOf maps the debug tag of a log line to an event level.
func levelOf(line string) string {
	switch {
	case strings.Contains(line, "[ERROR]"):
		return "error"
	case strings.Contains(line, "[WARN]"):
		return "warn"
	case strings.Contains(line, "[LIVE]"):
		return "live"
	default:
		return "info"
	}
}
