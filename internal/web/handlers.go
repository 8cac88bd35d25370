package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/rigd/internal/command"
	"github.com/cjeanneret/rigd/internal/debug"
	"github.com/cjeanneret/rigd/internal/logic/axis"
	"github.com/cjeanneret/rigd/internal/rig"
)

// maxCommandBytes bounds the body of POST /command.
const maxCommandBytes = 4 << 10

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// StatusSource exposes the rig state served over HTTP.
type StatusSource interface {
	Status() rig.Status
	Presets() []axis.Vector
}

// CommandRequest is the JSON body of POST /command. It carries the same
// address and arguments as an OSC message.
type CommandRequest struct {
	Address string        `json:"address"`
	Args    []interface{} `json:"args"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Source      StatusSource
	Applier     command.Applier
	upgrader    websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
// If applier is nil, POST /command will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, src StatusSource, applier command.Applier) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Source:      src,
		Applier:     applier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local control network
			},
		},
	}
}

// ServeIndex lists the available endpoints.
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, `rigd motion controller

GET  /status      current rig status (JSON)
GET  /presets     preset slots (JSON)
POST /command     {"address": "/preset/recall", "args": [0, 2.5]}
GET  /status/ws   websocket stream of status frames and log lines
`)
}

// HandleStatus returns the last published rig status as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Source.Status())
}

// HandlePresets returns every preset slot as JSON.
func (h *Handlers) HandlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Source.Presets())
}

// HandleCommand decodes a command from JSON and applies it like an OSC
// message.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if h.Applier == nil {
		http.Error(w, "commands not configured", http.StatusServiceUnavailable)
		return
	}

	var req CommandRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		http.Error(w, "address is required", http.StatusBadRequest)
		return
	}

	c, err := command.Decode(req.Address, req.Args)
	switch {
	case errors.Is(err, command.ErrUnknownAddress):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	debug.Command(r.RemoteAddr, c)
	if err := h.Applier.Apply(c); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "applied",
		"command": strings.TrimPrefix(fmt.Sprintf("%T", c), "command."),
	})
}

// HandleStatusSocket upgrades to a websocket and streams broadcast events
// until the client goes away.
func (h *Handlers) HandleStatusSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Warn("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// The read side only handles control frames; it ends on close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	first, err := json.Marshal(Event{
		Type:   "status",
		Time:   time.Now().Format(time.RFC3339Nano),
		Status: h.Source.Status(),
	})
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, first); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-gone:
			return

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
