package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/cjeanneret/rigd/internal/command"
	"github.com/cjeanneret/rigd/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr        string
	statusEvery time.Duration
	handlers    *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
// Status frames are pushed to websocket clients every statusEvery.
func NewServer(addr string, statusEvery time.Duration, broadcaster *StatusBroadcaster, src StatusSource, applier command.Applier) *Server {
	return &Server{
		addr:        addr,
		statusEvery: statusEvery,
		handlers:    NewHandlers(broadcaster, src, applier),
	}
}

// Router returns an http.Handler with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handlers.ServeIndex)
	r.Get("/status/ws", s.handlers.HandleStatusSocket)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Get("/status", s.handlers.HandleStatus)
		r.Get("/presets", s.handlers.HandlePresets)
		r.Post("/command", s.handlers.HandleCommand)
	})
	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()
	go s.pushStatus(ctx)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// pushStatus broadcasts the rig status while anyone is listening.
func (s *Server) pushStatus(ctx context.Context) {
	if s.statusEvery <= 0 {
		return
	}
	ticker := time.NewTicker(s.statusEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.handlers.Broadcaster.Clients() > 0 {
				s.handlers.Broadcaster.BroadcastStatus(s.handlers.Source.Status())
			}
		}
	}
}
