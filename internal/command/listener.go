package command

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"github.com/cjeanneret/rigd/internal/debug"
)

// maxDatagram is the largest UDP payload.
const maxDatagram = 65535

// bindRetries bounds the attempts to bind the socket at startup.
const bindRetries = 5

// Applier executes decoded commands.
type Applier interface {
	Apply(Command) error
}

// Listener receives command datagrams on a UDP socket and applies them in
// arrival order from a single goroutine.
type Listener struct {
	addr    string
	applier Applier
	warn    *rate.Limiter

	mu   sync.Mutex
	conn net.PacketConn
}

// NewListener creates a listener for addr (host:port) feeding a.
func NewListener(addr string, a Applier) *Listener {
	return &Listener{
		addr:    addr,
		applier: a,
		warn:    rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Bind opens the socket, retrying with exponential backoff while the
// address is unavailable (e.g. the network is not up yet).
func (l *Listener) Bind(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}

	var lc net.ListenConfig
	op := func() error {
		conn, err := lc.ListenPacket(ctx, "udp", l.addr)
		if err != nil {
			debug.Warn("UDP bind %s failed: %v", l.addr, err)
			return err
		}
		l.conn = conn
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), bindRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("bind command socket %s: %w", l.addr, err)
	}
	debug.Info("Listening for commands on udp %s", l.conn.LocalAddr())
	return nil
}

// Addr returns the bound address, or nil before Bind.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Serve reads datagrams until ctx is cancelled. Bad packets and rejected
// commands are logged and dropped.
func (l *Listener) Serve(ctx context.Context) error {
	if err := l.Bind(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.warnf("UDP read: %v", err)
			continue
		}
		l.handle(buf[:n], from)
	}
}

func (l *Listener) handle(pkt []byte, from net.Addr) {
	cmds, err := DecodePacket(pkt)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			l.warnf("Dropped packet from %v: %v", from, err)
		} else {
			debug.Verbose("Ignored from %v: %v", from, err)
		}
	}
	for _, c := range cmds {
		debug.Command(from.String(), c)
		if err := l.applier.Apply(c); err != nil {
			l.warnf("Rejected %T from %v: %v", c, from, err)
		}
	}
}

func (l *Listener) warnf(format string, args ...interface{}) {
	if l.warn.Allow() {
		debug.Warn(format, args...)
	}
}
