// Package listener runs the BMP TCP accept loop: one net.Listen bound
// to the configured host:port, one session.Handler goroutine per
// accepted connection, and a bounded-timeout shutdown drain. Adapted
// from the teacher's internal/http Server Start/Shutdown pair,
// generalized from a single net/http.Server to an arbitrary number of
// concurrent net.Conn sessions.
package listener

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// HandlerFactory builds a session.Handler for an accepted connection.
// Declared as a function type rather than importing internal/session
// directly keeps this package's dependency on session one-directional
// and testable with a fake.
type HandlerFactory func(conn net.Conn) Handler

// Handler is the subset of session.Handler's surface this package
// drives.
type Handler interface {
	Serve(ctx context.Context)
}

type Listener struct {
	addr           string
	maxConnections int
	newHandler     HandlerFactory
	logger         *zap.Logger

	ln     net.Listener
	wg     sync.WaitGroup
	cancel context.CancelFunc

	accepting atomic.Bool

	activeMu sync.Mutex
	active   int
}

func New(addr string, maxConnections int, newHandler HandlerFactory, logger *zap.Logger) *Listener {
	return &Listener{
		addr:           addr,
		maxConnections: maxConnections,
		newHandler:     newHandler,
		logger:         logger,
	}
}

// IsAccepting satisfies httpapi.ListenerStatus.
func (l *Listener) IsAccepting() bool {
	return l.accepting.Load()
}

// Start binds the socket and launches the accept loop in the
// background. It returns once the listen succeeds.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	l.ln = ln
	l.accepting.Store(true)
	l.logger.Info("bmp listener started", zap.String("addr", l.addr))

	ctx, l.cancel = context.WithCancel(ctx)
	go l.acceptLoop(ctx)
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !l.accepting.Load() {
				return
			}
			l.logger.Warn("bmp listener accept error", zap.Error(err))
			continue
		}

		if l.maxConnections > 0 && l.currentActive() >= l.maxConnections {
			l.logger.Warn("bmp listener at capacity, rejecting connection",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.Int("max_connections", l.maxConnections))
			conn.Close()
			continue
		}

		l.wg.Add(1)
		l.incActive()
		go func() {
			defer l.wg.Done()
			defer l.decActive()
			l.newHandler(conn).Serve(ctx)
		}()
	}
}

func (l *Listener) currentActive() int {
	l.activeMu.Lock()
	defer l.activeMu.Unlock()
	return l.active
}

func (l *Listener) incActive() {
	l.activeMu.Lock()
	l.active++
	l.activeMu.Unlock()
}

func (l *Listener) decActive() {
	l.activeMu.Lock()
	l.active--
	l.activeMu.Unlock()
}

// Shutdown stops accepting new connections, closes the listening
// socket, cancels the context passed to every session's Serve, and
// waits for in-flight sessions to finish up to the context's deadline.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.accepting.Store(false)
	if l.ln != nil {
		if err := l.ln.Close(); err != nil {
			return err
		}
	}
	if l.cancel != nil {
		l.cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		l.logger.Warn("bmp listener shutdown timed out with sessions still active")
		return ctx.Err()
	}
}
