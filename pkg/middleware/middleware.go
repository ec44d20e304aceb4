package middleware

import (
	"context"
	"net"
	"runtime/debug"
	"time"

	"github.com/aluko123/go-fxrate-server/pkg/logger"
	"github.com/aluko123/go-fxrate-server/pkg/metrics"
)

// Handler serves one admitted client connection
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, conn net.Conn)

func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) { f(ctx, conn) }

// Middleware type definition
type Middleware func(Handler) Handler

// Chain applies middlewares in the order they are passed
func Chain(h Handler, middlewares ...Middleware) Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}

// WithLogging attaches a per-session logger and tracks session metrics
func WithLogging(base *logger.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, conn net.Conn) {
			metrics.ActiveSessions.Inc()
			defer metrics.ActiveSessions.Dec()

			l := base.With("client", conn.RemoteAddr().String())
			if id := logger.SessionID(ctx); id != "" {
				l = l.With("session_id", id)
			}
			ctx = logger.WithContext(ctx, l)

			start := time.Now()
			l.Debug("session started")

			next.ServeConn(ctx, conn)

			duration := time.Since(start)
			metrics.SessionDuration.Observe(duration.Seconds())
			l.Info("session finished", "duration", duration)
		})
	}
}

// WithRecover keeps a panicking session from taking the server down
func WithRecover() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, conn net.Conn) {
			defer func() {
				if rec := recover(); rec != nil {
					metrics.PanicsTotal.Inc()
					logger.FromContext(ctx).Error("session panic",
						"panic", rec,
						"stack", string(debug.Stack()),
					)
					conn.Close()
				}
			}()
			next.ServeConn(ctx, conn)
		})
	}
}
