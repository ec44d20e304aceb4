package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/aluko123/go-fxrate-server/pkg/eventlog"
	"github.com/aluko123/go-fxrate-server/pkg/limit"
	"github.com/aluko123/go-fxrate-server/pkg/logger"
	"github.com/aluko123/go-fxrate-server/pkg/metrics"
	"github.com/aluko123/go-fxrate-server/protocol"
	"github.com/aluko123/go-fxrate-server/rates"
)

// State is the lifecycle stage of a Session
type State int32

const (
	StateAwaitingAdmission State = iota
	StateConnected
	StateServing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingAdmission:
		return "awaiting_admission"
	case StateConnected:
		return "connected"
	case StateServing:
		return "serving"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session serves one admitted client connection. It owns the connection slot
// and releases it, closes the socket and records the disconnect exactly once
// when it ends, whatever the reason.
type Session struct {
	clientID    string
	acceptedAt  time.Time
	release     func()
	provider    rates.Provider
	limiter     limit.RequestLimiter
	events      eventlog.Sink
	idleTimeout time.Duration
	now         func() time.Time

	state atomic.Int32
}

// State returns the current lifecycle stage
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// ServeConn runs the session until the client leaves or an error occurs
func (s *Session) ServeConn(ctx context.Context, conn net.Conn) {
	l := logger.FromContext(ctx)
	// the logging middleware already tags the remote address
	if conn.RemoteAddr() == nil || s.clientID != conn.RemoteAddr().String() {
		l = l.With("client_id", s.clientID)
	}

	// closing the socket unblocks any pending read on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
		s.release()
		s.setState(StateClosed)
		if err := s.events.Disconnected(s.clientID, s.now()); err != nil {
			l.Warn("failed to record disconnect", "error", err)
		}
	}()

	if !s.limiter.Allow(s.clientID) {
		metrics.ConnectionsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		l.Info("request limit exceeded, connection rejected")
		if err := protocol.WriteFrame(conn, MsgRateLimited); err != nil {
			l.Debug("failed to send rejection", "error", err)
		}
		return
	}
	s.setState(StateConnected)

	start := time.Now()
	table, err := s.provider.Fetch(ctx)
	metrics.FeedFetchDuration.WithLabelValues(metrics.FetchStatus(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues(metrics.OutcomeFeedError).Inc()
		l.Error("failed to load exchange rates", "error", err)
		return
	}
	metrics.ConnectionsTotal.WithLabelValues(metrics.OutcomeAdmitted).Inc()

	if err := s.events.Connected(s.clientID, s.acceptedAt, table); err != nil {
		l.Warn("failed to record connect", "error", err)
	}
	l.Info("client connected", "currencies", table.Len())

	s.setState(StateServing)
	err = s.serve(conn, table, l)

	switch {
	case isDisconnect(err) || ctx.Err() != nil:
		l.Info("client disconnected")
	default:
		l.Warn("session terminated", "error", err)
	}
}

// serve answers exchange requests in arrival order until an I/O error
func (s *Session) serve(conn net.Conn, table *rates.Table, l *logger.Logger) error {
	for {
		if s.idleTimeout > 0 {
			// socket deadlines run on the wall clock, s.now only stamps events
			if err := conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
				return err
			}
		}

		from, err := protocol.ReadFrame(conn)
		if err != nil {
			return err
		}
		to, err := protocol.ReadFrame(conn)
		if err != nil {
			return err
		}

		result, err := table.Exchange(from, to)
		switch {
		case err == nil:
			metrics.ExchangeRequestsTotal.WithLabelValues(metrics.StatusOK).Inc()
		case errors.Is(err, rates.ErrUnknownCurrency):
			metrics.ExchangeRequestsTotal.WithLabelValues(metrics.StatusUnknownCurrency).Inc()
			l.Debug("one or both currency codes were not found", "from", from, "to", to)
		default:
			metrics.ExchangeRequestsTotal.WithLabelValues(metrics.StatusComputeError).Inc()
			l.Warn("exchange computation failed", "from", from, "to", to, "error", err)
		}

		if err := protocol.WriteFrame(conn, result.String()); err != nil {
			return err
		}

		if err := s.events.Request(s.clientID, from, to, result); err != nil {
			l.Warn("failed to record request", "error", err)
		}
	}
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}
