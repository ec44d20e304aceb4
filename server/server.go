package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aluko123/go-fxrate-server/pkg/admission"
	"github.com/aluko123/go-fxrate-server/pkg/blocklist"
	"github.com/aluko123/go-fxrate-server/pkg/eventlog"
	"github.com/aluko123/go-fxrate-server/pkg/limit"
	"github.com/aluko123/go-fxrate-server/pkg/logger"
	"github.com/aluko123/go-fxrate-server/pkg/metrics"
	"github.com/aluko123/go-fxrate-server/pkg/middleware"
	"github.com/aluko123/go-fxrate-server/protocol"
	"github.com/aluko123/go-fxrate-server/rates"
)

// Messages sent in a single frame before a rejected connection is closed
const (
	MsgServerFull  = "Server is currently at full capacity. Please try again later."
	MsgRateLimited = "Request limit exceeded. Please try again in a minute."
	MsgBlocked     = "Access denied."
)

var ErrServerClosed = errors.New("fxrate: server closed")

const (
	rejectWriteTimeout = time.Second
	maxAcceptBackoff   = time.Second
)

// Config holds the dispatcher settings
type Config struct {
	MaxClients       int
	AdmissionTimeout time.Duration
	IdleTimeout      time.Duration
	Identity         limit.IdentityMode
	AcceptRate       float64
	AcceptBurst      int
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		MaxClients:       10,
		AdmissionTimeout: time.Second,
		Identity:         limit.IdentityEndpoint,
	}
}

// Deps are the collaborators a Server drives
type Deps struct {
	Provider  rates.Provider
	Limiter   limit.RequestLimiter
	Events    eventlog.Sink
	Blocklist *blocklist.Manager
	Logger    *logger.Logger
	Now       func() time.Time
}

// Server accepts client connections and runs one Session per admitted client
type Server struct {
	cfg      Config
	deps     Deps
	pool     *admission.Pool
	throttle *rate.Limiter
	log      *logger.Logger

	wg sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server
func New(cfg Config, deps Deps) *Server {
	if deps.Events == nil {
		deps.Events = eventlog.Discard
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		pool: admission.NewPool(cfg.MaxClients),
		log:  deps.Logger,
	}
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		s.throttle = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	return s
}

// ListenAndServe listens on addr and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln. Cancelling ctx closes the listener. When
// the loop exits for any reason, including ln being closed elsewhere, every
// live session is closed and Serve returns once they have drained.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	sessCtx, cancelSessions := context.WithCancel(ctx)
	defer s.wg.Wait()
	defer cancelSessions()

	s.log.Info("server started, waiting for clients", "addr", ln.Addr().String(), "max_clients", s.pool.Capacity())

	var backoff time.Duration
	for {
		if s.throttle != nil {
			if err := s.throttle.Wait(ctx); err != nil {
				ln.Close()
				return ErrServerClosed
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.log.Error("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.dispatch(sessCtx, conn)
	}
}

// dispatch admits conn and hands it to a session goroutine. It blocks the
// accept loop for at most the admission timeout.
func (s *Server) dispatch(ctx context.Context, conn net.Conn) {
	acceptedAt := s.deps.Now()
	clientID := limit.ClientIdentity(conn.RemoteAddr(), s.cfg.Identity)

	if s.deps.Blocklist != nil && s.deps.Blocklist.IsBlocked(conn.RemoteAddr().String()) {
		metrics.ConnectionsTotal.WithLabelValues(metrics.OutcomeBlocked).Inc()
		s.log.Info("blocked client rejected", "client_id", clientID)
		s.reject(conn, MsgBlocked)
		return
	}

	start := time.Now()
	release, ok := s.pool.TryAcquire(ctx, s.cfg.AdmissionTimeout)
	metrics.AdmissionWait.Observe(time.Since(start).Seconds())
	if !ok {
		if ctx.Err() != nil {
			conn.Close()
			return
		}
		metrics.ConnectionsTotal.WithLabelValues(metrics.OutcomeServerFull).Inc()
		s.log.Info("connection rejected, server is full", "client_id", clientID)
		s.reject(conn, MsgServerFull)
		return
	}

	sess := &Session{
		clientID:    clientID,
		acceptedAt:  acceptedAt,
		release:     release,
		provider:    s.deps.Provider,
		limiter:     s.deps.Limiter,
		events:      s.deps.Events,
		idleTimeout: s.cfg.IdleTimeout,
		now:         s.deps.Now,
	}
	handler := middleware.Chain(sess,
		middleware.WithRecover(),
		middleware.WithLogging(s.log),
		middleware.WithSessionID(),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		handler.ServeConn(ctx, conn)
	}()
}

// reject sends msg as one frame and closes conn
func (s *Server) reject(conn net.Conn, msg string) {
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(rejectWriteTimeout))
	if err := protocol.WriteFrame(conn, msg); err != nil {
		s.log.Debug("failed to send rejection", "error", err)
	}
}

// Addr returns the listener address once Serve has started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveSlots returns the number of held connection slots
func (s *Server) ActiveSlots() int {
	return s.pool.InUse()
}

// Wait blocks until every session has ended
func (s *Server) Wait() {
	s.wg.Wait()
}
