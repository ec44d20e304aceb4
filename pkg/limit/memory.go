package limit

import (
	"log/slog"
	"sync"
	"time"
)

// stats is the per-client window record
type stats struct {
	count int
	last  time.Time
}

// MemoryRequestLimiter counts attempts per client inside a fixed window that
// restarts once `window` has passed since the client's last recorded attempt.
type MemoryRequestLimiter struct {
	mu      sync.Mutex
	clients map[string]*stats
	max     int
	window  time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// MemoryOption configures a MemoryRequestLimiter
type MemoryOption func(*MemoryRequestLimiter)

// WithClock replaces the wall clock, used by tests
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryRequestLimiter) { m.now = now }
}

// NewMemoryRequestLimiter creates a limiter allowing max attempts per window.
// A positive sweepInterval starts a background loop evicting elapsed records.
func NewMemoryRequestLimiter(max int, window, sweepInterval time.Duration, opts ...MemoryOption) *MemoryRequestLimiter {
	m := &MemoryRequestLimiter{
		clients: make(map[string]*stats),
		max:     max,
		window:  window,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if sweepInterval > 0 {
		go m.cleanupLoop(sweepInterval)
	}

	return m
}

// IsLimitExceeded reports whether the next attempt from clientID would be denied
func (m *MemoryRequestLimiter) IsLimitExceeded(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exceeded(clientID, m.now())
}

// RecordRequest counts an admitted attempt from clientID
func (m *MemoryRequestLimiter) RecordRequest(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(clientID, m.now())
}

// Allow checks and records in one step. Denied attempts are not recorded.
func (m *MemoryRequestLimiter) Allow(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.exceeded(clientID, now) {
		return false
	}
	m.record(clientID, now)
	return true
}

// Count returns the attempts recorded for clientID in its current record
func (m *MemoryRequestLimiter) Count(clientID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.clients[clientID]; ok {
		return s.count
	}
	return 0
}

// Len returns the number of tracked clients
func (m *MemoryRequestLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *MemoryRequestLimiter) exceeded(clientID string, now time.Time) bool {
	s, ok := m.clients[clientID]
	if !ok {
		return false
	}
	if now.Sub(s.last) < m.window {
		return s.count >= m.max
	}
	return false
}

func (m *MemoryRequestLimiter) record(clientID string, now time.Time) {
	s, ok := m.clients[clientID]
	if !ok || now.Sub(s.last) >= m.window {
		m.clients[clientID] = &stats{count: 1, last: now}
		return
	}
	s.count++
	s.last = now
}

func (m *MemoryRequestLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.done:
			return
		}
	}
}

// Sweep drops records whose window has elapsed. Such a record would be reset
// by the client's next attempt, so dropping it never changes a decision.
func (m *MemoryRequestLimiter) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.clients {
		if now.Sub(s.last) >= m.window {
			delete(m.clients, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("swept stale rate limit records", "removed", removed, "remaining", len(m.clients))
	}
	return removed
}

func (m *MemoryRequestLimiter) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
