package limit

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(max int, window time.Duration) (*MemoryRequestLimiter, *fakeClock) {
	clock := newFakeClock()
	return NewMemoryRequestLimiter(max, window, 0, WithClock(clock.Now)), clock
}

func TestMemoryRequestLimiter_AllowsUpToMax(t *testing.T) {
	m, clock := newTestLimiter(5, time.Minute)

	for i := 1; i <= 5; i++ {
		require.True(t, m.Allow("10.0.0.1:5000"), "attempt %d should be allowed", i)
		clock.Advance(time.Second)
	}
	assert.False(t, m.Allow("10.0.0.1:5000"), "sixth attempt within the window must be denied")
	assert.Equal(t, 5, m.Count("10.0.0.1:5000"), "denied attempts are not recorded")

	// other clients are unaffected
	assert.True(t, m.Allow("10.0.0.2:5000"))
}

func TestMemoryRequestLimiter_TwoStepContract(t *testing.T) {
	m, _ := newTestLimiter(2, time.Minute)
	id := "client"

	assert.False(t, m.IsLimitExceeded(id), "unknown client is never exceeded")
	m.RecordRequest(id)
	assert.False(t, m.IsLimitExceeded(id))
	m.RecordRequest(id)
	assert.True(t, m.IsLimitExceeded(id))
	assert.Equal(t, 2, m.Count(id))
}

func TestMemoryRequestLimiter_WindowBoundary(t *testing.T) {
	tests := []struct {
		name      string
		advance   time.Duration
		wantAllow bool
		wantCount int
	}{
		{"just inside window", time.Minute - time.Nanosecond, false, 5},
		{"exactly at window", time.Minute, true, 1},
		{"after window", time.Minute + time.Second, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clock := newTestLimiter(5, time.Minute)
			for i := 0; i < 5; i++ {
				require.True(t, m.Allow("c"))
			}
			require.False(t, m.Allow("c"))

			clock.Advance(tt.advance)
			assert.Equal(t, tt.wantAllow, m.Allow("c"))
			assert.Equal(t, tt.wantCount, m.Count("c"))
		})
	}
}

func TestMemoryRequestLimiter_WindowMeasuredFromLastAttempt(t *testing.T) {
	m, clock := newTestLimiter(3, time.Minute)

	require.True(t, m.Allow("c"))
	clock.Advance(50 * time.Second)
	require.True(t, m.Allow("c"))
	clock.Advance(50 * time.Second)
	// 100s since the first attempt but only 50s since the last one
	require.True(t, m.Allow("c"))
	assert.Equal(t, 3, m.Count("c"))

	clock.Advance(59 * time.Second)
	assert.False(t, m.Allow("c"))

	clock.Advance(time.Second)
	assert.True(t, m.Allow("c"))
	assert.Equal(t, 1, m.Count("c"))
}

func TestMemoryRequestLimiter_ResetRegardlessOfPriorCount(t *testing.T) {
	m, clock := newTestLimiter(5, time.Minute)
	for i := 0; i < 4; i++ {
		m.RecordRequest("c")
	}
	clock.Advance(2 * time.Minute)
	m.RecordRequest("c")
	assert.Equal(t, 1, m.Count("c"))
}

func TestMemoryRequestLimiter_ConcurrentSameClient(t *testing.T) {
	m, _ := newTestLimiter(5, time.Minute)

	var (
		wg      sync.WaitGroup
		allowed int64
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Allow("same") {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), allowed)
}

func TestMemoryRequestLimiter_Sweep(t *testing.T) {
	m, clock := newTestLimiter(5, time.Minute)
	m.Allow("old")
	clock.Advance(30 * time.Second)
	m.Allow("fresh")

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 0, m.Count("old"))
	assert.Equal(t, 1, m.Count("fresh"))
}

func TestMemoryRequestLimiter_SweepLoop(t *testing.T) {
	m := NewMemoryRequestLimiter(5, time.Millisecond, 5*time.Millisecond)
	defer m.Close()

	m.Allow("c")
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, m.Close(), "close is safe to repeat")
}

func TestClientIdentity(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("192.168.1.10"), Port: 51234}

	assert.Equal(t, "192.168.1.10:51234", ClientIdentity(addr, IdentityEndpoint))
	assert.Equal(t, "192.168.1.10", ClientIdentity(addr, IdentityIP))
	assert.Equal(t, "unknown", ClientIdentity(nil, IdentityIP))

	v6 := &net.TCPAddr{IP: net.ParseIP("::1"), Port: 6000}
	assert.Equal(t, "[::1]:6000", ClientIdentity(v6, IdentityEndpoint))
	assert.Equal(t, "::1", ClientIdentity(v6, IdentityIP))
}

func TestParseIdentityMode(t *testing.T) {
	mode, err := ParseIdentityMode("ip")
	require.NoError(t, err)
	assert.Equal(t, IdentityIP, mode)

	_, err = ParseIdentityMode("cookie")
	assert.Error(t, err)
}
