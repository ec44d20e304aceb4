package admission

import (
	"context"
	"sync"
	"time"
)

// Pool is a fixed-capacity set of connection slots backed by a buffered
// channel. A held slot is one element in the channel.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool with the given capacity
func NewPool(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{sem: make(chan struct{}, capacity)}
}

// TryAcquire waits up to timeout for a free slot.
// A timeout <= 0 waits until ctx is done.
// On success the returned release func must be called once the slot is no
// longer needed; extra calls are no-ops.
func (p *Pool) TryAcquire(ctx context.Context, timeout time.Duration) (func(), bool) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case p.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-p.sem })
		}, true
	case <-ctx.Done():
		return func() {}, false
	}
}

// InUse returns the number of held slots
func (p *Pool) InUse() int { return len(p.sem) }

// Capacity returns the total number of slots
func (p *Pool) Capacity() int { return cap(p.sem) }
