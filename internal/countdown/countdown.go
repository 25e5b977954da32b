package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TickFunc handles one tick. Returning false stops the countdown.
type TickFunc func(ctx context.Context) bool

// Countdown fires TickFunc once per period on its own goroutine until the
// tick handler declines or Stop is called.
type Countdown struct {
	clock  clockwork.Clock
	period time.Duration
	tick   TickFunc

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(clock clockwork.Clock, period time.Duration, tick TickFunc) *Countdown {
	return &Countdown{
		clock:  clock,
		period: period,
		tick:   tick,
		done:   make(chan struct{}),
	}
}

// Start launches the ticking goroutine. It is a no-op if the countdown was
// already started or stopped.
func (c *Countdown) Start(parent context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true

	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	ticker := c.clock.NewTicker(c.period)

	go c.loop(ctx, ticker)
}

func (c *Countdown) loop(ctx context.Context, ticker clockwork.Ticker) {
	defer close(c.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !c.tick(ctx) {
				return
			}
		}
	}
}

// Stop cancels the countdown and waits for its goroutine to exit. It must not
// be called from inside the TickFunc.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.stopped = true
	started := c.started
	cancel := c.cancel
	c.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-c.done
}

// Running reports whether the ticking goroutine is still alive.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}
