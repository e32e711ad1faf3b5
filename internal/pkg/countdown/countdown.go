// Package countdown runs the maintenance timer shown on the dashboard.
package countdown

import (
	"sync"
	"time"

	"github.com/anicoll/ato-dashboard/internal/pkg/render"
)

// TickerFunc starts a ticker and returns its channel and a stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type Option func(*Countdown)

// WithTicker replaces the 1 Hz wall clock ticker.
func WithTicker(fn TickerFunc) Option {
	return func(c *Countdown) {
		c.newTicker = fn
	}
}

// Countdown displays "Maintenance ends in: MM:SS" and counts down once a
// second. An empty display string means the timer text is cleared.
//
// display is invoked with the countdown lock held and must not call back
// into the Countdown.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	gen       uint64
	cancel    func()
	display   func(text string)
	newTicker TickerFunc
}

func New(display func(text string), opts ...Option) *Countdown {
	c := &Countdown{
		display:   display,
		newTicker: realTicker,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.display == nil {
		c.display = func(string) {}
	}
	return c
}

// Start replaces any running timer with one counting down from seconds.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	if seconds < 0 {
		seconds = 0
	}
	c.remaining = seconds
	c.display(render.FormatCountdown(seconds))
	if seconds == 0 {
		return
	}

	ticks, stopTicker := c.newTicker(time.Second)
	done := make(chan struct{})
	var once sync.Once
	c.cancel = func() {
		once.Do(func() {
			stopTicker()
			close(done)
		})
	}
	go c.run(c.gen, ticks, done)
}

// Stop halts the timer. Calling it when nothing is running is a no-op.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Countdown) stopLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Countdown) run(gen uint64, ticks <-chan time.Time, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticks:
			if !c.tick(gen) {
				return
			}
		}
	}
}

// tick reports whether the ticker goroutine should keep running.
func (c *Countdown) tick(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.stopLocked()
		c.display("")
		return false
	}
	c.display(render.FormatCountdown(c.remaining))
	return true
}
