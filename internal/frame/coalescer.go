// Package frame holds the pointer coalescing and loading gate primitives the
// landing page animation consumes.
package frame

import (
	"sync"
	"time"
)

// DefaultInterval is one frame at 60 Hz.
const DefaultInterval = time.Second / 60

// Scheduler runs fn once after d. The returned stop function cancels the call
// if it has not run yet and reports whether it did so.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

// TimerScheduler schedules on time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Point is the latest pointer position submitted.
type Point struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Stats counts what a Coalescer did with submitted points.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
	Pending   bool  `json:"pending"`
}

// Coalescer delivers at most one pointer update per frame. While a delivery
// is pending, further submits are dropped.
type Coalescer struct {
	handle    func(Point)
	scheduler Scheduler
	interval  time.Duration

	mu      sync.Mutex
	pending bool
	stopped bool
	cancel  func() bool
	stats   Stats
}

type CoalescerOption func(*Coalescer)

func WithScheduler(s Scheduler) CoalescerOption {
	return func(c *Coalescer) {
		if s != nil {
			c.scheduler = s
		}
	}
}

func WithInterval(d time.Duration) CoalescerOption {
	return func(c *Coalescer) {
		if d > 0 {
			c.interval = d
		}
	}
}

func NewCoalescer(handle func(Point), opts ...CoalescerOption) *Coalescer {
	c := &Coalescer{
		handle:    handle,
		scheduler: TimerScheduler{},
		interval:  DefaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit schedules delivery of p on the next frame. It reports false when the
// point was dropped because a delivery is already pending or the coalescer is
// stopped.
func (c *Coalescer) Submit(p Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Submitted++
	if c.pending || c.stopped {
		c.stats.Dropped++
		return false
	}

	c.pending = true
	c.cancel = c.scheduler.AfterFunc(c.interval, func() { c.deliver(p) })
	return true
}

func (c *Coalescer) deliver(p Point) {
	c.mu.Lock()
	if !c.pending || c.stopped {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.cancel = nil
	c.stats.Delivered++
	c.mu.Unlock()

	c.handle(p)
}

// Stop cancels a pending delivery; later submits are dropped.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.pending = false
}

func (c *Coalescer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Pending = c.pending
	return s
}

// Normalize maps a pointer inside a width x height surface to offsets in
// [-1, 1] per axis, with the center at 0. Degenerate surfaces yield 0.
func Normalize(x, y, width, height float64) (float64, float64) {
	return axis(x, width), axis(y, height)
}

func axis(v, size float64) float64 {
	if size <= 0 {
		return 0
	}
	n := (v/size)*2 - 1
	switch {
	case n < -1:
		return -1
	case n > 1:
		return 1
	}
	return n
}
