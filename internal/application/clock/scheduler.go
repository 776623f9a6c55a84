package clock

import (
	"sync"
	"time"
)

// Default tick cadences.
const (
	DefaultFrameInterval    = 100 * time.Millisecond
	DefaultBackgroundTick   = time.Second
	foregroundSchedulerName = "frame"
	backgroundSchedulerName = "interval"
)

// TickScheduler produces ticks at some cadence until stopped.
// Start may be called again after Stop.
type TickScheduler interface {
	// Name identifies the strategy in logs.
	Name() string

	// Start begins ticking and returns the tick channel.
	Start() <-chan time.Time

	// Stop halts ticking. It is safe to call when not started.
	Stop()
}

// TickerScheduler ticks on a time.Ticker.
type TickerScheduler struct {
	name     string
	interval time.Duration
	ticker   *time.Ticker
}

// NewFrameScheduler returns the foreground strategy: a fast ticker that
// keeps the display smooth while the timer is visible.
func NewFrameScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &TickerScheduler{name: foregroundSchedulerName, interval: interval}
}

// NewIntervalScheduler returns the background strategy: a coarse ticker
// that keeps progress and alarm detection going while hidden.
func NewIntervalScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = DefaultBackgroundTick
	}
	return &TickerScheduler{name: backgroundSchedulerName, interval: interval}
}

// Name returns the strategy name.
func (s *TickerScheduler) Name() string { return s.name }

// Interval returns the tick cadence.
func (s *TickerScheduler) Interval() time.Duration { return s.interval }

// Start begins ticking.
func (s *TickerScheduler) Start() <-chan time.Time {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.ticker = time.NewTicker(s.interval)
	return s.ticker.C
}

// Stop halts the ticker.
func (s *TickerScheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

// ChannelScheduler forwards ticks from a caller-owned channel. It lets a
// test or an embedding host drive the engine deterministically.
type ChannelScheduler struct {
	name string
	ch   chan time.Time

	mu      sync.Mutex
	started bool
}

// NewChannelScheduler returns a scheduler named name fed by ch.
func NewChannelScheduler(name string, ch chan time.Time) *ChannelScheduler {
	return &ChannelScheduler{name: name, ch: ch}
}

// Name returns the scheduler name.
func (s *ChannelScheduler) Name() string { return s.name }

// Start returns the caller's channel.
func (s *ChannelScheduler) Start() <-chan time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return s.ch
}

// Stop marks the scheduler stopped. The channel is left open.
func (s *ChannelScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
}

// Started reports whether the scheduler is between Start and Stop.
func (s *ChannelScheduler) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
