package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/infrastructure/logging"
)

// DefaultProbeInterval is how often connectivity is probed.
const DefaultProbeInterval = 15 * time.Second

// Prober checks whether the remote is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// Connectivity probes the remote periodically and calls onRestore on every
// offline to online edge. The initial state is offline, so the first
// successful probe counts as a restore.
type Connectivity struct {
	prober    Prober
	interval  time.Duration
	onRestore func()
	logger    *logging.Logger

	mu     sync.Mutex
	online bool
}

// NewConnectivity creates a monitor.
func NewConnectivity(prober Prober, interval time.Duration, onRestore func(), logger *logging.Logger) *Connectivity {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Connectivity{prober: prober, interval: interval, onRestore: onRestore, logger: logger}
}

// Probe runs one check and reports whether the remote is reachable.
func (c *Connectivity) Probe(ctx context.Context) bool {
	err := c.prober.Ping(ctx)
	online := err == nil

	c.mu.Lock()
	restored := online && !c.online
	changed := online != c.online
	c.online = online
	c.mu.Unlock()

	if changed {
		c.logger.InfoContext(ctx, "connectivity changed", "online", online)
	}
	if restored && c.onRestore != nil {
		c.onRestore()
	}
	return online
}

// Run probes until ctx is cancelled.
func (c *Connectivity) Run(ctx context.Context) {
	c.Probe(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Probe(ctx)
		}
	}
}
