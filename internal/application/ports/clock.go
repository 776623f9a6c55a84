package ports

import (
	"context"
	"time"
)

// Clock supplies wall-clock time. Tests substitute a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// AlarmNotifier is told when a session crosses its target.
type AlarmNotifier interface {
	Notify(ctx context.Context, sessionID string, subject string, elapsed int) error
}
