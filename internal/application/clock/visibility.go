package clock

import "sync"

// VisibilityObserver reports whether the timer is being watched.
type VisibilityObserver interface {
	// Visible returns the current visibility.
	Visible() bool

	// Changes delivers the latest visibility after each change.
	// Bursts of changes coalesce to the most recent value.
	Changes() <-chan bool
}

// ManualVisibility is a VisibilityObserver set explicitly by the host,
// for example by the interactive console's hide and show commands.
type ManualVisibility struct {
	mu      sync.Mutex
	visible bool
	ch      chan bool
}

// NewManualVisibility returns an observer with the given initial state.
func NewManualVisibility(visible bool) *ManualVisibility {
	return &ManualVisibility{visible: visible, ch: make(chan bool, 1)}
}

// Visible returns the current visibility.
func (v *ManualVisibility) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// Changes returns the change channel.
func (v *ManualVisibility) Changes() <-chan bool {
	return v.ch
}

// Set updates visibility and signals a change if it differs.
func (v *ManualVisibility) Set(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.visible == visible {
		return
	}
	v.visible = visible
	select {
	case <-v.ch:
	default:
	}
	v.ch <- visible
}
