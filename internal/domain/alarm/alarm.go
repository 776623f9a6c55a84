// Package alarm edge-detects a session's elapsed time crossing its target.
package alarm

// Event is the result of a single Check.
type Event struct {
	// Fired is true on the one observation that crossed the target.
	Fired bool
	// Audible is Fired with muting applied.
	Audible bool
}

// State tracks whether the alarm has fired for the current crossing.
// The zero value is not ready for use; call NewState.
type State struct {
	fired bool
	muted bool
	last  int
}

// NewState returns a disarmed, unmuted alarm state.
func NewState() *State {
	return &State{last: -1}
}

// Check observes elapsed against target and reports whether this observation
// is the crossing. It fires when elapsed equals target, or when the previous
// observation was below target and this one is at or above it, so a skipped
// second still fires exactly once. The fired flag stays set until elapsed
// drops back below target.
func (s *State) Check(elapsed, target int) Event {
	prev := s.last
	s.last = elapsed

	if target <= 0 {
		return Event{}
	}
	if elapsed < target {
		s.fired = false
		return Event{}
	}
	if s.fired {
		return Event{}
	}

	crossed := elapsed == target || (prev >= 0 && prev < target)
	if !crossed {
		return Event{}
	}
	s.fired = true
	return Event{Fired: true, Audible: !s.muted}
}

// Mute suppresses notification. Detection continues.
func (s *State) Mute() { s.muted = true }

// Unmute re-enables notification without re-arming a fired alarm.
func (s *State) Unmute() { s.muted = false }

// Muted reports whether notification is suppressed.
func (s *State) Muted() bool { return s.muted }

// Fired reports whether the alarm has fired for the current crossing.
func (s *State) Fired() bool { return s.fired }

// Reset disarms the alarm for a new session. Mute is cleared too.
func (s *State) Reset() {
	s.fired = false
	s.muted = false
	s.last = -1
}

// Prime records elapsed as already observed without firing. Used when a
// session is restored past its target so the alarm does not fire late.
func (s *State) Prime(elapsed, target int) {
	s.last = elapsed
	s.fired = target > 0 && elapsed >= target
}
