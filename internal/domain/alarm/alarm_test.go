package alarm

import (
	"testing"

	"pgregory.net/rapid"
)

func TestCheck_FiresOnceAtTarget(t *testing.T) {
	s := NewState()
	fires := 0
	for elapsed := 1490; elapsed <= 1510; elapsed++ {
		ev := s.Check(elapsed, 1500)
		if ev.Fired {
			fires++
			if elapsed != 1500 {
				t.Errorf("fired at %d, want 1500", elapsed)
			}
		}
	}
	if fires != 1 {
		t.Errorf("fired %d times, want 1", fires)
	}
}

func TestCheck_SkippedSecondStillFires(t *testing.T) {
	s := NewState()
	if ev := s.Check(58, 60); ev.Fired {
		t.Fatal("fired before target")
	}
	if ev := s.Check(62, 60); !ev.Fired {
		t.Fatal("expected fire when a tick skipped the target second")
	}
	if ev := s.Check(63, 60); ev.Fired {
		t.Fatal("re-fired after crossing")
	}
}

func TestCheck_FirstObservationPastTargetDoesNotFire(t *testing.T) {
	s := NewState()
	if ev := s.Check(900, 60); ev.Fired {
		t.Error("fired on a first observation already past target")
	}
}

func TestCheck_RearmsBelowTarget(t *testing.T) {
	s := NewState()
	s.Check(59, 60)
	if ev := s.Check(60, 60); !ev.Fired {
		t.Fatal("expected first fire")
	}
	s.Check(0, 60)
	if s.Fired() {
		t.Fatal("fired flag should clear below target")
	}
	if ev := s.Check(60, 60); !ev.Fired {
		t.Error("expected fire after re-arm")
	}
}

func TestCheck_Muting(t *testing.T) {
	tests := []struct {
		name        string
		mute        bool
		wantAudible bool
	}{
		{"unmuted", false, true},
		{"muted", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			if tt.mute {
				s.Mute()
			}
			s.Check(9, 10)
			ev := s.Check(10, 10)
			if !ev.Fired {
				t.Fatal("detection should continue while muted")
			}
			if ev.Audible != tt.wantAudible {
				t.Errorf("Audible = %v, want %v", ev.Audible, tt.wantAudible)
			}
		})
	}
}

func TestCheck_UnmuteDoesNotRefire(t *testing.T) {
	s := NewState()
	s.Mute()
	s.Check(9, 10)
	s.Check(10, 10)
	s.Unmute()
	if ev := s.Check(11, 10); ev.Fired {
		t.Error("unmute must not re-fire a crossing that already fired")
	}
}

func TestCheck_NonPositiveTargetNeverFires(t *testing.T) {
	s := NewState()
	for _, elapsed := range []int{0, 1, 100} {
		if ev := s.Check(elapsed, 0); ev.Fired {
			t.Errorf("fired with zero target at %d", elapsed)
		}
	}
}

func TestReset(t *testing.T) {
	s := NewState()
	s.Mute()
	s.Check(9, 10)
	s.Check(10, 10)
	s.Reset()
	if s.Fired() || s.Muted() {
		t.Errorf("Reset left fired=%v muted=%v", s.Fired(), s.Muted())
	}
}

func TestPrime_RestoredPastTarget(t *testing.T) {
	s := NewState()
	s.Prime(120, 60)
	if ev := s.Check(121, 60); ev.Fired {
		t.Error("restored session past target should not fire")
	}

	s = NewState()
	s.Prime(30, 60)
	s.Check(59, 60)
	if ev := s.Check(60, 60); !ev.Fired {
		t.Error("restored session below target should fire at target")
	}
}

func TestCheck_MonotonicSequenceFiresAtMostOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		target := rapid.IntRange(1, 5000).Draw(t, "target")
		steps := rapid.SliceOfN(rapid.IntRange(0, 5), 1, 400).Draw(t, "steps")

		s := NewState()
		elapsed := rapid.IntRange(0, target-1).Draw(t, "start")
		fires := 0
		s.Check(elapsed, target)
		for _, step := range steps {
			elapsed += step
			if s.Check(elapsed, target).Fired {
				fires++
			}
		}
		if fires > 1 {
			t.Fatalf("fired %d times for a non-decreasing sequence", fires)
		}
		if elapsed >= target && fires != 1 {
			t.Fatalf("crossed target %d (final %d) but fired %d times", target, elapsed, fires)
		}
	})
}
