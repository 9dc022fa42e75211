package gate

import (
	"testing"

	"github.com/signalforge/pobot/internal/signal"
)

func newTestGate(enter, aggr, minInterval, antiBurst int) *Gate {
	return New(Thresholds{Enter: enter, Aggr: aggr, MinIntervalSec: minInterval}, antiBurst, true)
}

func TestDisabledDeniesEverything(t *testing.T) {
	g := New(Thresholds{Enter: 70, Aggr: 80, MinIntervalSec: 15}, 5, false)
	v := g.Attempt(signal.SideUp, 99, true, 100)
	if v.Allowed || v.Reason != ReasonDisabled {
		t.Fatalf("got %+v, want denied/disabled", v)
	}
}

func TestMinIntervalCooldown(t *testing.T) {
	g := newTestGate(70, 80, 15, 5)

	v := g.Attempt(signal.SideUp, 90, true, 100)
	if !v.Allowed {
		t.Fatalf("first attempt should pass, got %q", v.Reason)
	}
	g.RecordTrade(signal.SideUp, 100)

	// 5 seconds later with min_interval=15: denied regardless of confidence.
	v = g.Attempt(signal.SideDown, 99, true, 105)
	if v.Allowed || v.Reason != ReasonCooldown {
		t.Fatalf("got %+v, want denied/cooldown", v)
	}

	v = g.Attempt(signal.SideDown, 99, true, 116)
	if !v.Allowed {
		t.Fatalf("cooldown must not outlive min_interval, got %q", v.Reason)
	}
}

func TestAntiBurstSameSide(t *testing.T) {
	g := newTestGate(70, 80, 1, 5)

	if v := g.Attempt(signal.SideUp, 90, true, 100); !v.Allowed {
		t.Fatalf("first attempt should pass, got %q", v.Reason)
	}
	g.RecordTrade(signal.SideUp, 100)

	// 3s later, same side, anti_burst=5: denied even though min_interval=1 passed.
	v := g.Attempt(signal.SideUp, 90, true, 103)
	if v.Allowed || v.Reason != ReasonAntiBurst {
		t.Fatalf("got %+v, want denied/anti_burst", v)
	}

	// Opposite side is not an anti-burst case.
	if v := g.Attempt(signal.SideDown, 90, true, 103); !v.Allowed {
		t.Fatalf("opposite side should clear anti-burst, got %q", v.Reason)
	}

	// Same side after the anti-burst window.
	if v := g.Attempt(signal.SideUp, 90, true, 106); !v.Allowed {
		t.Fatalf("anti-burst must not outlive its window, got %q", v.Reason)
	}
}

func TestTwoTierThresholdInversion(t *testing.T) {
	// Strong signals get the easier Enter bound, weak signals the
	// harder Aggr bound.
	g := newTestGate(70, 80, 1, 1)

	tests := []struct {
		name     string
		conf     int
		strongOK bool
		allowed  bool
	}{
		{"strong clears enter bound", 72, true, true},
		{"strong below enter bound", 69, true, false},
		{"weak must clear aggr bound", 72, false, false},
		{"weak clears aggr bound", 81, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.Attempt(signal.SideUp, tt.conf, tt.strongOK, 1000)
			if v.Allowed != tt.allowed {
				t.Fatalf("allowed = %v (%q), want %v", v.Allowed, v.Reason, tt.allowed)
			}
			if !tt.allowed && v.Reason != ReasonBelowThreshold {
				t.Fatalf("reason = %q, want below_threshold", v.Reason)
			}
		})
	}
}

func TestFailedExecutionLeavesStateUntouched(t *testing.T) {
	g := newTestGate(70, 80, 15, 5)

	if v := g.Attempt(signal.SideUp, 90, true, 100); !v.Allowed {
		t.Fatalf("first attempt should pass, got %q", v.Reason)
	}
	// Execution failed: caller never records the trade. A retry on the
	// next cycle must still be possible.
	if v := g.Attempt(signal.SideUp, 90, true, 102); !v.Allowed {
		t.Fatalf("retry after failed execution should pass, got %q", v.Reason)
	}
}

func TestSetThresholds(t *testing.T) {
	g := newTestGate(70, 80, 1, 1)
	g.SetThresholds(Thresholds{Enter: 60, Aggr: 90, MinIntervalSec: 1})
	if v := g.Attempt(signal.SideUp, 65, true, 100); !v.Allowed {
		t.Fatalf("lowered enter bound should allow 65, got %q", v.Reason)
	}
	if v := g.Attempt(signal.SideUp, 85, false, 200); v.Allowed {
		t.Fatalf("raised aggr bound should deny 85")
	}
}
