package learner

import (
	"encoding/json"
	"errors"
	"testing"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	blob     []byte
	saves    int
	failNext bool
}

func (m *memStore) Load() ([]byte, error) { return m.blob, nil }

func (m *memStore) Save(b []byte) error {
	if m.failNext {
		m.failNext = false
		return errors.New("store unavailable")
	}
	m.blob = append([]byte(nil), b...)
	m.saves++
	return nil
}

func record(l *Learner, quality Quality, agree bool) string {
	return l.Record("EUR/USD", "UP", 80, quality, agree, FeatureSnapshot{RSI: 60})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		conf  int
		bonus float64
		want  Quality
	}{
		{"high confidence is strong", 75, 0, QualityStrong},
		{"corroboration alone is strong", 60, 0.2, QualityStrong},
		{"mid confidence is medium", 65, 0, QualityMedium},
		{"low confidence is weak", 64, 0.1, QualityWeak},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.conf, tt.bonus); got != tt.want {
				t.Fatalf("Classify(%d, %v) = %v, want %v", tt.conf, tt.bonus, got, tt.want)
			}
		})
	}
}

func TestSampleLifecycle(t *testing.T) {
	l := New(&memStore{}, 70, 80, 1, 0)
	a := record(l, QualityStrong, false)
	b := record(l, QualityMedium, false)

	l.Feedback(a, true)

	sa, ok := l.Sample(a)
	if !ok || sa.Result == nil || !*sa.Result {
		t.Fatalf("sample %s should be resolved true, got %+v", a, sa)
	}
	sb, _ := l.Sample(b)
	if sb.Result != nil {
		t.Fatalf("feedback must touch exactly one sample, %s was mutated", b)
	}
}

func TestFeedbackFirstValueWins(t *testing.T) {
	l := New(&memStore{}, 70, 80, 1, 0)
	id := record(l, QualityStrong, false)
	l.Feedback(id, true)
	l.Feedback(id, false)
	s, _ := l.Sample(id)
	if s.Result == nil || !*s.Result {
		t.Fatalf("first feedback value must be authoritative")
	}
}

func TestFeedbackUnknownIDIsNoOp(t *testing.T) {
	st := &memStore{}
	l := New(st, 70, 80, 1, 0)
	l.Feedback("no-such-sample", true)
	if st.saves != 0 {
		t.Fatalf("unknown feedback must not trigger a save")
	}
}

func TestRecomputeRaisesAndLowers(t *testing.T) {
	resolve := func(l *Learner, id string, win bool) { l.Feedback(id, win) }

	t.Run("strong winners ease enter", func(t *testing.T) {
		l := New(&memStore{}, 70, 80, 1, 0)
		for i := 0; i < 10; i++ {
			resolve(l, record(l, QualityStrong, false), i < 7) // 70% win rate
		}
		enter, aggr := l.RecomputeThresholds(70, 80)
		if enter != 67 {
			t.Fatalf("enter = %d, want 67", enter)
		}
		if aggr != 80 {
			t.Fatalf("aggr must stay unchanged without agreement samples, got %d", aggr)
		}
	})

	t.Run("strong losers raise enter", func(t *testing.T) {
		l := New(&memStore{}, 70, 80, 1, 0)
		for i := 0; i < 10; i++ {
			resolve(l, record(l, QualityStrong, false), i < 4) // 40% win rate
		}
		enter, _ := l.RecomputeThresholds(70, 80)
		if enter != 75 {
			t.Fatalf("enter = %d, want 75", enter)
		}
	})

	t.Run("agreement winners ease aggr", func(t *testing.T) {
		l := New(&memStore{}, 70, 80, 1, 0)
		for i := 0; i < 10; i++ {
			resolve(l, record(l, QualityWeak, true), i < 8) // 80% win rate
		}
		_, aggr := l.RecomputeThresholds(70, 80)
		if aggr != 75 {
			t.Fatalf("aggr = %d, want 75", aggr)
		}
	})
}

func TestRecomputeBoundsClamped(t *testing.T) {
	// Whatever the win rates, bounds must hold.
	for _, winRate := range []int{0, 30, 50, 65, 80, 100} {
		l := New(&memStore{}, 52, 93, 1, 0)
		for i := 0; i < 20; i++ {
			l.Feedback(record(l, QualityStrong, true), i*5 < winRate)
		}
		enter, aggr := l.RecomputeThresholds(52, 93)
		if enter < 50 || enter > 90 {
			t.Fatalf("winRate=%d: enter %d outside [50,90]", winRate, enter)
		}
		if aggr < 60 || aggr > 95 {
			t.Fatalf("winRate=%d: aggr %d outside [60,95]", winRate, aggr)
		}
	}
}

func TestEmptyBucketLeavesThresholdUnchanged(t *testing.T) {
	l := New(&memStore{}, 70, 80, 1, 0)
	// Samples exist but none resolved: undefined win rates.
	record(l, QualityStrong, true)
	record(l, QualityStrong, true)
	enter, aggr := l.RecomputeThresholds(70, 80)
	if enter != 70 || aggr != 80 {
		t.Fatalf("undefined win-rate perturbed thresholds: %d/%d", enter, aggr)
	}
}

func TestMaybeRecomputeThrottled(t *testing.T) {
	l := New(&memStore{}, 70, 80, 5, 0)
	l.Feedback(record(l, QualityStrong, false), true)

	runs := 0
	for i := 0; i < 10; i++ {
		if _, _, ran := l.MaybeRecompute(70, 80); ran {
			runs++
		}
	}
	if runs != 2 {
		t.Fatalf("expected 2 recomputes over 10 cycles with every=5, got %d", runs)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	st := &memStore{}
	l := New(st, 70, 80, 1, 0)
	id := record(l, QualityStrong, true)
	l.Feedback(id, true)
	l.RecomputeThresholds(70, 80)

	restored := New(&memStore{blob: st.blob}, 70, 80, 1, 0)
	restored.Load()
	if restored.SampleCount() != 1 {
		t.Fatalf("restored %d samples, want 1", restored.SampleCount())
	}
	s, ok := restored.Sample(id)
	if !ok || s.Result == nil || !*s.Result || s.Quality != QualityStrong {
		t.Fatalf("restored sample lost fields: %+v", s)
	}
	enter, aggr := restored.Thresholds()
	if enter != 67 || aggr != 75 {
		t.Fatalf("restored thresholds %d/%d, want 67/75", enter, aggr)
	}
}

func TestPersistPrunesToMaxSamples(t *testing.T) {
	st := &memStore{}
	l := New(st, 70, 80, 1, 3)
	var last string
	for i := 0; i < 6; i++ {
		last = record(l, QualityWeak, false)
	}
	l.Feedback(last, true)

	var snap struct {
		Samples []Sample `json:"samples"`
	}
	if err := json.Unmarshal(st.blob, &snap); err != nil {
		t.Fatalf("snapshot not valid JSON: %v", err)
	}
	if len(snap.Samples) != 3 {
		t.Fatalf("persisted %d samples, want pruned 3", len(snap.Samples))
	}
	if snap.Samples[2].ID != last {
		t.Fatalf("pruning must keep the most recent samples")
	}
	// In-memory log is never pruned.
	if l.SampleCount() != 6 {
		t.Fatalf("in-memory log was pruned to %d", l.SampleCount())
	}
}

func TestSaveFailureRetriedOnNextMutation(t *testing.T) {
	st := &memStore{failNext: true}
	l := New(st, 70, 80, 1, 0)
	id := record(l, QualityStrong, false)
	l.Feedback(id, true) // save fails here
	if st.saves != 0 {
		t.Fatalf("expected the first save to fail")
	}
	record(l, QualityWeak, false) // next mutation retries
	if st.saves != 1 {
		t.Fatalf("failed save was not retried, saves=%d", st.saves)
	}
}

func TestLoadFailureStartsFresh(t *testing.T) {
	l := New(&memStore{blob: []byte("{corrupt")}, 70, 80, 1, 0)
	l.Load()
	if l.SampleCount() != 0 {
		t.Fatalf("corrupt snapshot must leave the zero state")
	}
	enter, aggr := l.Thresholds()
	if enter != 70 || aggr != 80 {
		t.Fatalf("corrupt snapshot must keep default thresholds, got %d/%d", enter, aggr)
	}
}
