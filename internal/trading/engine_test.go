package trading

import (
	"testing"
	"time"

	"github.com/signalforge/pobot/internal/config"
	"github.com/signalforge/pobot/internal/executor"
	"github.com/signalforge/pobot/internal/gate"
	"github.com/signalforge/pobot/internal/learner"
	"github.com/signalforge/pobot/internal/signal"
	"github.com/signalforge/pobot/internal/ticks"
)

var risingPrices = []float64{
	1.0000, 1.0002, 1.0001, 1.0005, 1.0008, 1.0009,
	1.0011, 1.0010, 1.0013, 1.0015, 1.0016, 1.0018,
}

func testConfig() *config.Config {
	return &config.Config{
		Asset:          "EUR/USD",
		DryRun:         true,
		WindowSec:      26,
		MinIntervalSec: 15,
		BaseEnter:      70,
		BaseAggr:       80,
		DecideInterval: 2 * time.Second,
	}
}

func testWindow(now float64) *ticks.Window {
	w := ticks.NewWindow(64)
	base := now - float64(len(risingPrices)) + 1
	for i, p := range risingPrices {
		w.Push(base+float64(i), p)
	}
	return w
}

// newTestEngine wires a loop over the rising window with permissive
// gate thresholds so the decision itself drives the outcome.
func newTestEngine(now float64, exec executor.Executor, l *learner.Learner) *Engine {
	cfg := testConfig()
	w := testWindow(now)
	sig := signal.NewEngine(signal.DefaultConfig())
	g := gate.New(gate.Thresholds{Enter: 55, Aggr: 58, MinIntervalSec: 15}, 5, true)
	return NewEngine(cfg, w, sig, g, l, exec, nil)
}

func TestCycleExecutesAndRecords(t *testing.T) {
	now := 1000.0
	var executed []signal.Side
	exec := executor.Func(func(s signal.Side) bool {
		executed = append(executed, s)
		return true
	})
	l := learner.New(nil, 70, 80, 1000, 0)
	eng := newTestEngine(now, exec, l)

	d := eng.Cycle(now)
	if d.Side != signal.SideUp {
		t.Fatalf("rising window decided %v, want UP", d.Side)
	}
	if len(executed) != 1 || executed[0] != signal.SideUp {
		t.Fatalf("executed = %v, want one UP trade", executed)
	}
	if got := l.SampleCount(); got != 1 {
		t.Fatalf("sample count = %d, want 1", got)
	}
	if last, ok := eng.LastDecision(); !ok || last.Side != signal.SideUp {
		t.Fatalf("last decision = %v/%v, want cached UP", last, ok)
	}
}

func TestFailedExecutionLeavesGateRetryable(t *testing.T) {
	now := 1000.0
	ok := false
	exec := executor.Func(func(signal.Side) bool {
		ok = !ok
		return ok // fail first, succeed second
	})
	l := learner.New(nil, 70, 80, 1000, 0)
	eng := newTestEngine(now, exec, l)

	eng.Cycle(now)
	if got := l.SampleCount(); got != 0 {
		t.Fatalf("sample recorded for failed execution, count = %d", got)
	}

	eng.window.Push(now+2, 1.0020)
	eng.Cycle(now + 2)
	if got := l.SampleCount(); got != 1 {
		t.Fatalf("retry after failed execution did not trade, count = %d", got)
	}
}

func TestReportOutcomeResolvesSample(t *testing.T) {
	now := 1000.0
	exec := executor.Func(func(signal.Side) bool { return true })
	l := learner.New(nil, 70, 80, 1000, 0)
	eng := newTestEngine(now, exec, l)

	var ev TradeEvent
	eng.OnTrade(func(e TradeEvent) { ev = e })

	eng.Cycle(now)
	if ev.SampleID == "" {
		t.Fatal("no trade event emitted")
	}
	if ev.Asset != "EUR/USD" || ev.Side != signal.SideUp {
		t.Fatalf("trade event = %+v", ev)
	}

	eng.ReportOutcome(ev.SampleID, true)
	s, found := l.Sample(ev.SampleID)
	if !found || s.Result == nil || !*s.Result {
		t.Fatalf("sample after feedback = %+v, want resolved win", s)
	}
}

func TestRecomputedThresholdsReachGate(t *testing.T) {
	now := 1000.0
	exec := executor.Func(func(signal.Side) bool { return true })
	l := learner.New(nil, 70, 80, 1, 0)

	// One settled winning Strong+agree sample swings both buckets.
	id := l.Record("EUR/USD", "UP", 82, learner.QualityStrong, true, learner.FeatureSnapshot{})
	l.Feedback(id, true)

	eng := newTestEngine(now, exec, l)
	eng.Cycle(now)

	th := eng.gate.Snapshot()
	if th.Enter != 67 || th.Aggr != 75 {
		t.Fatalf("gate thresholds = %+v, want Enter 67 Aggr 75", th)
	}
	if th.MinIntervalSec != 15 {
		t.Fatalf("min interval overwritten to %d", th.MinIntervalSec)
	}
}

func TestSetAssetResetsDecision(t *testing.T) {
	now := 1000.0
	exec := executor.Func(func(signal.Side) bool { return true })
	eng := newTestEngine(now, exec, learner.New(nil, 70, 80, 1000, 0))

	eng.Cycle(now)
	if _, ok := eng.LastDecision(); !ok {
		t.Fatal("expected a cached decision")
	}

	eng.SetAsset("GBP/USD")
	if eng.Asset() != "GBP/USD" {
		t.Fatalf("asset = %q", eng.Asset())
	}
	if _, ok := eng.LastDecision(); ok {
		t.Fatal("stale decision survived asset switch")
	}
}

func TestRecordManualSample(t *testing.T) {
	now := 1000.0
	exec := executor.Func(func(signal.Side) bool { return false })
	l := learner.New(nil, 70, 80, 1000, 0)
	eng := newTestEngine(now, exec, l)

	if _, _, ok := eng.RecordManualSample(); ok {
		t.Fatal("manual sample before any decision")
	}

	eng.Cycle(now)
	id, d, ok := eng.RecordManualSample()
	if !ok || id == "" || d.Side != signal.SideUp {
		t.Fatalf("manual sample = %q/%v/%v", id, d.Side, ok)
	}
	if got := l.SampleCount(); got != 1 {
		t.Fatalf("sample count = %d, want 1", got)
	}
}
