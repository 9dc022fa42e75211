// Package trading runs the closed loop: snapshot the tick window,
// decide, gate, execute, record, and feed outcomes back into the
// learner. One Engine instance owns the signal state for one asset.
package trading

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/signalforge/pobot/internal/config"
	"github.com/signalforge/pobot/internal/executor"
	"github.com/signalforge/pobot/internal/gate"
	"github.com/signalforge/pobot/internal/learner"
	"github.com/signalforge/pobot/internal/signal"
	"github.com/signalforge/pobot/internal/storage"
	"github.com/signalforge/pobot/internal/ticks"
)

// The snapshot falls back to this many raw ticks during feed gaps.
const minWindowCount = 12

// TradeEvent describes an executed trade for notification surfaces.
type TradeEvent struct {
	SampleID   string
	Asset      string
	Side       signal.Side
	Confidence int
	Quality    learner.Quality
	DryRun     bool
}

// Engine is the per-asset decision loop.
type Engine struct {
	cfg     *config.Config
	window  *ticks.Window
	sig     *signal.Engine
	gate    *gate.Gate
	learner *learner.Learner
	exec    executor.Executor
	db      *storage.Database

	mu           sync.RWMutex
	asset        string
	lastDecision signal.Decision
	hasDecision  bool

	onTrade func(TradeEvent)

	running bool
	stopCh  chan struct{}
}

// NewEngine wires the loop together. db may be nil (no journal).
func NewEngine(
	cfg *config.Config,
	window *ticks.Window,
	sig *signal.Engine,
	g *gate.Gate,
	l *learner.Learner,
	exec executor.Executor,
	db *storage.Database,
) *Engine {
	return &Engine{
		cfg:     cfg,
		window:  window,
		sig:     sig,
		gate:    g,
		learner: l,
		exec:    exec,
		db:      db,
		asset:   cfg.Asset,
		stopCh:  make(chan struct{}),
	}
}

// OnTrade registers a callback invoked after each executed trade.
// Must be set before Start.
func (e *Engine) OnTrade(fn func(TradeEvent)) {
	e.onTrade = fn
}

// Start launches the periodic decision loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	go e.loop()
	log.Info().
		Str("asset", e.Asset()).
		Dur("interval", e.cfg.DecideInterval).
		Msg("🔁 decision loop started")
}

// Stop halts the loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()
	close(e.stopCh)
}

func (e *Engine) loop() {
	t := time.NewTicker(e.cfg.DecideInterval)
	defer t.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-t.C:
			e.Cycle(ticks.Now())
		}
	}
}

// Cycle runs one decision pass at the given wall-clock time. Exposed
// for deterministic tests; in production only the loop goroutine calls
// it, so the signal engine stays single-owner.
func (e *Engine) Cycle(now float64) signal.Decision {
	prices := e.window.Snapshot(e.cfg.WindowSec, now, minWindowCount)
	d := e.sig.Decide(prices, now)

	e.mu.Lock()
	e.lastDecision = d
	e.hasDecision = true
	asset := e.asset
	e.mu.Unlock()

	if d.Side != signal.SideWait {
		e.tryTrade(asset, d, now)
	}

	// Threshold adaptation is debounced inside the learner; every Nth
	// cycle the recomputed bounds are pushed into the gate.
	if enter, aggr, ran := e.learner.MaybeRecompute(e.cfg.BaseEnter, e.cfg.BaseAggr); ran {
		e.gate.SetThresholds(gate.Thresholds{
			Enter:          enter,
			Aggr:           aggr,
			MinIntervalSec: e.cfg.MinIntervalSec,
		})
	}

	return d
}

func (e *Engine) tryTrade(asset string, d signal.Decision, now float64) {
	quality := learner.Classify(d.Confidence, d.Diagnostics.AlignBonus)
	strongOK := quality == learner.QualityStrong

	v := e.gate.Attempt(d.Side, d.Confidence, strongOK, now)
	if !v.Allowed {
		return
	}

	if !e.exec.Execute(d.Side) {
		// Rate-limit state stays untouched so the next cycle may retry
		// under the same gating rules.
		log.Warn().Str("side", d.Side.String()).Msg("❌ execution failed, gate state unchanged")
		return
	}
	e.gate.RecordTrade(d.Side, now)

	sampleID := e.recordSample(asset, d, quality)

	log.Info().
		Str("asset", asset).
		Str("side", d.Side.String()).
		Int("confidence", d.Confidence).
		Str("quality", quality.String()).
		Str("sample", sampleID).
		Msg("✅ trade placed")

	if e.onTrade != nil {
		e.onTrade(TradeEvent{
			SampleID:   sampleID,
			Asset:      asset,
			Side:       d.Side,
			Confidence: d.Confidence,
			Quality:    quality,
			DryRun:     e.cfg.DryRun,
		})
	}
}

// RecordManualSample records the current decision as a sample without
// placing a trade, so a manually taken signal can still receive
// feedback. Returns ok=false while no directional decision exists.
func (e *Engine) RecordManualSample() (string, signal.Decision, bool) {
	e.mu.RLock()
	d := e.lastDecision
	has := e.hasDecision
	asset := e.asset
	e.mu.RUnlock()

	if !has || d.Side == signal.SideWait {
		return "", d, false
	}
	quality := learner.Classify(d.Confidence, d.Diagnostics.AlignBonus)
	return e.recordSample(asset, d, quality), d, true
}

func (e *Engine) recordSample(asset string, d signal.Decision, quality learner.Quality) string {
	sampleID := e.learner.Record(asset, d.Side.String(), d.Confidence, quality, d.Diagnostics.MultiTFAgree, learner.FeatureSnapshot{
		RSI:         d.Diagnostics.RSI,
		EMASpread:   d.Diagnostics.EMASpread,
		Persistence: d.Diagnostics.Persistence,
		Imbalance:   d.Diagnostics.Imbalance,
		AlignBonus:  d.Diagnostics.AlignBonus,
	})

	if e.db != nil {
		err := e.db.SaveTrade(&storage.TradeLog{
			SampleID:   sampleID,
			Asset:      asset,
			Side:       d.Side.String(),
			Confidence: d.Confidence,
			Quality:    quality.String(),
			Amount:     e.cfg.TradeAmount,
			DryRun:     e.cfg.DryRun,
		})
		if err != nil {
			log.Warn().Err(err).Msg("trade journal write failed")
		}
	}
	return sampleID
}

// ReportOutcome is the feedback boundary: the operator (or a settler)
// reports whether a recorded sample won.
func (e *Engine) ReportOutcome(sampleID string, success bool) {
	e.learner.Feedback(sampleID, success)
	if e.db != nil {
		if err := e.db.MarkTradeOutcome(sampleID, success); err != nil {
			log.Warn().Err(err).Msg("trade journal outcome update failed")
		}
	}
}

// LastDecision returns the most recent decision, if any.
func (e *Engine) LastDecision() (signal.Decision, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastDecision, e.hasDecision
}

// Asset returns the asset this engine currently trades.
func (e *Engine) Asset() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.asset
}

// SetAsset switches the traded asset and resets the signal state;
// scores from one instrument mean nothing on another.
func (e *Engine) SetAsset(asset string) {
	e.mu.Lock()
	e.asset = asset
	e.hasDecision = false
	e.mu.Unlock()
	e.sig.Reset()
	log.Info().Str("asset", asset).Msg("🎯 asset switched")
}
