// Package gate is the stateful gatekeeper between a directional signal
// and the execution collaborator: rate limits, anti-burst, and the
// two-tier confidence threshold live here and nowhere else.
package gate

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/signalforge/pobot/internal/signal"
)

// Deny reasons, surfaced as structured strings, never errors.
const (
	ReasonDisabled       = "disabled"
	ReasonCooldown       = "cooldown"
	ReasonAntiBurst      = "anti_burst"
	ReasonBelowThreshold = "below_threshold"
)

// Thresholds are the confidence bounds the gate checks against.
// The learner overwrites them wholesale; the gate only reads them.
//
// Naming note: a corroborated ("strong") signal is checked against the
// easier Enter bound, an uncorroborated one must clear the harder Aggr
// bound. A strong signal already passed extra corroboration upstream.
type Thresholds struct {
	Enter          int // 1..99
	Aggr           int // 1..99
	MinIntervalSec int // >= 1
}

// Verdict is the gate's answer to an attempt.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Gate enforces trade pacing for one asset. Attempt is called from the
// single decision loop; SetThresholds and SetEnabled may come from the
// operator surface, so everything is behind one mutex.
type Gate struct {
	mu sync.Mutex

	enabled      bool
	thresholds   Thresholds
	antiBurstSec int

	lastTradeTS float64
	lastSide    signal.Side
}

// New creates a gate. enabled reflects the external auto-trade toggle.
func New(th Thresholds, antiBurstSec int, enabled bool) *Gate {
	return &Gate{
		enabled:      enabled,
		thresholds:   th,
		antiBurstSec: antiBurstSec,
		lastSide:     signal.SideWait,
	}
}

// Attempt decides whether a proposed trade may proceed right now.
// strongOK marks a corroborated signal. Allowing does NOT advance the
// rate-limit state: the caller invokes the executor and reports back
// through RecordTrade only on success, so a failed execution leaves a
// retry possible on the next cycle.
func (g *Gate) Attempt(side signal.Side, confidence int, strongOK bool, now float64) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	deny := func(reason string) Verdict {
		log.Debug().
			Str("side", side.String()).
			Int("confidence", confidence).
			Str("reason", reason).
			Msg("🚫 trade denied")
		return Verdict{Reason: reason}
	}

	if !g.enabled {
		return deny(ReasonDisabled)
	}
	if g.lastTradeTS > 0 && now-g.lastTradeTS < float64(g.thresholds.MinIntervalSec) {
		return deny(ReasonCooldown)
	}
	if side == g.lastSide && g.lastTradeTS > 0 && now-g.lastTradeTS < float64(g.antiBurstSec) {
		return deny(ReasonAntiBurst)
	}

	required := g.thresholds.Aggr
	if strongOK {
		required = g.thresholds.Enter
	}
	if confidence < required {
		return deny(ReasonBelowThreshold)
	}

	return Verdict{Allowed: true}
}

// RecordTrade advances the rate-limit state after a successful
// execution.
func (g *Gate) RecordTrade(side signal.Side, now float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastTradeTS = now
	g.lastSide = side
}

// SetThresholds replaces the confidence bounds wholesale.
func (g *Gate) SetThresholds(th Thresholds) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thresholds = th
	log.Info().
		Int("enter", th.Enter).
		Int("aggr", th.Aggr).
		Int("min_interval", th.MinIntervalSec).
		Msg("🎚️ gate thresholds updated")
}

// Snapshot returns the current thresholds.
func (g *Gate) Snapshot() Thresholds {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.thresholds
}

// SetEnabled flips the auto-trade toggle.
func (g *Gate) SetEnabled(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = v
}

// Enabled reports the auto-trade toggle.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}
