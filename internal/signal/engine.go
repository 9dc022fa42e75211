// Package signal holds the decision engine: it turns a price snapshot
// into an UP/DOWN/WAIT call with a confidence score, with hysteresis
// and cooldown guards so the emitted direction does not flicker.
package signal

import (
	"math"

	"github.com/signalforge/pobot/internal/features"
)

// Side is the emitted direction.
type Side int

const (
	SideWait Side = iota
	SideUp
	SideDown
)

func (s Side) String() string {
	switch s {
	case SideUp:
		return "UP"
	case SideDown:
		return "DOWN"
	default:
		return "WAIT"
	}
}

// Deny/skip reasons surfaced in Decision.Reason.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonCooldown         = "cooldown"
	ReasonLowConfidence    = "low_confidence"
)

// Config carries every tunable of the scoring formula. The constants
// were calibrated by iteration, so none of them live as literals in
// the algorithm itself.
type Config struct {
	AlphaFast      float64
	AlphaSlow      float64
	RSIPeriod      int
	RSIBull        float64
	RSIBear        float64
	NeutralRSILow  float64
	NeutralRSIHigh float64
	WeightSpread   float64
	WeightSlope    float64
	VolGuard       float64
	Hysteresis     float64
	CooldownSec    float64
	ConfGain       float64
	ConfEWMABeta   float64
	ConfMin        int
	ConfMax        int
	MinTicks       int

	// Soft penalties and alignment bonuses, in normalized score space.
	NeutralRSIDamp float64 // score multiplier inside the neutral RSI band
	SleepyVolDamp  float64 // score multiplier below the vol guard
	RSIBias        float64 // additive bias when RSI clears bull/bear bounds
	AgreeBonus     float64 // all three horizons concur
	BreakoutBonus  float64 // fresh window extreme in the candidate direction
	ImbalanceBonus float64 // strong tick imbalance in the candidate direction
	MaxAlignBonus  float64 // aggregate bonus cap
}

// DefaultConfig returns the calibrated constants.
func DefaultConfig() Config {
	return Config{
		AlphaFast:      0.40,
		AlphaSlow:      0.14,
		RSIPeriod:      14,
		RSIBull:        55,
		RSIBear:        45,
		NeutralRSILow:  48,
		NeutralRSIHigh: 52,
		WeightSpread:   0.6,
		WeightSlope:    0.4,
		VolGuard:       8e-5,
		Hysteresis:     0.08,
		CooldownSec:    12,
		ConfGain:       30,
		ConfEWMABeta:   0.65,
		ConfMin:        55,
		ConfMax:        96,
		MinTicks:       8,

		NeutralRSIDamp: 0.75,
		SleepyVolDamp:  0.85,
		RSIBias:        0.05,
		AgreeBonus:     0.10,
		BreakoutBonus:  0.06,
		ImbalanceBonus: 0.06,
		MaxAlignBonus:  0.20,
	}
}

// Diagnostics is everything downstream consumers (quality labeling,
// the learner, the status surface) need about a decision.
type Diagnostics struct {
	N            int
	PriceNow     float64
	RobustVol    float64
	RSI          float64
	EMASpread    float64
	TrendSlope   float64
	Norm         float64
	Persistence  float64
	Imbalance    float64
	AlignBonus   float64
	Breakout     int
	Regime       features.Regime
	MultiTFAgree bool
}

// Decision is the engine's per-cycle output.
type Decision struct {
	Side        Side
	Confidence  int
	Reason      string
	Diagnostics Diagnostics
}

// Engine is the signal state machine. One instance per tradable asset,
// owned and called by a single decision loop; it is not safe for
// concurrent callers.
type Engine struct {
	cfg Config

	lastSide     Side    // post-hysteresis direction
	lastNorm     float64 // normalized score the direction was taken at
	lastEmitted  Side    // last non-WAIT direction actually emitted
	lastSignalTS float64
	confEWMA     float64

	// Decide is idempotent at a frozen clock: the last output is
	// replayed instead of re-running the state updates.
	lastEvalTS   float64
	lastEvalN    int
	lastEvalPx   float64
	lastDecision Decision
}

// NewEngine creates an engine in the initial WAIT state.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		lastSide: SideWait,
		confEWMA: 50,
	}
}

// Decide runs one evaluation cycle over an ordered price snapshot.
// now is Unix seconds; cooldown and rate guards compare wall-clock
// values, nothing sleeps.
func (e *Engine) Decide(prices []float64, now float64) Decision {
	if now == e.lastEvalTS && len(prices) == e.lastEvalN && (len(prices) == 0 || prices[len(prices)-1] == e.lastEvalPx) {
		return e.lastDecision
	}

	d := e.evaluate(prices, now)

	e.lastEvalTS = now
	e.lastEvalN = len(prices)
	if len(prices) > 0 {
		e.lastEvalPx = prices[len(prices)-1]
	}
	e.lastDecision = d
	return d
}

func (e *Engine) evaluate(prices []float64, now float64) Decision {
	if len(prices) < e.cfg.MinTicks {
		return Decision{
			Side:        SideWait,
			Confidence:  50,
			Reason:      ReasonInsufficientData,
			Diagnostics: Diagnostics{N: len(prices)},
		}
	}

	fs := features.Extract(prices, features.Params{
		AlphaFast: e.cfg.AlphaFast,
		AlphaSlow: e.cfg.AlphaSlow,
		RSIPeriod: e.cfg.RSIPeriod,
	})

	raw := e.cfg.WeightSpread*fs.EMASpread + e.cfg.WeightSlope*fs.TrendSlope
	norm := math.Abs(raw) / fs.RobustVol

	// Soft penalties: neutral RSI means no edge, sleepy vol means the
	// move is probably noise.
	if fs.RSI >= e.cfg.NeutralRSILow && fs.RSI <= e.cfg.NeutralRSIHigh {
		norm *= e.cfg.NeutralRSIDamp
	}
	if fs.RobustVol < e.cfg.VolGuard {
		norm *= e.cfg.SleepyVolDamp
	}

	// Gentle RSI bias. Never flips the side, only shades confidence.
	bias := 0.0
	if fs.RSI >= e.cfg.RSIBull {
		bias = e.cfg.RSIBias
	} else if fs.RSI <= e.cfg.RSIBear {
		bias = -e.cfg.RSIBias
	}

	cand := directionFromScore(raw, prices)
	agree := e.multiTFAgree(prices, cand)
	alignBonus := e.alignmentBonus(fs, cand, agree)

	side, normAdj := e.applyHysteresis(cand, norm)

	diag := Diagnostics{
		N:            len(prices),
		PriceNow:     prices[len(prices)-1],
		RobustVol:    fs.RobustVol,
		RSI:          fs.RSI,
		EMASpread:    fs.EMASpread,
		TrendSlope:   fs.TrendSlope,
		Norm:         normAdj,
		Persistence:  fs.Persistence,
		Imbalance:    fs.Imbalance,
		AlignBonus:   alignBonus,
		Breakout:     fs.Breakout,
		Regime:       fs.Regime,
		MultiTFAgree: agree,
	}

	// Cooldown: a reversal against the last emitted direction has to
	// wait out the cooldown window.
	if e.lastSignalTS > 0 && now-e.lastSignalTS < e.cfg.CooldownSec &&
		e.lastEmitted != SideWait && side != e.lastEmitted {
		return Decision{Side: SideWait, Confidence: 52, Reason: ReasonCooldown, Diagnostics: diag}
	}

	confRaw := 50 + e.cfg.ConfGain*math.Tanh(normAdj+bias+alignBonus)
	e.confEWMA = e.cfg.ConfEWMABeta*e.confEWMA + (1-e.cfg.ConfEWMABeta)*confRaw

	conf := int(math.Round(e.confEWMA))
	if conf > e.cfg.ConfMax {
		conf = e.cfg.ConfMax
	}
	if conf < 0 {
		conf = 0
	}

	if conf < e.cfg.ConfMin {
		return Decision{Side: SideWait, Confidence: conf, Reason: ReasonLowConfidence, Diagnostics: diag}
	}

	e.lastSignalTS = now
	e.lastEmitted = side
	return Decision{Side: side, Confidence: conf, Diagnostics: diag}
}

// applyHysteresis resists flipping: a new direction has to beat the
// score the previous direction was taken at by the hysteresis band,
// otherwise the previous direction keeps being emitted at its score.
func (e *Engine) applyHysteresis(cand Side, norm float64) (Side, float64) {
	if e.lastSide != SideWait && cand != e.lastSide {
		if norm < e.lastNorm+e.cfg.Hysteresis {
			return e.lastSide, e.lastNorm
		}
	}
	e.lastSide = cand
	e.lastNorm = norm
	return cand, norm
}

// multiTFAgree checks whether the short, medium and long horizon
// sub-windows all lean in the candidate direction.
func (e *Engine) multiTFAgree(prices []float64, cand Side) bool {
	if cand == SideWait || len(prices) < e.cfg.MinTicks {
		return false
	}
	horizons := [3]int{len(prices) / 3, 2 * len(prices) / 3, len(prices)}
	for _, n := range horizons {
		if n < 3 {
			return false
		}
		sub := prices[len(prices)-n:]
		ch := features.LogReturns(sub)
		raw := e.cfg.WeightSpread*(features.EMAAlpha(ch, e.cfg.AlphaFast)-features.EMAAlpha(ch, e.cfg.AlphaSlow)) +
			e.cfg.WeightSlope*features.TrendSlope(ch)
		if directionOf(raw) != cand {
			return false
		}
	}
	return true
}

// alignmentBonus sums the corroboration bonuses, capped in aggregate.
func (e *Engine) alignmentBonus(fs features.Set, cand Side, agree bool) float64 {
	if cand == SideWait {
		return 0
	}
	bonus := 0.0
	if agree {
		bonus += e.cfg.AgreeBonus
	}
	if (cand == SideUp && fs.Breakout > 0) || (cand == SideDown && fs.Breakout < 0) {
		bonus += e.cfg.BreakoutBonus
	}
	if (cand == SideUp && fs.Imbalance >= 0.5) || (cand == SideDown && fs.Imbalance <= -0.5) {
		bonus += e.cfg.ImbalanceBonus
	}
	if bonus > e.cfg.MaxAlignBonus {
		bonus = e.cfg.MaxAlignBonus
	}
	return bonus
}

// Reset clears the engine back to its initial state.
func (e *Engine) Reset() {
	e.lastSide = SideWait
	e.lastNorm = 0
	e.lastEmitted = SideWait
	e.lastSignalTS = 0
	e.confEWMA = 50
	e.lastEvalTS = 0
	e.lastEvalN = 0
	e.lastEvalPx = 0
	e.lastDecision = Decision{}
}

func directionFromScore(score float64, prices []float64) Side {
	if d := directionOf(score); d != SideWait {
		return d
	}
	// Tie-break on the last two raw prices.
	if len(prices) >= 2 && prices[len(prices)-1] >= prices[len(prices)-2] {
		return SideUp
	}
	return SideDown
}

func directionOf(score float64) Side {
	if score > 0 {
		return SideUp
	}
	if score < 0 {
		return SideDown
	}
	return SideWait
}
