// Package features turns a price snapshot into the derived values the
// signal engine scores on. Everything here is pure and stateless.
package features

import (
	"math"
	"sort"
)

// Regime is a coarse market classification.
type Regime int

const (
	RegimeRange Regime = iota
	RegimeTrend
	RegimeShock
)

func (r Regime) String() string {
	switch r {
	case RegimeTrend:
		return "TREND"
	case RegimeShock:
		return "SHOCK"
	default:
		return "RANGE"
	}
}

// Regime classification constants. These are calibration values,
// never adapted at runtime (adaptation only touches gate thresholds).
const (
	shockVolFloor   = 3e-3 // robust vol above this with no slope = shock
	shockSlopeBand  = 1e-3
	trendSlopeFloor = 6e-4
	trendPersFloor  = 0.6

	epsVol = 1e-9
	epsLog = 1e-12
)

// Set is the per-cycle feature vector. Recomputed every decision cycle,
// never persisted.
type Set struct {
	EMASpread   float64
	TrendSlope  float64
	RSI         float64
	RobustVol   float64
	Persistence float64
	Imbalance   float64 // fraction of up-steps minus down-steps, [-1, 1]
	Breakout    int     // +1 new window high, -1 new window low, 0 neither
	Regime      Regime
}

// Params are the fixed constants feature extraction runs with.
type Params struct {
	AlphaFast float64
	AlphaSlow float64
	RSIPeriod int
}

// Extract computes the full feature set for an ordered price snapshot.
func Extract(prices []float64, p Params) Set {
	ch := LogReturns(prices)
	df := Diffs(ch)
	vol := RobustVol(df)
	slope := TrendSlope(ch)
	pers := Persistence(df)

	return Set{
		EMASpread:   EMAAlpha(ch, p.AlphaFast) - EMAAlpha(ch, p.AlphaSlow),
		TrendSlope:  slope,
		RSI:         RSI(prices, p.RSIPeriod),
		RobustVol:   vol,
		Persistence: pers,
		Imbalance:   Imbalance(df),
		Breakout:    Breakout(prices),
		Regime:      classify(slope, vol, pers),
	}
}

// LogReturns maps prices to log-space relative to the first sample.
func LogReturns(prices []float64) []float64 {
	if len(prices) == 0 {
		return nil
	}
	base := prices[0]
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = math.Log(math.Max(epsLog, p/base))
	}
	return out
}

// Diffs returns step differences of a series.
func Diffs(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

// EMAAlpha is the single-pass recursive exponential average with a
// direct smoothing constant in (0, 1].
func EMAAlpha(series []float64, alpha float64) float64 {
	if len(series) == 0 {
		return 0
	}
	v := series[0]
	for _, x := range series {
		v = alpha*x + (1-alpha)*v
	}
	return v
}

// RSI is the classic relative-strength index over the most recent
// period+1 raw prices. Returns the neutral 50 on short input.
func RSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50
	}
	gains, losses := 0.0, 0.0
	n := len(prices)
	for i := 1; i <= period; i++ {
		d := prices[n-i] - prices[n-i-1]
		if d >= 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		avgLoss = epsVol
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// RobustVol is the MAD of step differences scaled to approximate sigma
// (1.4826 is the normal-consistency constant). Floored so callers can
// divide by it.
func RobustVol(diffs []float64) float64 {
	if len(diffs) == 0 {
		return epsVol
	}
	med := median(diffs)
	dev := make([]float64, len(diffs))
	for i, v := range diffs {
		dev[i] = math.Abs(v - med)
	}
	return math.Max(epsVol, 1.4826*median(dev))
}

// TrendSlope is the cumulative log-return over the window.
func TrendSlope(logReturns []float64) float64 {
	if len(logReturns) == 0 {
		return 0
	}
	return logReturns[len(logReturns)-1] - logReturns[0]
}

// Persistence is the fraction of step differences sharing the sign of
// the most recent one. Low persistence means directionless chop.
func Persistence(diffs []float64) float64 {
	if len(diffs) < 5 {
		return 0.5
	}
	lastSign := sign(diffs[len(diffs)-1])
	same := 0
	for _, v := range diffs {
		if sign(v) == lastSign {
			same++
		}
	}
	return float64(same) / float64(len(diffs))
}

// Imbalance is the net fraction of up-steps among all steps.
func Imbalance(diffs []float64) float64 {
	if len(diffs) == 0 {
		return 0
	}
	up, down := 0, 0
	for _, v := range diffs {
		if v > 0 {
			up++
		} else if v < 0 {
			down++
		}
	}
	return float64(up-down) / float64(len(diffs))
}

// Breakout reports whether the last price prints a fresh window
// extreme: +1 above every prior price, -1 below every prior price.
func Breakout(prices []float64) int {
	if len(prices) < 3 {
		return 0
	}
	last := prices[len(prices)-1]
	hi, lo := prices[0], prices[0]
	for _, p := range prices[:len(prices)-1] {
		if p > hi {
			hi = p
		}
		if p < lo {
			lo = p
		}
	}
	if last > hi {
		return 1
	}
	if last < lo {
		return -1
	}
	return 0
}

func classify(slope, vol, pers float64) Regime {
	if vol > shockVolFloor && math.Abs(slope) < shockSlopeBand {
		return RegimeShock
	}
	if math.Abs(slope) > trendSlopeFloor && pers >= trendPersFloor {
		return RegimeTrend
	}
	return RegimeRange
}

func median(x []float64) float64 {
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	return s[len(s)/2]
}

func sign(v float64) int {
	if v >= 0 {
		return 1
	}
	return -1
}
