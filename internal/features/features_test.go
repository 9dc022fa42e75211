package features

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestLogReturnsBaseline(t *testing.T) {
	got := LogReturns([]float64{2, 2, 4})
	if got[0] != 0 {
		t.Fatalf("first log return must be 0, got %v", got[0])
	}
	if !almostEqual(got[2], math.Log(2), 1e-12) {
		t.Fatalf("log return = %v, want ln(2)", got[2])
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
		tol    float64
	}{
		{"short input is neutral", []float64{1, 2, 3}, 50, 0},
		{"all gains saturate high", rising(20), 100, 0.01},
		{"all losses saturate low", falling(20), 0, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RSI(tt.prices, 14)
			if !almostEqual(got, tt.want, tt.tol) {
				t.Fatalf("RSI = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRobustVolIgnoresSingleOutlier(t *testing.T) {
	steady := []float64{0.001, -0.001, 0.001, -0.001, 0.001, -0.001, 0.001}
	spiked := append(append([]float64{}, steady...), 5.0)
	v1 := RobustVol(steady)
	v2 := RobustVol(spiked)
	if v2 > v1*3 {
		t.Fatalf("one outlier inflated robust vol too much: %v -> %v", v1, v2)
	}
}

func TestRobustVolFloor(t *testing.T) {
	if v := RobustVol([]float64{0, 0, 0, 0}); v < 1e-9 {
		t.Fatalf("robust vol must stay above epsilon, got %v", v)
	}
	if v := RobustVol(nil); v < 1e-9 {
		t.Fatalf("robust vol of empty input must stay above epsilon, got %v", v)
	}
}

func TestPersistence(t *testing.T) {
	allUp := []float64{1, 1, 1, 1, 1, 1}
	if p := Persistence(allUp); p != 1 {
		t.Fatalf("uniform steps should be fully persistent, got %v", p)
	}
	chop := []float64{1, -1, 1, -1, 1, -1}
	if p := Persistence(chop); p != 0.5 {
		t.Fatalf("alternating steps should be half persistent, got %v", p)
	}
	if p := Persistence([]float64{1, 2}); p != 0.5 {
		t.Fatalf("short input defaults to 0.5, got %v", p)
	}
}

func TestImbalance(t *testing.T) {
	if v := Imbalance([]float64{1, 1, 1, -1}); !almostEqual(v, 0.5, 1e-12) {
		t.Fatalf("imbalance = %v, want 0.5", v)
	}
	if v := Imbalance(nil); v != 0 {
		t.Fatalf("empty imbalance = %v, want 0", v)
	}
}

func TestBreakout(t *testing.T) {
	if b := Breakout([]float64{1, 2, 3, 4}); b != 1 {
		t.Fatalf("fresh high should flag +1, got %d", b)
	}
	if b := Breakout([]float64{4, 3, 2, 1}); b != -1 {
		t.Fatalf("fresh low should flag -1, got %d", b)
	}
	if b := Breakout([]float64{1, 5, 3}); b != 0 {
		t.Fatalf("inside bar should flag 0, got %d", b)
	}
}

func TestRegimeClassification(t *testing.T) {
	tests := []struct {
		name  string
		slope float64
		vol   float64
		pers  float64
		want  Regime
	}{
		{"strong slope with persistence", 1e-3, 1e-4, 0.8, RegimeTrend},
		{"high vol no direction", 1e-5, 5e-3, 0.5, RegimeShock},
		{"flat and calm", 1e-5, 1e-5, 0.5, RegimeRange},
		{"slope without persistence", 1e-3, 1e-4, 0.4, RegimeRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.slope, tt.vol, tt.pers); got != tt.want {
				t.Fatalf("classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractFlatWindow(t *testing.T) {
	prices := make([]float64, 12)
	for i := range prices {
		prices[i] = 1.2345
	}
	fs := Extract(prices, Params{AlphaFast: 0.4, AlphaSlow: 0.14, RSIPeriod: 14})
	if fs.RobustVol > 1e-8 {
		t.Fatalf("flat window should have epsilon vol, got %v", fs.RobustVol)
	}
	if fs.TrendSlope != 0 {
		t.Fatalf("flat window should have zero slope, got %v", fs.TrendSlope)
	}
	if fs.Regime != RegimeRange {
		t.Fatalf("flat window regime = %v, want RANGE", fs.Regime)
	}
}

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func falling(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 - float64(i)
	}
	return out
}
