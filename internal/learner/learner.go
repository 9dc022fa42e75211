// Package learner keeps the outcome history of gated signals and
// adapts the gate's confidence thresholds from it. The sample log is
// append-only; feedback mutates each sample exactly once.
package learner

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Quality is the coarse signal classification, fixed at record time.
type Quality int

const (
	QualityWeak Quality = iota
	QualityMedium
	QualityStrong
)

func (q Quality) String() string {
	switch q {
	case QualityStrong:
		return "Strong"
	case QualityMedium:
		return "Medium"
	default:
		return "Weak"
	}
}

// MarshalJSON keeps the snapshot human-readable.
func (q Quality) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

func (q *Quality) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "Strong":
		*q = QualityStrong
	case "Medium":
		*q = QualityMedium
	case "Weak":
		*q = QualityWeak
	default:
		return fmt.Errorf("unknown quality %q", s)
	}
	return nil
}

// Classify labels a signal from its confidence and corroboration.
// Pure classification, independent of the later outcome.
func Classify(confidence int, alignBonus float64) Quality {
	if confidence >= 75 || alignBonus >= 0.2 {
		return QualityStrong
	}
	if confidence >= 65 {
		return QualityMedium
	}
	return QualityWeak
}

// FeatureSnapshot is the slice of diagnostics worth keeping per sample.
type FeatureSnapshot struct {
	RSI         float64 `json:"rsi"`
	EMASpread   float64 `json:"ema_spread"`
	Persistence float64 `json:"persist"`
	Imbalance   float64 `json:"tick_imb"`
	AlignBonus  float64 `json:"align_bonus"`
}

// Sample is one gated signal attempt awaiting (or carrying) an outcome.
type Sample struct {
	ID           string          `json:"id"`
	TS           float64         `json:"ts"`
	Asset        string          `json:"asset"`
	Side         string          `json:"side"`
	Confidence   int             `json:"conf"`
	Quality      Quality         `json:"quality"`
	MultiTFAgree bool            `json:"agree3"`
	Features     FeatureSnapshot `json:"features"`
	Result       *bool           `json:"result"`
}

// Store is the opaque-blob persistence collaborator. Load returns
// (nil, nil) when no snapshot exists yet.
type Store interface {
	Load() ([]byte, error)
	Save([]byte) error
}

// Thresholds bounds, mirroring the gate's hard floor/cap rules.
const (
	enterFloor = 50
	enterCap   = 90
	aggrFloor  = 60
	aggrCap    = 95

	enterEaseStep  = 3
	enterRaiseStep = 5
	aggrEaseStep   = 5
	aggrRaiseStep  = 5

	strongEaseWR  = 65.0
	strongRaiseWR = 50.0
	agreeEaseWR   = 70.0
	agreeRaiseWR  = 50.0
)

// Stats are the per-bucket win rates for the status surface.
type Stats struct {
	StrongWinPct float64
	StrongTotal  int
	MediumWinPct float64
	MediumTotal  int
	WeakWinPct   float64
	WeakTotal    int
	AgreeWinPct  float64
	AgreeTotal   int
	Pending      int
}

type snapshot struct {
	Samples        []Sample `json:"samples"`
	ThresholdEnter int      `json:"threshold_enter"`
	ThresholdAggr  int      `json:"threshold_aggr"`
	LastUpdateTS   float64  `json:"last_update_ts"`
}

// Learner is safe for concurrent Record/Feedback/recompute callers;
// the decision loop and the operator feedback handler overlap.
type Learner struct {
	mu sync.Mutex

	store          Store
	samples        []Sample
	enter          int
	aggr           int
	recomputeEvery int
	maxSamples     int

	evalCount int
	savePend  bool // last save failed; retry on the next mutation
}

// New creates a learner with default thresholds. Call Load to pick up
// a persisted history.
func New(store Store, baseEnter, baseAggr, recomputeEvery, maxSamples int) *Learner {
	if recomputeEvery < 1 {
		recomputeEvery = 1
	}
	return &Learner{
		store:          store,
		enter:          baseEnter,
		aggr:           baseAggr,
		recomputeEvery: recomputeEvery,
		maxSamples:     maxSamples,
	}
}

// Load restores state from the store. Any failure leaves the zero
// state in place: empty history, default thresholds.
func (l *Learner) Load() {
	if l.store == nil {
		return
	}
	blob, err := l.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ learner snapshot load failed, starting fresh")
		return
	}
	if blob == nil {
		return
	}
	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		log.Warn().Err(err).Msg("⚠️ learner snapshot corrupt, starting fresh")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = snap.Samples
	if snap.ThresholdEnter > 0 {
		l.enter = snap.ThresholdEnter
	}
	if snap.ThresholdAggr > 0 {
		l.aggr = snap.ThresholdAggr
	}
	log.Info().
		Int("samples", len(l.samples)).
		Int("enter", l.enter).
		Int("aggr", l.aggr).
		Msg("🧠 learner history restored")
}

// Record appends a sample with an unset result and returns its id for
// later feedback.
func (l *Learner) Record(asset string, side string, confidence int, quality Quality, agree bool, feat FeatureSnapshot) string {
	s := Sample{
		ID:           uuid.NewString(),
		TS:           float64(time.Now().UnixNano()) / 1e9,
		Asset:        asset,
		Side:         side,
		Confidence:   confidence,
		Quality:      quality,
		MultiTFAgree: agree,
		Features:     feat,
	}

	l.mu.Lock()
	l.samples = append(l.samples, s)
	retry := l.savePend
	l.mu.Unlock()

	if retry {
		l.persist()
	}
	return s.ID
}

// Feedback sets a sample's result. The first reported value is
// authoritative; repeats and unknown ids are no-ops. Triggers a save.
func (l *Learner) Feedback(id string, success bool) {
	l.mu.Lock()
	found := false
	for i := range l.samples {
		if l.samples[i].ID != id {
			continue
		}
		if l.samples[i].Result != nil {
			log.Debug().Str("sample", id).Msg("feedback for resolved sample ignored")
			l.mu.Unlock()
			return
		}
		v := success
		l.samples[i].Result = &v
		found = true
		break
	}
	l.mu.Unlock()

	if !found {
		log.Debug().Str("sample", id).Msg("feedback for unknown sample ignored")
		return
	}
	l.persist()
}

// MaybeRecompute counts one evaluation cycle and, on every Nth, runs
// the threshold recomputation from the given base bounds. The debounce
// keeps small-sample noise from oscillating the thresholds.
func (l *Learner) MaybeRecompute(baseEnter, baseAggr int) (enter, aggr int, ran bool) {
	l.mu.Lock()
	l.evalCount++
	due := l.evalCount%l.recomputeEvery == 0
	l.mu.Unlock()

	if !due {
		e, a := l.Thresholds()
		return e, a, false
	}
	enter, aggr = l.RecomputeThresholds(baseEnter, baseAggr)
	return enter, aggr, true
}

// RecomputeThresholds derives new bounds from the outcome history.
// A bucket with no resolved samples leaves its threshold unchanged:
// an undefined win-rate must never perturb thresholds.
func (l *Learner) RecomputeThresholds(baseEnter, baseAggr int) (int, int) {
	l.mu.Lock()

	strongHit, strongTot := 0, 0
	agreeHit, agreeTot := 0, 0
	for _, s := range l.samples {
		if s.Result == nil {
			continue
		}
		if s.Quality == QualityStrong {
			strongTot++
			if *s.Result {
				strongHit++
			}
		}
		if s.MultiTFAgree {
			agreeTot++
			if *s.Result {
				agreeHit++
			}
		}
	}

	newEnter := l.enter
	if strongTot > 0 {
		wr := 100 * float64(strongHit) / float64(strongTot)
		switch {
		case wr >= strongEaseWR:
			newEnter = max(enterFloor, baseEnter-enterEaseStep)
		case wr < strongRaiseWR:
			newEnter = min(enterCap, baseEnter+enterRaiseStep)
		default:
			newEnter = baseEnter
		}
	}

	newAggr := l.aggr
	if agreeTot > 0 {
		wr := 100 * float64(agreeHit) / float64(agreeTot)
		switch {
		case wr >= agreeEaseWR:
			newAggr = max(aggrFloor, baseAggr-aggrEaseStep)
		case wr < agreeRaiseWR:
			newAggr = min(aggrCap, baseAggr+aggrRaiseStep)
		default:
			newAggr = baseAggr
		}
	}

	changed := newEnter != l.enter || newAggr != l.aggr
	l.enter = newEnter
	l.aggr = newAggr
	l.mu.Unlock()

	if changed {
		log.Info().
			Int("enter", newEnter).
			Int("aggr", newAggr).
			Msg("🧠 thresholds adapted from outcome history")
		l.persist()
	}
	return newEnter, newAggr
}

// Thresholds returns the current bounds.
func (l *Learner) Thresholds() (enter, aggr int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enter, l.aggr
}

// SampleCount returns the size of the in-memory log.
func (l *Learner) SampleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.samples)
}

// Sample returns a copy of the sample with the given id.
func (l *Learner) Sample(id string) (Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.samples {
		if s.ID == id {
			return s, true
		}
	}
	return Sample{}, false
}

// Summarize computes per-bucket win rates for the status surface.
func (l *Learner) Summarize() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var st Stats
	hit := [3]int{}
	tot := [3]int{}
	agreeHit, agreeTot := 0, 0
	for _, s := range l.samples {
		if s.Result == nil {
			st.Pending++
			continue
		}
		tot[s.Quality]++
		if *s.Result {
			hit[s.Quality]++
		}
		if s.MultiTFAgree {
			agreeTot++
			if *s.Result {
				agreeHit++
			}
		}
	}
	pct := func(h, t int) float64 {
		if t == 0 {
			return 0
		}
		return 100 * float64(h) / float64(t)
	}
	st.StrongWinPct, st.StrongTotal = pct(hit[QualityStrong], tot[QualityStrong]), tot[QualityStrong]
	st.MediumWinPct, st.MediumTotal = pct(hit[QualityMedium], tot[QualityMedium]), tot[QualityMedium]
	st.WeakWinPct, st.WeakTotal = pct(hit[QualityWeak], tot[QualityWeak]), tot[QualityWeak]
	st.AgreeWinPct, st.AgreeTotal = pct(agreeHit, agreeTot), agreeTot
	return st
}

// persist serializes and saves the state. Failures are non-fatal: the
// save is retried on the next mutation, the in-memory state is intact.
func (l *Learner) persist() {
	if l.store == nil {
		return
	}

	l.mu.Lock()
	kept := l.samples
	if l.maxSamples > 0 && len(kept) > l.maxSamples {
		kept = kept[len(kept)-l.maxSamples:]
	}
	snap := snapshot{
		Samples:        kept,
		ThresholdEnter: l.enter,
		ThresholdAggr:  l.aggr,
		LastUpdateTS:   float64(time.Now().UnixNano()) / 1e9,
	}
	blob, err := json.Marshal(snap)
	if err != nil {
		l.mu.Unlock()
		log.Error().Err(err).Msg("learner snapshot marshal failed")
		return
	}
	l.mu.Unlock()

	if err := l.store.Save(blob); err != nil {
		l.mu.Lock()
		l.savePend = true
		l.mu.Unlock()
		log.Warn().Err(err).Msg("⚠️ learner snapshot save failed, will retry")
		return
	}
	l.mu.Lock()
	l.savePend = false
	l.mu.Unlock()
}
