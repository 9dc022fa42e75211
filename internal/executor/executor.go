// Package executor defines the execution collaborator boundary. The
// decision core only needs a side in and a success/failure out;
// whatever drives the actual platform lives behind this interface.
package executor

import (
	"github.com/rs/zerolog/log"

	"github.com/signalforge/pobot/internal/signal"
)

// Executor places a trade in the given direction and reports whether
// it went through. Implementations must be bounded-latency; the
// decision loop treats false (or a timeout mapped to false) as a
// failed execution and leaves its rate-limit state untouched.
type Executor interface {
	Execute(side signal.Side) bool
}

// DryRun is an executor that only logs. Used by default and whenever
// DRY_RUN is set.
type DryRun struct{}

func NewDryRun() *DryRun { return &DryRun{} }

func (d *DryRun) Execute(side signal.Side) bool {
	log.Info().Str("side", side.String()).Msg("🧪 DRY RUN trade")
	return true
}

// Func adapts a plain function to the Executor interface.
type Func func(side signal.Side) bool

func (f Func) Execute(side signal.Side) bool { return f(side) }
