package system

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Runner executes systems phase by phase each tick. Systems sharing a phase
// run in registration order. A tick that takes longer than the budget is
// logged with its slowest phase.
type Runner struct {
	phases [numPhases][]System
	spent  [numPhases]time.Duration // last run of each phase
	budget time.Duration
	ticks  uint64
	slow   uint64
	log    *zap.Logger
}

// NewRunner returns a runner with the given per-tick budget; zero disables
// the slow tick check.
func NewRunner(budget time.Duration, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{budget: budget, log: log}
}

// Register adds s to its phase. A phase outside the known range is a wiring
// bug and panics.
func (r *Runner) Register(s System) {
	p := s.Phase()
	if p < 0 || p >= numPhases {
		panic(fmt.Sprintf("system: %T registered with invalid phase %d", s, int(p)))
	}
	r.phases[p] = append(r.phases[p], s)
}

func (r *Runner) Len() int {
	n := 0
	for _, ss := range r.phases {
		n += len(ss)
	}
	return n
}

func (r *Runner) Tick(dt time.Duration) {
	start := time.Now()
	for p := range r.phases {
		r.run(Phase(p), dt)
	}
	r.ticks++

	elapsed := time.Since(start)
	if r.budget <= 0 || elapsed <= r.budget {
		return
	}
	r.slow++
	slowest := PhaseInput
	for p := range r.spent {
		if r.spent[p] > r.spent[slowest] {
			slowest = Phase(p)
		}
	}
	r.log.Warn("tick 超出預算",
		zap.Duration("elapsed", elapsed),
		zap.Duration("budget", r.budget),
		zap.Stringer("slowest", slowest),
		zap.Uint64("tick", r.ticks),
	)
}

// TickPhase runs only the systems of one phase. The host uses it to poll
// console input between full ticks.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	if phase < 0 || phase >= numPhases {
		return
	}
	r.run(phase, dt)
}

func (r *Runner) run(p Phase, dt time.Duration) {
	if len(r.phases[p]) == 0 {
		r.spent[p] = 0
		return
	}
	start := time.Now()
	for _, s := range r.phases[p] {
		s.Update(dt)
	}
	r.spent[p] = time.Since(start)
}

// Ticks reports how many full ticks ran and how many of them overran the
// budget.
func (r *Runner) Ticks() (total, slow uint64) { return r.ticks, r.slow }
