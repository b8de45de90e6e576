package system_test

import (
	"testing"
	"time"

	"github.com/scenebind/host/internal/core/system"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	name  string
	phase system.Phase
	out   *[]string
	sleep time.Duration
}

func (r *recorder) Phase() system.Phase { return r.phase }
func (r *recorder) Update(_ time.Duration) {
	time.Sleep(r.sleep)
	*r.out = append(*r.out, r.name)
}

func TestRunner_PhaseOrder(t *testing.T) {
	var order []string
	r := system.NewRunner(0, zaptest.NewLogger(t))
	r.Register(&recorder{name: "cleanup", phase: system.PhaseCleanup, out: &order})
	r.Register(&recorder{name: "update-a", phase: system.PhaseUpdate, out: &order})
	r.Register(&recorder{name: "input", phase: system.PhaseInput, out: &order})
	r.Register(&recorder{name: "update-b", phase: system.PhaseUpdate, out: &order})

	r.Tick(time.Millisecond)
	assert.Equal(t, []string{"input", "update-a", "update-b", "cleanup"}, order)

	order = nil
	r.TickPhase(system.PhaseUpdate, time.Millisecond)
	assert.Equal(t, []string{"update-a", "update-b"}, order)
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, "cleanup", system.PhaseCleanup.String())

	total, slow := r.Ticks()
	assert.Equal(t, uint64(1), total)
	assert.Zero(t, slow)
}

func TestRunner_InvalidPhasePanics(t *testing.T) {
	r := system.NewRunner(0, nil)
	var order []string
	assert.Panics(t, func() {
		r.Register(&recorder{name: "bad", phase: system.Phase(42), out: &order})
	})
	assert.NotPanics(t, func() { r.TickPhase(system.Phase(-1), 0) })
	assert.Zero(t, r.Len())
}

func TestRunner_SlowTickWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := system.NewRunner(time.Millisecond, zap.New(core))
	var order []string
	r.Register(&recorder{name: "fast", phase: system.PhaseInput, out: &order})
	r.Register(&recorder{name: "slow", phase: system.PhaseUpdate, out: &order, sleep: 5 * time.Millisecond})

	r.Tick(time.Millisecond)

	_, slow := r.Ticks()
	assert.Equal(t, uint64(1), slow)
	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "update", entries[0].ContextMap()["slowest"])
	}
}
