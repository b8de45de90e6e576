package system

import (
	"time"

	"github.com/scenebind/host/internal/core/event"
	coresys "github.com/scenebind/host/internal/core/system"
	"github.com/scenebind/host/internal/subsystem"
)

// EventDispatchSystem delivers events emitted during the previous tick.
// Phase 1 (PreUpdate).
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventDispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// ScriptUpdateSystem advances the frame clock and sends the Update event
// that drives script components. Phase 2 (Update).
type ScriptUpdateSystem struct {
	bus    *event.Bus
	engine *subsystem.Engine
}

func NewScriptUpdateSystem(bus *event.Bus, engine *subsystem.Engine) *ScriptUpdateSystem {
	return &ScriptUpdateSystem{bus: bus, engine: engine}
}

func (s *ScriptUpdateSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ScriptUpdateSystem) Update(dt time.Duration) {
	s.engine.Advance(dt)
	s.bus.Send(s.engine.ID(), event.Update, event.Data{event.PTimeStep: dt.Seconds()})
}
