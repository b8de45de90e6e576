package system

import (
	"time"

	"github.com/scenebind/host/internal/core/event"
	coresys "github.com/scenebind/host/internal/core/system"
	"github.com/scenebind/host/internal/net"
	"github.com/scenebind/host/internal/subsystem"
)

// PostUpdateSystem sends the PostUpdate event once all updates ran.
// Phase 3 (PostUpdate).
type PostUpdateSystem struct {
	bus    *event.Bus
	engine *subsystem.Engine
}

func NewPostUpdateSystem(bus *event.Bus, engine *subsystem.Engine) *PostUpdateSystem {
	return &PostUpdateSystem{bus: bus, engine: engine}
}

func (s *PostUpdateSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *PostUpdateSystem) Update(dt time.Duration) {
	s.bus.Send(s.engine.ID(), event.PostUpdate, event.Data{event.PTimeStep: dt.Seconds()})
}

// OutputSystem flushes console output produced during the tick.
// Phase 3 (PostUpdate), registered after PostUpdateSystem.
type OutputSystem struct {
	store *net.SessionStore
}

func NewOutputSystem(store *net.SessionStore) *OutputSystem {
	return &OutputSystem{store: store}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *OutputSystem) Update(_ time.Duration) {
	s.store.Each(func(sess *net.Session) {
		sess.FlushOutput()
	})
}
