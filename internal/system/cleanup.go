package system

import (
	"time"

	"github.com/scenebind/host/internal/core/ident"
	coresys "github.com/scenebind/host/internal/core/system"
	"go.uber.org/zap"
)

// CleanupSystem reclaims the ids of released objects at tick end.
// Phase 5 (Cleanup).
type CleanupSystem struct {
	world *ident.World
	log   *zap.Logger
}

func NewCleanupSystem(world *ident.World, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: world, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if n := s.world.FlushFreeQueue(); n > 0 {
		s.log.Debug("reclaimed object ids", zap.Int("count", n))
	}
}
