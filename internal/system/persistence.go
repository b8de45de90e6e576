package system

import (
	"context"
	"time"

	coresys "github.com/scenebind/host/internal/core/system"
	"github.com/scenebind/host/internal/lifecycle"
	"go.uber.org/zap"
)

// maxPendingReports bounds the journal backlog while the database is down.
const maxPendingReports = 4096

// pruneEvery is the minimum wall time between two journal prunes.
const pruneEvery = time.Hour

// JournalWriter stores a batch of cascade reports atomically and deletes
// entries older than a cutoff.
type JournalWriter interface {
	WriteBatch(ctx context.Context, reports []lifecycle.Report) error
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// JournalSystem buffers cascade reports and writes them every interval
// ticks. Entries older than the retention window are pruned at most once per
// hour; zero retention keeps everything. Phase 4 (Persist).
type JournalSystem struct {
	writer    JournalWriter
	pending   []lifecycle.Report
	dropped   int
	log       *zap.Logger
	tickCount int
	interval  int
	retention time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func NewJournalSystem(writer JournalWriter, log *zap.Logger, intervalTicks int, retention time.Duration) *JournalSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &JournalSystem{
		writer:    writer,
		log:       log,
		interval:  intervalTicks,
		retention: retention,
		now:       time.Now,
	}
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

// Record implements lifecycle.Recorder.
func (s *JournalSystem) Record(rep lifecycle.Report) {
	if len(s.pending) >= maxPendingReports {
		s.pending = s.pending[1:]
		s.dropped++
	}
	s.pending = append(s.pending, rep)
}

// Pending returns the number of reports not yet written.
func (s *JournalSystem) Pending() int { return len(s.pending) }

func (s *JournalSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Flush()
	s.prune()
}

func (s *JournalSystem) prune() {
	if s.retention <= 0 {
		return
	}
	now := s.now()
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < pruneEvery {
		return
	}
	s.lastPrune = now

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := s.writer.Prune(ctx, now.Add(-s.retention))
	if err != nil {
		s.log.Error("清理銷毀日誌失敗", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("已清理過期銷毀日誌", zap.Int64("rows", n), zap.Duration("retention", s.retention))
	}
}

// Flush writes all pending reports now. Called on every interval and once
// more at shutdown. Reports are kept for the next attempt on failure.
func (s *JournalSystem) Flush() {
	if len(s.pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.writer.WriteBatch(ctx, s.pending); err != nil {
		s.log.Error("寫入銷毀日誌失敗",
			zap.Int("pending", len(s.pending)),
			zap.Error(err),
		)
		return
	}
	if s.dropped > 0 {
		s.log.Warn("銷毀日誌積壓已丟棄", zap.Int("dropped", s.dropped))
		s.dropped = 0
	}
	s.log.Debug("銷毀日誌已寫入", zap.Int("count", len(s.pending)))
	s.pending = s.pending[:0]
}
