package system

import "time"

// Phase orders systems within one tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain console queues
	PhasePreUpdate               // 1: deliver last tick's deferred events
	PhaseUpdate                  // 2: script component update
	PhasePostUpdate              // 3: post-update event, frame stats
	PhasePersist                 // 4: destruction journal flush
	PhaseCleanup                 // 5: reclaim released object ids

	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System is run by the Runner once per tick.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
