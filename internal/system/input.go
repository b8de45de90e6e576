package system

import (
	"errors"
	"time"

	coresys "github.com/scenebind/host/internal/core/system"
	"github.com/scenebind/host/internal/handler"
	"github.com/scenebind/host/internal/net"
	"github.com/scenebind/host/internal/net/packet"
	"go.uber.org/zap"
)

// InputSystem accepts console sessions and dispatches their queued frames
// through the packet registry. Phase 0 (Input).
type InputSystem struct {
	netServer  *net.Server
	registry   *packet.Registry
	store      *net.SessionStore
	deps       *handler.Deps
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(netServer *net.Server, registry *packet.Registry, store *net.SessionStore, deps *handler.Deps, maxPerTick int, log *zap.Logger) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 1
	}
	return &InputSystem{
		netServer:  netServer,
		registry:   registry,
		store:      store,
		deps:       deps,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
			handler.SendHello(sess, s.deps)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions
	for {
		select {
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	var closed []uint64
	s.store.Each(func(sess *net.Session) {
		if sess.IsClosed() {
			closed = append(closed, sess.ID)
			return
		}
		s.drain(sess)
	})
	for _, id := range closed {
		s.store.Remove(id)
	}

	// 提前 flush：讓指令結果立即進入 OutQueue
	s.store.Each(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

// drain dispatches up to maxPerTick frames from one session.
func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			err := s.registry.Dispatch(sess, sess.State(), data)
			if errors.Is(err, packet.ErrShortFrame) {
				s.log.Warn("格式錯誤的指令，斷開連線",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
				sess.Close()
				return
			}
			if err != nil {
				s.log.Debug("封包分派錯誤",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}
