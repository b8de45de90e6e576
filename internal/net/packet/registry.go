package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState is the console session's protocol phase.
type SessionState int

const (
	StateOpen SessionState = iota
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateClosing:
		return "Closing"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

func (s SessionState) bit() uint32 { return 1 << uint(s) }

// HandlerFunc handles one decoded frame. sess is the *net.Session; it is
// passed untyped because net imports this package.
type HandlerFunc func(sess any, r *Reader)

type route struct {
	fn     HandlerFunc
	states uint32
}

// Registry routes console frames by opcode.
type Registry struct {
	routes map[byte]route
	log    *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		routes: make(map[byte]route),
		log:    log,
	}
}

// Register routes opcode to fn while the session is in one of states.
// Registering the same opcode again replaces the route.
func (reg *Registry) Register(opcode byte, states []SessionState, fn HandlerFunc) {
	var mask uint32
	for _, s := range states {
		mask |= s.bit()
	}
	reg.routes[opcode] = route{fn: fn, states: mask}
}

// Dispatch runs the handler for data[0]. Unknown opcodes are dropped; a frame
// in the wrong state, a truncated frame, or a panicking handler is an error.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty frame")
	}
	op := data[0]
	rt, ok := reg.routes[op]
	if !ok {
		reg.log.Debug("未知操作碼", zap.Uint8("opcode", op))
		return nil
	}
	if rt.states&state.bit() == 0 {
		return fmt.Errorf("%s not allowed in state %s", OpcodeName(op), state)
	}

	reg.log.Debug("收到指令",
		zap.String("opcode", OpcodeName(op)),
		zap.Int("size", len(data)),
	)
	r := NewReader(data)
	if err := reg.call(rt.fn, sess, r, op); err != nil {
		return err
	}
	if r.Err() != nil {
		return fmt.Errorf("%s: %w", OpcodeName(op), r.Err())
	}
	return nil
}

func (reg *Registry) call(fn HandlerFunc, sess any, r *Reader, op byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.String("opcode", OpcodeName(op)),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %s: %v", OpcodeName(op), rec)
		}
	}()
	fn(sess, r)
	return nil
}
