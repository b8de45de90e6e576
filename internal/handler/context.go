package handler

import (
	"context"

	"github.com/scenebind/host/internal/config"
	"github.com/scenebind/host/internal/core/event"
	"github.com/scenebind/host/internal/lifecycle"
	"github.com/scenebind/host/internal/net"
	"github.com/scenebind/host/internal/net/packet"
	"github.com/scenebind/host/internal/persist"
	"github.com/scenebind/host/internal/scene"
	"github.com/scenebind/host/internal/scripting"
	"github.com/scenebind/host/internal/subsystem"
	"go.uber.org/zap"
)

// Deps holds everything the console handlers need.
type Deps struct {
	Config     *config.Config
	Log        *zap.Logger
	Scripting  *scripting.Engine
	Context    *scene.Context
	Registry   *lifecycle.Registry
	Subsystems *subsystem.Set
	Sessions   *net.SessionStore
	Journal    JournalReader // nil when the journal database is disabled
}

// JournalReader reads back stored destruction reports.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]persist.JournalEntry, error)
}

// RegisterAll registers all console frame handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	open := []packet.SessionState{packet.StateOpen}

	reg.Register(packet.C_OPCODE_COMMAND, open,
		func(sess any, r *packet.Reader) {
			HandleCommand(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_PING, open,
		func(sess any, r *packet.Reader) {
			HandlePing(sess.(*net.Session), r)
		},
	)
}

// HandleCommand runs one console line: "."-prefixed lines are host
// commands, anything else is Lua source.
func HandleCommand(sess *net.Session, r *packet.Reader, deps *Deps) {
	line := r.ReadString()
	if line == "" {
		sendResult(sess, true, "")
		return
	}

	deps.Context.Bus.Send(0, event.ConsoleCommand, event.Data{
		event.PSession: sess.ID,
		event.PText:    line,
	})

	if HandleConsoleCommand(sess, line, deps) {
		return
	}

	if err := deps.Scripting.ExecuteScript(line); err != nil {
		deps.Log.Debug("主控台指令失敗", zap.Uint64("session", sess.ID), zap.Error(err))
		sendResult(sess, false, err.Error())
		return
	}
	sendResult(sess, true, "")
}

// HandlePing echoes the client's token.
func HandlePing(sess *net.Session, r *packet.Reader) {
	token := r.ReadUint32()
	w := packet.NewWriter(packet.S_OPCODE_PONG)
	w.WriteUint32(token)
	sess.Send(w.Bytes())
}

func sendResult(sess *net.Session, ok bool, msg string) {
	w := packet.NewWriter(packet.S_OPCODE_RESULT)
	w.WriteBool(ok)
	w.WriteString(msg)
	sess.Send(w.Bytes())
}
