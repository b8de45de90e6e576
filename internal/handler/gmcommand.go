package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scenebind/host/internal/net"
	"github.com/scenebind/host/internal/subsystem"
)

// HandleConsoleCommand processes a "." prefixed host command.
// Returns true if the line was a host command (consumed), false otherwise.
func HandleConsoleCommand(sess *net.Session, line string, deps *Deps) bool {
	if !strings.HasPrefix(line, ".") {
		return false
	}

	parts := strings.Fields(line[1:])
	if len(parts) == 0 {
		sendResult(sess, true, "")
		return true
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		cmdHelp(sess)
	case "stats":
		cmdStats(sess, deps)
	case "scenes":
		cmdScenes(sess, deps)
	case "subsystems":
		msg(sess, strings.Join(deps.Subsystems.Names(), "  "))
	case "journal":
		if !cmdJournal(sess, args, deps) {
			return true
		}
	case "destroy":
		if !cmdDestroy(sess, args, deps) {
			return true
		}
	case "exit":
		if eng, ok := subsystem.Of[*subsystem.Engine](deps.Subsystems); ok {
			eng.Exit()
		}
		msg(sess, "host exit requested")
	case "quit":
		sendResult(sess, true, "")
		sess.FlushOutput()
		sess.Close()
		return true
	default:
		sendResult(sess, false, fmt.Sprintf("unknown command .%s (try .help)", cmd))
		return true
	}

	sendResult(sess, true, "")
	return true
}

func msg(sess *net.Session, text string) {
	sendPrint(sess, text)
}

func msgf(sess *net.Session, format string, a ...any) {
	msg(sess, fmt.Sprintf(format, a...))
}

func cmdHelp(sess *net.Session) {
	msg(sess, "=== console commands ===")
	msg(sess, ".help  - this list")
	msg(sess, ".stats  - object, proxy and frame counters")
	msg(sess, ".scenes  - list scenes")
	msg(sess, ".subsystems  - list registered subsystems")
	msg(sess, ".journal [n]  - last n destruction reports (default 10)")
	msg(sess, ".destroy <scene>  - destroy a scene and everything in it")
	msg(sess, ".exit  - stop the host")
	msg(sess, ".quit  - close this console")
	msg(sess, "any other line is run as Lua")
}

func cmdStats(sess *net.Session, deps *Deps) {
	msgf(sess, "objects=%d  proxies=%d  pending_free=%d",
		deps.Context.Objects(), deps.Registry.Len(), deps.Context.World.Pending())
	if eng, ok := subsystem.Of[*subsystem.Engine](deps.Subsystems); ok {
		msgf(sess, "frames=%d  elapsed=%s", eng.Frames(), eng.Elapsed())
	}
	msgf(sess, "consoles=%d", deps.Sessions.Count())
}

func cmdScenes(sess *net.Session, deps *Deps) {
	scenes := deps.Scripting.Scenes()
	if len(scenes) == 0 {
		msg(sess, "no scenes")
		return
	}
	for _, s := range scenes {
		msgf(sess, "%s  id=%d  nodes=%d", s.Name(), s.ID(), len(s.Root().Children(true)))
	}
}

// cmdDestroy reports false when it already sent a failure result.
func cmdDestroy(sess *net.Session, args []string, deps *Deps) bool {
	if len(args) < 1 {
		sendResult(sess, false, "usage: .destroy <scene>")
		return false
	}
	for _, s := range deps.Scripting.Scenes() {
		if s.Name() == args[0] {
			deps.Scripting.Destroy(s)
			msgf(sess, "destroyed scene %s", args[0])
			return true
		}
	}
	sendResult(sess, false, fmt.Sprintf("no scene named %q", args[0]))
	return false
}

const defaultJournalRows = 10

// cmdJournal reports false when it already sent a failure result.
func cmdJournal(sess *net.Session, args []string, deps *Deps) bool {
	if deps.Journal == nil {
		sendResult(sess, false, "journal disabled")
		return false
	}
	limit := defaultJournalRows
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			sendResult(sess, false, "usage: .journal [n]")
			return false
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries, err := deps.Journal.Recent(ctx, limit)
	if err != nil {
		sendResult(sess, false, err.Error())
		return false
	}
	if len(entries) == 0 {
		msg(sess, "journal empty")
		return true
	}
	for _, e := range entries {
		rep := e.Report()
		msgf(sess, "%s  %s %q  id=%d  scope=%s  nodes=%d  components=%d  proxies=%d",
			rep.At.Format(time.DateTime), rep.Kind, rep.Name, rep.Target, rep.Scope,
			rep.Nodes, rep.Components, rep.Unregistered)
	}
	return true
}
