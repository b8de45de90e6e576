package system

import (
	"context"
	"errors"
	gonet "net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap/zaptest"

	"github.com/scenebind/host/internal/config"
	"github.com/scenebind/host/internal/core/event"
	coresys "github.com/scenebind/host/internal/core/system"
	"github.com/scenebind/host/internal/handler"
	"github.com/scenebind/host/internal/lifecycle"
	"github.com/scenebind/host/internal/net"
	"github.com/scenebind/host/internal/net/packet"
	"github.com/scenebind/host/internal/resource"
	"github.com/scenebind/host/internal/scene"
	"github.com/scenebind/host/internal/scripting"
	"github.com/scenebind/host/internal/subsystem"
)

func TestEventDispatchSystem(t *testing.T) {
	ctx := scene.NewContext(zaptest.NewLogger(t))
	n := scene.NewNode(ctx, "listener")
	var got []string
	n.SubscribeToEvent("Custom", func(_ event.Type, data event.Data) {
		got = append(got, data[event.PText].(string))
	})

	sys := NewEventDispatchSystem(ctx.Bus)
	ctx.Bus.Emit(n.ID(), "Custom", event.Data{event.PText: "a"})
	assert.Empty(t, got)

	sys.Update(0)
	assert.Equal(t, []string{"a"}, got)
	sys.Update(0)
	assert.Equal(t, []string{"a"}, got)
}

func TestScriptUpdateAndPostUpdate(t *testing.T) {
	ctx := scene.NewContext(zaptest.NewLogger(t))
	eng := subsystem.NewEngine(ctx)
	n := scene.NewNode(ctx, "listener")

	var steps []float64
	var order []event.Type
	n.SubscribeToEvent(event.Update, func(t event.Type, data event.Data) {
		steps = append(steps, data[event.PTimeStep].(float64))
		order = append(order, t)
	})
	n.SubscribeToEvent(event.PostUpdate, func(t event.Type, _ event.Data) {
		order = append(order, t)
	})

	runner := coresys.NewRunner(0, zaptest.NewLogger(t))
	runner.Register(NewPostUpdateSystem(ctx.Bus, eng))
	runner.Register(NewScriptUpdateSystem(ctx.Bus, eng))
	runner.Tick(500 * time.Millisecond)
	runner.Tick(500 * time.Millisecond)

	assert.Equal(t, []float64{0.5, 0.5}, steps)
	assert.Equal(t, []event.Type{event.Update, event.PostUpdate, event.Update, event.PostUpdate}, order)
	assert.Equal(t, uint64(2), eng.Frames())
	assert.Equal(t, time.Second, eng.Elapsed())
}

func TestCleanupSystem(t *testing.T) {
	ctx := scene.NewContext(zaptest.NewLogger(t))
	n := scene.NewNode(ctx, "temp")
	n.AddRef()
	n.ReleaseRef()
	require.True(t, n.Expired())
	assert.Equal(t, 1, ctx.World.Pending())

	NewCleanupSystem(ctx.World, zaptest.NewLogger(t)).Update(0)
	assert.Zero(t, ctx.World.Pending())
	assert.False(t, ctx.World.Alive(n.ID()))
	assert.Zero(t, ctx.Objects())
}

type fakeJournal struct {
	batches [][]lifecycle.Report
	cutoffs []time.Time
	err     error
}

func (f *fakeJournal) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 2, nil
}

func (f *fakeJournal) WriteBatch(_ context.Context, reports []lifecycle.Report) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]lifecycle.Report(nil), reports...))
	return nil
}

func TestJournalSystem(t *testing.T) {
	w := &fakeJournal{}
	sys := NewJournalSystem(w, zaptest.NewLogger(t), 3, 0)

	log := zaptest.NewLogger(t)
	ctx := scene.NewContext(log)
	cascade := lifecycle.NewCascade(lifecycle.NewRegistry(), log)
	cascade.SetRecorder(sys)

	s := scene.NewScene(ctx, "s")
	s.AddRef()
	s.CreateChild("a")
	cascade.Destroy(s)
	assert.Equal(t, 1, sys.Pending())

	sys.Update(0)
	sys.Update(0)
	assert.Empty(t, w.batches)
	sys.Update(0)
	require.Len(t, w.batches, 1)
	assert.Equal(t, "s", w.batches[0][0].Name)
	assert.Zero(t, sys.Pending())

	// failures keep the backlog for the next flush
	w.err = errors.New("db down")
	sys.Record(lifecycle.Report{Name: "b"})
	sys.Flush()
	assert.Equal(t, 1, sys.Pending())
	w.err = nil
	sys.Flush()
	assert.Zero(t, sys.Pending())
	require.Len(t, w.batches, 2)
}

func TestJournalSystem_Prunes(t *testing.T) {
	w := &fakeJournal{}
	sys := NewJournalSystem(w, zaptest.NewLogger(t), 1, 24*time.Hour)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sys.now = func() time.Time { return clock }

	sys.Update(0)
	require.Len(t, w.cutoffs, 1)
	assert.Equal(t, clock.Add(-24*time.Hour), w.cutoffs[0])

	clock = clock.Add(10 * time.Minute)
	sys.Update(0)
	assert.Len(t, w.cutoffs, 1)

	clock = clock.Add(pruneEvery)
	sys.Update(0)
	assert.Len(t, w.cutoffs, 2)

	off := &fakeJournal{}
	NewJournalSystem(off, zaptest.NewLogger(t), 1, 0).Update(0)
	assert.Empty(t, off.cutoffs)
}

func TestJournalSystem_BoundedBacklog(t *testing.T) {
	sys := NewJournalSystem(&fakeJournal{err: errors.New("down")}, zaptest.NewLogger(t), 1, 0)
	for i := 0; i < maxPendingReports+10; i++ {
		sys.Record(lifecycle.Report{Nodes: i})
	}
	assert.Equal(t, maxPendingReports, sys.Pending())
	assert.Equal(t, 10, sys.dropped)
}

func TestInputSystem_ConsoleRoundTrip(t *testing.T) {
	log := zaptest.NewLogger(t)
	cfg := config.Defaults()

	res, err := resource.New(config.ResourceConfig{Root: "mem://localhost/system-input"}, log)
	require.NoError(t, err)
	sctx := scene.NewContext(log)
	subs := subsystem.NewSet()
	t.Cleanup(subs.Close)
	reg := lifecycle.NewRegistry()
	eng, err := scripting.NewEngine(sctx, lifecycle.NewCascade(reg, log), scripting.Options{
		Runtime:    cfg.Runtime,
		Resources:  res,
		Subsystems: subs,
	}, log)
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	srv, err := net.NewServer("127.0.0.1:0", 8, 16, time.Second, log)
	require.NoError(t, err)
	go srv.AcceptLoop()
	t.Cleanup(srv.Shutdown)

	store := net.NewSessionStore()
	deps := &handler.Deps{Config: cfg, Log: log, Scripting: eng, Context: sctx, Registry: reg, Subsystems: subs, Sessions: store}
	packets := packet.NewRegistry(log)
	handler.RegisterAll(packets, deps)
	input := NewInputSystem(srv, packets, store, deps, 4, log)

	conn, err := gonet.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.Eventually(t, func() bool {
		input.Update(0)
		return store.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	hello, err := net.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, packet.S_OPCODE_HELLO, packet.NewReader(hello).Opcode())

	cmd := packet.NewWriter(packet.C_OPCODE_COMMAND)
	cmd.WriteString("answer = 6 * 7")
	require.NoError(t, net.WriteFrame(conn, cmd.Bytes()))

	require.Eventually(t, func() bool {
		input.Update(0)
		return eng.VM().GetGlobal("answer") == lua.LNumber(42)
	}, 2*time.Second, 10*time.Millisecond)

	frame, err := net.ReadFrame(conn)
	require.NoError(t, err)
	r := packet.NewReader(frame)
	assert.Equal(t, packet.S_OPCODE_RESULT, r.Opcode())
	assert.True(t, r.ReadBool())

	// a truncated string field drops the session
	require.NoError(t, net.WriteFrame(conn, []byte{packet.C_OPCODE_COMMAND, 9}))
	require.Eventually(t, func() bool {
		input.Update(0)
		return store.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
