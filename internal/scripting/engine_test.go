package scripting_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/scenebind/host/internal/config"
	"github.com/scenebind/host/internal/core/event"
	"github.com/scenebind/host/internal/lifecycle"
	"github.com/scenebind/host/internal/resource"
	"github.com/scenebind/host/internal/scene"
	"github.com/scenebind/host/internal/scripting"
	"github.com/scenebind/host/internal/subsystem"
)

type harness struct {
	ctx  *scene.Context
	reg  *lifecycle.Registry
	res  *resource.Cache
	eng  *scripting.Engine
	logs *observer.ObservedLogs
}

func newHarness(t *testing.T, files map[string]string) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core, zap.WithFatalHook(zapcore.WriteThenPanic))

	root := "mem://localhost/scripting/" + strings.ReplaceAll(t.Name(), "/", "_")
	res, err := resource.New(config.ResourceConfig{Root: root}, log)
	require.NoError(t, err)
	for p, src := range files {
		require.NoError(t, res.Store(context.Background(), p, []byte(src)))
	}

	cfg := config.Defaults()
	sctx := scene.NewContext(log)
	subs := subsystem.NewSet()
	subs.Add(subsystem.NewEngine(sctx))
	subs.Add(subsystem.NewVM(sctx, scripting.APIVersion, cfg.Runtime.ScriptsDir))
	subs.Add(subsystem.NewGraphics(sctx, cfg.Graphics))
	subs.Add(subsystem.NewRenderer(sctx))
	subs.Add(subsystem.NewInput(sctx))
	subs.Add(subsystem.NewFileSystem(sctx, res))
	subs.Add(subsystem.NewResourceCache(sctx, res))
	t.Cleanup(subs.Close)

	reg := lifecycle.NewRegistry()
	eng, err := scripting.NewEngine(sctx, lifecycle.NewCascade(reg, log), scripting.Options{
		Runtime:    cfg.Runtime,
		Resources:  res,
		Subsystems: subs,
	}, log)
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	return &harness{ctx: sctx, reg: reg, res: res, eng: eng, logs: logs}
}

func (h *harness) run(t *testing.T, src string) {
	t.Helper()
	require.NoError(t, h.eng.ExecuteScript(src))
}

// runFatal runs src expecting the fatal path; the test logger panics after
// writing the fatal entry, which may or may not surface as a script error.
func (h *harness) runFatal(src string) {
	defer func() { _ = recover() }()
	_ = h.eng.ExecuteScript(src)
}

func (h *harness) global(name string) lua.LValue {
	return h.eng.VM().GetGlobal(name)
}

func scriptComponents(s *scene.Scene) []*scene.ScriptComponent {
	var out []*scene.ScriptComponent
	for _, n := range s.Root().Children(true) {
		for _, c := range n.Components() {
			if sc, ok := c.(*scene.ScriptComponent); ok {
				out = append(out, sc)
			}
		}
	}
	return out
}

func TestEngine_DestroySceneClearsRegistry(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `
		local scene = Atomic.createScene("level")
		for i = 1, 3 do
			local n = scene:createChild("n" .. i)
			local c = n:createScriptComponent({})
			c:subscribe("Update", function() end)
		end
	`)

	scenes := h.eng.Scenes()
	require.Len(t, scenes, 1)
	comps := scriptComponents(scenes[0])
	require.Len(t, comps, 3)
	assert.Equal(t, 7, h.reg.Len()) // scene + 3 nodes + 3 components

	h.run(t, `Atomic.destroy(Atomic.getScenes()[1])`)

	assert.Equal(t, 0, h.reg.Len())
	assert.Empty(t, h.eng.Scenes())
	for _, c := range comps {
		assert.True(t, c.Destroyed())
		assert.True(t, c.Expired())
		assert.False(t, h.ctx.Bus.HasSubscriptions(c.ID()))
	}
	assert.True(t, scenes[0].Expired())
}

func TestEngine_DestroyIgnoresNonObjects(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `keep = Atomic.createScene("s"):createChild("n")`)
	before := h.reg.Len()

	h.run(t, `
		Atomic.destroy(42)
		Atomic.destroy("node")
		Atomic.destroy({})
		Atomic.destroy(nil)
		Atomic.destroy(io.stdout)
		Atomic.destroy()
	`)

	assert.Equal(t, before, h.reg.Len())
	assert.Zero(t, h.logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	h.run(t, `assert(keep:isValid())`)
}

func TestEngine_DestroyComponentIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `
		node = Atomic.createScene("s"):createChild("n")
		light = node:createComponent("Light")
	`)
	before := h.reg.Len()

	h.runFatal(`Atomic.destroy(light)`)

	fatal := h.logs.FilterLevelExact(zapcore.FatalLevel).All()
	require.Len(t, fatal, 1)
	assert.Equal(t, "ownership invariant violated", fatal[0].Message)
	assert.Equal(t, "destroy component", fatal[0].ContextMap()["op"])

	// nothing was torn down
	assert.Equal(t, before, h.reg.Len())
	n := h.eng.Scenes()[0].Root().Child("n", false)
	require.NotNil(t, n)
	assert.Equal(t, 1, n.NumComponents())
}

func TestEngine_ModuleReadFile(t *testing.T) {
	src := "local M = {}\n-- ünïcode\nreturn M\n"
	h := newHarness(t, map[string]string{"scripts/mod.lua": src})

	h.run(t, `
		text = module_read_file("scripts/mod.lua")
		ok, err = pcall(module_read_file, "scripts/missing.lua")
	`)

	assert.Equal(t, src, lua.LVAsString(h.global("text")))
	assert.Equal(t, lua.LFalse, h.global("ok"))
	assert.Contains(t, lua.LVAsString(h.global("err")), "Unable to open module file")
}

func TestEngine_Print(t *testing.T) {
	h := newHarness(t, nil)
	var got []string
	listener := scene.NewNode(h.ctx, "listener")
	listener.SubscribeToEvent(event.ScriptPrint, func(_ event.Type, data event.Data) {
		got = append(got, data[event.PText].(string))
	})

	h.run(t, `print("hp=", 10, " ", true, nil)`)

	assert.Equal(t, []string{"hp=10 truenil"}, got)
	assert.Equal(t, 1, h.logs.FilterMessage("hp=10 truenil").Len())
}

func TestEngine_Require(t *testing.T) {
	h := newHarness(t, map[string]string{
		"scripts/util/vec.lua": `
			local M = {}
			function M.add(a, b) return a + b end
			return M
		`,
	})

	h.run(t, `
		local vec = require("util.vec")
		sum = vec.add(2, 3)
		same = require("util.vec") == vec
		ok = pcall(require, "util.nothing")
	`)

	assert.Equal(t, lua.LNumber(5), h.global("sum"))
	assert.Equal(t, lua.LTrue, h.global("same"))
	assert.Equal(t, lua.LFalse, h.global("ok"))
}

func TestEngine_AtomicTable(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `
		platform = Atomic.platform
		version = Atomic.apiVersion
		okOld = pcall(Atomic.requireAPI, "1.0.0")
		okNew = pcall(Atomic.requireAPI, "1.9.0")
		okMajor = pcall(Atomic.requireAPI, "v2.0.0")
		okBad = pcall(Atomic.requireAPI, "latest")
		hasNetwork = Atomic.getNetwork ~= nil
		sameVM = Atomic.getVM() == Atomic.getVM()
		width = Atomic.getGraphics():getWidth()
		vmName = Atomic.getVM():getName()
		scriptOK = Atomic.script("x = 1")
		scriptBad = Atomic.script("this is not lua")
		scriptTable = Atomic.script({})
		scriptNone = Atomic.script()
	`)

	assert.NotEmpty(t, lua.LVAsString(h.global("platform")))
	assert.Equal(t, scripting.APIVersion, lua.LVAsString(h.global("version")))
	assert.Equal(t, lua.LTrue, h.global("okOld"))
	assert.Equal(t, lua.LFalse, h.global("okNew"))
	assert.Equal(t, lua.LFalse, h.global("okMajor"))
	assert.Equal(t, lua.LFalse, h.global("okBad"))
	assert.Equal(t, lua.LFalse, h.global("hasNetwork"))
	assert.Equal(t, lua.LTrue, h.global("sameVM"))
	assert.Equal(t, lua.LNumber(1280), h.global("width"))
	assert.Equal(t, "VM", lua.LVAsString(h.global("vmName")))
	assert.Equal(t, lua.LTrue, h.global("scriptOK"))
	assert.Equal(t, lua.LFalse, h.global("scriptBad"))
	assert.Equal(t, lua.LFalse, h.global("scriptTable"))
	assert.Equal(t, lua.LFalse, h.global("scriptNone"))
	assert.Equal(t, lua.LNumber(1), h.global("x"))
}

func TestEngine_SubsystemsSurviveDestroy(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `
		local engine = Atomic.getEngine()
		Atomic.destroy(engine)
		valid = engine:isValid()
	`)
	assert.Equal(t, lua.LTrue, h.global("valid"))
}

func TestEngine_StaleProxy(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `
		local s = Atomic.createScene("s")
		n = s:createChild("n")
		n:createChild("grandchild")
		Atomic.destroy(n)
		valid = n:isValid()
		ok, err = pcall(function() return n:getName() end)
		Atomic.destroy(n)
		children = #s:getChildren(true)
	`)

	assert.Equal(t, lua.LFalse, h.global("valid"))
	assert.Equal(t, lua.LFalse, h.global("ok"))
	assert.Contains(t, lua.LVAsString(h.global("err")), "object has been destroyed")
	assert.Equal(t, lua.LNumber(0), h.global("children"))
	assert.Equal(t, 1, h.reg.Len()) // only the scene
}

func TestEngine_UnsubscribedHandlerSeesDestroyed(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `
		local n = Atomic.createScene("s"):createChild("n")
		local c = n:createScriptComponent({})
		c:subscribe("Update", function() end)
		c:subscribe("Unsubscribed", function(_, data)
			if data.event == "Update" then
				seen = c:isDestroyed()
				sender = data.sender == c
			end
		end)
		Atomic.destroy(n)
	`)

	assert.Equal(t, lua.LTrue, h.global("seen"))
	assert.Equal(t, lua.LTrue, h.global("sender"))
}

func TestEngine_ReentrantDestroyFromHandler(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `
		local s = Atomic.createScene("s")
		local a = s:createChild("a")
		other = s:createChild("b")
		local c = a:createScriptComponent({})
		c:subscribe("Update", function() end)
		c:subscribe("Unsubscribed", function() Atomic.destroy(other) end)
		Atomic.destroy(a)
		left = #s:getChildren()
	`)

	assert.Equal(t, lua.LNumber(0), h.global("left"))
	assert.Equal(t, 1, h.reg.Len())
}

func TestEngine_ScriptComponentUpdate(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `
		local Mover = {}
		Mover.__index = Mover
		function Mover:start() self.started = true end
		function Mover:update(dt)
			self.ticks = (self.ticks or 0) + 1
			self.total = (self.total or 0) + dt
		end

		node = Atomic.createScene("s"):createChild("mover")
		inst = setmetatable({}, Mover)
		comp = node:createScriptComponent(inst)
		linked = inst.node == node and inst.component == comp and comp:getInstance() == inst
	`)
	assert.Equal(t, lua.LTrue, h.global("linked"))

	h.ctx.Bus.Send(0, event.Update, event.Data{event.PTimeStep: 0.25})
	h.ctx.Bus.Send(0, event.Update, event.Data{event.PTimeStep: 0.25})

	inst := h.global("inst").(*lua.LTable)
	assert.Equal(t, lua.LTrue, inst.RawGetString("started"))
	assert.Equal(t, lua.LNumber(2), inst.RawGetString("ticks"))
	assert.Equal(t, lua.LNumber(0.5), inst.RawGetString("total"))

	h.run(t, `Atomic.destroy(node)`)
	h.ctx.Bus.Send(0, event.Update, event.Data{event.PTimeStep: 0.25})
	assert.Equal(t, lua.LNumber(2), inst.RawGetString("ticks"))
}

func TestEngine_ScriptComponentStartFailureDetaches(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `
		local Broken = {}
		Broken.__index = Broken
		function Broken:start() error("boom") end
		function Broken:update(dt) self.ticks = (self.ticks or 0) + 1 end

		node = Atomic.createScene("s"):createChild("broken")
		inst = setmetatable({}, Broken)
	`)
	before := h.reg.Len()

	h.run(t, `ok, err = pcall(node.createScriptComponent, node, inst)`)
	assert.Equal(t, lua.LFalse, h.global("ok"))
	assert.Contains(t, lua.LVAsString(h.global("err")), "boom")

	scenes := h.eng.Scenes()
	require.Len(t, scenes, 1)
	broken := scenes[0].Root().Child("broken", false)
	require.NotNil(t, broken)
	assert.Equal(t, 0, broken.NumComponents())
	assert.Equal(t, before, h.reg.Len())

	h.ctx.Bus.Send(0, event.Update, event.Data{event.PTimeStep: 0.25})
	inst := h.global("inst").(*lua.LTable)
	assert.Equal(t, lua.LNil, inst.RawGetString("ticks"))
	assert.Equal(t, lua.LNil, inst.RawGetString("component"))
}

func TestEngine_EmitEventIsDeferred(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `
		local scene = Atomic.createScene("s")
		got = nil
		scene:subscribe("Ping", function(name, data)
			got = data.n
			fromScene = data.sender == scene
		end)
		scene:emitEvent("Ping", { n = 3 })
	`)
	assert.Equal(t, lua.LNil, h.global("got"))

	h.ctx.Bus.SwapBuffers()
	h.ctx.Bus.DispatchAll()
	assert.Equal(t, lua.LNumber(3), h.global("got"))
	assert.Equal(t, lua.LTrue, h.global("fromScene"))
}

func TestEngine_LoadSceneFile(t *testing.T) {
	h := newHarness(t, map[string]string{
		"scripts/actors/spinner.lua": `
			local Spinner = {}
			function Spinner:start() self.started = self.node:getName() end
			return Spinner
		`,
		"scenes/arena.yaml": `
name: arena
nodes:
  - name: player
    components:
      - type: Light
      - script: actors.spinner
        props:
          speed: 3
          tags: [hero, blue]
    children:
      - name: weapon
  - name: floor
`,
	})

	s, err := h.eng.LoadSceneFile("scenes/arena.yaml")
	require.NoError(t, err)
	assert.Equal(t, "arena", s.Name())
	assert.Equal(t, 2, s.NumChildren())
	assert.Len(t, s.Root().Children(true), 3)

	player := s.Root().Child("player", false)
	require.NotNil(t, player)
	require.Equal(t, 2, player.NumComponents())
	assert.Equal(t, "Light", player.Components()[0].TypeName())

	sc := player.Components()[1].(*scene.ScriptComponent)
	inst := sc.Instance().(*lua.LTable)
	assert.Equal(t, lua.LNumber(3), inst.RawGetString("speed"))
	assert.Equal(t, lua.LString("player"), inst.RawGetString("started"))
	tags := inst.RawGetString("tags").(*lua.LTable)
	assert.Equal(t, 2, tags.Len())
}

func TestEngine_LoadSceneMissingModule(t *testing.T) {
	h := newHarness(t, map[string]string{
		"scenes/broken.yaml": `
name: broken
nodes:
  - name: a
    components:
      - script: actors.missing
`,
	})

	_, err := h.eng.LoadSceneFile("scenes/broken.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actors.missing")
	assert.Empty(t, h.eng.Scenes())
	assert.Equal(t, 0, h.reg.Len())
}

func TestEngine_CloseResetsRegistry(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, `Atomic.createScene("s"):createChild("n"):createComponent("Light")`)
	require.NotZero(t, h.reg.Len())

	h.eng.Close()
	assert.Zero(t, h.reg.Len())
}
