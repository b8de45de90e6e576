package scripting

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/scenebind/host/internal/core/event"
	"github.com/scenebind/host/internal/core/ident"
	"github.com/scenebind/host/internal/subsystem"
)

func (e *Engine) openGlobals() {
	e.vm.SetGlobal("print", e.vm.NewFunction(e.luaPrint))
	e.vm.SetGlobal("module_read_file", e.vm.NewFunction(e.luaModuleReadFile))
}

func (e *Engine) openAtomic() {
	L := e.vm
	atomic := L.NewTable()
	atomic.RawSetString("platform", lua.LString(e.platform))
	atomic.RawSetString("apiVersion", lua.LString(APIVersion))

	L.SetFuncs(atomic, map[string]lua.LGFunction{
		"requireAPI":  e.atomicRequireAPI,
		"script":      e.atomicScript,
		"destroy":     e.atomicDestroy,
		"createScene": e.atomicCreateScene,
		"getScenes":   e.atomicGetScenes,
	})

	accessors := map[string]string{
		"getVM":            subsystem.NameVM,
		"getEngine":        subsystem.NameEngine,
		"getGraphics":      subsystem.NameGraphics,
		"getRenderer":      subsystem.NameRenderer,
		"getResourceCache": subsystem.NameResourceCache,
		"getInput":         subsystem.NameInput,
		"getFileSystem":    subsystem.NameFileSystem,
	}
	// getNetwork only exists when the host runs a network stack
	if e.subs.Get(subsystem.NameNetwork) != nil {
		accessors["getNetwork"] = subsystem.NameNetwork
	}
	for fn, name := range accessors {
		name := name
		atomic.RawSetString(fn, L.NewFunction(func(L *lua.LState) int {
			sub := e.subs.Get(name)
			if sub == nil {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(e.pushObject(sub))
			return 1
		}))
	}

	L.SetGlobal("Atomic", atomic)
}

// installLoader puts the resource loader right after package.preload, so
// require reads modules through the resource service before falling back to
// package.path.
func (e *Engine) installLoader() {
	loaders, ok := e.vm.GetField(e.vm.GetGlobal("package"), "loaders").(*lua.LTable)
	if !ok {
		e.log.Warn("package.loaders missing, require will not see resources")
		return
	}
	loaders.Insert(2, e.vm.NewFunction(e.loadModule))
}

func (e *Engine) loadModule(L *lua.LState) int {
	name := L.CheckString(1)
	p := e.modulePath(name)
	src, err := e.res.ReadText(e.context(), p)
	if err != nil {
		L.Push(lua.LString(fmt.Sprintf("\n\tno resource '%s'", p)))
		return 1
	}
	proto, err := e.chunks.compile(src, "@"+p)
	if err != nil {
		L.RaiseError("error loading module '%s': %s", name, err.Error())
		return 0
	}
	L.Push(L.NewFunctionFromProto(proto))
	return 1
}

// print concatenates its arguments and forwards the text to the log and to
// ScriptPrint listeners.
func (e *Engine) luaPrint(L *lua.LState) int {
	var sb strings.Builder
	for i := 1; i <= L.GetTop(); i++ {
		sb.WriteString(L.ToStringMeta(L.Get(i)).String())
	}
	text := sb.String()

	var sender ident.ID
	if vm := e.subs.Get(subsystem.NameVM); vm != nil {
		sender = vm.ID()
	}
	e.ctx.Bus.Send(sender, event.ScriptPrint, event.Data{event.PText: text})
	e.log.Info(text, zap.String("source", "lua"))
	return 0
}

func (e *Engine) luaModuleReadFile(L *lua.LState) int {
	p := L.CheckString(1)
	text, err := e.res.ReadText(e.context(), p)
	if err != nil {
		e.log.Debug("module read failed", zap.String("path", p), zap.Error(err))
		L.RaiseError("Unable to open module file")
		return 0
	}
	L.Push(lua.LString(text))
	return 1
}

// requireAPI(version) raises unless the host API is compatible: same major
// version and not older than requested.
func (e *Engine) atomicRequireAPI(L *lua.LState) int {
	want := L.CheckString(1)
	if !strings.HasPrefix(want, "v") {
		want = "v" + want
	}
	if !semver.IsValid(want) {
		L.ArgError(1, fmt.Sprintf("invalid version %q", L.CheckString(1)))
		return 0
	}
	if semver.Major(want) != semver.Major(APIVersion) || semver.Compare(want, APIVersion) > 0 {
		L.RaiseError("script requires API %s, host provides %s", want, APIVersion)
		return 0
	}
	L.Push(lua.LTrue)
	return 1
}

// script(src) runs src and reports success; errors are logged, not raised.
// A non-string argument is false.
func (e *Engine) atomicScript(L *lua.LState) int {
	src, ok := L.Get(1).(lua.LString)
	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	if err := e.ExecuteScript(string(src)); err != nil {
		e.log.Error("Atomic.script failed", zap.Error(err))
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LTrue)
	return 1
}

// destroy(obj) ignores anything that is not a live native object.
func (e *Engine) atomicDestroy(L *lua.LState) int {
	target := e.resolve(L.Get(1))
	if target == nil {
		e.log.Debug("destroy ignored", zap.String("arg", L.Get(1).Type().String()))
		return 0
	}
	e.Destroy(target)
	return 0
}

func (e *Engine) atomicCreateScene(L *lua.LState) int {
	s := e.CreateScene(L.OptString(1, "Scene"))
	L.Push(e.pushObject(s))
	return 1
}

func (e *Engine) atomicGetScenes(L *lua.LState) int {
	t := L.CreateTable(len(e.scenes), 0)
	for _, s := range e.scenes {
		t.Append(e.pushObject(s))
	}
	L.Push(t)
	return 1
}
