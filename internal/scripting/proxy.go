package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/scenebind/host/internal/core/event"
	"github.com/scenebind/host/internal/core/ident"
	"github.com/scenebind/host/internal/scene"
	"github.com/scenebind/host/internal/subsystem"
)

const (
	metaNode      = "Atomic.Node"
	metaScene     = "Atomic.Scene"
	metaComponent = "Atomic.Component"
	metaScript    = "Atomic.ScriptComponent"
	metaSubsystem = "Atomic.Subsystem."
)

const errDestroyed = "object has been destroyed"

// proxy is the userdata payload. It never points at the native object.
type proxy struct {
	id   ident.ID
	kind scene.Kind
	name string // type name, for printing stale proxies
}

func metaName(o scene.Object) string {
	switch o.Kind() {
	case scene.KindNode:
		return metaNode
	case scene.KindScene:
		return metaScene
	case scene.KindComponent:
		return metaComponent
	case scene.KindScriptComponent:
		return metaScript
	default:
		return metaSubsystem + o.TypeName()
	}
}

// pushObject returns the proxy of o, creating and registering one on first
// use. A nil object maps to nil.
func (e *Engine) pushObject(o scene.Object) lua.LValue {
	if o == nil || o.Expired() {
		return lua.LNil
	}
	if h, ok := e.registry.Lookup(o.ID()); ok {
		if ud, ok := h.(*lua.LUserData); ok {
			return ud
		}
	}
	ud := e.vm.NewUserData()
	ud.Value = &proxy{id: o.ID(), kind: o.Kind(), name: o.TypeName()}
	ud.Metatable = e.vm.GetTypeMetatable(metaName(o))
	if err := e.registry.Register(o.ID(), ud); err != nil {
		e.log.Error("proxy registration failed", zap.Error(err))
	}
	return ud
}

// resolve maps a script value to a live native object, or nil.
func (e *Engine) resolve(lv lua.LValue) scene.Object {
	ud, ok := lv.(*lua.LUserData)
	if !ok {
		return nil
	}
	p, ok := ud.Value.(*proxy)
	if !ok {
		return nil
	}
	return e.ctx.Lookup(p.id)
}

// checkObject resolves argument n or raises when the proxy is stale.
func (e *Engine) checkObject(L *lua.LState, n int) scene.Object {
	ud := L.CheckUserData(n)
	if _, ok := ud.Value.(*proxy); !ok {
		L.ArgError(n, "native object expected")
		return nil
	}
	o := e.resolve(ud)
	if o == nil {
		L.RaiseError(errDestroyed)
		return nil
	}
	return o
}

func (e *Engine) checkNode(L *lua.LState, n int) *scene.Node {
	switch o := e.checkObject(L, n).(type) {
	case *scene.Node:
		return o
	case *scene.Scene:
		return o.Root()
	default:
		L.ArgError(n, "node expected")
		return nil
	}
}

func (e *Engine) checkComponent(L *lua.LState, n int) scene.Component {
	c, ok := e.checkObject(L, n).(scene.Component)
	if !ok {
		L.ArgError(n, "component expected")
		return nil
	}
	return c
}

// subscriber is implemented by every native object that can listen to events.
type subscriber interface {
	scene.Object
	SubscribeToEvent(event.Type, event.Handler)
	SendEvent(event.Type, event.Data)
	EmitEvent(event.Type, event.Data)
}

func (e *Engine) registerMetatables() {
	common := map[string]lua.LGFunction{
		"getID":       e.objGetID,
		"getTypeName": e.objGetTypeName,
		"isValid":     e.objIsValid,
		"subscribe":   e.objSubscribe,
		"unsubscribe": e.objUnsubscribe,
		"sendEvent":   e.objSendEvent,
		"emitEvent":   e.objEmitEvent,
	}

	nodeMethods := merge(common, map[string]lua.LGFunction{
		"getName":               e.nodeGetName,
		"setName":               e.nodeSetName,
		"createChild":           e.nodeCreateChild,
		"getChild":              e.nodeGetChild,
		"getChildren":           e.nodeGetChildren,
		"getParent":             e.nodeGetParent,
		"getScene":              e.nodeGetScene,
		"getComponents":         e.nodeGetComponents,
		"getComponent":          e.nodeGetComponent,
		"createComponent":       e.nodeCreateComponent,
		"createScriptComponent": e.nodeCreateScriptComponent,
	})
	e.newMetatable(metaNode, nodeMethods)
	e.newMetatable(metaScene, nodeMethods)

	compMethods := merge(common, map[string]lua.LGFunction{
		"getNode":     e.compGetNode,
		"isDestroyed": e.compIsDestroyed,
		"getInstance": e.compGetInstance,
	})
	e.newMetatable(metaComponent, compMethods)
	e.newMetatable(metaScript, compMethods)

	for name, methods := range e.subsystemMethods() {
		e.newMetatable(metaSubsystem+name, merge(common, methods))
	}
}

func (e *Engine) newMetatable(name string, methods map[string]lua.LGFunction) {
	mt := e.vm.NewTypeMetatable(name)
	e.vm.SetField(mt, "__index", e.vm.SetFuncs(e.vm.NewTable(), methods))
	e.vm.SetField(mt, "__tostring", e.vm.NewFunction(e.proxyToString))
}

func merge(a, b map[string]lua.LGFunction) map[string]lua.LGFunction {
	out := make(map[string]lua.LGFunction, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func (e *Engine) proxyToString(L *lua.LState) int {
	ud := L.CheckUserData(1)
	p, ok := ud.Value.(*proxy)
	if !ok {
		L.Push(lua.LString("userdata"))
		return 1
	}
	o := e.resolve(ud)
	switch n := o.(type) {
	case nil:
		L.Push(lua.LString(fmt.Sprintf("%s#%d (destroyed)", p.name, p.id)))
	case *scene.Node:
		L.Push(lua.LString(fmt.Sprintf("Node(%s)#%d", n.Name(), p.id)))
	case *scene.Scene:
		L.Push(lua.LString(fmt.Sprintf("Scene(%s)#%d", n.Name(), p.id)))
	default:
		L.Push(lua.LString(fmt.Sprintf("%s#%d", o.TypeName(), p.id)))
	}
	return 1
}

// ---------------------------------------------------------------------------
// Methods shared by every proxy
// ---------------------------------------------------------------------------

func (e *Engine) objGetID(L *lua.LState) int {
	L.Push(lua.LNumber(e.checkObject(L, 1).ID()))
	return 1
}

func (e *Engine) objGetTypeName(L *lua.LState) int {
	L.Push(lua.LString(e.checkObject(L, 1).TypeName()))
	return 1
}

// isValid never raises: a stale proxy is simply invalid.
func (e *Engine) objIsValid(L *lua.LState) int {
	L.Push(lua.LBool(e.resolve(L.Get(1)) != nil))
	return 1
}

func (e *Engine) checkSubscriber(L *lua.LState) subscriber {
	s, ok := e.checkObject(L, 1).(subscriber)
	if !ok {
		L.ArgError(1, "object cannot receive events")
		return nil
	}
	return s
}

// subscribe(eventName, fn): fn(eventName, data) runs on every matching event
// until the object unsubscribes or is torn down.
func (e *Engine) objSubscribe(L *lua.LState) int {
	s := e.checkSubscriber(L)
	typ := event.Type(L.CheckString(2))
	fn := L.CheckFunction(3)
	s.SubscribeToEvent(typ, func(t event.Type, data event.Data) {
		if err := e.vm.CallByParam(lua.P{
			Fn:      fn,
			NRet:    0,
			Protect: true,
		}, lua.LString(t), e.eventTable(data)); err != nil {
			e.log.Error("lua event handler error",
				zap.String("event", string(t)),
				zap.Uint64("subscriber", uint64(s.ID())),
				zap.Error(err),
			)
		}
	})
	return 0
}

func (e *Engine) objUnsubscribe(L *lua.LState) int {
	s := e.checkSubscriber(L)
	e.ctx.Bus.Unsubscribe(s.ID(), event.Type(L.CheckString(2)))
	return 0
}

// sendEvent(eventName [, data]) sends immediately with the object as sender.
func (e *Engine) objSendEvent(L *lua.LState) int {
	s := e.checkSubscriber(L)
	s.SendEvent(event.Type(L.CheckString(2)), e.eventData(L, 3))
	return 0
}

// emitEvent(eventName [, data]) queues the event; subscribers see it on the
// next tick.
func (e *Engine) objEmitEvent(L *lua.LState) int {
	s := e.checkSubscriber(L)
	s.EmitEvent(event.Type(L.CheckString(2)), e.eventData(L, 3))
	return 0
}

func (e *Engine) eventData(L *lua.LState, idx int) event.Data {
	data := event.Data{}
	if t, ok := L.Get(idx).(*lua.LTable); ok {
		t.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				data[string(ks)] = e.fromLua(v)
			}
		})
	}
	return data
}

// eventTable converts event data for a script handler. Ids of objects that
// already have a proxy are passed as that proxy; no proxy is created here,
// since handlers also run in the middle of a cascade.
func (e *Engine) eventTable(data event.Data) *lua.LTable {
	t := e.vm.CreateTable(0, len(data))
	for k, v := range data {
		t.RawSetString(k, e.toLua(v))
	}
	return t
}

func (e *Engine) toLua(v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case ident.ID:
		if h, ok := e.registry.Lookup(x); ok && e.ctx.Lookup(x) != nil {
			if ud, ok := h.(*lua.LUserData); ok {
				return ud
			}
		}
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case []any:
		t := e.vm.CreateTable(len(x), 0)
		for _, item := range x {
			t.Append(e.toLua(item))
		}
		return t
	case map[string]any:
		t := e.vm.CreateTable(0, len(x))
		for k, item := range x {
			t.RawSetString(k, e.toLua(item))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

func (e *Engine) fromLua(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LString:
		return string(x)
	case lua.LNumber:
		return float64(x)
	case lua.LBool:
		return bool(x)
	case *lua.LUserData:
		if p, ok := x.Value.(*proxy); ok {
			return p.id
		}
		return x
	default:
		return v
	}
}

// ---------------------------------------------------------------------------
// Node and Scene methods
// ---------------------------------------------------------------------------

func (e *Engine) nodeGetName(L *lua.LState) int {
	L.Push(lua.LString(e.checkNode(L, 1).Name()))
	return 1
}

func (e *Engine) nodeSetName(L *lua.LState) int {
	e.checkNode(L, 1).SetName(L.CheckString(2))
	return 0
}

func (e *Engine) nodeCreateChild(L *lua.LState) int {
	n := e.checkNode(L, 1)
	L.Push(e.pushObject(n.CreateChild(L.OptString(2, ""))))
	return 1
}

func (e *Engine) nodeGetChild(L *lua.LState) int {
	n := e.checkNode(L, 1)
	child := n.Child(L.CheckString(2), L.OptBool(3, false))
	if child == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(e.pushObject(child))
	return 1
}

func (e *Engine) nodeGetChildren(L *lua.LState) int {
	n := e.checkNode(L, 1)
	children := n.Children(L.OptBool(2, false))
	t := L.CreateTable(len(children), 0)
	for _, c := range children {
		t.Append(e.pushObject(c))
	}
	L.Push(t)
	return 1
}

func (e *Engine) nodeGetParent(L *lua.LState) int {
	p := e.checkNode(L, 1).Parent()
	if p == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(e.pushObject(p.Object()))
	return 1
}

func (e *Engine) nodeGetScene(L *lua.LState) int {
	s := e.checkNode(L, 1).Scene()
	if s == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(e.pushObject(s))
	return 1
}

func (e *Engine) nodeGetComponents(L *lua.LState) int {
	comps := e.checkNode(L, 1).Components()
	t := L.CreateTable(len(comps), 0)
	for _, c := range comps {
		t.Append(e.pushObject(c))
	}
	L.Push(t)
	return 1
}

func (e *Engine) nodeGetComponent(L *lua.LState) int {
	n := e.checkNode(L, 1)
	typeName := L.CheckString(2)
	for _, c := range n.Components() {
		if c.TypeName() == typeName {
			L.Push(e.pushObject(c))
			return 1
		}
	}
	L.Push(lua.LNil)
	return 1
}

func (e *Engine) nodeCreateComponent(L *lua.LState) int {
	n := e.checkNode(L, 1)
	L.Push(e.pushObject(n.CreateComponent(L.CheckString(2))))
	return 1
}

// createScriptComponent(instance) binds a script table to a new component.
func (e *Engine) nodeCreateScriptComponent(L *lua.LState) int {
	n := e.checkNode(L, 1)
	inst := L.CheckTable(2)
	sc, err := e.attachScript(n, inst)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(e.pushObject(sc))
	return 1
}

// ---------------------------------------------------------------------------
// Component methods
// ---------------------------------------------------------------------------

func (e *Engine) compGetNode(L *lua.LState) int {
	n := e.checkComponent(L, 1).Node()
	if n == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(e.pushObject(n.Object()))
	return 1
}

// isDestroyed does not raise on a stale proxy: a reclaimed component is
// destroyed.
func (e *Engine) compIsDestroyed(L *lua.LState) int {
	switch c := e.resolve(L.Get(1)).(type) {
	case nil:
		L.Push(lua.LTrue)
	case *scene.ScriptComponent:
		L.Push(lua.LBool(c.Destroyed()))
	default:
		L.Push(lua.LFalse)
	}
	return 1
}

func (e *Engine) compGetInstance(L *lua.LState) int {
	sc, ok := e.checkComponent(L, 1).(*scene.ScriptComponent)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	if t, ok := sc.Instance().(*lua.LTable); ok {
		L.Push(t)
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

// ---------------------------------------------------------------------------
// Subsystem methods
// ---------------------------------------------------------------------------

func checkSubsystem[T subsystem.Subsystem](e *Engine, L *lua.LState) T {
	t, ok := e.checkObject(L, 1).(T)
	if !ok {
		L.ArgError(1, "subsystem expected")
	}
	return t
}

func (e *Engine) subsystemMethods() map[string]map[string]lua.LGFunction {
	getName := func(L *lua.LState) int {
		s, ok := e.checkObject(L, 1).(subsystem.Subsystem)
		if !ok {
			L.ArgError(1, "subsystem expected")
			return 0
		}
		L.Push(lua.LString(s.Name()))
		return 1
	}
	with := func(m map[string]lua.LGFunction) map[string]lua.LGFunction {
		m["getName"] = getName
		return m
	}

	return map[string]map[string]lua.LGFunction{
		subsystem.NameEngine: with(map[string]lua.LGFunction{
			"getFrameNumber": func(L *lua.LState) int {
				L.Push(lua.LNumber(checkSubsystem[*subsystem.Engine](e, L).Frames()))
				return 1
			},
			"getElapsedTime": func(L *lua.LState) int {
				L.Push(lua.LNumber(checkSubsystem[*subsystem.Engine](e, L).Elapsed().Seconds()))
				return 1
			},
			"exit": func(L *lua.LState) int {
				checkSubsystem[*subsystem.Engine](e, L).Exit()
				return 0
			},
		}),
		subsystem.NameVM: with(map[string]lua.LGFunction{
			"getAPIVersion": func(L *lua.LState) int {
				L.Push(lua.LString(checkSubsystem[*subsystem.VM](e, L).APIVersion))
				return 1
			},
			"getScriptsDir": func(L *lua.LState) int {
				L.Push(lua.LString(checkSubsystem[*subsystem.VM](e, L).ScriptsDir))
				return 1
			},
		}),
		subsystem.NameRenderer: with(map[string]lua.LGFunction{
			"getNumViewports": func(L *lua.LState) int {
				L.Push(lua.LNumber(checkSubsystem[*subsystem.Renderer](e, L).NumViewports()))
				return 1
			},
			"setNumViewports": func(L *lua.LState) int {
				checkSubsystem[*subsystem.Renderer](e, L).SetNumViewports(L.CheckInt(2))
				return 0
			},
		}),
		subsystem.NameGraphics: with(map[string]lua.LGFunction{
			"getWidth": func(L *lua.LState) int {
				L.Push(lua.LNumber(checkSubsystem[*subsystem.Graphics](e, L).Width()))
				return 1
			},
			"getHeight": func(L *lua.LState) int {
				L.Push(lua.LNumber(checkSubsystem[*subsystem.Graphics](e, L).Height()))
				return 1
			},
			"getWindowTitle": func(L *lua.LState) int {
				L.Push(lua.LString(checkSubsystem[*subsystem.Graphics](e, L).Title()))
				return 1
			},
		}),
		subsystem.NameInput: with(map[string]lua.LGFunction{
			"getKeyDown": func(L *lua.LState) int {
				L.Push(lua.LBool(checkSubsystem[*subsystem.Input](e, L).KeyDown(L.CheckString(2))))
				return 1
			},
		}),
		subsystem.NameFileSystem: with(map[string]lua.LGFunction{
			"fileExists": func(L *lua.LState) int {
				fs := checkSubsystem[*subsystem.FileSystem](e, L)
				L.Push(lua.LBool(fs.FileExists(e.context(), L.CheckString(2))))
				return 1
			},
			"dirExists": func(L *lua.LState) int {
				fs := checkSubsystem[*subsystem.FileSystem](e, L)
				L.Push(lua.LBool(fs.DirExists(e.context(), L.CheckString(2))))
				return 1
			},
		}),
		subsystem.NameResourceCache: with(map[string]lua.LGFunction{
			"getFile": func(L *lua.LState) int {
				rc := checkSubsystem[*subsystem.ResourceCache](e, L)
				text, err := rc.GetFile(e.context(), L.CheckString(2))
				if err != nil {
					L.Push(lua.LNil)
					L.Push(lua.LString(err.Error()))
					return 2
				}
				L.Push(lua.LString(text))
				return 1
			},
		}),
		subsystem.NameNetwork: with(map[string]lua.LGFunction{
			"getNumConnections": func(L *lua.LState) int {
				L.Push(lua.LNumber(checkSubsystem[*subsystem.Network](e, L).NumConnections()))
				return 1
			},
			"getAddress": func(L *lua.LState) int {
				L.Push(lua.LString(checkSubsystem[*subsystem.Network](e, L).Address()))
				return 1
			},
		}),
	}
}
