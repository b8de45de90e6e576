package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/scenebind/host/internal/core/event"
	"github.com/scenebind/host/internal/data"
	"github.com/scenebind/host/internal/scene"
)

// attachScript binds inst to a new script component on n. The instance gets
// node and component fields, its start method runs once, and its update
// method is driven by the Update event until the component is destroyed.
func (e *Engine) attachScript(n *scene.Node, inst *lua.LTable) (*scene.ScriptComponent, error) {
	sc := n.CreateScriptComponent(inst)
	inst.RawSetString("node", e.pushObject(n.Object()))
	inst.RawSetString("component", e.pushObject(sc))

	if _, ok := e.vm.GetField(inst, "update").(*lua.LFunction); ok {
		sc.SubscribeToEvent(event.Update, func(_ event.Type, data event.Data) {
			if sc.Destroyed() {
				return
			}
			dt, _ := data[event.PTimeStep].(float64)
			if err := e.callMethod(inst, "update", lua.LNumber(dt)); err != nil {
				e.log.Error("script update failed",
					zap.Uint64("component", uint64(sc.ID())),
					zap.Error(err),
				)
			}
		})
	}

	if err := e.callMethod(inst, "start"); err != nil {
		e.detachScript(n, sc, inst)
		return nil, err
	}
	return sc, nil
}

// detachScript undoes attachScript after a failed start: the component is
// flagged destroyed before its subscriptions go, then unregistered and
// removed from n.
func (e *Engine) detachScript(n *scene.Node, sc *scene.ScriptComponent, inst *lua.LTable) {
	sc.SetDestroyed()
	sc.UnsubscribeFromAllEvents()
	e.registry.Unregister(sc.ID())
	inst.RawSetString("component", lua.LNil)
	n.RemoveComponent(sc)
}

// LoadSceneFile reads a YAML scene description from the resource root and
// instantiates it.
func (e *Engine) LoadSceneFile(p string) (*scene.Scene, error) {
	raw, err := e.res.ReadFile(e.context(), p)
	if err != nil {
		return nil, err
	}
	def, err := data.ParseScene(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return e.LoadScene(def)
}

// LoadScene instantiates def as a new engine-owned scene. A failure tears
// down whatever was built.
func (e *Engine) LoadScene(def *data.SceneDef) (*scene.Scene, error) {
	s := e.CreateScene(def.Name)
	for i := range def.Nodes {
		if err := e.buildNode(s.Root(), &def.Nodes[i]); err != nil {
			e.Destroy(s)
			return nil, fmt.Errorf("load scene %s: %w", def.Name, err)
		}
	}
	e.log.Info("scene loaded", zap.String("name", def.Name), zap.Int("nodes", def.Count()))
	return s, nil
}

func (e *Engine) buildNode(parent *scene.Node, def *data.NodeDef) error {
	n := parent.CreateChild(def.Name)
	for _, c := range def.Components {
		if !c.IsScript() {
			n.CreateComponent(c.Type)
			continue
		}
		inst, err := e.instantiate(c.Script, c.Props)
		if err != nil {
			return fmt.Errorf("node %s: %w", def.Name, err)
		}
		if _, err := e.attachScript(n, inst); err != nil {
			return fmt.Errorf("node %s: %w", def.Name, err)
		}
	}
	for i := range def.Children {
		if err := e.buildNode(n, &def.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

// instantiate requires module and returns a fresh instance using the
// returned table as its class.
func (e *Engine) instantiate(module string, props map[string]any) (*lua.LTable, error) {
	if err := e.vm.CallByParam(lua.P{
		Fn:      e.vm.GetGlobal("require"),
		NRet:    1,
		Protect: true,
	}, lua.LString(module)); err != nil {
		return nil, fmt.Errorf("require %s: %w", module, err)
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)

	class, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("module %s returned %s, want table", module, ret.Type())
	}
	inst := e.vm.NewTable()
	mt := e.vm.NewTable()
	mt.RawSetString("__index", class)
	e.vm.SetMetatable(inst, mt)
	for k, v := range props {
		inst.RawSetString(k, e.toLua(v))
	}
	return inst, nil
}
