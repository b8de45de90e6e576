package scene

// Component is attached to exactly one node at a time.
type Component interface {
	Object
	Node() *Node
	setNode(*Node)
}

type componentBase struct {
	Base
	node *Node
}

func (c *componentBase) Node() *Node     { return c.node }
func (c *componentBase) setNode(n *Node) { c.node = n }

// NativeComponent is a component implemented entirely on the native side.
type NativeComponent struct {
	componentBase
	typeName string
}

func NewComponent(ctx *Context, typeName string) *NativeComponent {
	c := &NativeComponent{typeName: typeName}
	c.Init(ctx, c, c.UnsubscribeFromAllEvents)
	return c
}

func (c *NativeComponent) Kind() Kind       { return KindComponent }
func (c *NativeComponent) TypeName() string { return c.typeName }

// ScriptComponent is a component whose behaviour lives in the script heap.
// Once destroyed it must refuse to act, even when one of its handlers is
// still invoked during teardown.
type ScriptComponent struct {
	componentBase
	instance  any
	destroyed bool
}

func NewScriptComponent(ctx *Context, instance any) *ScriptComponent {
	c := &ScriptComponent{instance: instance}
	c.Init(ctx, c, c.release)
	return c
}

func (c *ScriptComponent) Kind() Kind       { return KindScriptComponent }
func (c *ScriptComponent) TypeName() string { return "ScriptComponent" }

// Instance returns the script-heap back-link, nil once released.
func (c *ScriptComponent) Instance() any { return c.instance }

func (c *ScriptComponent) SetDestroyed()   { c.destroyed = true }
func (c *ScriptComponent) Destroyed() bool { return c.destroyed }

func (c *ScriptComponent) release() {
	c.SetDestroyed()
	c.UnsubscribeFromAllEvents()
	c.instance = nil
}
