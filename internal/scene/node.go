package scene

import (
	"errors"
	"fmt"

	"github.com/scenebind/host/internal/core/event"
)

// ErrComponentAttached is returned when a component that already belongs to
// a node is added to another one.
var ErrComponentAttached = errors.New("component already attached to a node")

// Node is a hierarchical scene object. A parent holds one reference on each
// child; a node holds one reference on each of its components. The parent
// pointer is a plain back-reference and holds nothing.
type Node struct {
	Base
	kind       Kind
	outer      Object
	name       string
	parent     *Node
	children   []*Node
	components []Component
}

// NewNode creates a detached node with no references. The caller must either
// attach it to a parent or take a hold on it.
func NewNode(ctx *Context, name string) *Node {
	n := &Node{kind: KindNode, name: name}
	n.outer = n
	n.Init(ctx, n, n.release)
	return n
}

func (n *Node) Kind() Kind         { return n.kind }
func (n *Node) TypeName() string   { return n.kind.String() }
func (n *Node) Name() string       { return n.name }
func (n *Node) SetName(s string)   { n.name = s }
func (n *Node) Parent() *Node      { return n.parent }
func (n *Node) NumChildren() int   { return len(n.children) }
func (n *Node) NumComponents() int { return len(n.components) }

// Object returns the outermost value wrapping this node (the *Scene for a
// scene root).
func (n *Node) Object() Object { return n.outer }

// Scene returns the scene at the root of this node's hierarchy, or nil.
func (n *Node) Scene() *Scene {
	root := n
	for root.parent != nil {
		root = root.parent
	}
	s, _ := root.outer.(*Scene)
	return s
}

// CreateChild creates a node and attaches it under n.
func (n *Node) CreateChild(name string) *Node {
	child := NewNode(n.ctx, name)
	n.AddChild(child)
	return child
}

// AddChild attaches child under n, detaching it from its previous parent.
// Adding n to itself or to one of its own descendants is ignored.
func (n *Node) AddChild(child *Node) {
	if child == nil || child == n || child.parent == n || child.kind == KindScene {
		return
	}
	for p := n.parent; p != nil; p = p.parent {
		if p == child {
			return
		}
	}
	child.AddRef()
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	child.parent = n
	n.children = append(n.children, child)
}

// RemoveChild detaches child from n and drops n's reference on it.
func (n *Node) RemoveChild(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.removeChildAt(i)
			return
		}
	}
}

// Remove detaches n from its parent, if any.
func (n *Node) Remove() {
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
}

func (n *Node) removeChildAt(i int) {
	child := n.children[i]
	n.children = append(n.children[:i:i], n.children[i+1:]...)
	child.parent = nil
	n.SendEvent(event.NodeRemoved, event.Data{
		event.PNode:   child.ID(),
		event.PParent: n.ID(),
	})
	child.ReleaseRef()
}

// Children returns a fresh snapshot of n's children. With recursive set it
// returns every descendant, depth-first.
func (n *Node) Children(recursive bool) []*Node {
	out := make([]*Node, 0, len(n.children))
	if !recursive {
		return append(out, n.children...)
	}
	var walk func(*Node)
	walk = func(p *Node) {
		for _, c := range p.children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(n)
	return out
}

// Child finds a child by name.
func (n *Node) Child(name string, recursive bool) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
		if recursive {
			if found := c.Child(name, true); found != nil {
				return found
			}
		}
	}
	return nil
}

// Components returns a snapshot of the attached components.
func (n *Node) Components() []Component {
	return append([]Component(nil), n.components...)
}

// AddComponent attaches c to n.
func (n *Node) AddComponent(c Component) error {
	if owner := c.Node(); owner != nil {
		if owner == n {
			return nil
		}
		return fmt.Errorf("add %s to node %q: %w", c.TypeName(), n.name, ErrComponentAttached)
	}
	n.attach(c)
	return nil
}

func (n *Node) attach(c Component) {
	c.AddRef()
	c.setNode(n)
	n.components = append(n.components, c)
}

// CreateComponent creates and attaches a native component of typeName.
func (n *Node) CreateComponent(typeName string) *NativeComponent {
	c := NewComponent(n.ctx, typeName)
	n.attach(c)
	return c
}

// CreateScriptComponent creates and attaches a script component bound to the
// given script-heap instance.
func (n *Node) CreateScriptComponent(instance any) *ScriptComponent {
	c := NewScriptComponent(n.ctx, instance)
	n.attach(c)
	return c
}

// RemoveComponent detaches c from n.
func (n *Node) RemoveComponent(c Component) {
	for i, o := range n.components {
		if o == c {
			n.components = append(n.components[:i:i], n.components[i+1:]...)
			n.detachComponent(c)
			return
		}
	}
}

// RemoveAllComponents detaches every component. n owns no component
// afterwards; each one is reclaimed once nothing else holds it.
func (n *Node) RemoveAllComponents() {
	comps := n.components
	n.components = nil
	for _, c := range comps {
		n.detachComponent(c)
	}
}

func (n *Node) detachComponent(c Component) {
	n.SendEvent(event.ComponentRemoved, event.Data{
		event.PNode:      n.ID(),
		event.PComponent: c.ID(),
	})
	c.setNode(nil)
	c.ReleaseRef()
}

// release runs when the last reference is dropped: components go first, then
// subscriptions, then the children lose their parent's reference.
func (n *Node) release() {
	n.RemoveAllComponents()
	n.UnsubscribeFromAllEvents()
	children := n.children
	n.children = nil
	for _, c := range children {
		c.parent = nil
		c.ReleaseRef()
	}
}
