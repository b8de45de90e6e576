package lifecycle

import (
	"time"

	"github.com/scenebind/host/internal/core/ident"
	"github.com/scenebind/host/internal/scene"
	"go.uber.org/zap"
)

// Scope selects how much of a hierarchy a cascade tears down.
type Scope int

const (
	SelfOnly Scope = iota
	EntireSubtree
)

func (s Scope) String() string {
	if s == EntireSubtree {
		return "subtree"
	}
	return "self"
}

// Report summarizes one top-level cascade.
type Report struct {
	Target       ident.ID
	Kind         scene.Kind
	Name         string
	Scope        Scope
	Nodes        int
	Components   int
	Unregistered int
	At           time.Time
}

// Recorder receives a report after every top-level cascade.
type Recorder interface {
	Record(Report)
}

// Cascade severs script linkage and structural links of destroyed objects.
// It never frees anything itself: it drops links and registry entries and
// lets reference counting reclaim storage.
type Cascade struct {
	registry *Registry
	recorder Recorder
	log      *zap.Logger
}

func NewCascade(registry *Registry, log *zap.Logger) *Cascade {
	return &Cascade{registry: registry, log: log}
}

func (c *Cascade) SetRecorder(r Recorder) { c.recorder = r }

func (c *Cascade) Registry() *Registry { return c.registry }

// Destroy dispatches on the target's kind. Nodes and scenes are torn down
// with their entire subtree; components are fatal; anything else is ignored.
func (c *Cascade) Destroy(target scene.Object) Report {
	if target == nil {
		return Report{}
	}
	switch target.Kind() {
	case scene.KindNode:
		return c.DestroyNode(target.(*scene.Node), EntireSubtree)
	case scene.KindScene:
		return c.DestroyNode(target.(*scene.Scene).Root(), EntireSubtree)
	case scene.KindComponent, scene.KindScriptComponent:
		c.DestroyComponent(target.(scene.Component))
		return Report{}
	case scene.KindSubsystem:
		c.log.Debug("destroy ignored for subsystem", zap.String("type", target.TypeName()))
		return Report{}
	default:
		return Report{}
	}
}

// DestroyComponent always fails: there is no single component teardown
// protocol, and a half torn-down node is worse than stopping.
func (c *Cascade) DestroyComponent(comp scene.Component) {
	fatal("destroy component", comp.ID(), comp.Refs(), ErrComponentDestroyUnsupported)
}

// DestroyNode tears down n (and, for EntireSubtree, every descendant that
// holds a proxy). A parented n must be held by the caller.
func (c *Cascade) DestroyNode(n *scene.Node, scope Scope) Report {
	rep := Report{
		Target: n.ID(),
		Kind:   n.Kind(),
		Name:   n.Name(),
		Scope:  scope,
		At:     time.Now(),
	}

	if scope == EntireSubtree {
		// Snapshot before mutating any child list. Each snapshotted node is
		// held until every teardown is done so detaching an ancestor first
		// cannot reclaim it mid-cascade.
		var marked []*scene.Node
		for _, d := range n.Children(true) {
			if c.holdsProxy(d) {
				d.AddRef()
				marked = append(marked, d)
			}
		}
		for _, d := range marked {
			c.teardown(d, &rep)
		}
		c.teardown(n, &rep)
		for _, d := range marked {
			d.ReleaseRef()
		}
	} else {
		c.teardown(n, &rep)
	}

	c.log.Debug("destruction cascade",
		zap.Uint64("target", uint64(rep.Target)),
		zap.String("kind", rep.Kind.String()),
		zap.String("name", rep.Name),
		zap.Stringer("scope", rep.Scope),
		zap.Int("nodes", rep.Nodes),
		zap.Int("components", rep.Components),
		zap.Int("unregistered", rep.Unregistered),
	)
	if c.recorder != nil {
		c.recorder.Record(rep)
	}
	return rep
}

// holdsProxy reports whether n or one of its components has a registered
// proxy.
func (c *Cascade) holdsProxy(n *scene.Node) bool {
	if c.registry.Has(n.ID()) {
		return true
	}
	for _, comp := range n.Components() {
		if c.registry.Has(comp.ID()) {
			return true
		}
	}
	return false
}

// teardown runs the self-only steps on a single node.
func (c *Cascade) teardown(n *scene.Node, rep *Report) {
	comps := n.Components()
	for _, comp := range comps {
		// destroyed must be visible before any handler runs during unsubscription
		if sc, ok := comp.(*scene.ScriptComponent); ok {
			sc.SetDestroyed()
		}
		comp.UnsubscribeFromAllEvents()
	}

	for _, comp := range comps {
		if c.registry.Unregister(comp.ID()) {
			rep.Unregistered++
		}
	}
	n.RemoveAllComponents()
	rep.Components += len(comps)

	n.UnsubscribeFromAllEvents()

	if n.Parent() != nil {
		if n.Refs() < 2 {
			fatal("detach node", n.ID(), n.Refs(), ErrParentRefs)
		}
		n.Remove()
	}

	if c.registry.Unregister(n.ID()) {
		rep.Unregistered++
	}
	rep.Nodes++
}
