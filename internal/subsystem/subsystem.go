// Package subsystem holds the fixed set of engine services scripts can reach
// through the Atomic accessors. Each one is a native object so it gets a
// proxy like any node, but scripts can never destroy it.
package subsystem

import (
	"github.com/scenebind/host/internal/scene"
)

// Names of the subsystems, also used as their type names.
const (
	NameEngine        = "Engine"
	NameVM            = "VM"
	NameRenderer      = "Renderer"
	NameGraphics      = "Graphics"
	NameInput         = "Input"
	NameFileSystem    = "FileSystem"
	NameResourceCache = "ResourceCache"
	NameNetwork       = "Network"
)

// Subsystem is a named, long-lived native object.
type Subsystem interface {
	scene.Object
	Name() string
}

type base struct {
	scene.Base
	name string
}

func (b *base) init(ctx *scene.Context, self Subsystem, name string) {
	b.name = name
	b.Init(ctx, self, b.UnsubscribeFromAllEvents)
}

func (b *base) Kind() scene.Kind { return scene.KindSubsystem }
func (b *base) TypeName() string { return b.name }
func (b *base) Name() string     { return b.name }

// Set owns one reference on every registered subsystem.
type Set struct {
	byName map[string]Subsystem
	order  []Subsystem
}

func NewSet() *Set {
	return &Set{byName: make(map[string]Subsystem, 8)}
}

// Add registers sub, replacing nothing: a second subsystem with the same
// name is ignored and false is returned.
func (s *Set) Add(sub Subsystem) bool {
	if _, ok := s.byName[sub.Name()]; ok {
		return false
	}
	sub.AddRef()
	s.byName[sub.Name()] = sub
	s.order = append(s.order, sub)
	return true
}

// Get returns the subsystem registered under name, or nil.
func (s *Set) Get(name string) Subsystem {
	return s.byName[name]
}

// Names returns the registered names in registration order.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.order))
	for _, sub := range s.order {
		out = append(out, sub.Name())
	}
	return out
}

// Close releases every subsystem in reverse registration order.
func (s *Set) Close() {
	for i := len(s.order) - 1; i >= 0; i-- {
		s.order[i].ReleaseRef()
	}
	s.order = nil
	clear(s.byName)
}

// Of returns the first registered subsystem of type T.
func Of[T Subsystem](s *Set) (T, bool) {
	for _, sub := range s.order {
		if t, ok := sub.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}
