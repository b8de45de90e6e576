package scene

import (
	"fmt"

	"github.com/scenebind/host/internal/core/event"
	"github.com/scenebind/host/internal/core/ident"
	"go.uber.org/zap"
)

// Kind is the closed set of native object variants.
type Kind int

const (
	KindNode Kind = iota
	KindScene
	KindComponent
	KindScriptComponent
	KindSubsystem
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "Node"
	case KindScene:
		return "Scene"
	case KindComponent:
		return "Component"
	case KindScriptComponent:
		return "ScriptComponent"
	case KindSubsystem:
		return "Subsystem"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Object is anything that lives in the native object graph.
//
// Storage is reference counted: ReleaseRef dropping the count to zero is the
// only thing that tears an object down and queues its id for reclamation.
type Object interface {
	ID() ident.ID
	Kind() Kind
	TypeName() string
	Refs() int
	AddRef()
	ReleaseRef()
	Expired() bool
	UnsubscribeFromAllEvents()
}

// Context is shared by every object of one runtime.
// Tick loop only.
type Context struct {
	World   *ident.World
	Bus     *event.Bus
	objects *ident.Store[Object]
	log     *zap.Logger
}

func NewContext(log *zap.Logger) *Context {
	c := &Context{
		World:   ident.NewWorld(),
		Bus:     event.NewBus(),
		objects: ident.NewStore[Object](),
		log:     log,
	}
	c.World.Register(c.objects)
	return c
}

// Lookup resolves id to a live object, or nil when the id is unknown or the
// object has been released.
func (c *Context) Lookup(id ident.ID) Object {
	o, ok := c.objects.Get(id)
	if !ok || o.Expired() {
		return nil
	}
	return o
}

// Objects returns the number of tracked objects, including released ones
// whose ids have not been reclaimed yet.
func (c *Context) Objects() int {
	return c.objects.Len()
}

func (c *Context) Log() *zap.Logger { return c.log }

// Base carries identity and the reference count. Concrete objects embed it
// and call Init from their constructor.
type Base struct {
	ctx       *Context
	id        ident.ID
	refs      int
	expired   bool
	onRelease func()
}

// Init allocates an id for self and starts tracking it. onRelease runs once,
// when the last reference is dropped.
func (b *Base) Init(ctx *Context, self Object, onRelease func()) {
	b.ctx = ctx
	b.id = ctx.World.Create()
	b.onRelease = onRelease
	ctx.objects.Set(b.id, self)
}

func (b *Base) ID() ident.ID      { return b.id }
func (b *Base) Context() *Context { return b.ctx }
func (b *Base) Refs() int         { return b.refs }
func (b *Base) Expired() bool     { return b.expired }

func (b *Base) AddRef() {
	if b.expired {
		panic(fmt.Sprintf("scene: AddRef on released object %d", b.id))
	}
	b.refs++
}

func (b *Base) ReleaseRef() {
	if b.refs <= 0 {
		panic(fmt.Sprintf("scene: ReleaseRef below zero on object %d", b.id))
	}
	b.refs--
	if b.refs > 0 {
		return
	}
	b.expired = true
	if b.onRelease != nil {
		b.onRelease()
	}
	b.ctx.World.QueueFree(b.id)
	b.ctx.log.Debug("object released", zap.Uint64("id", uint64(b.id)))
}

// UnsubscribeFromAllEvents drops every subscription this object holds.
func (b *Base) UnsubscribeFromAllEvents() {
	b.ctx.Bus.UnsubscribeAll(b.id)
}

// SubscribeToEvent subscribes this object to t.
func (b *Base) SubscribeToEvent(t event.Type, fn event.Handler) {
	b.ctx.Bus.Subscribe(b.id, t, fn)
}

// SendEvent sends t with this object as sender.
func (b *Base) SendEvent(t event.Type, data event.Data) {
	b.ctx.Bus.Send(b.id, t, data)
}

// EmitEvent queues t with this object as sender for the next tick.
func (b *Base) EmitEvent(t event.Type, data event.Data) {
	b.ctx.Bus.Emit(b.id, t, data)
}
