package event

import (
	"sync"

	"github.com/scenebind/host/internal/core/ident"
)

// Handler receives one event. data may be nil.
type Handler func(t Type, data Data)

type subscription struct {
	subscriber ident.ID
	typ        Type
	fn         Handler
	removed    bool
}

type queued struct {
	sender ident.ID
	typ    Type
	data   Data
}

// Bus is the event subscription ledger plus dispatcher. Send delivers
// synchronously; Emit is double-buffered, so events emitted in tick N are
// delivered in tick N+1 after SwapBuffers.
//
// Every subscription is recorded per subscriber so an object's teardown can
// drop all of them with UnsubscribeAll.
type Bus struct {
	mu       sync.Mutex // only protects the deferred buffers
	front    []queued
	back     []queued
	handlers map[Type][]*subscription
	ledger   map[ident.ID][]*subscription
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]*subscription),
		ledger:   make(map[ident.ID][]*subscription),
	}
}

// Subscribe registers fn for events of type t on behalf of subscriber.
// An existing subscription of the same pair is replaced.
func (b *Bus) Subscribe(subscriber ident.ID, t Type, fn Handler) {
	b.Unsubscribe(subscriber, t)
	s := &subscription{subscriber: subscriber, typ: t, fn: fn}
	b.handlers[t] = append(b.handlers[t], s)
	b.ledger[subscriber] = append(b.ledger[subscriber], s)
}

// Unsubscribe removes subscriber's handler for t, if any.
func (b *Bus) Unsubscribe(subscriber ident.ID, t Type) {
	for _, s := range b.ledger[subscriber] {
		if s.typ == t {
			b.remove(s)
			return
		}
	}
}

// UnsubscribeAll clears subscriber's ledger. For every removed subscription
// an Unsubscribed event is sent from subscriber before the next one is
// removed, so listeners (including the subscriber's own Unsubscribed
// handler, which goes last) run while the teardown is in progress.
func (b *Bus) UnsubscribeAll(subscriber ident.ID) {
	subs := append([]*subscription(nil), b.ledger[subscriber]...)
	var farewell *subscription
	for _, s := range subs {
		if s.removed {
			continue
		}
		if s.typ == Unsubscribed {
			farewell = s
			continue
		}
		b.remove(s)
		b.Send(subscriber, Unsubscribed, Data{PEvent: string(s.typ)})
	}
	if farewell != nil {
		b.remove(farewell)
	}
	// handlers may have subscribed again during the notices
	for _, s := range b.ledger[subscriber] {
		b.remove(s)
	}
	delete(b.ledger, subscriber)
}

// Subscriptions returns the event types subscriber currently listens to.
func (b *Bus) Subscriptions(subscriber ident.ID) []Type {
	subs := b.ledger[subscriber]
	if len(subs) == 0 {
		return nil
	}
	out := make([]Type, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.typ)
	}
	return out
}

func (b *Bus) HasSubscriptions(subscriber ident.ID) bool {
	return len(b.ledger[subscriber]) > 0
}

// Subscribers returns the number of live subscriptions for t.
func (b *Bus) Subscribers(t Type) int {
	return len(b.handlers[t])
}

// Send delivers an event immediately to a snapshot of the current handlers.
// Handlers removed while the event is in flight are skipped.
func (b *Bus) Send(sender ident.ID, t Type, data Data) {
	hs := b.handlers[t]
	if len(hs) == 0 {
		return
	}
	snapshot := append([]*subscription(nil), hs...)
	if data == nil {
		data = Data{}
	}
	if !sender.IsZero() {
		data[PSender] = sender
	}
	for _, s := range snapshot {
		if s.removed {
			continue
		}
		s.fn(t, data)
	}
}

// Emit queues an event from sender into the back buffer (delivered next
// tick). A zero sender is anonymous.
func (b *Bus) Emit(sender ident.ID, t Type, data Data) {
	b.mu.Lock()
	b.back = append(b.back, queued{sender: sender, typ: t, data: data})
	b.mu.Unlock()
}

// SwapBuffers rotates back→front and clears the new back buffer.
// Called once at tick start.
func (b *Bus) SwapBuffers() {
	b.mu.Lock()
	b.front, b.back = b.back, b.front[:0]
	b.mu.Unlock()
}

// DispatchAll delivers all front-buffer events to their subscribed handlers.
func (b *Bus) DispatchAll() {
	for _, q := range b.front {
		b.Send(q.sender, q.typ, q.data)
	}
	b.front = b.front[:0]
}

func (b *Bus) remove(s *subscription) {
	if s.removed {
		return
	}
	s.removed = true
	b.handlers[s.typ] = without(b.handlers[s.typ], s)
	if len(b.handlers[s.typ]) == 0 {
		delete(b.handlers, s.typ)
	}
	b.ledger[s.subscriber] = without(b.ledger[s.subscriber], s)
	if len(b.ledger[s.subscriber]) == 0 {
		delete(b.ledger, s.subscriber)
	}
}

// without returns subs minus s. A new slice is built so snapshots taken by an
// in-flight Send stay intact.
func without(subs []*subscription, s *subscription) []*subscription {
	out := make([]*subscription, 0, len(subs))
	for _, o := range subs {
		if o != s {
			out = append(out, o)
		}
	}
	return out
}
