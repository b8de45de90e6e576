package event_test

import (
	"testing"

	"github.com/scenebind/host/internal/core/event"
	"github.com/scenebind/host/internal/core/ident"
	"github.com/stretchr/testify/assert"
)

func TestBus_SendAndUnsubscribe(t *testing.T) {
	bus := event.NewBus()
	var got []string
	bus.Subscribe(1, event.Update, func(_ event.Type, d event.Data) {
		got = append(got, "a")
	})
	bus.Subscribe(2, event.Update, func(_ event.Type, d event.Data) {
		got = append(got, "b")
	})

	bus.Send(0, event.Update, nil)
	assert.ElementsMatch(t, []string{"a", "b"}, got)

	bus.Unsubscribe(1, event.Update)
	got = nil
	bus.Send(0, event.Update, nil)
	assert.Equal(t, []string{"b"}, got)
	assert.False(t, bus.HasSubscriptions(1))
	assert.Equal(t, []event.Type{event.Update}, bus.Subscriptions(2))
}

func TestBus_SubscribeReplaces(t *testing.T) {
	bus := event.NewBus()
	calls := 0
	bus.Subscribe(1, event.Update, func(event.Type, event.Data) { calls += 10 })
	bus.Subscribe(1, event.Update, func(event.Type, event.Data) { calls++ })
	bus.Send(0, event.Update, nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, bus.Subscribers(event.Update))
}

func TestBus_UnsubscribeAllNotifies(t *testing.T) {
	bus := event.NewBus()
	const sub ident.ID = 7
	var notices []string
	bus.Subscribe(sub, event.Update, func(event.Type, event.Data) {})
	bus.Subscribe(sub, event.PostUpdate, func(event.Type, event.Data) {})
	bus.Subscribe(sub, event.Unsubscribed, func(_ event.Type, d event.Data) {
		assert.Equal(t, sub, d[event.PSender])
		notices = append(notices, d[event.PEvent].(string))
	})

	bus.UnsubscribeAll(sub)

	assert.Equal(t, []string{"Update", "PostUpdate"}, notices)
	assert.False(t, bus.HasSubscriptions(sub))
	assert.Equal(t, 0, bus.Subscribers(event.Unsubscribed))
	assert.Equal(t, 0, bus.Subscribers(event.Update))
}

func TestBus_RemovedDuringSendIsSkipped(t *testing.T) {
	bus := event.NewBus()
	secondCalled := false
	bus.Subscribe(1, event.Update, func(event.Type, event.Data) {
		bus.UnsubscribeAll(2)
	})
	bus.Subscribe(2, event.Update, func(event.Type, event.Data) {
		secondCalled = true
	})
	bus.Send(0, event.Update, nil)
	assert.False(t, secondCalled)
}

func TestBus_EmitIsDeferred(t *testing.T) {
	bus := event.NewBus()
	var texts []string
	bus.Subscribe(1, event.ScriptPrint, func(_ event.Type, d event.Data) {
		texts = append(texts, d[event.PText].(string))
	})

	var senders []any
	bus.Subscribe(2, event.ScriptPrint, func(_ event.Type, d event.Data) {
		senders = append(senders, d[event.PSender])
	})

	bus.Emit(7, event.ScriptPrint, event.Data{event.PText: "hello"})
	bus.DispatchAll()
	assert.Empty(t, texts)

	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Equal(t, []string{"hello"}, texts)
	assert.Equal(t, []any{ident.ID(7)}, senders)

	bus.SwapBuffers()
	bus.DispatchAll()
	assert.Len(t, texts, 1)
}
