package ident_test

import (
	"testing"

	"github.com/scenebind/host/internal/core/ident"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_CreateFree(t *testing.T) {
	p := ident.NewPool()

	a := p.Create()
	b := p.Create()
	assert.False(t, a.IsZero())
	assert.NotEqual(t, a, b)
	assert.True(t, p.Alive(a))
	assert.Equal(t, 2, p.Live())

	p.Free(a)
	assert.False(t, p.Alive(a))
	assert.Equal(t, 1, p.Live())

	// freeing a stale id twice must not push the index again
	p.Free(a)
	c := p.Create()
	d := p.Create()
	assert.Equal(t, a.Index(), c.Index())
	assert.Equal(t, a.Generation()+1, c.Generation())
	assert.NotEqual(t, c.Index(), d.Index())
	assert.False(t, p.Alive(a))
	assert.True(t, p.Alive(c))
}

func TestPool_ZeroNeverAlive(t *testing.T) {
	p := ident.NewPool()
	assert.False(t, p.Alive(0))
	assert.False(t, p.Alive(ident.NewID(42, 0)))
}

func TestWorld_FlushFreeQueue(t *testing.T) {
	w := ident.NewWorld()
	names := ident.NewStore[string]()
	w.Register(names)

	id := w.Create()
	names.Set(id, "crate")
	w.QueueFree(id)
	w.QueueFree(id)

	require.True(t, names.Has(id))
	assert.Equal(t, 2, w.Pending())
	assert.Equal(t, 1, w.FlushFreeQueue())
	assert.False(t, names.Has(id))
	assert.False(t, w.Alive(id))
	assert.Equal(t, 0, w.Pending())
}
