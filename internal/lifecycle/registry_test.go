package lifecycle_test

import (
	"testing"

	"github.com/scenebind/host/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := lifecycle.NewRegistry()

	require.NoError(t, r.Register(1, "proxy-1"))
	require.NoError(t, r.Register(2, "proxy-2"))

	err := r.Register(1, "again")
	assert.ErrorIs(t, err, lifecycle.ErrDuplicateRegistration)

	h, ok := r.Lookup(1)
	assert.True(t, ok)
	assert.Equal(t, "proxy-1", h)

	_, ok = r.Lookup(3)
	assert.False(t, ok)

	assert.True(t, r.Unregister(1))
	assert.False(t, r.Unregister(1))
	assert.False(t, r.Has(1))
	assert.Equal(t, 1, r.Len())

	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	once := lifecycle.NewRegistry()
	twice := lifecycle.NewRegistry()
	for _, r := range []*lifecycle.Registry{once, twice} {
		require.NoError(t, r.Register(5, "p5"))
		require.NoError(t, r.Register(6, "p6"))
	}

	once.Unregister(5)
	twice.Unregister(5)
	twice.Unregister(5)

	assert.Equal(t, once.Len(), twice.Len())
	assert.Equal(t, once.Has(5), twice.Has(5))
	assert.True(t, twice.Has(6))
}
