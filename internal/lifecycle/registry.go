package lifecycle

import (
	"errors"
	"fmt"

	"github.com/scenebind/host/internal/core/ident"
)

// ErrDuplicateRegistration means a proxy was created twice for one object.
var ErrDuplicateRegistration = errors.New("proxy handle already registered")

// Handle is an opaque script-heap reference.
type Handle any

// Registry maps native object identity to its script proxy handle.
//
// Entries are weak in both directions: the registry holds no native reference
// and the handle is only a lookup key for de-duplication. Only the
// destruction cascade removes entries.
type Registry struct {
	entries *ident.Store[Handle]
}

// NewRegistry initializes an empty registry at runtime start.
func NewRegistry() *Registry {
	return &Registry{entries: ident.NewStore[Handle]()}
}

// Register records h as the proxy of id.
func (r *Registry) Register(id ident.ID, h Handle) error {
	if r.entries.Has(id) {
		return fmt.Errorf("register object %d: %w", id, ErrDuplicateRegistration)
	}
	r.entries.Set(id, h)
	return nil
}

// Lookup returns the proxy of id, if one is registered.
func (r *Registry) Lookup(id ident.ID) (Handle, bool) {
	return r.entries.Get(id)
}

func (r *Registry) Has(id ident.ID) bool {
	return r.entries.Has(id)
}

// Unregister removes the entry for id. Removing an absent entry is a no-op;
// overlapping cascades may unregister the same id twice.
func (r *Registry) Unregister(id ident.ID) bool {
	if !r.entries.Has(id) {
		return false
	}
	r.entries.Remove(id)
	return true
}

func (r *Registry) Len() int {
	return r.entries.Len()
}

// Reset drops every entry at runtime shutdown.
func (r *Registry) Reset() {
	r.entries.Clear()
}
