package lifecycle

import (
	"errors"
	"fmt"

	"github.com/scenebind/host/internal/core/ident"
)

var (
	// ErrParentRefs: a parented node had fewer than two references when
	// detachment was requested (parent link + caller's hold).
	ErrParentRefs = errors.New("parented node has fewer than 2 references")

	// ErrComponentDestroyUnsupported: destroying a single component without
	// its node has no teardown protocol.
	ErrComponentDestroyUnsupported = errors.New("single component destruction is not implemented")
)

// InvariantError is the panic value of an ownership contract violation. It
// never travels as a returned error: the host state is already corrupt.
type InvariantError struct {
	Op     string
	Object ident.ID
	Refs   int
	Err    error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: object %d (refs=%d): %v", e.Op, e.Object, e.Refs, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

func fatal(op string, id ident.ID, refs int, err error) {
	panic(&InvariantError{Op: op, Object: id, Refs: refs, Err: err})
}

// AsInvariant reports whether a recovered panic value is an InvariantError.
func AsInvariant(r any) (*InvariantError, bool) {
	err, ok := r.(error)
	if !ok {
		return nil, false
	}
	var inv *InvariantError
	if errors.As(err, &inv) {
		return inv, true
	}
	return nil, false
}
