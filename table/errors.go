package table

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMissingRoot is spec.md §7 error kind 2: the Stats or ActiveSection
// slot is absent from a table root that should have been initialized by
// OpenOrCreate.
var ErrMissingRoot = fmt.Errorf("table: missing structural record in table root")

// ErrDuplicateKey is spec.md §7 error kind 3: an insert collided with an
// existing primary key or fixed-index key.
type ErrDuplicateKey struct {
	Index string
	Key   []byte
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("table: duplicate key in index %q: %x", e.Index, e.Key)
}

// errCorrupt builds spec.md §7 error kind 4: an index entry that must exist
// (because a primary read just produced it) does not. Always wrapped with
// github.com/pkg/errors so the stack trace points at the operation that
// first observed the inconsistency — spec.md is explicit that this must
// never happen and is never recovered, not merely reported.
func errCorrupt(format string, args ...any) error {
	return errors.WithStack(fmt.Errorf("table: corrupt: "+format, args...))
}

// ErrReadOnly is spec.md §7 error kind 9: a mutation was attempted on a
// Table opened read-only.
var ErrReadOnly = fmt.Errorf("table: write attempted on a read-only view")

// ErrAllocationFailed is spec.md §7 error kind 8: allocation still fails
// immediately after allocateFromAnotherSection switched (or created) an
// active section.
var ErrAllocationFailed = fmt.Errorf("table: allocation failed after section switch")

// ErrSchemaMismatch wraps schema.ErrMismatch for callers that only import
// the table package.
type ErrSchemaMismatch struct {
	Cause error
}

func (e *ErrSchemaMismatch) Error() string { return "table: schema mismatch: " + e.Cause.Error() }
func (e *ErrSchemaMismatch) Unwrap() error { return e.Cause }
