// Package allocator indirects buffer allocation behind a hook so that a
// host can bound memory use or inject failures during testing, and so
// that allocation failure surfaces to the caller as an error instead of
// crashing the process, per the resource-exhaustion requirement in the
// data model's Non-goals.
package allocator

import "github.com/quicwire/qtp/pkg/qerr"

// Allocator is the hook a host may override. The default, Default, never
// fails; it exists purely as an indirection point.
type Allocator interface {
	// Alloc returns a byte slice of exactly n bytes, or an error if the
	// host-imposed budget is exhausted.
	Alloc(n int) ([]byte, error)
}

type stdAllocator struct{}

func (stdAllocator) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, qerr.Internal("negative allocation size", nil)
	}
	return make([]byte, n), nil
}

// Default is the Allocator used unless a host installs its own.
var Default Allocator = stdAllocator{}

// Budgeted is an Allocator that fails once a cumulative byte budget is
// exhausted, letting a host bound per-connection memory without tracking
// every allocation site itself.
type Budgeted struct {
	remaining int64
}

// NewBudgeted returns a Budgeted allocator with the given total byte
// budget.
func NewBudgeted(budget int64) *Budgeted { return &Budgeted{remaining: budget} }

func (b *Budgeted) Alloc(n int) ([]byte, error) {
	if int64(n) > b.remaining {
		return nil, qerr.Internal("allocator budget exhausted", nil)
	}
	b.remaining -= int64(n)
	return make([]byte, n), nil
}
