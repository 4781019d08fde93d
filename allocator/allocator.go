// Package allocator computes race numbers from a distance or goal bib
// prefix and the count of already-paid registrations in the same scope.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// blockSize is the number of ordinals per prefix block. Zero-padding is
// fixed at 3 digits, so a block can never hold more than 999 numbers.
const blockSize = 999

// Scope identifies one allocation sequence. GoalID 0 means the
// registration has no goal and counts against the distance itself.
type Scope struct {
	DistanceID int64
	GoalID     int64
}

// CapacityError reports a full alphanumeric prefix block. The registration
// stays PENDING; the attempt is safe to retry after reconfiguration.
type CapacityError struct {
	Prefix string
	Scope  Scope
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("bib capacity exceeded for prefix %q (distance %d, goal %d): block holds %d numbers",
		e.Prefix, e.Scope.DistanceID, e.Scope.GoalID, blockSize)
}

// CounterStore reserves the next ordinal for a scope. NextOrdinal returns
// the number of registrations already paid in the scope and atomically
// increments it; the implementation must serialize same-scope calls.
type CounterStore interface {
	NextOrdinal(ctx context.Context, scope Scope) (int, error)
}

type Allocator struct {
	counters CounterStore
}

func New(counters CounterStore) *Allocator {
	return &Allocator{counters: counters}
}

// Allocate reserves the next ordinal for the scope and computes the race
// number for it. Must run inside the confirmation transaction so a rollback
// releases the reservation.
func (a *Allocator) Allocate(ctx context.Context, scope Scope, prefix string) (string, error) {
	count, err := a.counters.NextOrdinal(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("reserve bib ordinal: %w", err)
	}

	bib, err := ComputeBib(prefix, count)
	if err != nil {
		var capErr *CapacityError
		if errors.As(err, &capErr) {
			capErr.Scope = scope
		}
		return "", err
	}
	return bib, nil
}

// ComputeBib turns (prefix, prior paid count) into a race number.
//
// Purely numeric prefixes grow without bound: every 999 numbers the prefix
// block rolls over into base+1 ("17" + count 999 -> "18001"). Alphanumeric
// prefixes have a single fixed block and fail with CapacityError once it
// fills. Ordinals are always zero-padded to 3 digits.
func ComputeBib(prefix string, count int) (string, error) {
	if count < 0 {
		return "", fmt.Errorf("negative paid count %d", count)
	}

	if base, ok := numericPrefix(prefix); ok {
		block := count / blockSize
		ordinal := count%blockSize + 1
		return fmt.Sprintf("%d%03d", base+block, ordinal), nil
	}

	if count >= blockSize {
		return "", &CapacityError{Prefix: prefix}
	}
	return fmt.Sprintf("%s%03d", prefix, count+1), nil
}

func numericPrefix(prefix string) (int, bool) {
	if prefix == "" {
		return 0, false
	}
	for _, r := range prefix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	base, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, false
	}
	return base, true
}
