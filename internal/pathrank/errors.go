package pathrank

import (
	"context"
	"errors"
)

var (
	// ErrNodeNotFound indicates the source or target user is unknown to the graph store.
	ErrNodeNotFound = errors.New("user not found")
	// ErrNoPathFound indicates the search exhausted its budget without reaching the target.
	ErrNoPathFound = errors.New("no path within budget")
	// ErrIndexOutOfRange indicates a page index beyond the ranked candidates.
	ErrIndexOutOfRange = errors.New("no more paths")
	// ErrComputationTimeout indicates a ranking run exceeded its time budget.
	ErrComputationTimeout = errors.New("path computation timed out")
	// ErrGraphStoreUnavailable wraps collaborator failures while reading the graph.
	ErrGraphStoreUnavailable = errors.New("graph store unavailable")
	// ErrInvalidRequest indicates a malformed ranking request.
	ErrInvalidRequest = errors.New("invalid path request")
	// ErrNotCached indicates no fresh ranking is stored for a key.
	ErrNotCached = errors.New("ranking not cached")
)

// Retryable reports whether a failure is transient and worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrComputationTimeout) || errors.Is(err, ErrGraphStoreUnavailable)
}

// classifyRunError maps low-level failures from a ranking run onto the engine taxonomy.
func classifyRunError(runCtx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNodeNotFound),
		errors.Is(err, ErrNoPathFound),
		errors.Is(err, ErrComputationTimeout),
		errors.Is(err, ErrGraphStoreUnavailable),
		errors.Is(err, ErrInvalidRequest):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return errors.Join(ErrComputationTimeout, err)
	default:
		return errors.Join(ErrGraphStoreUnavailable, err)
	}
}
