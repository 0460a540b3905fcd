package checker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazz-dev/statuswatch/internal/config"
	"github.com/hazz-dev/statuswatch/internal/statestore"
)

// Checker performs a single check invocation. It returns every result the
// cycle produced: none when a deferred check is rate-gated, one for an
// immediate check, two when a deferred check both verified a prior initiation
// and started a new one.
type Checker interface {
	Check(ctx context.Context) []CheckResult
}

// PendingStore persists deferred-check state between process invocations.
type PendingStore interface {
	LoadPending(ctx context.Context, checkID string) (*statestore.PendingState, error)
	SavePending(ctx context.Context, st statestore.PendingState) error
	DeletePending(ctx context.Context, checkID string) error
}

// New returns the appropriate Checker for the given check configuration.
// Immediate check kinds ignore the pending store.
func New(c config.Check, pending PendingStore, logger *slog.Logger) (Checker, error) {
	switch c.Type {
	case "http":
		return newHTTPChecker(c), nil
	case "retrieve":
		return newRetrieveChecker(c), nil
	case "indexing":
		return newDeferredChecker(c, newIndexingProbe(c), pending, logger), nil
	case "workflow":
		return newDeferredChecker(c, newWorkflowProbe(c), pending, logger), nil
	default:
		return nil, fmt.Errorf("unknown check type %q", c.Type)
	}
}
