package checker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazz-dev/statuswatch/internal/config"
	"github.com/hazz-dev/statuswatch/internal/statestore"
)

// deferredProbe is the kind-specific half of the two-phase check protocol.
type deferredProbe interface {
	// verify resolves a prior initiation to a confirmed result. The result
	// must carry the original initiation timestamp, not the verify time.
	verify(ctx context.Context, st statestore.PendingState) CheckResult

	// cleanup removes the remote artifact created at initiation. Best
	// effort: failures are swallowed and never affect the check outcome.
	cleanup(ctx context.Context, st statestore.PendingState)

	// initiate starts a new unit of remote work. On success it returns the
	// state to persist plus a provisional result; on failure a nil state
	// and a down result. prev is the state consumed this cycle, if any,
	// for probes that rotate accounts across initiations.
	initiate(ctx context.Context, now time.Time, prev *statestore.PendingState) (*statestore.PendingState, CheckResult)
}

// deferredChecker runs the two-phase protocol around a deferredProbe: load
// pending state, verify and clean up the prior initiation, then start a new
// one. The pending state is deleted before verify runs, so no verify or
// cleanup outcome can leave the check wedged on one initiation.
type deferredChecker struct {
	checkID  string
	interval time.Duration
	probe    deferredProbe
	store    PendingStore
	logger   *slog.Logger
}

func newDeferredChecker(c config.Check, probe deferredProbe, store PendingStore, logger *slog.Logger) *deferredChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &deferredChecker{
		checkID:  c.ID,
		interval: c.Interval.Duration,
		probe:    probe,
		store:    store,
		logger:   logger,
	}
}

func (d *deferredChecker) Check(ctx context.Context) []CheckResult {
	now := time.Now().UTC()

	st, err := d.store.LoadPending(ctx, d.checkID)
	if err != nil {
		// Can't tell whether an initiation is pending; skip verify and
		// let initiation overwrite whatever record is there.
		d.logger.Error("loading pending state", "check", d.checkID, "error", err)
		st = nil
	}

	var results []CheckResult
	if st != nil {
		if d.interval > 0 && now.Sub(st.InitiatedAt) < d.interval {
			// Too early to verify; leave the state for the next cycle.
			d.logger.Debug("verify gated, skipping cycle",
				"check", d.checkID,
				"initiated_at", st.InitiatedAt,
			)
			return nil
		}

		if err := d.store.DeletePending(ctx, d.checkID); err != nil {
			d.logger.Error("deleting pending state", "check", d.checkID, "error", err)
		}
		results = append(results, d.probe.verify(ctx, *st))
		d.probe.cleanup(ctx, *st)
	}

	newSt, res := d.probe.initiate(ctx, now, st)
	if newSt != nil {
		if err := d.store.SavePending(ctx, *newSt); err != nil {
			// Without durable state the next cycle can't verify this
			// initiation, so don't report it as submitted.
			d.logger.Error("saving pending state", "check", d.checkID, "error", err)
			res = CheckResult{
				CheckID:        d.checkID,
				Timestamp:      now,
				Status:         StatusDown,
				ResponseTimeMs: NoResponseTime,
				Message:        "persisting pending state failed: " + err.Error(),
			}
		}
	}
	return append(results, res)
}
