package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/statuswatch/internal/checker"
	"github.com/hazz-dev/statuswatch/internal/config"
	"github.com/hazz-dev/statuswatch/internal/history"
	"github.com/hazz-dev/statuswatch/internal/statestore"
)

func executeRun(cmd *cobra.Command, cfg *config.Config, db *statestore.DB, log *history.Log, logger *slog.Logger) error {
	return runChecks(cmd.OutOrStdout(), cfg, db, log, logger)
}

// runChecks performs one scheduler cycle: every configured check once,
// concurrently. Each check touches only its own state rows and appears once
// per cycle, so no two instances of the same check ever run at the same
// time. A failing check is isolated: it produces a down result, never an
// error for the cycle.
func runChecks(out io.Writer, cfg *config.Config, db *statestore.DB, log *history.Log, logger *slog.Logger) error {
	now := time.Now().UTC()
	perCheck := make([][]checker.CheckResult, len(cfg.Checks))
	var wg sync.WaitGroup

	for i, c := range cfg.Checks {
		wg.Add(1)
		go func(i int, c config.Check) {
			defer wg.Done()
			chk, err := checker.New(c, db, logger)
			if err != nil {
				perCheck[i] = []checker.CheckResult{{
					CheckID:        c.ID,
					Timestamp:      now,
					Status:         checker.StatusDown,
					ResponseTimeMs: checker.NoResponseTime,
					Message:        fmt.Sprintf("creating checker: %v", err),
				}}
				return
			}
			// A deferred cycle makes up to three remote calls, each
			// bounded by the per-check client timeout.
			ctx, cancel := context.WithTimeout(context.Background(), 4*c.Timeout.Duration)
			defer cancel()
			perCheck[i] = chk.Check(ctx)
		}(i, c)
	}
	wg.Wait()

	var results []checker.CheckResult
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tTYPE\tSTATUS\tRESPONSE\tMESSAGE")
	for i, c := range cfg.Checks {
		if len(perCheck[i]) == 0 {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t(no result this cycle)\n", c.ID, c.Type)
			continue
		}
		for _, r := range perCheck[i] {
			resp := "-"
			if r.ResponseTimeMs >= 0 {
				resp = (time.Duration(r.ResponseTimeMs) * time.Millisecond).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.CheckID, c.Type, r.Status, resp, r.Message)
		}
		results = append(results, perCheck[i]...)
	}
	w.Flush()

	if err := log.Append(results, now); err != nil {
		return fmt.Errorf("appending results: %w", err)
	}
	fmt.Fprintf(out, "wrote %d result(s)\n", len(results))
	return nil
}
