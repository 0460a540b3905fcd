package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/statuswatch/internal/config"
	"github.com/hazz-dev/statuswatch/internal/history"
	"github.com/hazz-dev/statuswatch/internal/incident"
	"github.com/hazz-dev/statuswatch/internal/notify"
	"github.com/hazz-dev/statuswatch/internal/statestore"
)

func executeNotify(cmd *cobra.Command, cfg *config.Config, db *statestore.DB, log *history.Log, logger *slog.Logger) error {
	gh := notify.NewGitHub(
		cfg.Notification.GitHubRepo,
		cfg.Notification.IssueNumber,
		os.Getenv(cfg.Notification.TokenEnv),
	)
	return evaluateAndNotify(cmd.OutOrStdout(), cfg, db, log, gh, logger, time.Now().UTC())
}

// evaluateAndNotify advances the incident state machine against the latest
// confirmed result per check and posts at most one message. State is
// persisted before delivery is attempted: a failed post is logged, never
// retried, and never rolls anything back.
func evaluateAndNotify(out io.Writer, cfg *config.Config, db *statestore.DB, log *history.Log, gh *notify.GitHub, logger *slog.Logger, now time.Time) error {
	ctx := context.Background()

	latest, err := log.LatestConfirmed(now)
	if err != nil {
		return fmt.Errorf("reading latest results: %w", err)
	}
	if len(latest) == 0 {
		fmt.Fprintln(out, "no results found for today or yesterday")
		return nil
	}

	prev, err := db.LoadIncidents(ctx)
	if err != nil {
		return fmt.Errorf("loading incident states: %w", err)
	}

	names := make(map[string]string, len(cfg.Checks))
	for _, c := range cfg.Checks {
		names[c.ID] = c.Name
	}

	report, updated := incident.Evaluate(prev, latest, names, cfg.Notification.FailureThreshold)
	for _, st := range updated {
		if err := db.SaveIncident(ctx, st); err != nil {
			return fmt.Errorf("saving incident state: %w", err)
		}
	}

	msg := report.Message(now)
	if msg == "" {
		fmt.Fprintln(out, "no status transitions detected")
		return nil
	}
	fmt.Fprintln(out, msg)

	if gh == nil {
		logger.Info("notification delivery not configured, skipping")
		return nil
	}
	if err := gh.Comment(ctx, msg); err != nil {
		logger.Error("posting issue comment", "error", err)
	}
	return nil
}
