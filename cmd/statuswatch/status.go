package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/statuswatch/internal/config"
	"github.com/hazz-dev/statuswatch/internal/history"
)

func executeStatus(cmd *cobra.Command, cfg *config.Config, log *history.Log) error {
	out := cmd.OutOrStdout()
	latest, err := log.LatestPerCheck(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reading latest results: %w", err)
	}

	if len(latest) == 0 {
		fmt.Fprintln(out, "No check history. Run 'statuswatch run' first.")
		return nil
	}

	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tRESPONSE\tTIMESTAMP\tMESSAGE")
	for _, id := range ids {
		r := latest[id]
		resp := "-"
		if r.ResponseTimeMs >= 0 {
			resp = (time.Duration(r.ResponseTimeMs) * time.Millisecond).String()
		}
		status := string(r.Status)
		if r.Provisional {
			status += " (pending)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			id,
			status,
			resp,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Message,
		)
	}
	w.Flush()
	return nil
}
