// cmd/claimsctl/history.go — claimsctl history subcommand.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "operator API address")
	auth := fs.String("auth", "", "basic auth as user:pass")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: claimsctl history [--server addr] <job_id>")
		os.Exit(1)
	}
	jobID := fs.Arg(0)

	var recs []transitionView
	if err := newClient(*server, *auth).get("/v1/jobs/"+jobID+"/history", &recs); err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		os.Exit(1)
	}

	if len(recs) == 0 {
		fmt.Printf("no history for job %s\n", jobID)
		return
	}

	fmt.Printf("transition history for job %s (%d entries):\n\n", jobID, len(recs))
	for _, rec := range recs {
		fmt.Printf("  %s  %s -> %s", rec.OccurredAt.Format(time.RFC3339), rec.FromStatus, rec.ToStatus)
		if rec.WorkerID != "" {
			fmt.Printf("  [%s]", rec.WorkerID)
		}
		if rec.Note != "" {
			fmt.Printf("  %s", rec.Note)
		}
		fmt.Println()
	}
}
