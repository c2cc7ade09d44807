// cmd/claimsctl/retry.go — claimsctl retry subcommand.
package main

import (
	"flag"
	"fmt"
	"os"
)

func runRetry(args []string) {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "operator API address")
	auth := fs.String("auth", "", "basic auth as user:pass")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: claimsctl retry [--server addr] <job_id>")
		os.Exit(1)
	}
	jobID := fs.Arg(0)

	var job jobView
	if err := newClient(*server, *auth).post("/v1/jobs/"+jobID+"/retry", nil, &job); err != nil {
		fmt.Fprintf(os.Stderr, "retry: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("job %s retried, now %s\n", job.ID, job.Status)
}
