// cmd/claimsctl/status.go — claimsctl status subcommand.
package main

import (
	"flag"
	"fmt"
	"os"
)

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "operator API address")
	auth := fs.String("auth", "", "basic auth as user:pass")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: claimsctl status [--server addr] <job_id>")
		os.Exit(1)
	}
	jobID := fs.Arg(0)

	var job jobView
	if err := newClient(*server, *auth).get("/v1/jobs/"+jobID, &job); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}

	printJob(job)
}
