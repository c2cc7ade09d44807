// cmd/claimsctl/resolve.go — claimsctl resolve subcommand.
package main

import (
	"flag"
	"fmt"
	"os"
)

func runResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "operator API address")
	auth := fs.String("auth", "", "basic auth as user:pass")
	reject := fs.Bool("reject", false, "reject instead of approve")
	note := fs.String("note", "", "resolution note recorded in the history")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: claimsctl resolve [--server addr] [--reject] [--note text] <job_id>")
		os.Exit(1)
	}
	jobID := fs.Arg(0)

	action := "approve"
	if *reject {
		action = "reject"
	}

	body := map[string]string{"action": action, "note": *note}
	var job jobView
	if err := newClient(*server, *auth).post("/v1/exceptions/"+jobID+"/resolve", body, &job); err != nil {
		fmt.Fprintf(os.Stderr, "resolve: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("job %s %sd, now %s\n", job.ID, action, job.Status)
}
