// cmd/claimsctl/exceptions.go — claimsctl exceptions subcommand.
package main

import (
	"flag"
	"fmt"
	"os"
)

func runExceptions(args []string) {
	fs := flag.NewFlagSet("exceptions", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "operator API address")
	auth := fs.String("auth", "", "basic auth as user:pass")
	_ = fs.Parse(args)

	var jobs []jobView
	if err := newClient(*server, *auth).get("/v1/exceptions", &jobs); err != nil {
		fmt.Fprintf(os.Stderr, "exceptions: %v\n", err)
		os.Exit(1)
	}

	if len(jobs) == 0 {
		fmt.Println("no exceptions pending")
		return
	}

	fmt.Printf("%d exception(s) pending review:\n\n", len(jobs))
	for _, j := range jobs {
		reason := ""
		if j.LastError != nil {
			reason = *j.LastError
		}
		fmt.Printf("  %s  %-24s  %s\n", j.ID, j.SourceRef, reason)
	}
}
