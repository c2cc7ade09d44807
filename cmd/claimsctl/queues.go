// cmd/claimsctl/queues.go — claimsctl queues subcommand.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
)

func runQueues(args []string) {
	fs := flag.NewFlagSet("queues", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "operator API address")
	auth := fs.String("auth", "", "basic auth as user:pass")
	_ = fs.Parse(args)

	var depths map[string]int64
	if err := newClient(*server, *auth).get("/v1/queues", &depths); err != nil {
		fmt.Fprintf(os.Stderr, "queues: %v\n", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(depths))
	for name := range depths {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("%-12s %d\n", name, depths[name])
	}
}
