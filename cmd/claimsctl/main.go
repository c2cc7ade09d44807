// cmd/claimsctl/main.go — CLI root. Dispatches to subcommand handlers.
package main

import (
	"fmt"
	"os"
)

const usage = "Usage: claimsctl <status|history|retry|exceptions|resolve|queues|watch> [options]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "status":
		runStatus(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "retry":
		runRetry(os.Args[2:])
	case "exceptions":
		runExceptions(os.Args[2:])
	case "resolve":
		runResolve(os.Args[2:])
	case "queues":
		runQueues(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
}
