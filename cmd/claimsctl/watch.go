// cmd/claimsctl/watch.go — claimsctl watch subcommand. Streams job
// transitions over the operator websocket.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "operator API address")
	auth := fs.String("auth", "", "basic auth as user:pass")
	_ = fs.Parse(args)

	// Optional job_id argument; empty means watch all jobs.
	jobID := ""
	if fs.NArg() > 0 {
		jobID = fs.Arg(0)
	}

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/v1/ws"
	header := http.Header{}
	if *auth != "" {
		header.Set("Authorization",
			"Basic "+base64.StdEncoding.EncodeToString([]byte(*auth)))
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if jobID != "" {
		fmt.Printf("watching job %s (ctrl-c to stop)\n", jobID)
	} else {
		fmt.Println("watching all job transitions (ctrl-c to stop)")
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "watch: stream error: %v\n", err)
			os.Exit(1)
		}

		var msg struct {
			Type  string         `json:"type"`
			Event transitionView `json:"event"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if jobID != "" && msg.Event.JobID != jobID {
			continue
		}

		fmt.Printf("%s  job_id=%-36s  %s -> %s  %s\n",
			msg.Event.OccurredAt.Format(time.RFC3339),
			msg.Event.JobID, msg.Event.FromStatus, msg.Event.ToStatus,
			msg.Event.Note)
	}
}
