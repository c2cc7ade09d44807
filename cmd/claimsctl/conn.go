// cmd/claimsctl/conn.go — shared operator API client helper.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type apiClient struct {
	base  string
	user  string
	pass  string
	httpc *http.Client
}

// newClient builds a client for the operator API. auth is "user:pass" or
// empty when the server runs without credentials.
func newClient(server, auth string) *apiClient {
	c := &apiClient{
		base:  strings.TrimSuffix(server, "/"),
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
	if auth != "" {
		parts := strings.SplitN(auth, ":", 2)
		c.user = parts[0]
		if len(parts) == 2 {
			c.pass = parts[1]
		}
	}
	return c
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" || c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

// jobView mirrors the operator API's job shape.
type jobView struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	SourceRef     string          `json:"source_ref"`
	ContentHash   string          `json:"content_hash"`
	Extraction    json.RawMessage `json:"extraction,omitempty"`
	SubmissionRef *string         `json:"submission_ref,omitempty"`
	AttemptCount  int             `json:"attempt_count"`
	LastError     *string         `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type transitionView struct {
	JobID      string    `json:"job_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	WorkerID   string    `json:"worker_id,omitempty"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func printJob(j jobView) {
	fmt.Printf("job_id:         %s\n", j.ID)
	fmt.Printf("status:         %s\n", j.Status)
	fmt.Printf("source_ref:     %s\n", j.SourceRef)
	fmt.Printf("content_hash:   %s\n", j.ContentHash)
	fmt.Printf("attempt_count:  %d\n", j.AttemptCount)
	if j.SubmissionRef != nil {
		fmt.Printf("submission_ref: %s\n", *j.SubmissionRef)
	}
	if j.LastError != nil {
		fmt.Printf("last_error:     %s\n", *j.LastError)
	}
	fmt.Printf("created_at:     %s\n", j.CreatedAt.Format(time.RFC3339))
	fmt.Printf("updated_at:     %s\n", j.UpdatedAt.Format(time.RFC3339))
	if len(j.Extraction) > 0 {
		fmt.Printf("extraction:     %s\n", j.Extraction)
	}
}
