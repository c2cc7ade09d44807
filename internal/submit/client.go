// Package submit wraps calls to the downstream claims API with a circuit
// breaker, bounded retry with backoff, and rate-limit honoring.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
)

// Config tunes a Client for one downstream endpoint.
type Config struct {
	Endpoint string
	APIKey   string
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	Policy  Policy
	// RatePerSecond caps steady-state outbound requests; Burst allows short
	// spikes. Zero disables client-side rate limiting.
	RatePerSecond float64
	Burst         int
}

// Client submits claims to one downstream endpoint. One instance per
// endpoint; its breaker is owned here and shared by every goroutine using
// the client, never reached through ambient globals.
type Client struct {
	httpc    *http.Client
	endpoint string
	apiKey   string
	timeout  time.Duration
	policy   Policy
	breaker  *Breaker
	limiter  *rate.Limiter
	gate     Gate
	logger   *slog.Logger
}

// Result reports a submission's outcome. Attempts counts every try made,
// successful or not, so callers can persist it for diagnostics.
type Result struct {
	Reference string
	Attempts  int
}

func NewClient(cfg Config, breaker *Breaker, gate Gate, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if gate == nil {
		gate = NopGate{}
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Client{
		httpc:    &http.Client{},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		policy:   cfg.Policy.withDefaults(),
		breaker:  breaker,
		limiter:  limiter,
		gate:     gate,
		logger:   logger,
	}
}

// Breaker exposes the client's breaker for observability.
func (c *Client) Breaker() *Breaker { return c.breaker }

type submitPayload struct {
	RequestID string                `json:"request_id"`
	JobID     string                `json:"job_id"`
	Claim     domain.ExtractedClaim `json:"claim"`
	Flagged   bool                  `json:"flagged_for_review"`
}

type submitResponse struct {
	Reference string `json:"reference"`
}

// Submit posts the claim, retrying transient failures up to the policy's
// attempt budget. Permanent rejections and ErrCircuitOpen return immediately.
// A 429 waits the server-supplied duration instead of the computed backoff,
// publishes the hold through the gate, and is never counted by the breaker.
func (c *Client) Submit(ctx context.Context, jobID uuid.UUID, claim domain.ExtractedClaim, flagged bool) (Result, error) {
	res := Result{}
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if hold, err := c.gate.RetryAfter(ctx); err != nil {
			c.logger.Warn("throttle gate check failed", "err", err)
		} else if hold > 0 {
			c.logger.Info("downstream throttled, waiting", "hold", hold)
			if err := sleep(ctx, hold); err != nil {
				return res, err
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}

		if err := c.breaker.Allow(); err != nil {
			return res, err
		}

		res.Attempts = attempt
		requestID := fmt.Sprintf("%s-%d", jobID, attempt)

		tracker, tracked := c.gate.(inflightTracker)
		if tracked {
			if terr := tracker.ClaimInflight(ctx, requestID); terr != nil {
				c.logger.Warn("inflight claim failed", "err", terr)
				tracked = false
			}
		}

		ref, err := c.post(ctx, requestID, jobID, claim, flagged)
		if tracked {
			if terr := tracker.ReleaseInflight(context.WithoutCancel(ctx), requestID); terr != nil {
				c.logger.Warn("inflight release failed", "err", terr)
			}
		}
		if err == nil {
			c.breaker.RecordSuccess()
			res.Reference = ref
			return res, nil
		}
		lastErr = err

		var (
			ve *ValidationError
			ma *MalformedAcceptError
			rl *RateLimitedError
		)
		switch {
		case errors.As(err, &ve):
			// A rejection is still a healthy downstream.
			c.breaker.RecordSuccess()
			return res, err

		case errors.As(err, &ma):
			// The downstream accepted but we cannot prove what it recorded.
			// Re-posting risks a duplicate submission, so surface it for
			// manual handling instead of retrying.
			c.breaker.RecordSuccess()
			return res, err

		case errors.As(err, &rl):
			wait := rl.RetryAfter
			if wait <= 0 {
				wait = c.policy.Backoff(attempt)
			}
			if gerr := c.gate.Hold(ctx, wait); gerr != nil {
				c.logger.Warn("throttle gate hold failed", "err", gerr)
			}
			if attempt < c.policy.MaxAttempts {
				if serr := sleep(ctx, wait); serr != nil {
					return res, serr
				}
			}

		default:
			c.breaker.RecordFailure()
			if attempt < c.policy.MaxAttempts {
				if serr := sleep(ctx, c.policy.Backoff(attempt)); serr != nil {
					return res, serr
				}
			}
		}
	}
	return res, lastErr
}

// inflightTracker is implemented by gates that can publish per-request
// inflight membership, e.g. RedisGate's endpoint SET.
type inflightTracker interface {
	ClaimInflight(ctx context.Context, requestID string) error
	ReleaseInflight(ctx context.Context, requestID string) error
}

func (c *Client) post(ctx context.Context, requestID string, jobID uuid.UUID, claim domain.ExtractedClaim, flagged bool) (string, error) {
	body, err := json.Marshal(submitPayload{
		RequestID: requestID,
		JobID:     jobID.String(),
		Claim:     claim,
		Flagged:   flagged,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("post claim: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out submitResponse
		if err := json.Unmarshal(data, &out); err != nil || out.Reference == "" {
			return "", &MalformedAcceptError{StatusCode: resp.StatusCode, Body: truncate(data, 200)}
		}
		return out.Reference, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", &ValidationError{StatusCode: resp.StatusCode, Message: truncate(data, 500)}

	default:
		return "", &ServerError{StatusCode: resp.StatusCode, Message: truncate(data, 500)}
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms. Zero means
// the server gave nothing usable and the caller falls back to its backoff.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
