package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gate shares downstream throttle state between submission workers so a 429
// observed by one process backs all of them off together.
type Gate interface {
	// RetryAfter returns the remaining hold on the endpoint, zero when clear.
	RetryAfter(ctx context.Context) (time.Duration, error)
	// Hold records a server-supplied retry-after window.
	Hold(ctx context.Context, d time.Duration) error
}

func throttleKey(endpoint string) string {
	return fmt.Sprintf("ncb:endpoint:%s:throttle", endpoint)
}

func inflightKey(endpoint string) string {
	return fmt.Sprintf("ncb:endpoint:%s:inflight", endpoint)
}

// RedisGate implements Gate on a shared Redis instance. The throttle is a
// single key whose TTL is the remaining hold; SET with expiry makes both
// reads and writes race-free enough — overlapping holds just keep the later
// deadline.
type RedisGate struct {
	rc       *redis.Client
	endpoint string
}

func NewRedisGate(rc *redis.Client, endpoint string) *RedisGate {
	return &RedisGate{rc: rc, endpoint: endpoint}
}

func (g *RedisGate) RetryAfter(ctx context.Context) (time.Duration, error) {
	d, err := g.rc.PTTL(ctx, throttleKey(g.endpoint)).Result()
	if err != nil {
		return 0, err
	}
	if d < 0 {
		// -1 no expiry, -2 missing key: either way the gate is clear.
		return 0, nil
	}
	return d, nil
}

func (g *RedisGate) Hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return g.rc.Set(ctx, throttleKey(g.endpoint), "1", d).Err()
}

// ClaimInflight records a request id in the endpoint's inflight SET. A SET
// rather than a counter keeps release idempotent: SREM of a missing member
// is a no-op, so a crashed worker can never push the count negative.
func (g *RedisGate) ClaimInflight(ctx context.Context, requestID string) error {
	return g.rc.SAdd(ctx, inflightKey(g.endpoint), requestID).Err()
}

func (g *RedisGate) ReleaseInflight(ctx context.Context, requestID string) error {
	return g.rc.SRem(ctx, inflightKey(g.endpoint), requestID).Err()
}

func (g *RedisGate) InflightCount(ctx context.Context) (int64, error) {
	return g.rc.SCard(ctx, inflightKey(g.endpoint)).Result()
}

// NopGate is used when no Redis is configured: single-process deployments
// still honor retry-after locally through the client's own wait.
type NopGate struct{}

func (NopGate) RetryAfter(context.Context) (time.Duration, error) { return 0, nil }
func (NopGate) Hold(context.Context, time.Duration) error         { return nil }
