package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyNotificationClaim = "cryptopay:notifications:claim:%s"

const claimReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Deduper suppresses repeat notifications for redelivered webhooks.
type Deduper interface {
	// Claim returns a token and true the first time key is offered within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	// Release gives up a claim so a later delivery may notify again.
	Release(ctx context.Context, key, token string) error
}

type RedisDeduper struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	if client == nil {
		return nil
	}
	return &RedisDeduper{
		client: client,
		script: redis.NewScript(claimReleaseScript),
	}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if d == nil || d.client == nil {
		return "", false, errors.New("dedup client not configured")
	}
	if key == "" {
		return "", false, errors.New("dedup key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("dedup ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := d.client.SetNX(ctx, fmt.Sprintf(keyNotificationClaim, key), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key, token string) error {
	if d == nil || d.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return d.script.Run(ctx, d.client, []string{fmt.Sprintf(keyNotificationClaim, key)}, token).Err()
}

// dedupKey identifies a notification by what the recipient would see.
func dedupKey(job Job) string {
	if job.Reference == "" {
		return ""
	}
	return job.EventType + ":" + job.Reference + ":" + job.Status
}
