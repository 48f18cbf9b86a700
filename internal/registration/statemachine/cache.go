package statemachine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"registration-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

// replayCache remembers the outcome of keyed actions so retries are
// answered without taking the row lock. The action log stays authoritative.
type replayCache struct {
	client *redis.Client
	ttl    time.Duration
}

type cachedOutcome struct {
	Status models.Status `json:"status"`
}

func replayKey(applicationID string, kind models.ActionKind, idempotencyKey string) string {
	return fmt.Sprintf("registration:idempotency:%s:%s:%s", applicationID, kind, idempotencyKey)
}

func (c *replayCache) get(ctx context.Context, key string) (models.Status, bool, error) {
	if c == nil || c.client == nil {
		return "", false, nil
	}
	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var out cachedOutcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", false, err
	}
	if !out.Status.Valid() {
		return "", false, fmt.Errorf("cached status %q is not a lifecycle state", out.Status)
	}
	return out.Status, true, nil
}

func (c *replayCache) put(ctx context.Context, key string, status models.Status) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(cachedOutcome{Status: status})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
