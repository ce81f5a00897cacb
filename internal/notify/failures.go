package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Failure describes a delivery that was given up on. Failures are kept for
// operators; nothing retries them.
type Failure struct {
	TicketID  int64     `json:"ticket_id"`
	EventType string    `json:"event_type"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// FailureLog records failed deliveries.
type FailureLog interface {
	Record(ctx context.Context, failure Failure) error
}

// RedisFailureLog keeps the most recent failures in a capped Redis list.
type RedisFailureLog struct {
	client *redis.Client
	key    string
	max    int64
}

// NewRedisFailureLog builds the ledger. A nil client disables it.
func NewRedisFailureLog(client *redis.Client, key string, max int64) *RedisFailureLog {
	if max <= 0 {
		max = 1000
	}
	return &RedisFailureLog{client: client, key: key, max: max}
}

func (l *RedisFailureLog) Record(ctx context.Context, failure Failure) error {
	if l == nil || l.client == nil {
		return nil
	}
	payload, err := json.Marshal(failure)
	if err != nil {
		return err
	}
	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, l.key, payload)
	pipe.LTrim(ctx, l.key, 0, l.max-1)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n of the newest failures.
func (l *RedisFailureLog) Recent(ctx context.Context, n int64) ([]Failure, error) {
	if l == nil || l.client == nil {
		return []Failure{}, nil
	}
	if n <= 0 || n > l.max {
		n = l.max
	}
	raw, err := l.client.LRange(ctx, l.key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Failure, 0, len(raw))
	for _, item := range raw {
		var failure Failure
		if err := json.Unmarshal([]byte(item), &failure); err != nil {
			continue
		}
		out = append(out, failure)
	}
	return out, nil
}
