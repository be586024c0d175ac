package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/metrics"
)

// RedisPostEventQueue реализует очередь событий постов на базе Redis lists.
type RedisPostEventQueue struct {
	client *redis.Client
	key    string
}

// NewRedisPostEventQueue создаёт очередь по указанному ключу.
func NewRedisPostEventQueue(client *redis.Client, key string) *RedisPostEventQueue {
	return &RedisPostEventQueue{client: client, key: key}
}

// Enqueue публикует событие в очередь.
func (q *RedisPostEventQueue) Enqueue(ctx context.Context, event domain.PostEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие из очереди.
// При неуспешном подтверждении событие возвращается в очередь.
func (q *RedisPostEventQueue) Receive(ctx context.Context) (domain.PostEvent, domain.EventAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.PostEvent{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.PostEvent{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.PostEvent{}, nil, err
		}
		if len(res) != 2 {
			return domain.PostEvent{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := []byte(res[1])
		var event domain.PostEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return domain.PostEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, payload).Err()
		}
		return event, ack, nil
	}
}
