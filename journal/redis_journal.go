package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phx1999/SDN/controller"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"
)

const DefaultKey = "sdn:topology_events"

func NewPool(address string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", address,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second))
		},
	}
}

// RedisJournal keeps accepted topology events in a Redis list, oldest first.
type RedisJournal struct {
	pool *redis.Pool
	key  string
}

func NewRedisJournal(pool *redis.Pool, key string) *RedisJournal {
	if key == "" {
		key = DefaultKey
	}
	return &RedisJournal{pool: pool, key: key}
}

func (j *RedisJournal) Append(ctx context.Context, ev controller.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	conn, err := j.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("RPUSH", j.key, data); err != nil {
		return fmt.Errorf("failed to append event to %s: %w", j.key, err)
	}
	return nil
}

// Load returns every journaled event in append order. Entries that no longer
// decode are skipped.
func (j *RedisJournal) Load(ctx context.Context) ([]controller.Event, error) {
	conn, err := j.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	values, err := redis.ByteSlices(conn.Do("LRANGE", j.key, 0, -1))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events from %s: %w", j.key, err)
	}

	events := make([]controller.Event, 0, len(values))
	for i, value := range values {
		ev, err := controller.DecodeEvent(value)
		if err != nil {
			log.Errorf("Failed to parse journaled event %d: %v", i, err)
			continue
		}
		events = append(events, ev)
	}
	log.Infof("loaded %d journaled events from %s", len(events), j.key)
	return events, nil
}

// Compact replaces the journal with events. The new list is built under a
// scratch key and renamed over the journal, so readers see the old or the new
// list, never a partial one.
func (j *RedisJournal) Compact(ctx context.Context, events []controller.Event) error {
	conn, err := j.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	if len(events) == 0 {
		if _, err := conn.Do("DEL", j.key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", j.key, err)
		}
		return nil
	}

	scratch := j.key + ":compact"
	args := make([]interface{}, 0, len(events)+1)
	args = append(args, scratch)
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		args = append(args, data)
	}

	if _, err := conn.Do("DEL", scratch); err != nil {
		return fmt.Errorf("failed to clear %s: %w", scratch, err)
	}
	if _, err := conn.Do("RPUSH", args...); err != nil {
		return fmt.Errorf("failed to write %s: %w", scratch, err)
	}
	if _, err := conn.Do("RENAME", scratch, j.key); err != nil {
		return fmt.Errorf("failed to replace %s: %w", j.key, err)
	}
	return nil
}

func (j *RedisJournal) Close() error {
	return j.pool.Close()
}
