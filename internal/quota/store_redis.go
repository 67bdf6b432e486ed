package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "quota:"
	defaultRedisTTL     = 8 * 24 * time.Hour
	defaultRedisRetries = 16
)

// RedisStore keeps records as JSON strings. Apply uses an optimistic
// WATCH/MULTI transaction and retries when another writer got there first.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	retries int
}

// NewRedisStore constructs a Redis-backed quota store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client:  client,
		prefix:  defaultRedisPrefix,
		ttl:     defaultRedisTTL,
		retries: defaultRedisRetries,
	}
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) key(clientID string) string {
	return s.prefix + clientID
}

func (s *RedisStore) Load(ctx context.Context, clientID string) (Record, error) {
	return s.read(ctx, s.client, s.key(clientID))
}

func (s *RedisStore) Apply(ctx context.Context, clientID string, fn func(*Record) error) (Record, error) {
	key := s.key(clientID)
	for attempt := 0; attempt < s.retries; attempt++ {
		var out Record
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := s.read(ctx, tx, key)
			if err != nil {
				return err
			}
			if err := fn(&rec); err != nil {
				return err
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode quota record: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.ttl)
				return nil
			})
			out = rec
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Record{}, err
		}
		return out, nil
	}
	return Record{}, ErrContention
}

func (s *RedisStore) read(ctx context.Context, g stringGetter, key string) (Record, error) {
	raw, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("load quota record: %w", err)
	}
	return decodeRecord(raw)
}

var _ Store = (*RedisStore)(nil)
