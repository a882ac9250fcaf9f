package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"lily/config"
)

// RedisStore is a Redis-backed MetadataStore. Records are stored as JSON
// under keyPrefix+eventID, optionally expiring after ttl.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg *config.RedisConfig, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "lily:record:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}, nil
}

func (r *RedisStore) key(eventID string) string {
	return r.keyPrefix + eventID
}

func (r *RedisStore) set(ctx context.Context, record *Record, expiry time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return r.client.Set(ctx, r.key(record.EventID), data, expiry).Err()
}

func (r *RedisStore) Put(ctx context.Context, record *Record) (string, error) {
	if record.EventID == "" {
		return "", ErrMissingEventID
	}
	normalize(record)
	if err := r.set(ctx, record, r.ttl); err != nil {
		return "", err
	}
	return record.EventID, nil
}

func (r *RedisStore) PutBatch(ctx context.Context, records []*Record) ([]string, error) {
	pipe := r.client.TxPipeline()
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if record.EventID == "" {
			continue
		}
		normalize(record)
		data, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		pipe.Set(ctx, r.key(record.EventID), data, r.ttl)
		ids = append(ids, record.EventID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *RedisStore) Get(ctx context.Context, eventID string) (*Record, error) {
	data, err := r.client.Get(ctx, r.key(eventID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *RedisStore) Update(ctx context.Context, eventID string, partial map[string]interface{}) (bool, error) {
	if len(partial) == 0 {
		return false, nil
	}
	existing, err := r.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	applyPartial(existing, partial)
	normalize(existing)
	if err := r.set(ctx, existing, redis.KeepTTL); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisStore) Delete(ctx context.Context, eventID string) (bool, error) {
	deleted, err := r.client.Del(ctx, r.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

func (r *RedisStore) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	matched := make([]*Record, 0)
	var cursor uint64
	pattern := r.keyPrefix + "*"

	for {
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan keys: %w", err)
		}

		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Bytes()
			if err != nil {
				continue // Key might have expired between SCAN and GET
			}

			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				continue
			}

			if filter.matches(&record) {
				matched = append(matched, &record)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt > matched[j].CreatedAt
		}
		return matched[i].EventID < matched[j].EventID
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
