package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"sportlink/sportlink/chatstore"

	"github.com/go-redis/redis/v8"
)

// RedisBackend keeps each chat thread in a hash under the chat namespace and
// tracks the namespace size in a counter key. Writes use WATCH/MULTI so a
// concurrent writer surfaces as chatstore.ErrVersionConflict.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

var _ chatstore.Backend = (*RedisBackend)(nil)

func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client, prefix: chatstore.StorageKey}
}

func (r *RedisBackend) threadKey(sessionID string) string {
	return r.prefix + ":thread:" + sessionID
}

func (r *RedisBackend) sizeKey() string {
	return r.prefix + ":bytes"
}

func (r *RedisBackend) Get(ctx context.Context, key string) (chatstore.Record, error) {
	fields, err := r.client.HGetAll(ctx, r.threadKey(key)).Result()
	if err != nil {
		return chatstore.Record{}, fmt.Errorf("get chat from redis: %w", err)
	}
	if len(fields) == 0 {
		return chatstore.Record{}, chatstore.ErrNotFound
	}
	return decodeFields(key, fields)
}

func decodeFields(key string, fields map[string]string) (chatstore.Record, error) {
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return chatstore.Record{}, fmt.Errorf("chat %s: bad version %q", key, fields["version"])
	}
	updated, err := strconv.ParseInt(fields["updated"], 10, 64)
	if err != nil {
		return chatstore.Record{}, fmt.Errorf("chat %s: bad updated %q", key, fields["updated"])
	}
	return chatstore.Record{
		Key:       key,
		Data:      []byte(fields["data"]),
		Version:   version,
		UpdatedAt: time.Unix(0, updated).UTC(),
	}, nil
}

func (r *RedisBackend) Put(ctx context.Context, rec chatstore.Record, expectedVersion int64) (int64, error) {
	key := r.threadKey(rec.Key)
	next := expectedVersion + 1
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, key, "version", "size").Result()
		if err != nil {
			return err
		}
		exists := vals[0] != nil
		if expectedVersion == 0 && exists {
			return chatstore.ErrVersionConflict
		}
		if expectedVersion != 0 {
			if !exists {
				return chatstore.ErrVersionConflict
			}
			current, _ := strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
			if current != expectedVersion {
				return chatstore.ErrVersionConflict
			}
		}
		var previous int64
		if vals[1] != nil {
			previous, _ = strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"data", rec.Data,
				"version", next,
				"size", len(rec.Data),
				"updated", rec.UpdatedAt.UnixNano(),
			)
			pipe.IncrBy(ctx, r.sizeKey(), int64(len(rec.Data))-previous)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return 0, chatstore.ErrVersionConflict
	}
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) (bool, error) {
	k := r.threadKey(key)
	deleted := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		size, err := tx.HGet(ctx, k, "size").Int64()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			pipe.DecrBy(ctx, r.sizeKey(), size)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, k)
	if err != nil {
		return false, fmt.Errorf("delete chat from redis: %w", err)
	}
	return deleted, nil
}

func (r *RedisBackend) keys(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, r.threadKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (r *RedisBackend) List(ctx context.Context) ([]chatstore.Record, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan chats: %w", err)
	}
	if len(keys) == 0 {
		return []chatstore.Record{}, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	prefixLen := len(r.threadKey(""))
	out := make([]chatstore.Record, 0, len(keys))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// removed between SCAN and HGETALL
			continue
		}
		rec, err := decodeFields(keys[i][prefixLen:], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisBackend) Size(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, r.sizeKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *RedisBackend) Clear(ctx context.Context) error {
	keys, err := r.keys(ctx)
	if err != nil {
		return fmt.Errorf("scan chats: %w", err)
	}
	keys = append(keys, r.sizeKey())
	return r.client.Del(ctx, keys...).Err()
}
