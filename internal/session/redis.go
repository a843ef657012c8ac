package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	maxWatchRetries = 32
	watchBackoff    = 2 * time.Millisecond
)

// RedisStore keeps sessions as JSON values under prefix+key. Updates use
// WATCH/MULTI so concurrent turns on one key serialize; the key TTL expires
// idle sessions and EvictStale is a scan-based backstop.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore parses url, pings the server and returns a store.
func NewRedisStore(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, prefix, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// Close releases the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping checks the server is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) key(k string) string {
	return r.prefix + NormalizeKey(k)
}

func (r *RedisStore) GetOrCreate(ctx context.Context, key string) (*Session, error) {
	return r.Update(ctx, key, func(*Session) error { return nil })
}

func (r *RedisStore) Update(ctx context.Context, key string, fn func(*Session) error) (*Session, error) {
	rk := r.key(key)
	var result *Session

	txf := func(tx *redis.Tx) error {
		sess, err := r.load(ctx, tx, rk)
		if err != nil {
			return err
		}
		if sess == nil {
			sess = New(key, r.now())
		}
		if err := fn(sess); err != nil {
			return err
		}
		sess.Key = NormalizeKey(key)
		sess.LastActivity = r.now()

		data, err := sonic.Marshal(sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, data, r.ttl)
			return nil
		})
		if err == nil {
			result = sess
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, rk)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		// Another turn won the race; back off a little before re-reading.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * watchBackoff):
		}
	}
	return nil, fmt.Errorf("session %s: too much contention", key)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, c getter, rk string) (*Session, error) {
	data, err := c.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var s Session
	if err := sonic.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.Context == nil {
		s.Context = map[string]string{}
	}
	return &s, nil
}

// Peek returns a session without touching it.
func (r *RedisStore) Peek(ctx context.Context, key string) (*Session, bool, error) {
	s, err := r.load(ctx, r.client, r.key(key))
	if err != nil || s == nil {
		return nil, false, err
	}
	return s, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func (r *RedisStore) EvictStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rk := iter.Val()
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			s, err := r.load(ctx, tx, rk)
			if err != nil || s == nil || now.Sub(s.LastActivity) <= ttl {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, rk)
				return nil
			})
			if err == nil {
				removed++
			}
			return err
		}, rk)
		// A concurrent turn touched the key; it is no longer stale.
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return removed, err
		}
	}
	return removed, iter.Err()
}
