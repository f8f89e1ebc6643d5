package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pmehra7/gridflow/observability"
)

// RedisStore implements Store and Coordinator on a Redis backend.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis at url (redis://...) and verifies the
// connection before returning.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func observe(start time.Time) {
	observability.StoreLatency.Observe(time.Since(start).Seconds())
}

func (s *RedisStore) ListAppend(ctx context.Context, key, value string) error {
	defer observe(time.Now())
	return s.client.RPush(ctx, key, value).Err()
}

func (s *RedisStore) ListLen(ctx context.Context, key string) (int64, error) {
	defer observe(time.Now())
	return s.client.LLen(ctx, key).Result()
}

func (s *RedisStore) ListIndex(ctx context.Context, key string, i int64) (string, bool, error) {
	defer observe(time.Now())
	val, err := s.client.LIndex(ctx, key, i).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) ListRemoveFirst(ctx context.Context, key, value string) (int64, error) {
	defer observe(time.Now())
	return s.client.LRem(ctx, key, 1, value).Result()
}

func (s *RedisStore) ListPopHead(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	defer observe(time.Now())
	res, err := s.client.BLPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BLPop returns [key, value].
	if len(res) != 2 {
		return "", false, errors.New("store: unexpected BLPOP reply shape")
	}
	return res[1], true, nil
}

func (s *RedisStore) ListPushHead(ctx context.Context, key, value string) error {
	defer observe(time.Now())
	return s.client.LPush(ctx, key, value).Err()
}

func (s *RedisStore) HashSet(ctx context.Context, key, field, value string) error {
	defer observe(time.Now())
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *RedisStore) HashSetFields(ctx context.Context, key string, fields map[string]string) error {
	defer observe(time.Now())
	args := make(map[string]interface{}, len(fields))
	for f, v := range fields {
		args[f] = v
	}
	return s.client.HSet(ctx, key, args).Err()
}

func (s *RedisStore) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	defer observe(time.Now())
	val, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	defer observe(time.Now())
	return s.client.HGetAll(ctx, key).Result()
}

func (s *RedisStore) SetAdd(ctx context.Context, key, member string) error {
	defer observe(time.Now())
	return s.client.SAdd(ctx, key, member).Err()
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	defer observe(time.Now())
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	defer observe(time.Now())
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	defer observe(time.Now())
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// --- Coordinator ---

func (s *RedisStore) AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	defer observe(time.Now())
	return s.client.SetNX(ctx, key, owner, ttl).Result()
}

// RenewLease extends the TTL only while owner still holds the lease.
// The check and the expire run as one Lua script so a lapsed lease taken
// over by another owner is never extended.
func (s *RedisStore) RenewLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	defer observe(time.Now())
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], tonumber(ARGV[2]))
		end
		return 0
	`
	res, err := s.client.Eval(ctx, script, []string{key}, owner, int64(ttl/time.Millisecond)).Result()
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	if !ok {
		return false, errors.New("store: unexpected lease script reply")
	}
	return n == 1, nil
}

func (s *RedisStore) ReleaseLease(ctx context.Context, key, owner string) error {
	defer observe(time.Now())
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`
	return s.client.Eval(ctx, script, []string{key}, owner).Err()
}
