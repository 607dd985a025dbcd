package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/smukkama/home-monitor/internal/monitor"
)

// DefaultRedisKey holds the state document.
const DefaultRedisKey = "home_monitor:state"

// RedisStore keeps the state document under a single key.
type RedisStore struct {
	redis *redis.Client
	key   string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{redis: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (monitor.State, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return monitor.NewState(), nil
	}
	if err != nil {
		return monitor.State{}, fmt.Errorf("failed to get state from Redis: %w", err)
	}
	return monitor.DecodeState(data)
}

func (s *RedisStore) Save(ctx context.Context, st monitor.State) error {
	data, err := monitor.EncodeState(st)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set state in Redis: %w", err)
	}
	return nil
}

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX lock with a TTL so a crashed run cannot hold it
// forever.
type RedisLocker struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = DefaultRedisKey + ":lock"
	}
	return &RedisLocker{redis: client, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func() error, error) {
	token := lockOwner() + ":" + uuid.NewString()

	ok, err := l.redis.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, l.key)
	}

	return func() error {
		if err := releaseScript.Run(context.Background(), l.redis, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		return nil
	}, nil
}
