package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/avstrong/hotelbooking/internal/logger"
	"github.com/avstrong/hotelbooking/internal/retry"
)

var ErrNotAcquired = errors.New("lock is held by another owner")

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	L      *logger.Logger
	Client *redis.Client
	Prefix string
	// TTL caps how long a crashed owner can keep a hotel locked.
	TTL     time.Duration
	Backoff retry.Backoff
}

// Redis is a lock shared by every instance that talks to the same Redis.
type Redis struct {
	l       *logger.Logger
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	backoff retry.Backoff
}

func NewRedis(conf RedisConfig) *Redis {
	return &Redis{
		l:       conf.L,
		client:  conf.Client,
		prefix:  conf.Prefix,
		ttl:     conf.TTL,
		backoff: conf.Backoff,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	retrier := retry.New[struct{}](retry.NewExponentialBackoff(r.backoff))

	_, err := retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return struct{}{}, fmt.Errorf("set %s: %w", redisKey, err)
		}

		if !ok {
			return struct{}{}, ErrNotAcquired
		}

		return struct{}{}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquire redis lock %q: %w", redisKey, err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.ttl)
		defer cancel()

		if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil {
			r.l.LogErrorf("Could not release redis lock %q: %v", redisKey, err.Error())
		}
	}, nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	return nil
}
