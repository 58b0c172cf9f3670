package locksvc

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/payment"
)

var (
	lockTTL = 30 * time.Second
	// a redelivery waits for the lock up to ~5s
	retryStrategy = redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50)
)

// RedisLocker serialises work on a key with a Redis lock. When Redis cannot be reached the
// work proceeds unlocked.
type RedisLocker struct {
	locker *redislock.Client
	logger core.Logger
}

var _ payment.Locker = (*RedisLocker)(nil)

func NewRedisClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

func NewRedisLocker(rdb redis.UniversalClient, logger core.Logger) *RedisLocker {
	return &RedisLocker{locker: redislock.New(rdb), logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.locker.Obtain(ctx, key, lockTTL, &redislock.Options{RetryStrategy: retryStrategy})
	switch {
	case err == nil:
	case errors.Is(err, redislock.ErrNotObtained):
		return nil, errors.Wrapf(err, "obtaining lock %q", key)
	default:
		l.logger.Warn("redis lock unavailable; proceeding without lock", err, map[string]interface{}{"key": key})
		return func() {}, nil
	}

	return func() {
		// the caller's context may be done by now
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("releasing redis lock", err, map[string]interface{}{"key": key})
		}
	}, nil
}
