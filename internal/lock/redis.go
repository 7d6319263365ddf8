package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hotel-booking/internal/domain"
)

const (
	defaultRedisTTL       = 30 * time.Second
	defaultRedisRetry     = 25 * time.Millisecond
	defaultRedisKeyPrefix = "hotel:lock:"
)

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу токена.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker — распределённая блокировка на SET NX PX для нескольких реплик сервиса.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *log.Entry
}

// RedisOption настраивает RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL задаёт время жизни блокировки на случай падения владельца.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithKeyPrefix задаёт префикс ключей.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithRedisLogger задаёт логгер для ошибок освобождения.
func WithRedisLogger(logger *log.Entry) RedisOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker создаёт Locker поверх Redis.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: defaultRedisKeyPrefix,
		ttl:    defaultRedisTTL,
		retry:  defaultRedisRetry,
		logger: log.WithField("component", "redis-locker"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock повторяет SET NX до успеха или отмены ctx.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrLockNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() { l.release(redisKey, token) }, nil
}

// release удаляет ключ владельца. Неудалённый ключ держит блокировку до истечения TTL.
func (l *RedisLocker) release(redisKey, token string) {
	releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	fields := log.Fields{"key": redisKey, "ttl": l.ttl}
	deleted, err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Int()
	if err != nil {
		l.logger.WithError(err).WithFields(fields).Warn("redis lock release failed")
		return
	}
	if deleted == 0 {
		l.logger.WithFields(fields).Warn("redis lock expired before release")
	}
}

var _ Locker = (*RedisLocker)(nil)
