package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// versionTTL держит номер версии дольше самого значения, чтобы после истечения
// значения запоздавшая запись старой версии всё равно была отклонена.
const versionTTL = 24 * time.Hour

// KEYS[1] значение, KEYS[2] версия; ARGV: payload, version, ttl ms, version ttl ms
var setIfNewerScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '-1')
local version = tonumber(ARGV[2])
if version < current then
  return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[4])
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

type CacheService struct {
	redisClient redis.Cmdable
	prefix      string
}

func NewCacheService(redisClient redis.Cmdable, prefix string) *CacheService {
	return &CacheService{
		redisClient: redisClient,
		prefix:      prefix,
	}
}

func (c *CacheService) key(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get получает значение из кэша
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.redisClient.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// SetIfNewer сохраняет значение, только если version не меньше последней
// записанной для этого ключа. Возвращает false, если запись отклонена.
// Версии должны монотонно расти вместе с данными (например, timestamp состояния).
func (c *CacheService) SetIfNewer(ctx context.Context, key string, value interface{}, version int64, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}

	keys := []string{c.key(key), c.key(key) + ":version"}
	stored, err := setIfNewerScript.Run(ctx, c.redisClient, keys,
		string(data), version, ttl.Milliseconds(), versionTTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}
