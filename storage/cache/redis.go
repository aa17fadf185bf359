// Package cache stores typeahead results in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/course"
)

const keyPrefix = "masomo-admin:"

// RedisCache is a course.SearchCache. Cache failures are logged and treated as misses.
type RedisCache struct {
	rdb    *redis.Client
	logger core.Logger
}

var _ course.SearchCache = (*RedisCache)(nil)

func NewRedisCache(rdb *redis.Client, logger core.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, logger: logger}
}

// Open connects to Redis at `addr` and checks the connection.
func Open(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

func (c *RedisCache) GetStudents(ctx context.Context, key string) ([]course.Student, bool) {
	data, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn(fmt.Sprintf("reading cached search %q: %v", key, err), err)
		return nil, false
	}

	var students []course.Student
	if err = json.Unmarshal(data, &students); err != nil {
		c.logger.Warn(fmt.Sprintf("decoding cached search %q: %v", key, err), err)
		return nil, false
	}
	return students, true
}

func (c *RedisCache) SetStudents(ctx context.Context, key string, students []course.Student, ttl time.Duration) {
	data, err := json.Marshal(students)
	if err != nil {
		c.logger.Warn(fmt.Sprintf("encoding search %q: %v", key, err), err)
		return
	}
	if err = c.rdb.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn(fmt.Sprintf("caching search %q: %v", key, err), err)
	}
}
