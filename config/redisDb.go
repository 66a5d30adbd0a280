package config

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis is optional. Every helper below is a no-op (or a miss) while no client is installed,
// so the dashboard cache, sessions and run locks degrade instead of failing.
var (
	rdb    *redis.Client
	locker *redislock.Client
)

const redisOpTimeout = 2 * time.Second

func GetRedisDB() *redis.Client {
	return rdb
}

// GetRedisLock is nil until a client is installed; callers then rely on the database
// constraints alone.
func GetRedisLock() *redislock.Client {
	return locker
}

// SetRedisClient installs an existing client. Used by tests and CLIs.
func SetRedisClient(c *redis.Client) {
	rdb = c
	locker = nil
	if c != nil {
		locker = redislock.New(c)
	}
}

func redisCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

// GetRedisValue reports found=false on a miss or when Redis is not configured.
func GetRedisValue(key string) (string, bool, error) {
	if rdb == nil {
		return "", false, nil
	}
	ctx, cancel := redisCtx()
	defer cancel()
	val, err := rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func SetRedisValue(key string, value string, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	ctx, cancel := redisCtx()
	defer cancel()
	return rdb.Set(ctx, key, value, exp).Err()
}

// GetRedisObject decodes the JSON stored under key into dest.
func GetRedisObject(key string, dest any) (bool, error) {
	val, found, err := GetRedisValue(key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(key string, obj any, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return SetRedisValue(key, string(b), exp)
}

func RemoveRedisKey(keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil
	}
	ctx, cancel := redisCtx()
	defer cancel()
	return rdb.Del(ctx, keys...).Err()
}

// ConnectRedisWithRetry blocks until REDIS_ADDRESS (default localhost:6379) answers a PING.
// Call it from main() after the HTTP server is listening.
func ConnectRedisWithRetry() {
	addr := envOr("REDIS_ADDRESS", "localhost:6379")
	connectWithRetry("redis", logrus.Fields{"addr": addr}, func() error {
		c := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: envOr("REDIS_PASSWORD", ""),
			PoolSize: intFromEnv("REDIS_POOL_SIZE", 100),
		})
		ctx, cancel := redisCtx()
		defer cancel()
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return err
		}
		SetRedisClient(c)
		return nil
	})
}
