// Package factory builds a store.Store from environment configuration.
package factory

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flowbothq/flowbot/store"
	"github.com/flowbothq/flowbot/store/memory"
	redisstore "github.com/flowbothq/flowbot/store/redis"
	sqlitestore "github.com/flowbothq/flowbot/store/sqlite"
)

func FromEnv(ctx context.Context) (store.Store, error) {
	_ = ctx

	backend := strings.ToLower(strings.TrimSpace(getenv("FLOWBOT_STORE_BACKEND", "sqlite")))
	switch backend {
	case "sqlite":
		path := getenv("FLOWBOT_SQLITE_PATH", "./.flowbot/flowbot.db")
		return sqlitestore.New(path)

	case "redis":
		return newRedisStoreFromEnv()

	case "memory":
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported FLOWBOT_STORE_BACKEND %q (use sqlite, redis, or memory)", backend)
	}
}

func newRedisStoreFromEnv() (store.Store, error) {
	addr := getenv("FLOWBOT_REDIS_ADDR", "127.0.0.1:6379")
	password := strings.TrimSpace(os.Getenv("FLOWBOT_REDIS_PASSWORD"))
	db := getenvInt("FLOWBOT_REDIS_DB", 0)
	ttl := getenvDuration("FLOWBOT_REDIS_EXEC_TTL", 0)

	opts := []redisstore.Option{
		redisstore.WithPassword(password),
		redisstore.WithDB(db),
		redisstore.WithExecutionTTL(ttl),
	}
	return redisstore.New(addr, opts...)
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
