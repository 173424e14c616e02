//go:build integration

// Package testutil provides test helpers for integration tests that run
// against a real redis standing in for a SONiC DUT's databases.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisContainer = "dropcheck-test-redis"

// RedisAddr returns the address of the test redis (IP:port).
// It first checks DROPCHECK_TEST_REDIS_ADDR, then discovers the Docker container IP.
func RedisAddr() string {
	if addr := os.Getenv("DROPCHECK_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	ip := redisContainerIP()
	if ip == "" {
		return ""
	}
	return ip + ":6379"
}

func redisContainerIP() string {
	out, err := exec.Command("docker", "inspect",
		"--format", "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}",
		redisContainer).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// SkipIfNoRedis skips the test if the test redis is not reachable and
// returns its address otherwise.
func SkipIfNoRedis(t *testing.T) string {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Skip("test redis not available: docker run -d --name " + redisContainer + " redis:7")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test redis not reachable at %s: %v", addr, err)
	}
	return addr
}

// Context returns a context with a reasonable timeout for tests.
// The cancel function is registered via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// RedisClient returns a redis client for the specified DB, closed on cleanup.
func RedisClient(t *testing.T, addr string, db int) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	t.Cleanup(func() { client.Close() })
	return client
}
