//go:build integration

package testutil

import (
	"context"
	"testing"
)

// SONiC database indexes used by the seeds.
const (
	CountersDB = 2
	ConfigDB   = 4
)

// Separator returns the table/key separator of db: "|" for CONFIG_DB and
// STATE_DB, ":" elsewhere.
func Separator(db int) string {
	switch db {
	case ConfigDB, 6:
		return "|"
	default:
		return ":"
	}
}

// Seed is TABLE -> key -> field -> value.
type Seed map[string]map[string]map[string]string

// SeedRedis flushes db and loads seed into it. A key with an empty key part
// is written as the bare table name (ACL_COUNTER_RULE_MAP).
func SeedRedis(t *testing.T, addr string, db int, seed Seed) {
	t.Helper()

	client := RedisClient(t, addr, db)
	ctx := context.Background()
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", db, err)
	}

	for table, entries := range seed {
		for key, fields := range entries {
			redisKey := table
			if key != "" {
				redisKey += Separator(db) + key
			}
			if len(fields) == 0 {
				fields = map[string]string{"NULL": "NULL"}
			}
			args := make([]interface{}, 0, len(fields)*2)
			for k, v := range fields {
				args = append(args, k, v)
			}
			if err := client.HSet(ctx, redisKey, args...).Err(); err != nil {
				t.Fatalf("seeding %s: %v", redisKey, err)
			}
		}
	}
}

// ReadEntry reads a hash from db.
func ReadEntry(t *testing.T, addr string, db int, key string) map[string]string {
	t.Helper()

	vals, err := RedisClient(t, addr, db).HGetAll(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("reading %s: %v", key, err)
	}
	return vals
}

// EntryExists checks if key exists in db.
func EntryExists(t *testing.T, addr string, db int, key string) bool {
	t.Helper()

	n, err := RedisClient(t, addr, db).Exists(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("checking existence of %s: %v", key, err)
	}
	return n > 0
}
