package device

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// RedisDB talks to one database of the default namespace's redis.
type RedisDB struct {
	db     Database
	client *redis.Client
}

// NewRedisDB opens a client for db at addr (usually an SSHTunnel's LocalAddr).
func NewRedisDB(addr string, db Database) *RedisDB {
	return &RedisDB{
		db: db,
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   int(db),
		}),
	}
}

// Ping checks the connection.
func (r *RedisDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisDB) Close() error {
	return r.client.Close()
}

func (r *RedisDB) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *RedisDB) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

// HSet writes all fields in one command. An empty field set writes the
// "NULL":"NULL" placeholder SONiC uses for field-less entries.
func (r *RedisDB) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return r.client.HSet(ctx, key, "NULL", "NULL").Err()
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return r.client.HSet(ctx, key, args...).Err()
}

func (r *RedisDB) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Keys uses KEYS; SONiC config databases are small enough for it.
func (r *RedisDB) Keys(ctx context.Context, pattern string) ([]string, error) {
	return r.client.Keys(ctx, pattern).Result()
}
