package device

import (
	"context"
	"fmt"
)

// Database identifies one of SONiC's redis databases.
type Database int

// Redis DB indexes as laid out in database_config.json.
const (
	ApplDB     Database = 0
	CountersDB Database = 2
	ConfigDB   Database = 4
	StateDB    Database = 6
)

var databaseNames = map[Database]string{
	ApplDB:     "APPL_DB",
	CountersDB: "COUNTERS_DB",
	ConfigDB:   "CONFIG_DB",
	StateDB:    "STATE_DB",
}

func (d Database) String() string {
	if n, ok := databaseNames[d]; ok {
		return n
	}
	return fmt.Sprintf("DB%d", int(d))
}

// Separator returns the table/key separator used by the database.
func (d Database) Separator() string {
	switch d {
	case ConfigDB, StateDB:
		return "|"
	default:
		return ":"
	}
}

// Key joins a table and key parts with the database's separator.
func (d Database) Key(table string, parts ...string) string {
	k := table
	for _, p := range parts {
		k += d.Separator() + p
	}
	return k
}

// DB is hash access to one SONiC database. Missing keys and fields read as
// empty values, not errors.
type DB interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}
