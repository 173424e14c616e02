package device

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Runner executes a shell command on the DUT.
type Runner interface {
	ExecCommandContext(ctx context.Context, cmd string) (string, error)
}

// CLIDB reaches a namespaced database through sonic-db-cli. Redis instances
// of non-default ASIC namespaces are not exposed on the management address.
type CLIDB struct {
	run       Runner
	namespace string
	db        Database
}

// NewCLIDB returns a DB that shells out to sonic-db-cli -n namespace.
func NewCLIDB(run Runner, namespace string, db Database) *CLIDB {
	return &CLIDB{run: run, namespace: namespace, db: db}
}

func (c *CLIDB) command(op string, args ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "sonic-db-cli -n %s %s %s", shellQuote(c.namespace), c.db, op)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(shellQuote(a))
	}
	return b.String()
}

func (c *CLIDB) exec(ctx context.Context, cmd string) (string, error) {
	out, err := c.run.ExecCommandContext(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	return strings.TrimSpace(out), nil
}

func (c *CLIDB) HGet(ctx context.Context, key, field string) (string, error) {
	return c.exec(ctx, c.command("HGET", key, field))
}

func (c *CLIDB) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	out, err := c.exec(ctx, c.command("HGETALL", key))
	if err != nil {
		return nil, err
	}
	return parsePyDict(out), nil
}

func (c *CLIDB) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		fields = map[string]string{"NULL": "NULL"}
	}
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	args := []string{key}
	for _, k := range names {
		args = append(args, k, fields[k])
	}
	_, err := c.exec(ctx, c.command("HSET", args...))
	return err
}

func (c *CLIDB) Del(ctx context.Context, key string) error {
	_, err := c.exec(ctx, c.command("DEL", key))
	return err
}

// Keys lists matching keys; sonic-db-cli prints one per line.
func (c *CLIDB) Keys(ctx context.Context, pattern string) ([]string, error) {
	out, err := c.exec(ctx, c.command("KEYS", pattern))
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			keys = append(keys, l)
		}
	}
	return keys, nil
}

var pyDictPair = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'\s*:\s*'((?:[^'\\]|\\.)*)'`)

// parsePyDict reads the {'field': 'value', ...} form sonic-db-cli prints for
// HGETALL.
func parsePyDict(s string) map[string]string {
	m := make(map[string]string)
	for _, sub := range pyDictPair.FindAllStringSubmatch(s, -1) {
		m[unescapePy(sub[1])] = unescapePy(sub[2])
	}
	return m
}

func unescapePy(s string) string {
	return strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(s)
}

// shellQuote wraps s in single quotes for the DUT's shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
