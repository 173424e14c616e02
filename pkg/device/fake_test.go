package device

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"sync"
)

// fakeRunner returns canned output by command. Unknown commands fail like a
// missing binary would.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string][]string // queue; the last entry repeats
	errs    map[string]error
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: make(map[string][]string), errs: make(map[string]error)}
}

func (f *fakeRunner) ExecCommandContext(_ context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	if err, ok := f.errs[cmd]; ok {
		return "", err
	}
	q, ok := f.outputs[cmd]
	if !ok {
		return "", errors.New("exit status 127")
	}
	out := q[0]
	if len(q) > 1 {
		f.outputs[cmd] = q[1:]
	}
	return out, nil
}

func (f *fakeRunner) on(cmd string, outputs ...string) { f.outputs[cmd] = outputs }

// memDB is an in-memory DB. hook, when set, runs after every write.
type memDB struct {
	data map[string]map[string]string
	hook func(op, key string)
}

func newMemDB() *memDB { return &memDB{data: make(map[string]map[string]string)} }

func (m *memDB) HGet(_ context.Context, key, field string) (string, error) {
	return m.data[key][field], nil
}

func (m *memDB) HGetAll(_ context.Context, key string) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range m.data[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memDB) HSet(_ context.Context, key string, fields map[string]string) error {
	if m.data[key] == nil {
		m.data[key] = make(map[string]string)
	}
	for k, v := range fields {
		m.data[key][k] = v
	}
	if m.hook != nil {
		m.hook("HSET", key)
	}
	return nil
}

func (m *memDB) Del(_ context.Context, key string) error {
	delete(m.data, key)
	if m.hook != nil {
		m.hook("DEL", key)
	}
	return nil
}

func (m *memDB) Keys(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// testDevice wires a Device to a fake runner and in-memory databases.
type testDevice struct {
	*Device
	run *fakeRunner
	mem map[string]*memDB
}

func newTestDevice(numASIC int) *testDevice {
	td := &testDevice{run: newFakeRunner(), mem: make(map[string]*memDB)}
	d := New(Config{Name: "dut1"})
	d.run = td.run
	d.pollInterval = 0
	d.platform = "x86_64-broadcom_common"
	d.numASIC = numASIC
	d.openDB = func(ns string, db Database) DB { return td.db(ns, db) }
	td.Device = d
	return td
}

func (td *testDevice) db(ns string, db Database) *memDB {
	key := ns + "/" + db.String()
	if m, ok := td.mem[key]; ok {
		return m
	}
	m := newMemDB()
	td.mem[key] = m
	return m
}

func (td *testDevice) ran(prefix string) bool {
	for _, c := range td.run.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
