package dropcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// fakeDevice scripts command output. Each command maps to a queue of
// outputs; the last entry repeats once the queue is drained.
type fakeDevice struct {
	name     string
	platform string
	multi    bool
	outputs  map[string][]string
	errs     map[string]error
	status   map[string]string // "<ns>|<ITEM>" -> FLEX_COUNTER_STATUS
	calls    []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		name:     "dut1",
		platform: "x86_64-broadcom_common",
		outputs:  make(map[string][]string),
		errs:     make(map[string]error),
		status:   make(map[string]string),
	}
}

func (f *fakeDevice) Exec(_ context.Context, cmd string) (string, error) {
	f.calls = append(f.calls, cmd)
	if err, ok := f.errs[cmd]; ok {
		return "", err
	}
	q := f.outputs[cmd]
	if len(q) == 0 {
		return "", nil
	}
	out := q[0]
	if len(q) > 1 {
		f.outputs[cmd] = q[1:]
	}
	return out, nil
}

func (f *fakeDevice) IsMultiASIC() bool { return f.multi }

func (f *fakeDevice) NamespaceForASIC(asic int) string {
	if !f.multi {
		return ""
	}
	return fmt.Sprintf("asic%d", asic)
}

func (f *fakeDevice) Name() string     { return f.name }
func (f *fakeDevice) Platform() string { return f.platform }

func (f *fakeDevice) Namespaces() []string {
	if !f.multi {
		return []string{""}
	}
	return []string{"asic0", "asic1"}
}

func (f *fakeDevice) CounterPollStatus(_ context.Context, ns, item string) (string, error) {
	return f.status[ns+"|"+item], nil
}

func (f *fakeDevice) script(cmd string, outputs ...string) {
	f.outputs[cmd] = append(f.outputs[cmd], outputs...)
}

func (f *fakeDevice) count(cmd string) int {
	n := 0
	for _, c := range f.calls {
		if c == cmd {
			n++
		}
	}
	return n
}

// counters renders portstat/intfstat style JSON. Each value is "RX_DRP/RX_ERR",
// e.g. "1,000/0" or "N/A/0".
func counters(ifaces map[string]string) string {
	doc := make(map[string]map[string]string, len(ifaces))
	for name, v := range ifaces {
		parts := strings.SplitN(strings.ReplaceAll(v, "N/A", "\x00"), "/", 2)
		for i := range parts {
			parts[i] = strings.ReplaceAll(parts[i], "\x00", "N/A")
		}
		doc[name] = map[string]string{
			"STATE":  "U",
			"RX_OK":  "0",
			"RX_DRP": parts[0],
			"RX_ERR": parts[1],
			"TX_OK":  "0",
		}
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

type fakeACL struct {
	count int64
	err   error
	reads int
}

func (f *fakeACL) RuleMatchCount(_ context.Context, table, rule string) (int64, error) {
	f.reads++
	return f.count, f.err
}

// newTestVerifier returns a verifier whose waits are recorded, not slept.
func newTestVerifier(dev *fakeDevice, acl ACLCounterReader) (*Verifier, *[]time.Duration) {
	v := NewVerifier(dev.name, NewReader(dev, dev), acl)
	var waits []time.Duration
	v.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return v, &waits
}
