package droptest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"testing"

	"github.com/newtron-network/dropcheck/pkg/device"
	"github.com/newtron-network/dropcheck/pkg/dropcheck"
)

// sim is a single-ASIC DUT whose counters move when the fake dataplane
// injects.
type sim struct {
	platform string
	l2       map[string]map[string]int64 // portstat: iface -> column -> value
	l3       map[string]map[string]int64 // intfstat
	acl      int64
	arp      map[string]bool
	arpPolls int
	// arpLingers keeps an entry for that many polls before it ages out.
	arpLingers int
	status     map[string]string // CounterPollStatus by ITEM

	aclPorts []string
	aclErr   error
	mtuErr   error
	linkErr  error
	restErr  error
	execErrs map[string]error

	calls []string
}

var (
	_ DUT     = (*sim)(nil)
	_ Traffic = (*traffic)(nil)
)

func newSim() *sim {
	return &sim{
		platform: "x86_64-accton_as7726_32x-r0",
		l2:       map[string]map[string]int64{"Ethernet0": {}, "Ethernet4": {}},
		l3:       map[string]map[string]int64{"PortChannel0001": {}, "Vlan1000": {}},
		arp:      map[string]bool{},
		status:   map[string]string{"PORT": "enable", "RIF": "disable"},
		aclPorts: []string{"PortChannel0001"},
		execErrs: map[string]error{},
	}
}

func (s *sim) Name() string                     { return "dut1" }
func (s *sim) Platform() string                 { return s.platform }
func (s *sim) IsMultiASIC() bool                { return false }
func (s *sim) NamespaceForASIC(asic int) string { return "" }
func (s *sim) Namespaces() []string             { return []string{""} }

func (s *sim) CounterPollStatus(_ context.Context, ns, item string) (string, error) {
	return s.status[item], nil
}

func (s *sim) Exec(_ context.Context, cmd string) (string, error) {
	s.calls = append(s.calls, cmd)
	if err, ok := s.execErrs[cmd]; ok {
		return "", err
	}
	switch cmd {
	case "portstat -j ":
		return "Last cached time was 2026-10-19T10:00:00\n" + render(s.l2), nil
	case "intfstat -j ":
		return render(s.l3), nil
	case "sonic-clear counters":
		zero(s.l2)
	case "sonic-clear rifcounters":
		zero(s.l3)
	}
	return "", nil
}

func zero(m map[string]map[string]int64) {
	for iface := range m {
		m[iface] = map[string]int64{}
	}
}

func render(m map[string]map[string]int64) string {
	doc := make(map[string]map[string]string, len(m))
	for iface, cols := range m {
		doc[iface] = map[string]string{
			"STATE":  "U",
			"RX_OK":  "0",
			"RX_DRP": strconv.FormatInt(cols["RX_DRP"], 10),
			"RX_ERR": strconv.FormatInt(cols["RX_ERR"], 10),
		}
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

func (s *sim) ACLRuleCount(_ context.Context, asic int, table, rule string) (int64, error) {
	s.calls = append(s.calls, fmt.Sprintf("acl-count %s:%s", table, rule))
	return s.acl, nil
}

func (s *sim) ApplyACLRule(_ context.Context, rule device.ACLRule) error {
	s.calls = append(s.calls, "acl-apply "+rule.Name)
	s.acl = 0
	return nil
}

func (s *sim) RemoveACLRule(_ context.Context, rule device.ACLRule) error {
	s.calls = append(s.calls, "acl-remove "+rule.Name)
	return nil
}

func (s *sim) ACLTablePorts(_ context.Context, asic int, table string) ([]string, error) {
	return s.aclPorts, s.aclErr
}

func (s *sim) SetMTU(_ context.Context, asic int, iface string, mtu int) error {
	s.calls = append(s.calls, fmt.Sprintf("mtu %s %d", iface, mtu))
	return s.mtuErr
}

func (s *sim) RestoreMTU(context.Context) error {
	s.calls = append(s.calls, "mtu-restore")
	return s.restErr
}

func (s *sim) SetAdminStatus(_ context.Context, asic int, iface string, up bool) error {
	state := "shutdown"
	if up {
		state = "startup"
	}
	s.calls = append(s.calls, state+" "+iface)
	if !up {
		return s.linkErr
	}
	return nil
}

func (s *sim) ARPContains(_ context.Context, ip string) (bool, error) {
	s.arpPolls++
	if s.arp[ip] && s.arpLingers > 0 && s.arpPolls > s.arpLingers {
		delete(s.arp, ip)
	}
	return s.arp[ip], nil
}

func (s *sim) called(cmd string) bool { return slices.Contains(s.calls, cmd) }

// index returns the position of cmd in the call log, or -1.
func (s *sim) index(cmd string) int { return slices.Index(s.calls, cmd) }

// traffic is the fake dataplane. Each Inject hands the frame to onInject.
type traffic struct {
	s         *sim
	onInject  func(s *sim, frame []byte, count int)
	forwarded bool
	injected  []int // frame lengths
	observed  int
}

func (t *traffic) Inject(_ context.Context, frame []byte, port string, count int) error {
	t.injected = append(t.injected, len(frame))
	t.s.calls = append(t.s.calls, fmt.Sprintf("inject %s x%d", port, count))
	if t.onInject != nil {
		t.onInject(t.s, frame, count)
	}
	return nil
}

func (t *traffic) AssertNotForwarded(_ context.Context, m dropcheck.PacketMatcher, ports []string) error {
	t.observed++
	if t.forwarded {
		return fmt.Errorf("%w: received on [%s (1)]", dropcheck.ErrPacketForwarded, ports[0])
	}
	return nil
}

// dropAt returns an onInject hook adding count to one counter cell.
func dropAt(l3 bool, iface, col string) func(*sim, []byte, int) {
	return func(s *sim, _ []byte, count int) {
		m := s.l2
		if l3 {
			m = s.l3
		}
		m[iface][col] += int64(count)
	}
}

func testSuite(cases ...Case) *Suite {
	s := &Suite{
		Name:        "t0-drops",
		DUT:         DUTConfig{Name: "dut1", Host: "10.250.0.101"},
		PacketCount: 100,
		Ports: Ports{
			DUTIface:  "Ethernet4",
			PTFTxPort: "eth1",
			SrcMAC:    "52:54:00:aa:00:01",
			DstMAC:    "52:54:00:bb:00:01",
		},
		Egress:     map[string]string{"Ethernet4": "PortChannel0001"},
		SniffPorts: []string{"eth28", "eth29"},
		Cases:      cases,
	}
	s.PacketFields.IPSrc = "10.0.0.1"
	s.PacketFields.IPDst = "192.168.0.9"
	applyDefaults(s)
	return s
}

func newTestRunner(t *testing.T, s *sim, tr *traffic) *Runner {
	t.Helper()
	r := NewRunner(s, tr)
	r.PollInterval = 0
	r.ARPClearAttempts = 3
	r.ConfigureVerifier = func(v *dropcheck.Verifier) {
		v.PollInterval = 0
		v.ACLSettle = 0
	}
	return r
}

var errBoom = errors.New("boom")
