package dropcheck

import (
	"context"
	"fmt"

	"github.com/newtron-network/dropcheck/pkg/util"
)

// DefaultPacketCount is the number of stimulus copies injected per run.
const DefaultPacketCount = 1000

// Stimulus is one verification scenario: a frame injected Count times on
// TxPort, expected to be handled according to Group.
type Stimulus struct {
	Group   DiscardGroup
	Frame   []byte
	Matcher PacketMatcher // identifies the frame on egress; required unless Group is NO_DROPS
	TxPort  string        // traffic generator port wired to Port.Ingress
	Count   int
	Port    PortContext
	// SniffPorts are the traffic generator ports the frame must not reach.
	SniffPorts []string
	L2Field    CounterField
	ACLRule    ACLRuleRef
}

// Driver runs full scenarios: clear, inject, verify, check egress.
type Driver struct {
	Channel  CommandChannel
	Topology Topology
	Verifier *Verifier
	Injector Injector
	Observer EgressObserver
	Flags    CombinationFlags
	Device   string
}

// NewDriver builds a Driver that shares sess's device and flags.
func NewDriver(sess *Session, v *Verifier, inj Injector, obs EgressObserver) *Driver {
	return &Driver{
		Channel:  sess.dev,
		Topology: sess.dev,
		Verifier: v,
		Injector: inj,
		Observer: obs,
		Flags:    sess.Flags,
		Device:   sess.dev.Name(),
	}
}

// ClearCounters clears device port counters and the RIF counters of the
// ASIC's namespace.
func (d *Driver) ClearCounters(ctx context.Context, asic int) error {
	if _, err := d.Channel.Exec(ctx, "sonic-clear counters"); err != nil {
		return err
	}
	prefix := ""
	if d.Topology != nil && d.Topology.IsMultiASIC() {
		prefix = fmt.Sprintf(namespacePrefix, d.Topology.NamespaceForASIC(asic))
	}
	_, err := d.Channel.Exec(ctx, prefix+"sonic-clear rifcounters")
	return err
}

// Run executes one scenario. Any stage failure is returned as a
// *ScenarioError wrapping the underlying error.
func (d *Driver) Run(ctx context.Context, s Stimulus) error {
	count := s.Count
	if count <= 0 {
		count = DefaultPacketCount
	}
	log := util.WithDevice(d.Device).WithField("group", s.Group.String())

	if err := d.ClearCounters(ctx, s.Port.ASIC); err != nil {
		return &ScenarioError{Stage: "clear", Group: s.Group, Err: err}
	}

	log.Debugf("Injecting %d packets on %s toward %s", count, s.TxPort, s.Port.Ingress)
	if err := d.Injector.Inject(ctx, s.Frame, s.TxPort, count); err != nil {
		return &ScenarioError{Stage: "inject", Group: s.Group, Err: err}
	}

	req := Request{
		Group:   s.Group,
		Flags:   d.Flags,
		Count:   int64(count),
		Port:    s.Port,
		L2Field: s.L2Field,
		ACLRule: s.ACLRule,
	}
	if err := d.Verifier.Verify(ctx, req); err != nil {
		return &ScenarioError{Stage: "verify", Group: s.Group, Err: err}
	}

	if !s.Group.ExpectsDrop() {
		return nil
	}
	if s.Matcher == nil {
		return &ScenarioError{Stage: "egress", Group: s.Group, Err: fmt.Errorf("no packet matcher for egress check")}
	}
	if err := d.Observer.AssertNotForwarded(ctx, s.Matcher, s.SniffPorts); err != nil {
		return &ScenarioError{Stage: "egress", Group: s.Group, Err: err}
	}
	return nil
}
