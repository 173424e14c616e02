// Package dropcheck verifies that a SONiC device's drop counters account for
// an injected stimulus at the expected layer, and nowhere else.
//
// A verification run clears counters, hands packet emission to an Injector,
// then checks RX_DRP / RX_ERR from portstat and intfstat (and ACL rule
// counters for ACL drops) against the injected count. Platform combination
// rules decide whether L3 or ACL drops surface through the L2 counter.
package dropcheck

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DiscardGroup names the mechanism expected to drop the stimulus.
type DiscardGroup int

const (
	GroupL2 DiscardGroup = iota + 1
	GroupL3
	GroupACL
	GroupNoDrops
)

var groupNames = map[DiscardGroup]string{
	GroupL2:      "L2",
	GroupL3:      "L3",
	GroupACL:     "ACL",
	GroupNoDrops: "NO_DROPS",
}

func (g DiscardGroup) String() string {
	if s, ok := groupNames[g]; ok {
		return s
	}
	return fmt.Sprintf("DiscardGroup(%d)", int(g))
}

// ExpectsDrop reports whether packets of this group must not leave the device.
func (g DiscardGroup) ExpectsDrop() bool {
	return g != GroupNoDrops
}

// ParseDiscardGroup converts an externally supplied name ("L2", "L3", "ACL",
// "NO_DROPS") into a DiscardGroup. Matching is case-insensitive.
func ParseDiscardGroup(s string) (DiscardGroup, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for g, n := range groupNames {
		if n == name {
			return g, nil
		}
	}
	return 0, &UnsupportedDiscardGroupError{Value: s}
}

// UnmarshalYAML lets suite files spell groups by name.
func (g *DiscardGroup) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseDiscardGroup(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// Layer selects which counter command is read.
type Layer int

const (
	LayerL2 Layer = iota + 1 // portstat
	LayerL3                  // intfstat (RIF counters)
)

func (l Layer) String() string {
	switch l {
	case LayerL2:
		return "L2"
	case LayerL3:
		return "L3"
	default:
		return fmt.Sprintf("Layer(%d)", int(l))
	}
}

// CounterField selects a drop column from an interface's counters.
type CounterField string

const (
	FieldRxDrp CounterField = "RX_DRP"
	FieldRxErr CounterField = "RX_ERR"
)

// CounterValue is one counter cell: the raw device text and, when the text is
// numeric, its value with thousands separators removed.
type CounterValue struct {
	Raw   string
	Value int64
	Valid bool
}

// ParseCounterValue normalizes a device-formatted counter such as "1,000".
// Non-numeric text ("N/A") yields a value with Valid=false.
func ParseCounterValue(raw string) CounterValue {
	v := CounterValue{Raw: raw}
	n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""), 10, 64)
	if err != nil {
		return v
	}
	v.Value = n
	v.Valid = true
	return v
}

func (v CounterValue) String() string {
	if v.Valid {
		return strconv.FormatInt(v.Value, 10)
	}
	return fmt.Sprintf("%q", v.Raw)
}

// InterfaceCounters holds the drop-relevant columns for one interface.
type InterfaceCounters struct {
	RxErr CounterValue
	RxDrp CounterValue
}

// Get returns the column selected by f.
func (c InterfaceCounters) Get(f CounterField) CounterValue {
	if f == FieldRxErr {
		return c.RxErr
	}
	return c.RxDrp
}

// CounterSnapshot is one decoded read of portstat or intfstat.
type CounterSnapshot struct {
	Layer      Layer
	Command    string
	Interfaces map[string]InterfaceCounters
}

// CombinationFlags records which drop counters a platform reports through a
// shared hardware counter. Computed once per session.
type CombinationFlags struct {
	L2L3Combined  bool
	ACLL2Combined bool
}

// PortContext identifies the interfaces checked for one stimulus.
type PortContext struct {
	Ingress   string // DUT port receiving the stimulus
	Egress    string // L3 interface the stimulus would route out of (may be empty)
	ASIC      int
	Namespace string // "" on single-ASIC devices
}

// ACLRuleRef names the ACL rule whose packet counter is authoritative for
// ACL drops.
type ACLRuleRef struct {
	Table string
	Rule  string
}

// DefaultACLRule is the rule installed by the ACL drop fixture.
var DefaultACLRule = ACLRuleRef{Table: "DATAACL", Rule: "RULE_1"}

// CommandChannel executes a shell command on the device and returns its
// combined output.
type CommandChannel interface {
	Exec(ctx context.Context, cmd string) (string, error)
}

// Topology answers the namespace questions the counter commands depend on.
type Topology interface {
	IsMultiASIC() bool
	NamespaceForASIC(asic int) string
}

// ACLCounterReader reads an ACL rule's matched packet count.
type ACLCounterReader interface {
	RuleMatchCount(ctx context.Context, table, rule string) (int64, error)
}

// PacketMatcher decides whether a captured frame is the stimulus.
type PacketMatcher interface {
	Match(frame []byte) bool
}

// Injector emits the stimulus count times on a traffic-generator port.
type Injector interface {
	Inject(ctx context.Context, frame []byte, port string, count int) error
}

// EgressObserver fails if a frame matching m was seen on any of ports.
type EgressObserver interface {
	AssertNotForwarded(ctx context.Context, m PacketMatcher, ports []string) error
}
