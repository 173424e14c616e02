// Package droptest runs drop-counter suites against a SONiC DUT.
// It parses YAML suite files, prepares per-case fixtures (ACL rule, MTU,
// link state), drives each stimulus through dropcheck and reports the results.
package droptest

import (
	"github.com/newtron-network/dropcheck/pkg/dropcheck"
	"github.com/newtron-network/dropcheck/pkg/packet"
)

// Suite is a parsed drop-counter suite from a YAML file.
type Suite struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	DUT         DUTConfig `yaml:"dut"`

	PacketCount int `yaml:"packet_count,omitempty"`
	// CombinationRules overrides the built-in combined counter rules.
	CombinationRules string `yaml:"combination_rules,omitempty"`

	Ports Ports `yaml:"ports"`
	// Egress maps a DUT ingress port to the L3 interface its traffic routes
	// out of (PortChannel, Ethernet or Vlan).
	Egress     map[string]string `yaml:"tx_dut_ports,omitempty"`
	SniffPorts []string          `yaml:"sniff_ports"`
	// PacketFields are the addresses and ports shared by every stimulus.
	PacketFields packet.TCPParams `yaml:"pkt_fields"`

	Cases []Case `yaml:"cases"`
}

// DUTConfig holds the connection parameters of the device under test. CLI
// flags and configuration override these.
type DUTConfig struct {
	Name    string `yaml:"name"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port,omitempty"`
	User    string `yaml:"user,omitempty"`
	KeyFile string `yaml:"key_file,omitempty"`
}

// Ports describes where the stimulus enters the DUT.
type Ports struct {
	DUTIface  string `yaml:"dut_iface"`
	PTFTxPort string `yaml:"ptf_tx_port"`
	ASIC      int    `yaml:"asic_index,omitempty"`
	SrcMAC    string `yaml:"src_mac"`
	DstMAC    string `yaml:"dst_mac"`
}

// EgressFor returns the egress L3 interface of the suite's ingress port.
func (s *Suite) EgressFor() string {
	return s.Egress[s.Ports.DUTIface]
}

// Case is a single drop scenario within a suite.
// Fields beyond name and kind are kind-specific.
type Case struct {
	Name string   `yaml:"name"`
	Kind CaseKind `yaml:"kind"`

	// custom
	Group         dropcheck.DiscardGroup `yaml:"group,omitempty"`
	L2Field       dropcheck.CounterField `yaml:"l2_field,omitempty"`
	IgnoreIPv4Src bool                   `yaml:"ignore_ipv4_src,omitempty"`

	// Packet overrides suite packet fields for this case.
	Packet packet.TCPParams `yaml:"packet,omitempty"`

	// ip-pkt-exceeded-mtu
	MTU int `yaml:"mtu,omitempty"`

	// no-egress-drop-on-down-link
	DownLink *DownLink `yaml:"down_link,omitempty"`
}

// DownLink names the routed interface shut down by the down-link case and
// the neighbor address the stimulus is sent to.
type DownLink struct {
	Interface  string `yaml:"interface"`
	NeighborIP string `yaml:"neighbor_ip"`
}

// CaseKind identifies the stimulus and fixtures a case uses.
type CaseKind string

const (
	KindReservedDMAC     CaseKind = "reserved-dmac"
	KindACLDrop          CaseKind = "acl-drop"
	KindSrcIPLinkLocal   CaseKind = "src-ip-link-local"
	KindExceededMTU      CaseKind = "ip-pkt-exceeded-mtu"
	KindNoDropOnDownLink CaseKind = "no-egress-drop-on-down-link"
	KindCustom           CaseKind = "custom"
)

// validKinds is derived from the builders map in cases.go at init time.
var validKinds map[CaseKind]bool

func init() {
	validKinds = make(map[CaseKind]bool, len(builders))
	for kind := range builders {
		validKinds[kind] = true
	}
}
