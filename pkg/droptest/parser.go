package droptest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/dropcheck/pkg/dropcheck"
	"github.com/newtron-network/dropcheck/pkg/util"
)

// defaultTempMTU is the egress MTU configured by the exceeded-MTU case.
const defaultTempMTU = 1500

// ParseSuite reads a YAML suite file and returns a validated Suite.
func ParseSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite %s: %w", path, err)
	}
	s, err := parseSuite(data)
	if err != nil {
		return nil, fmt.Errorf("parsing suite %s: %w", path, err)
	}
	return s, nil
}

func parseSuite(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	applyDefaults(&s)
	if err := ValidateSuite(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func applyDefaults(s *Suite) {
	if s.PacketCount <= 0 {
		s.PacketCount = dropcheck.DefaultPacketCount
	}
	if s.DUT.Name == "" {
		s.DUT.Name = s.DUT.Host
	}
	for i := range s.Cases {
		c := &s.Cases[i]
		if c.Name == "" {
			c.Name = string(c.Kind)
		}
		if c.Kind == KindExceededMTU && c.MTU == 0 {
			c.MTU = defaultTempMTU
		}
	}
}

// ValidateSuite checks that s has everything its cases need.
func ValidateSuite(s *Suite) error {
	v := &util.ValidationBuilder{}
	v.Add(s.Name != "", "name is required")
	v.Add(s.Ports.DUTIface != "", "ports.dut_iface is required")
	v.Add(s.Ports.PTFTxPort != "", "ports.ptf_tx_port is required")
	v.Add(s.Ports.ASIC >= 0, "ports.asic_index must not be negative")
	v.Add(len(s.Cases) > 0, "at least one case is required")

	seen := make(map[string]bool, len(s.Cases))
	for i := range s.Cases {
		c := &s.Cases[i]
		prefix := fmt.Sprintf("cases[%d] (%s)", i, c.Name)
		if seen[c.Name] {
			v.AddErrorf("%s: duplicate case name", prefix)
		}
		seen[c.Name] = true

		if !validKinds[c.Kind] {
			v.AddErrorf("%s: unknown kind %q", prefix, c.Kind)
			continue
		}
		if c.Kind == KindCustom && c.Group == 0 {
			v.AddErrorf("%s: group is required", prefix)
		}
		if c.Kind == KindNoDropOnDownLink {
			if c.DownLink == nil || c.DownLink.Interface == "" || c.DownLink.NeighborIP == "" {
				v.AddErrorf("%s: down_link.interface and down_link.neighbor_ip are required", prefix)
			}
		}
		switch c.L2Field {
		case "", dropcheck.FieldRxDrp, dropcheck.FieldRxErr:
		default:
			v.AddErrorf("%s: l2_field must be %s or %s", prefix, dropcheck.FieldRxDrp, dropcheck.FieldRxErr)
		}
		if c.expectsDrop() && len(s.SniffPorts) == 0 {
			v.AddErrorf("%s: sniff_ports is required for drop cases", prefix)
		}
	}
	return v.Build()
}

// expectsDrop reports whether the case checks that the stimulus is not
// forwarded.
func (c *Case) expectsDrop() bool {
	switch c.Kind {
	case KindNoDropOnDownLink:
		return false
	case KindCustom:
		return c.Group.ExpectsDrop()
	default:
		return true
	}
}

// SelectCases returns the cases named in names, in suite order. An empty
// names selects every case.
func (s *Suite) SelectCases(names []string) ([]Case, error) {
	if len(names) == 0 {
		return s.Cases, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Case
	for _, c := range s.Cases {
		if want[c.Name] {
			out = append(out, c)
			delete(want, c.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("case %q not found in suite %s: %w", n, s.Name, util.ErrNotFound)
	}
	return out, nil
}
