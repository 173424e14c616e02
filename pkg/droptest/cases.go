package droptest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/newtron-network/dropcheck/pkg/device"
	"github.com/newtron-network/dropcheck/pkg/dropcheck"
	"github.com/newtron-network/dropcheck/pkg/packet"
	"github.com/newtron-network/dropcheck/pkg/util"
)

// Stimulus addresses used by the built-in cases.
var (
	// 01:80:C2:00:00:05 is reserved for future standardization,
	// 01:80:C2:00:00:08 is the provider bridge group address.
	ReservedDMACs = []string{"01:80:C2:00:00:05", "01:80:C2:00:00:08"}

	ACLDropSrcIP   = "20.0.0.5"
	LinkLocalSrcIP = "169.254.10.125"
)

// exceededMTULength is the stimulus length of the exceeded-MTU case.
const exceededMTULength = 9100

// aclTable is the ingress ACL table the ACL drop rule is installed in.
const aclTable = "DATAACL"

// errARPNotCleared fails the down-link case when the neighbor entry survives
// the link shutdown.
var errARPNotCleared = errors.New("ARP entry is not cleared")

// casePlan is what a builder prepared for one case.
type casePlan struct {
	Group      dropcheck.DiscardGroup
	Stimuli    []namedStimulus
	Teardown   func(ctx context.Context) error
	SkipReason string
}

type namedStimulus struct {
	Name     string
	Stimulus dropcheck.Stimulus
}

// caseEnv is passed to builders.
type caseEnv struct {
	r     *Runner
	suite *Suite
	c     *Case
}

// caseBuilder prepares fixtures and stimuli. A builder that installed a
// fixture returns a plan carrying its Teardown even when it also returns an
// error.
type caseBuilder func(ctx context.Context, env *caseEnv) (*casePlan, error)

// builders maps each case kind to its builder.
var builders = map[CaseKind]caseBuilder{
	KindReservedDMAC:     buildReservedDMAC,
	KindACLDrop:          buildACLDrop,
	KindSrcIPLinkLocal:   buildSrcIPLinkLocal,
	KindExceededMTU:      buildExceededMTU,
	KindNoDropOnDownLink: buildNoDropOnDownLink,
	KindCustom:           buildCustom,
}

func buildReservedDMAC(_ context.Context, env *caseEnv) (*casePlan, error) {
	plan := &casePlan{Group: dropcheck.GroupL2}
	for _, dmac := range ReservedDMACs {
		p := env.params()
		p.EthDst = dmac
		st, err := env.stimulus(dropcheck.GroupL2, p, "", false)
		if err != nil {
			return nil, err
		}
		plan.Stimuli = append(plan.Stimuli, namedStimulus{Name: dmac, Stimulus: st})
	}
	return plan, nil
}

func buildACLDrop(ctx context.Context, env *caseEnv) (*casePlan, error) {
	egress, err := env.egress(dropcheck.GroupACL)
	if err != nil {
		return nil, err
	}
	ports, err := env.r.DUT.ACLTablePorts(ctx, env.suite.Ports.ASIC, aclTable)
	if errors.Is(err, util.ErrNotFound) {
		return &casePlan{Group: dropcheck.GroupACL, SkipReason: aclTable + " table is not configured"}, nil
	}
	if err != nil {
		return nil, err
	}
	if !slices.Contains(ports, egress) {
		return &casePlan{
			Group:      dropcheck.GroupACL,
			SkipReason: fmt.Sprintf("%s absent in %s table", egress, aclTable),
		}, nil
	}

	p := env.params()
	p.IPSrc = ACLDropSrcIP
	st, err := env.stimulus(dropcheck.GroupACL, p, "", true)
	if err != nil {
		return nil, err
	}
	st.ACLRule = dropcheck.ACLRuleRef{Table: device.DropRule.Table, Rule: device.DropRule.Name}

	dut := env.r.DUT
	plan := &casePlan{
		Group:   dropcheck.GroupACL,
		Stimuli: []namedStimulus{{Name: env.c.Name, Stimulus: st}},
		Teardown: func(ctx context.Context) error {
			return dut.RemoveACLRule(ctx, device.DropRule)
		},
	}
	if err := dut.ApplyACLRule(ctx, device.DropRule); err != nil {
		return plan, fmt.Errorf("applying ACL rule: %w", err)
	}
	return plan, nil
}

func buildSrcIPLinkLocal(_ context.Context, env *caseEnv) (*casePlan, error) {
	p := env.params()
	p.IPSrc = LinkLocalSrcIP
	st, err := env.stimulus(dropcheck.GroupL3, p, "", false)
	if err != nil {
		return nil, err
	}
	return &casePlan{Group: dropcheck.GroupL3, Stimuli: []namedStimulus{{Name: env.c.Name, Stimulus: st}}}, nil
}

func buildExceededMTU(ctx context.Context, env *caseEnv) (*casePlan, error) {
	egress, err := env.egress(dropcheck.GroupL2)
	if err != nil {
		return nil, err
	}
	if strings.Contains(strings.ToLower(egress), "vlan") {
		return &casePlan{Group: dropcheck.GroupL2, SkipReason: "not supported on VLAN interface"}, nil
	}

	p := env.params()
	if env.c.Packet.Length == 0 {
		p.Length = exceededMTULength
	}
	// oversized frames are counted as RX errors on the ingress port
	st, err := env.stimulus(dropcheck.GroupL2, p, dropcheck.FieldRxErr, false)
	if err != nil {
		return nil, err
	}

	dut := env.r.DUT
	plan := &casePlan{
		Group:    dropcheck.GroupL2,
		Stimuli:  []namedStimulus{{Name: env.c.Name, Stimulus: st}},
		Teardown: dut.RestoreMTU,
	}
	if err := dut.SetMTU(ctx, env.suite.Ports.ASIC, egress, env.c.MTU); err != nil {
		return plan, err
	}
	return plan, nil
}

func buildNoDropOnDownLink(ctx context.Context, env *caseEnv) (*casePlan, error) {
	link := env.c.DownLink
	p := env.params()
	p.IPDst = link.NeighborIP
	st, err := env.stimulus(dropcheck.GroupNoDrops, p, "", false)
	if err != nil {
		return nil, err
	}

	dut := env.r.DUT
	asic := env.suite.Ports.ASIC
	plan := &casePlan{
		Group:   dropcheck.GroupNoDrops,
		Stimuli: []namedStimulus{{Name: env.c.Name, Stimulus: st}},
		Teardown: func(ctx context.Context) error {
			return dut.SetAdminStatus(ctx, asic, link.Interface, true)
		},
	}
	if err := dut.SetAdminStatus(ctx, asic, link.Interface, false); err != nil {
		return plan, err
	}

	err = util.PollUntil(ctx, env.r.ARPClearAttempts, env.r.PollInterval, func() (bool, error) {
		present, err := dut.ARPContains(ctx, link.NeighborIP)
		return !present, err
	})
	if err != nil {
		return plan, fmt.Errorf("%w for %s: %v", errARPNotCleared, link.NeighborIP, err)
	}
	return plan, nil
}

func buildCustom(_ context.Context, env *caseEnv) (*casePlan, error) {
	c := env.c
	st, err := env.stimulus(c.Group, env.params(), c.L2Field, c.IgnoreIPv4Src)
	if err != nil {
		return nil, err
	}
	return &casePlan{Group: c.Group, Stimuli: []namedStimulus{{Name: c.Name, Stimulus: st}}}, nil
}

// params returns the suite packet fields addressed at the DUT ingress port,
// with the case's overrides applied.
func (env *caseEnv) params() packet.TCPParams {
	p := env.suite.PacketFields
	if env.suite.Ports.DstMAC != "" {
		p.EthDst = env.suite.Ports.DstMAC
	}
	if env.suite.Ports.SrcMAC != "" {
		p.EthSrc = env.suite.Ports.SrcMAC
	}
	return overlay(p, env.c.Packet)
}

// egress returns the egress interface or a MissingTopologyError.
func (env *caseEnv) egress(group dropcheck.DiscardGroup) (string, error) {
	egress := env.suite.EgressFor()
	if egress == "" {
		return "", &dropcheck.MissingTopologyError{
			Group:  group,
			Detail: fmt.Sprintf("no tx_dut_ports entry for %s", env.suite.Ports.DUTIface),
		}
	}
	return egress, nil
}

func (env *caseEnv) stimulus(group dropcheck.DiscardGroup, p packet.TCPParams, field dropcheck.CounterField, ignoreSrc bool) (dropcheck.Stimulus, error) {
	frame, err := packet.SimpleTCP(p)
	if err != nil {
		return dropcheck.Stimulus{}, err
	}
	mask, err := packet.ExpectedMask(frame)
	if err != nil {
		return dropcheck.Stimulus{}, err
	}
	if ignoreSrc {
		mask.IgnoreIPv4Src()
	}
	s := env.suite
	return dropcheck.Stimulus{
		Group:      group,
		Frame:      frame,
		Matcher:    mask,
		TxPort:     s.Ports.PTFTxPort,
		Count:      s.PacketCount,
		Port:       env.r.portContext(s),
		SniffPorts: s.SniffPorts,
		L2Field:    field,
	}, nil
}

// overlay returns base with every non-zero field of o applied.
func overlay(base, o packet.TCPParams) packet.TCPParams {
	if o.EthDst != "" {
		base.EthDst = o.EthDst
	}
	if o.EthSrc != "" {
		base.EthSrc = o.EthSrc
	}
	if o.IPSrc != "" {
		base.IPSrc = o.IPSrc
	}
	if o.IPDst != "" {
		base.IPDst = o.IPDst
	}
	if o.TOS != 0 {
		base.TOS = o.TOS
	}
	if o.TTL != 0 {
		base.TTL = o.TTL
	}
	if o.ID != 0 {
		base.ID = o.ID
	}
	if o.SrcPort != 0 {
		base.SrcPort = o.SrcPort
	}
	if o.DstPort != 0 {
		base.DstPort = o.DstPort
	}
	if o.Length != 0 {
		base.Length = o.Length
	}
	return base
}
