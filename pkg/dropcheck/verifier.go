package dropcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/dropcheck/pkg/util"
)

// Polling and settle defaults for counter checks.
const (
	DefaultPollAttempts = 5
	DefaultPollInterval = time.Second
	// ACL counters are refreshed by the ACL orchagent on a slower cadence
	// than port and RIF counters.
	DefaultACLSettle = 10 * time.Second
)

// Request describes one verification: which group must account for Count
// injected packets on Port.
type Request struct {
	Group DiscardGroup
	Flags CombinationFlags
	Count int64
	Port  PortContext
	// L2Field overrides the L2 drop column. Zero value means RX_DRP; MTU
	// exceeded stimuli are counted in RX_ERR.
	L2Field CounterField
	// ACLRule defaults to DefaultACLRule.
	ACLRule ACLRuleRef
}

func (r *Request) l2Field() CounterField {
	if r.L2Field == "" {
		return FieldRxDrp
	}
	return r.L2Field
}

func (r *Request) aclRule() ACLRuleRef {
	if r.ACLRule.Table == "" || r.ACLRule.Rule == "" {
		return DefaultACLRule
	}
	return r.ACLRule
}

// Verifier checks drop counters after a stimulus.
type Verifier struct {
	Reader       *Reader
	ACL          ACLCounterReader
	Device       string
	PollAttempts int
	PollInterval time.Duration
	ACLSettle    time.Duration

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewVerifier returns a Verifier with default polling parameters.
func NewVerifier(device string, reader *Reader, acl ACLCounterReader) *Verifier {
	return &Verifier{
		Reader:       reader,
		ACL:          acl,
		Device:       device,
		PollAttempts: DefaultPollAttempts,
		PollInterval: DefaultPollInterval,
		ACLSettle:    DefaultACLSettle,
	}
}

// Verify applies the policy for req.Group. It returns nil when the counters
// account for the stimulus, or one of the typed errors in this package.
func (v *Verifier) Verify(ctx context.Context, req Request) error {
	log := util.WithDevice(v.Device).WithFields(logrus.Fields{
		"group": req.Group.String(),
		"iface": req.Port.Ingress,
		"count": req.Count,
	})
	log.Debug("Verifying drop counters")

	err := v.verify(ctx, req, log)
	if err != nil {
		log.Infof("Drop verification failed: %v", err)
		return err
	}
	log.Info("Drop counters verified")
	return nil
}

func (v *Verifier) verify(ctx context.Context, req Request, log *logrus.Entry) error {
	asic := req.Port.ASIC
	switch req.Group {
	case GroupL2:
		if err := v.expectCount(ctx, req, LayerL2, req.Port.Ingress, req.l2Field(), log); err != nil {
			return err
		}
		return v.ensureNoDrops(ctx, req.Count, LayerL3, asic, log)

	case GroupL3:
		if req.Flags.L2L3Combined {
			log.Debug("L2 and L3 drops share a counter; checking L3 drops through the L2 path")
			if err := v.expectCount(ctx, req, LayerL2, req.Port.Ingress, req.l2Field(), log); err != nil {
				return err
			}
			return v.ensureNoDrops(ctx, req.Count, LayerL3, asic, log)
		}
		if req.Port.Egress == "" {
			return &MissingTopologyError{Group: req.Group, Detail: "no L3 interface specified"}
		}
		if err := v.expectCount(ctx, req, LayerL3, req.Port.Egress, FieldRxErr, log); err != nil {
			return err
		}
		return v.ensureNoDrops(ctx, req.Count, LayerL2, asic, log)

	case GroupACL:
		if req.Port.Egress == "" {
			return &MissingTopologyError{Group: req.Group, Detail: "no L3 interface specified"}
		}
		if err := v.expectACLCount(ctx, req, log); err != nil {
			return err
		}
		if req.Flags.ACLL2Combined {
			log.Debug("ACL and L2 drops share a counter; skipping no-drop checks")
			return nil
		}
		if err := v.ensureNoDrops(ctx, req.Count, LayerL3, asic, log); err != nil {
			return err
		}
		return v.ensureNoDrops(ctx, req.Count, LayerL2, asic, log)

	case GroupNoDrops:
		if err := v.ensureNoDrops(ctx, req.Count, LayerL2, asic, log); err != nil {
			return err
		}
		return v.ensureNoDrops(ctx, req.Count, LayerL3, asic, log)

	default:
		return &UnsupportedDiscardGroupError{Value: req.Group.String()}
	}
}

// expectCount polls the layer's counters until iface's field equals the
// injected count or the attempt budget runs out.
func (v *Verifier) expectCount(ctx context.Context, req Request, layer Layer, iface string, field CounterField, log *logrus.Entry) error {
	attempts := v.PollAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last CounterValue
	for attempt := 1; attempt <= attempts; attempt++ {
		snap, err := v.Reader.Read(ctx, layer, req.Port.ASIC)
		if err != nil {
			return err
		}
		counters, ok := snap.Interfaces[iface]
		if !ok {
			return &MissingTopologyError{
				Group:  req.Group,
				Detail: fmt.Sprintf("interface %s not present in '%s' output", iface, snap.Command),
			}
		}
		last = counters.Get(field)
		if !last.Valid {
			return &MissingCapabilityError{Interface: iface, Field: field, Raw: last.Raw}
		}
		log.Debugf("attempt %d/%d: %s %s on %s = %d (want %d)",
			attempt, attempts, layer, field, iface, last.Value, req.Count)
		if last.Value == req.Count {
			return nil
		}
		if attempt < attempts {
			if err := v.wait(ctx, v.PollInterval); err != nil {
				return err
			}
		}
	}
	return &ExactCountMismatchError{
		Interface: iface,
		Field:     string(field),
		Expected:  req.Count,
		Observed:  last.Value,
		Attempts:  attempts,
	}
}

// expectACLCount waits for the ACL counters to settle, then reads the rule
// counter once.
func (v *Verifier) expectACLCount(ctx context.Context, req Request, log *logrus.Entry) error {
	if v.ACL == nil {
		return fmt.Errorf("ACL check on %s: no ACL counter reader configured", v.Device)
	}
	if err := v.wait(ctx, v.ACLSettle); err != nil {
		return err
	}
	rule := req.aclRule()
	got, err := v.ACL.RuleMatchCount(ctx, rule.Table, rule.Rule)
	if err != nil {
		return fmt.Errorf("reading ACL counter %s|%s: %w", rule.Table, rule.Rule, err)
	}
	log.Debugf("ACL %s|%s packets = %d (want %d)", rule.Table, rule.Rule, got, req.Count)
	if got != req.Count {
		return &ExactCountMismatchError{
			Interface: req.Port.Egress,
			Field:     "ACL " + rule.Table + "|" + rule.Rule,
			Expected:  req.Count,
			Observed:  got,
			Attempts:  1,
		}
	}
	return nil
}

// ensureNoDrops reads the layer's counters once and fails if any interface
// reached threshold. Interfaces without a numeric value are skipped.
func (v *Verifier) ensureNoDrops(ctx context.Context, threshold int64, layer Layer, asic int, log *logrus.Entry) error {
	field := FieldRxDrp
	if layer == LayerL3 {
		field = FieldRxErr
	}
	snap, err := v.Reader.Read(ctx, layer, asic)
	if err != nil {
		return err
	}
	drops := checkNoDrops(snap, field, threshold, func(missing *MissingCapabilityError) {
		if layer == LayerL3 {
			log.Infof("Unable to verify L3 drops on iface %s, L3 counters may not be supported on this platform: %v",
				missing.Interface, missing)
			return
		}
		log.Warnf("Unable to verify L2 drops on iface %s: %v", missing.Interface, missing)
	})
	if len(drops) > 0 {
		return &UnexpectedDropError{Layer: layer, Field: field, Threshold: threshold, Drops: drops}
	}
	return nil
}

// checkNoDrops returns the interfaces whose field is at or above threshold.
func checkNoDrops(snap *CounterSnapshot, field CounterField, threshold int64, skip func(*MissingCapabilityError)) map[string]int64 {
	drops := make(map[string]int64)
	for iface, counters := range snap.Interfaces {
		val := counters.Get(field)
		if !val.Valid {
			if skip != nil {
				skip(&MissingCapabilityError{Interface: iface, Field: field, Raw: val.Raw})
			}
			continue
		}
		if val.Value >= threshold {
			drops[iface] = val.Value
		}
	}
	return drops
}

func (v *Verifier) wait(ctx context.Context, d time.Duration) error {
	if v.sleep != nil {
		return v.sleep(ctx, d)
	}
	return util.SleepContext(ctx, d)
}

// IsCounterFailure reports whether err is a counter verdict (mismatch or
// unexpected drop) rather than an infrastructure or configuration error.
func IsCounterFailure(err error) bool {
	return errors.Is(err, ErrCountMismatch) || errors.Is(err, ErrUnexpectedDrop) || errors.Is(err, ErrPacketForwarded)
}
