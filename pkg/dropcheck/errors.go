package dropcheck

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrParse             = errors.New("counter output could not be parsed")
	ErrMissingCapability = errors.New("counter not available")
	ErrCountMismatch     = errors.New("drop counter mismatch")
	ErrUnexpectedDrop    = errors.New("unexpected drops")
	ErrMissingTopology   = errors.New("missing interface mapping")
	ErrUnsupportedGroup  = errors.New("unsupported discard group")
	ErrPacketForwarded   = errors.New("packet forwarded")
)

// ParseError means device output did not decode as counter JSON.
type ParseError struct {
	Command string
	Output  string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse output of '%s': %v", e.Command, e.Err)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// MissingCapabilityError means a counter cell is not numeric on an interface.
type MissingCapabilityError struct {
	Interface string
	Field     CounterField
	Raw       string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("'%s' not available on iface %s (got %q)", e.Field, e.Interface, e.Raw)
}

func (e *MissingCapabilityError) Unwrap() error { return ErrMissingCapability }

// ExactCountMismatchError is returned when a drop counter never reached the
// injected count within the polling budget.
type ExactCountMismatchError struct {
	Interface string
	Field     string
	Expected  int64
	Observed  int64
	Attempts  int
}

func (e *ExactCountMismatchError) Error() string {
	return fmt.Sprintf("'%s' drop counter was not incremented on iface %s. DUT %s == %d; Sent == %d (after %d attempts)",
		e.Field, e.Interface, e.Field, e.Observed, e.Expected, e.Attempts)
}

func (e *ExactCountMismatchError) Unwrap() error { return ErrCountMismatch }

// UnexpectedDropError lists interfaces whose counter reached the injected
// count although that layer was not expected to drop.
type UnexpectedDropError struct {
	Layer     Layer
	Field     CounterField
	Threshold int64
	Drops     map[string]int64
}

func (e *UnexpectedDropError) Error() string {
	names := make([]string, 0, len(e.Drops))
	for name := range e.Drops {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, e.Drops[name]))
	}
	return fmt.Sprintf("%s '%s' was incremented for the following interfaces: %s",
		e.Layer, e.Field, strings.Join(parts, ", "))
}

func (e *UnexpectedDropError) Unwrap() error { return ErrUnexpectedDrop }

// MissingTopologyError is a caller configuration defect: a check needs an
// interface that was not supplied or is not present on the device.
type MissingTopologyError struct {
	Group  DiscardGroup
	Detail string
}

func (e *MissingTopologyError) Error() string {
	return fmt.Sprintf("%s check: %s", e.Group, e.Detail)
}

func (e *MissingTopologyError) Unwrap() error { return ErrMissingTopology }

// UnsupportedDiscardGroupError rejects a group name outside L2/L3/ACL/NO_DROPS.
type UnsupportedDiscardGroupError struct {
	Value string
}

func (e *UnsupportedDiscardGroupError) Error() string {
	return fmt.Sprintf("incorrect discard group %q, supported values: 'L2', 'L3', 'ACL' or 'NO_DROPS'", e.Value)
}

func (e *UnsupportedDiscardGroupError) Unwrap() error { return ErrUnsupportedGroup }

// ScenarioError wraps the failure of one driver stage.
type ScenarioError struct {
	Stage string // "clear", "inject", "verify", "egress"
	Group DiscardGroup
	Err   error
}

func (e *ScenarioError) Error() string {
	return fmt.Sprintf("%s scenario failed at %s: %v", e.Group, e.Stage, e.Err)
}

func (e *ScenarioError) Unwrap() error { return e.Err }
