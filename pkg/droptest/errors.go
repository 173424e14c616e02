package droptest

import "fmt"

// InfraError represents an infrastructure-level error (connect, session,
// dataplane) that prevents cases from running.
type InfraError struct {
	Op     string // "connect", "session", "dataplane"
	Device string // device name (or "" when not device specific)
	Err    error
}

func (e *InfraError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("droptest: %s %s: %v", e.Op, e.Device, e.Err)
	}
	return fmt.Sprintf("droptest: %s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}

// CaseError represents a fixture or packet construction failure in a case.
type CaseError struct {
	Case string
	Kind CaseKind
	Err  error
}

func (e *CaseError) Error() string {
	return fmt.Sprintf("droptest: case %s (%s): %v", e.Case, e.Kind, e.Err)
}

func (e *CaseError) Unwrap() error {
	return e.Err
}
