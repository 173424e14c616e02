package dropcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/newtron-network/dropcheck/pkg/util"
)

// counterPollItems are the FLEX_COUNTER_TABLE groups the checks rely on.
var counterPollItems = []string{"port", "rif"}

// SessionDevice is what a Session needs from the device under test.
type SessionDevice interface {
	CommandChannel
	Topology
	Name() string
	Platform() string
	// Namespaces lists the ASIC namespaces, or [""] on single-ASIC devices.
	Namespaces() []string
	// CounterPollStatus returns FLEX_COUNTER_TABLE|<ITEM> FLEX_COUNTER_STATUS
	// in the namespace's CONFIG_DB ("" when unset).
	CounterPollStatus(ctx context.Context, namespace, item string) (string, error)
}

// Session holds the per-device state shared by every verification run: the
// combination flags and the counter polling state to restore on Close.
type Session struct {
	Flags CombinationFlags
	dev   SessionDevice

	// previous FLEX_COUNTER_STATUS per namespace, per item
	previous map[string]map[string]string
	closed   bool
}

// OpenSession resolves the device's combination flags and enables port and
// RIF counter polling. The caller must Close the session; Close restores
// polling groups that were disabled before. If enabling fails, the state
// captured so far is restored before returning.
func OpenSession(ctx context.Context, dev SessionDevice, rules *CombinationRules) (*Session, error) {
	s := &Session{
		Flags:    Resolve(dev.Platform(), rules),
		dev:      dev,
		previous: make(map[string]map[string]string),
	}
	log := util.WithDevice(dev.Name())
	log.Infof("Platform %s: l2_l3 combined=%t, acl_l2 combined=%t",
		dev.Platform(), s.Flags.L2L3Combined, s.Flags.ACLL2Combined)

	if err := s.enableCounters(ctx); err != nil {
		if rerr := s.Close(context.WithoutCancel(ctx)); rerr != nil {
			log.Warnf("Restoring counter polling after failed setup: %v", rerr)
		}
		return nil, fmt.Errorf("enabling counters on %s: %w", dev.Name(), err)
	}
	return s, nil
}

func (s *Session) enableCounters(ctx context.Context) error {
	for _, cmd := range []string{"intfstat -D", "sonic-clear counters"} {
		if _, err := s.dev.Exec(ctx, cmd); err != nil {
			return err
		}
	}

	for _, ns := range s.dev.Namespaces() {
		prev := make(map[string]string, len(counterPollItems))
		for _, item := range counterPollItems {
			status, err := s.dev.CounterPollStatus(ctx, ns, strings.ToUpper(item))
			if err != nil {
				return fmt.Errorf("reading %s counter poll status: %w", item, err)
			}
			prev[item] = status
		}
		s.previous[ns] = prev

		prefix := s.namespacePrefix(ns)
		for _, cmd := range []string{"counterpoll port enable", "counterpoll rif enable", "sonic-clear rifcounters"} {
			if _, err := s.dev.Exec(ctx, prefix+cmd); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close restores every counter polling group that was disabled when the
// session opened. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for ns, items := range s.previous {
		for _, item := range counterPollItems {
			if items[item] != "disable" {
				continue
			}
			util.WithDevice(s.dev.Name()).Infof("Restoring counter '%s' state to disable", item)
			cmd := s.namespacePrefix(ns) + "counterpoll " + item + " disable"
			if _, err := s.dev.Exec(ctx, cmd); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Device returns the device the session was opened on.
func (s *Session) Device() SessionDevice { return s.dev }

func (s *Session) namespacePrefix(ns string) string {
	if !s.dev.IsMultiASIC() {
		return ""
	}
	return fmt.Sprintf(namespacePrefix, ns)
}
