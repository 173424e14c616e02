package device

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/newtron-network/dropcheck/pkg/util"
)

// ACLRule is a CONFIG_DB ACL_RULE entry.
type ACLRule struct {
	Table    string
	Name     string
	Priority int
	Action   string // FORWARD or DROP
	SrcIP    string // CIDR
}

// DropRule is the rule the ACL drop check installs: drop anything sourced
// from 20.0.0.0/24 on DATAACL.
var DropRule = ACLRule{
	Table:    "DATAACL",
	Name:     "RULE_1",
	Priority: 9999,
	Action:   "DROP",
	SrcIP:    "20.0.0.0/24",
}

// aclProgramAttempts bounds the wait for orchagent to create or delete a rule.
const aclProgramAttempts = 10

func (r ACLRule) configKey() string { return ConfigDB.Key("ACL_RULE", r.Table, r.Name) }

// counterField is the rule's ACL_COUNTER_RULE_MAP field in COUNTERS_DB.
func (r ACLRule) counterField() string { return r.Table + ":" + r.Name }

func (r ACLRule) fields() map[string]string {
	f := map[string]string{
		"PRIORITY":      strconv.Itoa(r.Priority),
		"PACKET_ACTION": r.Action,
	}
	if r.SrcIP != "" {
		f["SRC_IP"] = r.SrcIP
	}
	return f
}

// ApplyACLRule makes rule the only rule of its table in CONFIG_DB of every
// namespace and waits until orchagent has created its counter. The table's
// other rules are set aside until RemoveACLRule.
func (d *Device) ApplyACLRule(ctx context.Context, rule ACLRule) error {
	for _, ns := range d.Namespaces() {
		if err := d.setAsideACLRules(ctx, ns, rule); err != nil {
			return err
		}
		if err := d.DB(ns, ConfigDB).HSet(ctx, rule.configKey(), rule.fields()); err != nil {
			return fmt.Errorf("writing %s: %w", rule.configKey(), err)
		}
		err := util.PollUntil(ctx, aclProgramAttempts, d.pollInterval, func() (bool, error) {
			oid, err := d.DB(ns, CountersDB).HGet(ctx, "ACL_COUNTER_RULE_MAP", rule.counterField())
			return oid != "", err
		})
		if err != nil {
			return fmt.Errorf("ACL rule %s not programmed: %w", rule.counterField(), err)
		}
	}
	d.log().Infof("ACL rule %s|%s installed", rule.Table, rule.Name)
	return nil
}

// RemoveACLRule deletes rule from CONFIG_DB of every namespace, waits
// until its counter is gone and puts back the rules ApplyACLRule set aside.
func (d *Device) RemoveACLRule(ctx context.Context, rule ACLRule) error {
	for _, ns := range d.Namespaces() {
		if err := d.DB(ns, ConfigDB).Del(ctx, rule.configKey()); err != nil {
			return fmt.Errorf("deleting %s: %w", rule.configKey(), err)
		}
		err := util.PollUntil(ctx, aclProgramAttempts, d.pollInterval, func() (bool, error) {
			oid, err := d.DB(ns, CountersDB).HGet(ctx, "ACL_COUNTER_RULE_MAP", rule.counterField())
			return oid == "", err
		})
		if err != nil {
			return fmt.Errorf("ACL rule %s not removed: %w", rule.counterField(), err)
		}
		if err := d.restoreACLRules(ctx, ns); err != nil {
			return err
		}
	}
	d.log().Infof("ACL rule %s|%s removed", rule.Table, rule.Name)
	return nil
}

// setAsideACLRules deletes every rule of rule's table but rule itself,
// remembering each the first time it is seen.
func (d *Device) setAsideACLRules(ctx context.Context, ns string, rule ACLRule) error {
	db := d.DB(ns, ConfigDB)
	keys, err := db.Keys(ctx, ConfigDB.Key("ACL_RULE", rule.Table, "*"))
	if err != nil {
		return fmt.Errorf("listing %s rules: %w", rule.Table, err)
	}
	for _, key := range keys {
		if key == rule.configKey() {
			continue
		}
		entry, err := db.HGetAll(ctx, key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		if d.aclSetAside == nil {
			d.aclSetAside = make(map[string]map[string]map[string]string)
		}
		if d.aclSetAside[ns] == nil {
			d.aclSetAside[ns] = make(map[string]map[string]string)
		}
		if _, ok := d.aclSetAside[ns][key]; !ok {
			d.aclSetAside[ns][key] = entry
		}
		if err := db.Del(ctx, key); err != nil {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
		d.log().Debugf("ACL rule %s set aside", key)
	}
	return nil
}

func (d *Device) restoreACLRules(ctx context.Context, ns string) error {
	saved := d.aclSetAside[ns]
	keys := make([]string, 0, len(saved))
	for k := range saved {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	db := d.DB(ns, ConfigDB)
	for _, key := range keys {
		if err := db.HSet(ctx, key, saved[key]); err != nil {
			return fmt.Errorf("restoring %s: %w", key, err)
		}
		delete(saved, key)
	}
	delete(d.aclSetAside, ns)
	return nil
}

// ACLTablePorts returns the ports an ACL table is bound to.
func (d *Device) ACLTablePorts(ctx context.Context, asic int, table string) ([]string, error) {
	entry, err := d.DB(d.NamespaceForASIC(asic), ConfigDB).HGetAll(ctx, ConfigDB.Key("ACL_TABLE", table))
	if err != nil {
		return nil, err
	}
	if len(entry) == 0 {
		return nil, fmt.Errorf("ACL table %s: %w", table, util.ErrNotFound)
	}
	var ports []string
	for _, p := range strings.Split(entry["ports@"], ",") {
		if p = strings.TrimSpace(p); p != "" {
			ports = append(ports, p)
		}
	}
	return ports, nil
}

// ACLCounters reads ACL rule counters of one ASIC. It satisfies
// dropcheck.ACLCounterReader.
type ACLCounters struct {
	d  *Device
	ns string
}

// ACLCounters returns the ACL counter reader for asic.
func (d *Device) ACLCounters(asic int) *ACLCounters {
	return &ACLCounters{d: d, ns: d.NamespaceForASIC(asic)}
}

// RuleMatchCount returns SAI_ACL_COUNTER_ATTR_PACKETS of table|rule.
func (a *ACLCounters) RuleMatchCount(ctx context.Context, table, rule string) (int64, error) {
	db := a.d.DB(a.ns, CountersDB)
	field := table + ":" + rule
	oid, err := db.HGet(ctx, "ACL_COUNTER_RULE_MAP", field)
	if err != nil {
		return 0, err
	}
	if oid == "" {
		return 0, fmt.Errorf("ACL_COUNTER_RULE_MAP %s: %w", field, util.ErrNotFound)
	}
	raw, err := db.HGet(ctx, CountersDB.Key("COUNTERS", oid), "SAI_ACL_COUNTER_ATTR_PACKETS")
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ACL counter %s: %w", field, err)
	}
	return n, nil
}

// ACLRuleCount is RuleMatchCount for the rule on asic.
func (d *Device) ACLRuleCount(ctx context.Context, asic int, table, rule string) (int64, error) {
	return d.ACLCounters(asic).RuleMatchCount(ctx, table, rule)
}
