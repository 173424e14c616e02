package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/dropcheck/pkg/util"
)

// programOnWrite mimics orchagent: creating the config entry creates the
// counter map entry and deleting it removes the entry.
func programOnWrite(td *testDevice, ns string) {
	cfg := td.db(ns, ConfigDB)
	counters := td.db(ns, CountersDB)
	cfg.hook = func(op, key string) {
		if key != "ACL_RULE|DATAACL|RULE_1" {
			return
		}
		if op == "HSET" {
			counters.data["ACL_COUNTER_RULE_MAP"] = map[string]string{"DATAACL:RULE_1": "oid:0x9000000000a31"}
			return
		}
		delete(counters.data, "ACL_COUNTER_RULE_MAP")
	}
}

func TestApplyAndRemoveACLRule(t *testing.T) {
	td := newTestDevice(1)
	programOnWrite(td, "")
	ctx := context.Background()

	require.NoError(t, td.ApplyACLRule(ctx, DropRule))
	assert.Equal(t, map[string]string{
		"PRIORITY":      "9999",
		"PACKET_ACTION": "DROP",
		"SRC_IP":        "20.0.0.0/24",
	}, td.db("", ConfigDB).data["ACL_RULE|DATAACL|RULE_1"])

	require.NoError(t, td.RemoveACLRule(ctx, DropRule))
	assert.NotContains(t, td.db("", ConfigDB).data, "ACL_RULE|DATAACL|RULE_1")
}

func TestApplyACLRule_MultiASIC(t *testing.T) {
	td := newTestDevice(2)
	programOnWrite(td, "asic0")
	programOnWrite(td, "asic1")

	require.NoError(t, td.ApplyACLRule(context.Background(), DropRule))
	assert.Contains(t, td.db("asic0", ConfigDB).data, "ACL_RULE|DATAACL|RULE_1")
	assert.Contains(t, td.db("asic1", ConfigDB).data, "ACL_RULE|DATAACL|RULE_1")
}

func TestApplyACLRule_NeverProgrammed(t *testing.T) {
	td := newTestDevice(1)
	err := td.ApplyACLRule(context.Background(), DropRule)
	assert.ErrorContains(t, err, "not programmed")
}

func TestACLTablePorts(t *testing.T) {
	td := newTestDevice(1)
	td.db("", ConfigDB).data["ACL_TABLE|DATAACL"] = map[string]string{
		"type":   "L3",
		"ports@": "PortChannel0001, PortChannel0002,Ethernet64",
	}

	ports, err := td.ACLTablePorts(context.Background(), 0, "DATAACL")
	require.NoError(t, err)
	assert.Equal(t, []string{"PortChannel0001", "PortChannel0002", "Ethernet64"}, ports)

	_, err = td.ACLTablePorts(context.Background(), 0, "EVERFLOW")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestRuleMatchCount(t *testing.T) {
	td := newTestDevice(2)
	counters := td.db("asic1", CountersDB)
	counters.data["ACL_COUNTER_RULE_MAP"] = map[string]string{"DATAACL:RULE_1": "oid:0x9000000000a31"}
	counters.data["COUNTERS:oid:0x9000000000a31"] = map[string]string{
		"SAI_ACL_COUNTER_ATTR_PACKETS": "1000",
		"SAI_ACL_COUNTER_ATTR_BYTES":   "102000",
	}

	n, err := td.ACLCounters(1).RuleMatchCount(context.Background(), "DATAACL", "RULE_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)

	n, err = td.ACLRuleCount(context.Background(), 1, "DATAACL", "RULE_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)

	_, err = td.ACLCounters(0).RuleMatchCount(context.Background(), "DATAACL", "RULE_1")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestApplyACLRule_ReplacesTableRules(t *testing.T) {
	td := newTestDevice(1)
	programOnWrite(td, "")
	ctx := context.Background()
	cfg := td.db("", ConfigDB)
	permit := map[string]string{"PRIORITY": "10", "PACKET_ACTION": "FORWARD", "SRC_IP": "10.0.0.0/8"}
	cfg.data["ACL_RULE|DATAACL|RULE_10"] = permit
	cfg.data["ACL_RULE|DATAACL|DEFAULT_RULE"] = map[string]string{"PRIORITY": "1", "PACKET_ACTION": "DROP"}
	cfg.data["ACL_RULE|EVERFLOW|RULE_1"] = map[string]string{"PRIORITY": "5", "MIRROR_ACTION": "span"}

	require.NoError(t, td.ApplyACLRule(ctx, DropRule))
	rules, err := cfg.Keys(ctx, "ACL_RULE|DATAACL|*")
	require.NoError(t, err)
	assert.Equal(t, []string{"ACL_RULE|DATAACL|RULE_1"}, rules)
	assert.Contains(t, cfg.data, "ACL_RULE|EVERFLOW|RULE_1", "other tables are left alone")

	require.NoError(t, td.RemoveACLRule(ctx, DropRule))
	assert.Equal(t, permit, cfg.data["ACL_RULE|DATAACL|RULE_10"])
	assert.Contains(t, cfg.data, "ACL_RULE|DATAACL|DEFAULT_RULE")
	assert.NotContains(t, cfg.data, "ACL_RULE|DATAACL|RULE_1")
	assert.Empty(t, td.aclSetAside)
}
