//go:build integration

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/dropcheck/internal/testutil"
)

// redisDevice is a test device whose default namespace talks to the test redis.
func redisDevice(t *testing.T, addr string) *testDevice {
	td := newTestDevice(1)
	td.openDB = func(ns string, db Database) DB {
		r := NewRedisDB(addr, db)
		t.Cleanup(func() { r.Close() })
		return r
	}
	return td
}

func TestRedisDB_HashOps(t *testing.T) {
	addr := testutil.SkipIfNoRedis(t)
	ctx := testutil.Context(t)
	testutil.SeedRedis(t, addr, testutil.ConfigDB, nil)

	r := NewRedisDB(addr, ConfigDB)
	defer r.Close()
	require.NoError(t, r.Ping(ctx))

	key := ConfigDB.Key("PORT", "Ethernet4")
	require.NoError(t, r.HSet(ctx, key, map[string]string{"mtu": "9100", "admin_status": "up"}))

	mtu, err := r.HGet(ctx, key, "mtu")
	require.NoError(t, err)
	assert.Equal(t, "9100", mtu)

	missing, err := r.HGet(ctx, key, "speed")
	require.NoError(t, err)
	assert.Empty(t, missing, "missing field reads as empty")

	all, err := r.HGetAll(ctx, key)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, r.Del(ctx, key))
	assert.False(t, testutil.EntryExists(t, addr, testutil.ConfigDB, key))
}

func TestRedisDB_EmptyHSetWritesNULL(t *testing.T) {
	addr := testutil.SkipIfNoRedis(t)
	ctx := testutil.Context(t)
	testutil.SeedRedis(t, addr, testutil.ConfigDB, nil)

	r := NewRedisDB(addr, ConfigDB)
	defer r.Close()

	key := ConfigDB.Key("VLAN_MEMBER", "Vlan1000", "Ethernet4")
	require.NoError(t, r.HSet(ctx, key, nil))
	assert.Equal(t, map[string]string{"NULL": "NULL"}, testutil.ReadEntry(t, addr, testutil.ConfigDB, key))
}

func TestACLRuleCount_Redis(t *testing.T) {
	addr := testutil.SkipIfNoRedis(t)
	testutil.SeedRedis(t, addr, testutil.CountersDB, testutil.Seed{
		"ACL_COUNTER_RULE_MAP": {"": {"DATAACL:RULE_1": "oid:0x9000000000a31"}},
		"COUNTERS":             {"oid:0x9000000000a31": {"SAI_ACL_COUNTER_ATTR_PACKETS": "1000"}},
	})

	td := redisDevice(t, addr)
	n, err := td.ACLRuleCount(testutil.Context(t), 0, "DATAACL", "RULE_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)
}

func TestACLTablePorts_Redis(t *testing.T) {
	addr := testutil.SkipIfNoRedis(t)
	testutil.SeedRedis(t, addr, testutil.ConfigDB, testutil.Seed{
		"ACL_TABLE": {"DATAACL": {"type": "L3", "stage": "ingress", "ports@": "PortChannel0001,PortChannel0002"}},
	})

	td := redisDevice(t, addr)
	ports, err := td.ACLTablePorts(testutil.Context(t), 0, "DATAACL")
	require.NoError(t, err)
	assert.Equal(t, []string{"PortChannel0001", "PortChannel0002"}, ports)
}

func TestRedisDB_Keys(t *testing.T) {
	addr := testutil.SkipIfNoRedis(t)
	ctx := testutil.Context(t)
	testutil.SeedRedis(t, addr, testutil.ConfigDB, testutil.Seed{
		"ACL_RULE": {
			"DATAACL|RULE_10": {"PRIORITY": "10"},
			"DATAACL|RULE_20": {"PRIORITY": "20"},
			"EVERFLOW|RULE_1": {"PRIORITY": "1"},
		},
	})

	r := NewRedisDB(addr, ConfigDB)
	defer r.Close()
	keys, err := r.Keys(ctx, "ACL_RULE|DATAACL|*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ACL_RULE|DATAACL|RULE_10", "ACL_RULE|DATAACL|RULE_20"}, keys)
}
