package device

import (
	"context"
	"strings"
)

// CounterPollStatus returns FLEX_COUNTER_TABLE|<item> FLEX_COUNTER_STATUS
// ("enable", "disable" or "" when the group was never configured).
func (d *Device) CounterPollStatus(ctx context.Context, ns, item string) (string, error) {
	key := ConfigDB.Key("FLEX_COUNTER_TABLE", strings.ToUpper(item))
	return d.DB(ns, ConfigDB).HGet(ctx, key, "FLEX_COUNTER_STATUS")
}
