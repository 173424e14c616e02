package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/newtron-network/dropcheck/pkg/util"
)

// DefaultMTU is restored when the interface had no explicit mtu.
const DefaultMTU = 9100

const mtuApplyAttempts = 5

type mtuState struct {
	ns   string
	key  string
	prev string
}

// mtuKey returns the CONFIG_DB key holding iface's mtu.
func mtuKey(iface string) (string, error) {
	switch {
	case strings.HasPrefix(iface, "PortChannel"):
		return ConfigDB.Key("PORTCHANNEL", iface), nil
	case strings.HasPrefix(iface, "Ethernet"):
		return ConfigDB.Key("PORT", iface), nil
	default:
		return "", fmt.Errorf("%w: MTU change on interface %s", util.ErrUnsupported, iface)
	}
}

// SetMTU sets iface's mtu and waits until the kernel netdev reports it. The
// first value replaced is remembered for RestoreMTU.
func (d *Device) SetMTU(ctx context.Context, asic int, iface string, mtu int) error {
	key, err := mtuKey(iface)
	if err != nil {
		return err
	}
	ns := d.NamespaceForASIC(asic)
	db := d.DB(ns, ConfigDB)

	if d.mtu == nil {
		prev, err := db.HGet(ctx, key, "mtu")
		if err != nil {
			return fmt.Errorf("reading %s mtu: %w", key, err)
		}
		if prev == "" {
			prev = strconv.Itoa(DefaultMTU)
		}
		d.mtu = &mtuState{ns: ns, key: key, prev: prev}
	}

	if err := db.HSet(ctx, key, map[string]string{"mtu": strconv.Itoa(mtu)}); err != nil {
		return fmt.Errorf("setting %s mtu: %w", key, err)
	}
	err = util.PollUntil(ctx, mtuApplyAttempts, d.pollInterval, func() (bool, error) {
		got, err := d.kernelMTU(ctx, ns, iface)
		return got == mtu, err
	})
	if err != nil {
		return fmt.Errorf("MTU on interface %s not updated: %w", iface, err)
	}
	d.log().Infof("MTU on %s set to %d", iface, mtu)
	return nil
}

// RestoreMTU puts back the mtu replaced by SetMTU. It is a no-op when SetMTU
// was never called.
func (d *Device) RestoreMTU(ctx context.Context) error {
	if d.mtu == nil {
		return nil
	}
	st := d.mtu
	if err := d.DB(st.ns, ConfigDB).HSet(ctx, st.key, map[string]string{"mtu": st.prev}); err != nil {
		return fmt.Errorf("restoring %s mtu: %w", st.key, err)
	}
	d.mtu = nil
	d.log().Infof("MTU on %s restored to %s", st.key, st.prev)
	return nil
}

func (d *Device) kernelMTU(ctx context.Context, ns, iface string) (int, error) {
	out, err := d.Exec(ctx, nsExec(ns)+"cat /sys/class/net/"+iface+"/mtu")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(out))
}
