package device

import (
	"context"
	"strings"
)

// SetAdminStatus shuts down or starts up iface through the SONiC CLI.
func (d *Device) SetAdminStatus(ctx context.Context, asic int, iface string, up bool) error {
	action := "shutdown"
	if up {
		action = "startup"
	}
	_, err := d.Exec(ctx, "sudo config interface "+nsFlag(d.NamespaceForASIC(asic))+action+" "+iface)
	if err == nil {
		d.log().Infof("Interface %s %s", iface, action)
	}
	return err
}

// ARPContains reports whether ip appears in "show arp".
func (d *Device) ARPContains(ctx context.Context, ip string) (bool, error) {
	out, err := d.Exec(ctx, "show arp")
	if err != nil {
		return false, err
	}
	for _, f := range strings.Fields(out) {
		if f == ip {
			return true, nil
		}
	}
	return false, nil
}
