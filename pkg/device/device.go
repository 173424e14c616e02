// Package device connects to a SONiC DUT and provides the facts and fixtures
// the drop counter checks need: platform and ASIC layout, counter polling
// state, ACL rules, port MTU and link state.
package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/dropcheck/pkg/util"
)

// Config is everything needed to connect to a DUT.
type Config struct {
	Name string
	SSH  TunnelConfig
	// RedisAddr bypasses the SSH forward for the default namespace's redis.
	RedisAddr string
}

// Device is a connected SONiC DUT. It satisfies dropcheck.SessionDevice.
// Connect and Close may be called from any goroutine; everything else is
// meant for the single test flow driving the DUT.
type Device struct {
	name string
	cfg  Config

	run    Runner
	tunnel *SSHTunnel
	openDB func(ns string, db Database) DB

	platform string
	hwsku    string
	numASIC  int

	dbs       map[string]DB
	closers   []io.Closer
	connected bool
	mtu       *mtuState
	// aclSetAside holds the other rules of a table while the drop rule is
	// installed, by namespace then CONFIG_DB key.
	aclSetAside map[string]map[string]map[string]string

	// pollInterval paces the fixture waits (MTU, ACL rule programming).
	pollInterval time.Duration

	mu sync.Mutex
}

// New returns an unconnected device.
func New(cfg Config) *Device {
	name := cfg.Name
	if name == "" {
		name = cfg.SSH.Host
	}
	return &Device{
		name:         name,
		cfg:          cfg,
		dbs:          make(map[string]DB),
		pollInterval: time.Second,
	}
}

// Connect opens the SSH channel and the redis forward, then reads the
// platform and ASIC count.
func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return nil
	}

	tun, err := NewSSHTunnel(d.cfg.SSH)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", d.name, err)
	}
	d.tunnel = tun
	d.run = tun

	redisAddr := d.cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = tun.LocalAddr()
	}
	d.openDB = func(ns string, db Database) DB {
		if ns == "" {
			r := NewRedisDB(redisAddr, db)
			d.closers = append(d.closers, r)
			return r
		}
		return NewCLIDB(d.run, ns, db)
	}

	if err := d.loadFacts(ctx); err != nil {
		d.closeLocked()
		return fmt.Errorf("reading facts from %s: %w", d.name, err)
	}

	d.connected = true
	d.log().WithFields(logrus.Fields{
		"platform": d.platform,
		"hwsku":    d.hwsku,
		"asics":    d.numASIC,
	}).Info("Connected")
	return nil
}

// Close releases the redis clients and the SSH connection.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *Device) closeLocked() error {
	for _, c := range d.closers {
		c.Close()
	}
	d.closers = nil
	d.dbs = make(map[string]DB)

	var err error
	if d.tunnel != nil {
		err = d.tunnel.Close()
		d.tunnel = nil
	}
	if d.connected {
		d.log().Info("Disconnected")
	}
	d.connected = false
	return err
}

func (d *Device) loadFacts(ctx context.Context) error {
	meta, err := d.DB("", ConfigDB).HGetAll(ctx, "DEVICE_METADATA|localhost")
	if err != nil {
		return fmt.Errorf("reading DEVICE_METADATA: %w", err)
	}
	d.platform = meta["platform"]
	d.hwsku = meta["hwsku"]
	if d.platform == "" {
		return fmt.Errorf("%w: DEVICE_METADATA|localhost has no platform", util.ErrNotFound)
	}

	d.numASIC = 1
	out, err := d.run.ExecCommandContext(ctx, "cat /usr/share/sonic/device/"+d.platform+"/asic.conf")
	if err != nil {
		d.log().Debugf("No asic.conf, assuming single ASIC: %v", err)
		return nil
	}
	d.numASIC = parseNumASIC(out)
	return nil
}

// parseNumASIC reads NUM_ASIC from asic.conf content; 1 if absent.
func parseNumASIC(conf string) int {
	sc := bufio.NewScanner(strings.NewReader(conf))
	for sc.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok || strings.TrimSpace(k) != "NUM_ASIC" {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func (d *Device) log() *logrus.Entry { return util.WithDevice(d.name) }

// Name returns the DUT name used in logs and reports.
func (d *Device) Name() string { return d.name }

// Platform returns DEVICE_METADATA|localhost platform, e.g. "x86_64-mlnx_msn2700-r0".
func (d *Device) Platform() string { return d.platform }

// HwSKU returns DEVICE_METADATA|localhost hwsku.
func (d *Device) HwSKU() string { return d.hwsku }

// NumASIC returns the ASIC count from asic.conf.
func (d *Device) NumASIC() int { return d.numASIC }

func (d *Device) IsMultiASIC() bool { return d.numASIC > 1 }

// NamespaceForASIC maps an ASIC index to its namespace, "" on single-ASIC
// devices.
func (d *Device) NamespaceForASIC(asic int) string {
	if !d.IsMultiASIC() {
		return ""
	}
	return fmt.Sprintf("asic%d", asic)
}

// Namespaces lists every ASIC namespace, or [""] on single-ASIC devices.
func (d *Device) Namespaces() []string {
	if !d.IsMultiASIC() {
		return []string{""}
	}
	ns := make([]string, d.numASIC)
	for i := range ns {
		ns[i] = d.NamespaceForASIC(i)
	}
	return ns
}

// Exec runs cmd on the DUT. A non-zero exit is a *util.CommandError.
func (d *Device) Exec(ctx context.Context, cmd string) (string, error) {
	if d.run == nil {
		return "", util.ErrNotConnected
	}
	d.log().Debugf("exec: %s", cmd)
	out, err := d.run.ExecCommandContext(ctx, cmd)
	if err != nil {
		var ce *util.CommandError
		if errors.As(err, &ce) {
			ce.Device = d.name
			return out, ce
		}
		return out, &util.CommandError{Device: d.name, Command: cmd, Output: out, Err: err}
	}
	return out, nil
}

// DB returns the database db of namespace ns ("" is the default namespace).
// Handles are cached per device.
func (d *Device) DB(ns string, db Database) DB {
	key := ns + "/" + db.String()
	if h, ok := d.dbs[key]; ok {
		return h
	}
	h := d.openDB(ns, db)
	d.dbs[key] = h
	return h
}

// nsFlag returns the "-n <ns> " option for namespace-aware SONiC CLIs.
func nsFlag(ns string) string {
	if ns == "" {
		return ""
	}
	return "-n " + ns + " "
}

// nsExec returns the "sudo ip netns exec <ns> " prefix for plain commands.
func nsExec(ns string) string {
	if ns == "" {
		return ""
	}
	return "sudo ip netns exec " + ns + " "
}
