package dropcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Counter retrieval commands. The L2 command takes a "-n <ns>" suffix on
// multi-ASIC devices, the L3 command runs inside the namespace instead.
const (
	l2CountersCmd   = "portstat -j "
	l3CountersCmd   = "intfstat -j "
	namespacePrefix = "sudo ip netns exec %s "
	namespaceSuffix = "-n %s "
)

// cacheBanner matches the freshness line portstat/intfstat print when they
// serve numbers relative to a cached snapshot.
var cacheBanner = regexp.MustCompile(`Last cached time was.*\n`)

// Reader reads portstat/intfstat counters from a device.
type Reader struct {
	ch   CommandChannel
	topo Topology
}

// NewReader returns a Reader issuing commands over ch.
func NewReader(ch CommandChannel, topo Topology) *Reader {
	return &Reader{ch: ch, topo: topo}
}

// Command returns the counter command for layer on the given ASIC.
func (r *Reader) Command(layer Layer, asic int) string {
	multi := r.topo != nil && r.topo.IsMultiASIC()
	ns := ""
	if multi {
		ns = r.topo.NamespaceForASIC(asic)
	}
	switch layer {
	case LayerL3:
		if multi {
			return fmt.Sprintf(namespacePrefix, ns) + l3CountersCmd
		}
		return l3CountersCmd
	default:
		if multi {
			return l2CountersCmd + fmt.Sprintf(namespaceSuffix, ns)
		}
		return l2CountersCmd
	}
}

// Read runs the counter command for layer and decodes its output.
func (r *Reader) Read(ctx context.Context, layer Layer, asic int) (*CounterSnapshot, error) {
	cmd := r.Command(layer, asic)
	out, err := r.ch.Exec(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("reading %s counters: %w", layer, err)
	}
	snap, err := DecodeCounters(cmd, out)
	if err != nil {
		return nil, err
	}
	snap.Layer = layer
	return snap, nil
}

// DecodeCounters parses portstat/intfstat JSON output after removing any
// cache banner. cmd is only used for diagnostics.
func DecodeCounters(cmd, output string) (*CounterSnapshot, error) {
	payload := cacheBanner.ReplaceAllString(output, "")

	var raw map[string]map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &raw); err != nil {
		return nil, &ParseError{Command: strings.TrimSpace(cmd), Output: output, Err: err}
	}

	snap := &CounterSnapshot{
		Command:    strings.TrimSpace(cmd),
		Interfaces: make(map[string]InterfaceCounters, len(raw)),
	}
	for iface, cols := range raw {
		snap.Interfaces[iface] = InterfaceCounters{
			RxErr: ParseCounterValue(cell(cols, string(FieldRxErr))),
			RxDrp: ParseCounterValue(cell(cols, string(FieldRxDrp))),
		}
	}
	return snap, nil
}

// cell renders a JSON column as text; portstat emits strings but older
// builds emit bare numbers.
func cell(cols map[string]any, key string) string {
	v, ok := cols[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
