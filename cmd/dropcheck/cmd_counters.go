package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/dropcheck/pkg/cli"
	"github.com/newtron-network/dropcheck/pkg/dropcheck"
	"github.com/newtron-network/dropcheck/pkg/droptest"
)

func newCountersCmd() *cobra.Command {
	var (
		layer string
		asic  int
	)

	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Show RX_DRP and RX_ERR per interface",
		Long: `Read the port (portstat) or router interface (intfstat) counters the
drop checks use, exactly as the checks see them.

Examples:
  dropcheck counters --host 10.250.0.101
  dropcheck counters --host 10.250.0.101 --layer l3 --asic 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := parseLayer(layer)
			if err != nil {
				return err
			}

			dev, err := connect(cmd.Context(), cfg.deviceConfig(droptest.DUTConfig{}))
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			defer dev.Close()

			snap, err := dropcheck.NewReader(dev, dev).Read(cmd.Context(), l, asic)
			if err != nil {
				return err
			}
			printCounters(os.Stdout, snap)
			return nil
		},
	}

	cmd.Flags().StringVar(&layer, "layer", "l2", "Counter layer: l2 (portstat) or l3 (intfstat)")
	cmd.Flags().IntVar(&asic, "asic", 0, "ASIC index on multi-ASIC devices")
	return cmd
}

func parseLayer(s string) (dropcheck.Layer, error) {
	switch strings.ToLower(s) {
	case "l2":
		return dropcheck.LayerL2, nil
	case "l3":
		return dropcheck.LayerL3, nil
	}
	return 0, fmt.Errorf("unknown layer %q (want l2 or l3)", s)
}

func printCounters(w io.Writer, snap *dropcheck.CounterSnapshot) {
	names := make([]string, 0, len(snap.Interfaces))
	for name := range snap.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)

	t := cli.NewTableTo(w, "INTERFACE", "RX_DRP", "RX_ERR")
	for _, name := range names {
		c := snap.Interfaces[name]
		t.Row(name, c.RxDrp.Raw, c.RxErr.Raw)
	}
	t.Flush()
}
