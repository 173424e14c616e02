package main

import (
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/newtron-network/dropcheck/pkg/cli"
	"github.com/newtron-network/dropcheck/pkg/dropcheck"
	"github.com/newtron-network/dropcheck/pkg/droptest"
)

func newPlatformCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platform",
		Short: "Show the DUT platform and its combined drop counters",
		Long: `Show the DUT's platform, HwSKU and ASIC count, and whether L3 and ACL
drops are reported through the L2 RX_DRP counter on this platform.

Examples:
  dropcheck platform --host 10.250.0.101
  dropcheck platform --host 10.250.0.101 --rules my_rules.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := cfg.combinationRules()
			if err != nil {
				return err
			}
			if rules == nil {
				if rules, err = dropcheck.DefaultCombinationRules(); err != nil {
					return err
				}
			}

			dev, err := connect(cmd.Context(), cfg.deviceConfig(droptest.DUTConfig{}))
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			defer dev.Close()

			printPlatform(os.Stdout, dev, rules)
			return nil
		},
	}
}

type platformInfo interface {
	Name() string
	Platform() string
	HwSKU() string
	NumASIC() int
}

func printPlatform(w io.Writer, dev platformInfo, rules *dropcheck.CombinationRules) {
	flags := dropcheck.Resolve(dev.Platform(), rules)
	t := cli.NewTableTo(w, "DEVICE", "PLATFORM", "HWSKU", "ASICS", "L2_L3", "ACL_L2", "RULES")
	t.Row(dev.Name(), dev.Platform(), dev.HwSKU(), strconv.Itoa(dev.NumASIC()),
		yesNo(flags.L2L3Combined), yesNo(flags.ACLL2Combined), rules.Source())
	t.Flush()
}

func yesNo(b bool) string {
	if b {
		return cli.Yellow("combined")
	}
	return "separate"
}
