// Dropcheck - SONiC drop counter verification
//
// Injects crafted packets from a traffic generator host into a SONiC DUT and
// checks that the expected drop counter (port RX_DRP / RX_ERR, RIF RX_ERR or
// the ACL rule counter) accounts for every packet, and that nothing leaked
// out of the DUT.
//
// Examples:
//
//	dropcheck run -f suites/t0.yaml                     # run every case
//	dropcheck run -f suites/t0.yaml --case acl-drop     # one case
//	dropcheck platform --host 10.250.0.101              # combined counter flags
//	dropcheck counters --host 10.250.0.101 --layer l3   # RIF counters
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/dropcheck/pkg/util"
	"github.com/newtron-network/dropcheck/pkg/version"
)

var verbose bool

// exitError carries a process exit code out of a RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dropcheck",
		Short: "SONiC drop counter verification",
		Long: `Dropcheck verifies that a SONiC device counts dropped packets where it should.

Suites are YAML files describing the DUT ports, the traffic generator ports
and the drop cases to run (reserved DMAC, ACL, link-local source, MTU, ...).

  dropcheck run -f suite.yaml [--case name] [--junit path]
  dropcheck platform
  dropcheck counters [--layer l2|l3] [--asic n]`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return applyLogging(cfg)
		},
	}

	addConnectionFlags(rootCmd)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(
		newRunCmd(),
		newPlatformCmd(),
		newCountersCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				printVersion("dropcheck")
			},
		},
	)
	return rootCmd
}

func applyLogging(cfg *appConfig) error {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	if err := util.SetLogLevel(level); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	if cfg.JSONLog {
		util.SetJSONFormat()
	}
	return nil
}

func printVersion(tool string) {
	if version.Version == "dev" {
		fmt.Printf("%s dev build (use 'make build' for version info)\n", tool)
	} else {
		fmt.Printf("%s %s (%s)\n", tool, version.Version, version.GitCommit)
	}
}
