package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/newtron-network/dropcheck/pkg/droptest"
	"github.com/newtron-network/dropcheck/pkg/packet"
	"github.com/newtron-network/dropcheck/pkg/util"
)

func newRunCmd() *cobra.Command {
	var (
		suitePath  string
		cases      []string
		junitPath  string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a drop counter suite",
		Long: `Run the cases of a suite against its DUT.

Exit status is 0 when every case passed or was skipped, 1 when a case
failed and 2 when a case could not run (unreachable DUT, fixture errors).

Examples:
  dropcheck run -f suites/t0.yaml
  dropcheck run -f suites/t0.yaml --case reserved-dmac --case acl-drop
  dropcheck run -f suites/t0.yaml --junit out/junit.xml --report out/report.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			suite, err := droptest.ParseSuite(suitePath)
			if err != nil {
				return err
			}
			rules, err := cfg.combinationRules()
			if err != nil {
				return err
			}

			dev, err := connect(ctx, cfg.deviceConfig(suite.DUT))
			if err != nil {
				return &exitError{code: 2, err: &droptest.InfraError{Op: "connect", Device: suite.DUT.Name, Err: err}}
			}
			defer dev.Close()

			ports := append([]string{suite.Ports.PTFTxPort}, suite.SniffPorts...)
			dp, err := packet.Open(ports)
			if err != nil {
				return &exitError{code: 2, err: &droptest.InfraError{Op: "dataplane", Err: err}}
			}
			defer dp.Close()

			runner := droptest.NewRunner(dev, dp)
			runner.Rules = rules
			runner.Progress = droptest.NewConsoleProgress(verbose)

			results, err := runner.Run(ctx, suite, droptest.RunOptions{Cases: cases})
			if err != nil {
				return err
			}

			gen := &droptest.ReportGenerator{Suite: suite.Name, Results: results}
			if reportPath != "" {
				if err := gen.WriteMarkdown(reportPath); err != nil {
					util.Logger.Warnf("Writing report: %v", err)
				}
			}
			if junitPath != "" {
				if err := gen.WriteJUnit(junitPath); err != nil {
					util.Logger.Warnf("Writing JUnit: %v", err)
				}
			}
			return resultsExit(results)
		},
	}

	cmd.Flags().StringVarP(&suitePath, "suite", "f", "", "Suite YAML file")
	cmd.Flags().StringSliceVar(&cases, "case", nil, "Run only the named case (repeatable)")
	cmd.Flags().StringVar(&junitPath, "junit", "", "JUnit XML output path")
	cmd.Flags().StringVar(&reportPath, "report", "", "Markdown report output path")
	_ = cmd.MarkFlagRequired("suite")

	return cmd
}

// resultsExit maps case results to the process exit status.
// Exit 2 = a case errored, exit 1 = a case failed.
func resultsExit(results []*droptest.CaseResult) error {
	var failed, errored int
	for _, r := range results {
		switch r.Status {
		case droptest.StatusError:
			errored++
		case droptest.StatusFailed:
			failed++
		}
	}
	if errored > 0 {
		return &exitError{code: 2, err: fmt.Errorf("%d case(s) errored, %d failed", errored, failed)}
	}
	if failed > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d case(s) failed", failed)}
	}
	return nil
}
