package droptest

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/newtron-network/dropcheck/pkg/cli"
)

// ProgressReporter receives lifecycle callbacks during a suite run.
type ProgressReporter interface {
	SuiteStart(suite *Suite, cases []Case)
	CaseStart(name string, index, total int)
	CaseEnd(result *CaseResult, index, total int)
	StimulusEnd(caseName string, result *StimulusResult, index, total int)
	SuiteEnd(results []*CaseResult, duration time.Duration)
}

// ConsoleProgress is an append-only terminal progress reporter.
// It never uses ANSI cursor rewriting, so output is safe for pipes, CI,
// and scrollback buffers.
type ConsoleProgress struct {
	W       io.Writer
	Verbose bool

	dotWidth int
}

// NewConsoleProgress creates a ConsoleProgress writing to stdout.
func NewConsoleProgress(verbose bool) *ConsoleProgress {
	return &ConsoleProgress{
		W:       os.Stdout,
		Verbose: verbose,
	}
}

func (p *ConsoleProgress) SuiteStart(suite *Suite, cases []Case) {
	if len(cases) == 0 {
		return
	}

	maxName := 0
	for _, c := range cases {
		if len(c.Name) > maxName {
			maxName = len(c.Name)
		}
	}
	p.dotWidth = maxName + 6

	fmt.Fprintf(p.W, "\ndropcheck: %d cases, suite: %s, dut: %s, %d packets per stimulus\n\n",
		len(cases), suite.Name, suite.DUT.Name, suite.PacketCount)

	fmt.Fprintf(p.W, "  %-4s  %-*s  %s\n", "#", p.dotWidth-6, "CASE", "KIND")
	for i, c := range cases {
		fmt.Fprintf(p.W, "  %-4d  %-*s  %s\n", i+1, p.dotWidth-6, c.Name, c.Kind)
	}
	fmt.Fprintln(p.W)
}

func (p *ConsoleProgress) CaseStart(name string, index, total int) {
	if p.Verbose {
		fmt.Fprintf(p.W, "  [%d/%d]  %s\n", index+1, total, name)
	}
}

func (p *ConsoleProgress) CaseEnd(result *CaseResult, index, total int) {
	tag := fmt.Sprintf("[%d/%d]", index+1, total)

	if p.Verbose {
		if result.SetupError != nil {
			fmt.Fprintf(p.W, "          %s\n", cli.Dim(result.SetupError.Error()))
		}
		fmt.Fprintf(p.W, "          %s  (%s)\n\n", colorStatus(result.Status), formatDuration(result.Duration))
		return
	}

	padded := cli.DotPad(result.Name, p.dotWidth)

	switch result.Status {
	case StatusSkipped:
		fmt.Fprintf(p.W, "  %-7s %s %s\n", tag, padded, cli.Yellow("SKIP"))
	default:
		fmt.Fprintf(p.W, "  %-7s %s %s  (%s)\n", tag, padded, colorStatus(result.Status), formatDuration(result.Duration))
	}
}

func (p *ConsoleProgress) StimulusEnd(caseName string, result *StimulusResult, index, total int) {
	if !p.Verbose {
		return
	}

	dot := cli.DotPad(result.Name, p.dotWidth-10)
	tag := fmt.Sprintf("[%d/%d]", index+1, total)
	fmt.Fprintf(p.W, "          %s %s %s  (%s)\n", tag, dot, colorStatus(result.Status), formatDuration(result.Duration))

	if (result.Status == StatusFailed || result.Status == StatusError) && result.Message != "" {
		fmt.Fprintf(p.W, "               %s\n", cli.Dim(result.Message))
	}
}

func (p *ConsoleProgress) SuiteEnd(results []*CaseResult, duration time.Duration) {
	passed, failed, skipped, errored := tally(results)

	fmt.Fprintf(p.W, "\n---\n")
	fmt.Fprintf(p.W, "dropcheck: %d cases", len(results))

	parts := []string{}
	if passed > 0 {
		parts = append(parts, cli.Green(fmt.Sprintf("%d passed", passed)))
	}
	if failed > 0 {
		parts = append(parts, cli.Red(fmt.Sprintf("%d failed", failed)))
	}
	if errored > 0 {
		parts = append(parts, cli.Red(fmt.Sprintf("%d errored", errored)))
	}
	if skipped > 0 {
		parts = append(parts, cli.Yellow(fmt.Sprintf("%d skipped", skipped)))
	}
	if len(parts) > 0 {
		fmt.Fprintf(p.W, ": %s", strings.Join(parts, ", "))
	}
	fmt.Fprintf(p.W, "  (%s)\n", formatDuration(duration))

	if failed+errored > 0 {
		fmt.Fprintf(p.W, "\n  FAILED:\n")
		for i, r := range results {
			if r.Status != StatusFailed && r.Status != StatusError {
				continue
			}
			fmt.Fprintf(p.W, "    [%d]  %s\n", i+1, r.Name)
			if r.SetupError != nil {
				fmt.Fprintf(p.W, "         setup: %s\n", r.SetupError)
				continue
			}
			for _, s := range r.Stimuli {
				if s.Status == StatusFailed || s.Status == StatusError {
					fmt.Fprintf(p.W, "         stimulus %q (%s): %s\n", s.Name, s.Stage, s.Message)
				}
			}
		}
	}

	if skipped > 0 {
		fmt.Fprintf(p.W, "\n  SKIPPED:\n")
		for i, r := range results {
			if r.Status != StatusSkipped {
				continue
			}
			reason := r.SkipReason
			if reason == "" {
				reason = "skipped"
			}
			padded := cli.DotPad(r.Name, p.dotWidth)
			fmt.Fprintf(p.W, "    [%d]  %s %s\n", i+1, padded, reason)
		}
	}

	fmt.Fprintln(p.W)
}

func tally(results []*CaseResult) (passed, failed, skipped, errored int) {
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		case StatusError:
			errored++
		}
	}
	return
}

func colorStatus(s Status) string {
	switch s {
	case StatusPassed:
		return cli.Green(string(s))
	case StatusFailed, StatusError:
		return cli.Red(string(s))
	case StatusSkipped:
		return cli.Yellow(string(s))
	default:
		return string(s)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
