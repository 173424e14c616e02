package droptest

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DateTimeFormat is the timestamp layout used in report headers.
const DateTimeFormat = "2006-01-02 15:04:05"

// Status represents the outcome of a stimulus or case.
type Status string

const (
	StatusPassed  Status = "PASS"
	StatusFailed  Status = "FAIL"
	StatusSkipped Status = "SKIP"
	StatusError   Status = "ERROR"
)

// CaseResult holds the result of a single case execution.
type CaseResult struct {
	Name       string
	Kind       CaseKind
	Group      string
	Device     string
	Platform   string
	Status     Status
	Duration   time.Duration
	Stimuli    []StimulusResult
	SetupError error  // fixture or infrastructure failure before any stimulus ran
	SkipReason string // set when Status==StatusSkipped
}

// StimulusResult holds the result of one injected stimulus. Most cases have
// one; reserved-dmac has one per address.
type StimulusResult struct {
	Name     string
	Status   Status
	Duration time.Duration
	Stage    string // dropcheck stage that failed ("clear", "inject", "verify", "egress")
	Message  string
}

// message returns the first failure message of r.
func (r *CaseResult) message() string {
	if r.SetupError != nil {
		return r.SetupError.Error()
	}
	for _, s := range r.Stimuli {
		if s.Status == StatusFailed || s.Status == StatusError {
			return s.Message
		}
	}
	return ""
}

// computeOverallStatus folds stimulus results: ERROR beats FAIL beats PASS.
// A case without stimuli is SKIP.
func computeOverallStatus(stimuli []StimulusResult) Status {
	if len(stimuli) == 0 {
		return StatusSkipped
	}
	status := StatusPassed
	for _, s := range stimuli {
		switch s.Status {
		case StatusError:
			return StatusError
		case StatusFailed:
			status = StatusFailed
		}
	}
	return status
}

// ReportGenerator produces reports from case results.
type ReportGenerator struct {
	Suite   string
	Results []*CaseResult
}

// WriteMarkdown writes a markdown report to the given path.
func (g *ReportGenerator) WriteMarkdown(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	g.writeMarkdown(f, time.Now())
	return nil
}

func (g *ReportGenerator) writeMarkdown(w io.Writer, now time.Time) {
	fmt.Fprintf(w, "# dropcheck Report: %s (%s)\n\n", g.Suite, now.Format(DateTimeFormat))

	fmt.Fprintln(w, "| Case | Kind | Group | Platform | Result | Duration | Note |")
	fmt.Fprintln(w, "|------|------|-------|----------|--------|----------|------|")
	for _, r := range g.Results {
		note := r.SkipReason
		if len(r.Stimuli) > 1 {
			note = fmt.Sprintf("%d stimuli", len(r.Stimuli))
		}
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s |\n",
			r.Name, r.Kind, r.Group, r.Platform, r.Status,
			r.Duration.Round(time.Second), note)
	}

	hasFailures := false
	for _, r := range g.Results {
		if r.Status != StatusFailed && r.Status != StatusError {
			continue
		}
		if !hasFailures {
			fmt.Fprintf(w, "\n## Failures\n\n")
			hasFailures = true
		}
		fmt.Fprintf(w, "### %s\n", r.Name)
		if r.SetupError != nil {
			fmt.Fprintf(w, "Setup: %s\n\n", r.SetupError)
			continue
		}
		for _, s := range r.Stimuli {
			if s.Status == StatusFailed || s.Status == StatusError {
				fmt.Fprintf(w, "Stimulus %s (%s): %s\n\n", s.Name, s.Stage, s.Message)
			}
		}
	}
}

// WriteJUnit writes a JUnit XML report for CI integration.
func (g *ReportGenerator) WriteJUnit(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := xml.MarshalIndent(g.junit(), "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, append([]byte(xml.Header), data...), 0o644)
}

func (g *ReportGenerator) junit() junitTestSuites {
	suites := junitTestSuites{}

	for _, r := range g.Results {
		suite := junitTestSuite{
			Name: r.Name,
			Time: r.Duration.Seconds(),
		}

		// Case-level skip or setup error: emit a single test case
		if len(r.Stimuli) == 0 {
			suite.Tests = 1
			tc := junitTestCase{Name: r.Name, ClassName: g.Suite}
			switch r.Status {
			case StatusSkipped:
				suite.Skipped = 1
				tc.Skipped = &junitSkipped{Message: r.SkipReason}
			default:
				suite.Errors = 1
				tc.Error = &junitError{Message: r.message(), Type: string(r.Kind)}
			}
			suite.Cases = append(suite.Cases, tc)
			suites.Suites = append(suites.Suites, suite)
			continue
		}

		for _, s := range r.Stimuli {
			suite.Tests++
			tc := junitTestCase{
				Name:      s.Name,
				ClassName: r.Name,
				Time:      s.Duration.Seconds(),
			}

			switch s.Status {
			case StatusFailed:
				suite.Failures++
				tc.Failure = &junitFailure{
					Message: s.Message,
					Type:    s.Stage,
				}
			case StatusSkipped:
				suite.Skipped++
				tc.Skipped = &junitSkipped{
					Message: s.Message,
				}
			case StatusError:
				suite.Errors++
				tc.Error = &junitError{
					Message: s.Message,
					Type:    s.Stage,
				}
			}

			suite.Cases = append(suite.Cases, tc)
		}

		suites.Suites = append(suites.Suites, suite)
	}
	return suites
}

// JUnit XML types

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     float64         `xml:"time,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	Error     *junitError   `xml:"error,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

type junitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}
