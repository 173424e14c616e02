package droptest

import (
	"context"
	"errors"
	"time"

	"github.com/newtron-network/dropcheck/pkg/device"
	"github.com/newtron-network/dropcheck/pkg/dropcheck"
	"github.com/newtron-network/dropcheck/pkg/util"
)

// Defaults for the down-link case's ARP wait.
const (
	defaultARPClearAttempts = 10
	defaultPollInterval     = time.Second
)

// DUT is the device surface the cases need: counters and session state for
// dropcheck, plus the ACL, MTU and link fixtures.
type DUT interface {
	dropcheck.SessionDevice
	ACLRuleCount(ctx context.Context, asic int, table, rule string) (int64, error)
	ApplyACLRule(ctx context.Context, rule device.ACLRule) error
	RemoveACLRule(ctx context.Context, rule device.ACLRule) error
	ACLTablePorts(ctx context.Context, asic int, table string) ([]string, error)
	SetMTU(ctx context.Context, asic int, iface string, mtu int) error
	RestoreMTU(ctx context.Context) error
	SetAdminStatus(ctx context.Context, asic int, iface string, up bool) error
	ARPContains(ctx context.Context, ip string) (bool, error)
}

// Traffic injects stimuli and watches the sniff ports.
type Traffic interface {
	dropcheck.Injector
	dropcheck.EgressObserver
}

// Runner is the suite orchestrator.
type Runner struct {
	DUT      DUT
	Traffic  Traffic
	Rules    *dropcheck.CombinationRules // nil: suite file, else built-in
	Progress ProgressReporter

	// ConfigureVerifier, when set, adjusts the verifier's polling before the
	// first case runs.
	ConfigureVerifier func(v *dropcheck.Verifier)

	ARPClearAttempts int
	PollInterval     time.Duration
}

// RunOptions controls Runner behavior from CLI flags.
type RunOptions struct {
	Cases []string // case names to run; empty runs all
}

// NewRunner creates a runner for dut using traffic as the dataplane.
func NewRunner(dut DUT, traffic Traffic) *Runner {
	return &Runner{
		DUT:              dut,
		Traffic:          traffic,
		ARPClearAttempts: defaultARPClearAttempts,
		PollInterval:     defaultPollInterval,
	}
}

// Run executes the selected cases of suite and returns their results. Case
// failures are reported in the results; the error is non-nil only when the
// suite itself cannot run (bad selection, unreadable combination rules).
// Session setup failures mark every case ERROR.
func (r *Runner) Run(ctx context.Context, suite *Suite, opts RunOptions) ([]*CaseResult, error) {
	cases, err := suite.SelectCases(opts.Cases)
	if err != nil {
		return nil, err
	}
	rules, err := r.rules(suite)
	if err != nil {
		return nil, err
	}

	r.progress(func(p ProgressReporter) { p.SuiteStart(suite, cases) })
	suiteStart := time.Now()

	sess, err := dropcheck.OpenSession(ctx, r.DUT, rules)
	if err != nil {
		infra := &InfraError{Op: "session", Device: r.DUT.Name(), Err: err}
		var results []*CaseResult
		for i, c := range cases {
			result := r.newResult(&c)
			result.Status = StatusError
			result.SetupError = infra
			results = append(results, result)
			r.progress(func(p ProgressReporter) { p.CaseEnd(result, i, len(cases)) })
		}
		r.progress(func(p ProgressReporter) { p.SuiteEnd(results, time.Since(suiteStart)) })
		return results, nil
	}
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			util.WithDevice(r.DUT.Name()).Warnf("Restoring counter polling: %v", err)
		}
	}()

	verifier := dropcheck.NewVerifier(r.DUT.Name(),
		dropcheck.NewReader(r.DUT, r.DUT),
		aclReader{dut: r.DUT, asic: suite.Ports.ASIC})
	if r.ConfigureVerifier != nil {
		r.ConfigureVerifier(verifier)
	}
	driver := dropcheck.NewDriver(sess, verifier, r.Traffic, r.Traffic)

	var results []*CaseResult
	for i := range cases {
		c := &cases[i]
		if ctx.Err() != nil {
			result := r.newResult(c)
			result.Status = StatusSkipped
			result.SkipReason = "interrupted"
			results = append(results, result)
			r.progress(func(p ProgressReporter) { p.CaseEnd(result, i, len(cases)) })
			continue
		}

		r.progress(func(p ProgressReporter) { p.CaseStart(c.Name, i, len(cases)) })
		result := r.runCase(ctx, suite, c, driver)
		results = append(results, result)
		r.progress(func(p ProgressReporter) { p.CaseEnd(result, i, len(cases)) })
	}

	r.progress(func(p ProgressReporter) { p.SuiteEnd(results, time.Since(suiteStart)) })
	return results, nil
}

func (r *Runner) rules(suite *Suite) (*dropcheck.CombinationRules, error) {
	if r.Rules != nil {
		return r.Rules, nil
	}
	if suite.CombinationRules != "" {
		return dropcheck.LoadCombinationRules(suite.CombinationRules)
	}
	return dropcheck.DefaultCombinationRules()
}

func (r *Runner) newResult(c *Case) *CaseResult {
	return &CaseResult{
		Name:     c.Name,
		Kind:     c.Kind,
		Device:   r.DUT.Name(),
		Platform: r.DUT.Platform(),
	}
}

// runCase prepares the case's fixtures, runs its stimuli in order and tears
// the fixtures down. Stimuli stop at the first one that does not pass.
func (r *Runner) runCase(ctx context.Context, suite *Suite, c *Case, driver *dropcheck.Driver) *CaseResult {
	result := r.newResult(c)
	log := util.WithCase(r.DUT.Name(), c.Name)
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	env := &caseEnv{r: r, suite: suite, c: c}
	plan, err := builders[c.Kind](ctx, env)
	if plan != nil {
		result.Group = plan.Group.String()
		if plan.Teardown != nil {
			defer func() {
				if terr := plan.Teardown(context.WithoutCancel(ctx)); terr != nil {
					log.Warnf("Teardown failed: %v", terr)
					result.Stimuli = append(result.Stimuli, StimulusResult{
						Name:    "teardown",
						Status:  StatusError,
						Stage:   "teardown",
						Message: terr.Error(),
					})
					result.Status = computeOverallStatus(result.Stimuli)
				}
			}()
		}
	}
	if err != nil {
		log.Warnf("Setup failed: %v", err)
		result.SetupError = &CaseError{Case: c.Name, Kind: c.Kind, Err: err}
		result.Status = StatusError
		if errors.Is(err, errARPNotCleared) {
			result.Status = StatusFailed
		}
		return result
	}
	if plan.SkipReason != "" {
		log.Infof("Skipped: %s", plan.SkipReason)
		result.Status = StatusSkipped
		result.SkipReason = plan.SkipReason
		return result
	}

	for i, ns := range plan.Stimuli {
		sr := r.runStimulus(ctx, driver, ns)
		result.Stimuli = append(result.Stimuli, sr)
		r.progress(func(p ProgressReporter) { p.StimulusEnd(c.Name, &sr, i, len(plan.Stimuli)) })
		if sr.Status != StatusPassed {
			break
		}
	}
	result.Status = computeOverallStatus(result.Stimuli)
	return result
}

func (r *Runner) runStimulus(ctx context.Context, driver *dropcheck.Driver, ns namedStimulus) StimulusResult {
	start := time.Now()
	err := driver.Run(ctx, ns.Stimulus)
	sr := StimulusResult{Name: ns.Name, Duration: time.Since(start), Status: StatusPassed}
	if err == nil {
		return sr
	}

	sr.Message = err.Error()
	var se *dropcheck.ScenarioError
	if errors.As(err, &se) {
		sr.Stage = se.Stage
		sr.Message = se.Err.Error()
	}
	sr.Status = StatusError
	if dropcheck.IsCounterFailure(err) {
		sr.Status = StatusFailed
	}
	return sr
}

func (r *Runner) portContext(s *Suite) dropcheck.PortContext {
	return dropcheck.PortContext{
		Ingress:   s.Ports.DUTIface,
		Egress:    s.EgressFor(),
		ASIC:      s.Ports.ASIC,
		Namespace: r.DUT.NamespaceForASIC(s.Ports.ASIC),
	}
}

func (r *Runner) progress(fn func(ProgressReporter)) {
	if r.Progress != nil {
		fn(r.Progress)
	}
}

// aclReader binds the ACL rule counters of one ASIC.
type aclReader struct {
	dut  DUT
	asic int
}

func (a aclReader) RuleMatchCount(ctx context.Context, table, rule string) (int64, error) {
	return a.dut.ACLRuleCount(ctx, a.asic, table, rule)
}
