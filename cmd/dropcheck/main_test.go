package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newtron-network/dropcheck/pkg/dropcheck"
	"github.com/newtron-network/dropcheck/pkg/droptest"
)

func TestResultsExit(t *testing.T) {
	res := func(statuses ...droptest.Status) []*droptest.CaseResult {
		var out []*droptest.CaseResult
		for _, s := range statuses {
			out = append(out, &droptest.CaseResult{Status: s})
		}
		return out
	}
	tests := []struct {
		name    string
		results []*droptest.CaseResult
		code    int
	}{
		{"all pass", res(droptest.StatusPassed, droptest.StatusSkipped), 0},
		{"failure", res(droptest.StatusPassed, droptest.StatusFailed), 1},
		{"error beats failure", res(droptest.StatusFailed, droptest.StatusError), 2},
		{"nothing ran", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := resultsExit(tt.results)
			if tt.code == 0 {
				assert.NoError(t, err)
				return
			}
			var ee *exitError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, tt.code, ee.code)
		})
	}
}

func TestParseLayer(t *testing.T) {
	l, err := parseLayer("L3")
	require.NoError(t, err)
	assert.Equal(t, dropcheck.LayerL3, l)

	_, err = parseLayer("acl")
	assert.ErrorContains(t, err, `unknown layer "acl"`)
}

func TestPrintCounters_Sorted(t *testing.T) {
	snap := &dropcheck.CounterSnapshot{
		Layer: dropcheck.LayerL2,
		Interfaces: map[string]dropcheck.InterfaceCounters{
			"Ethernet8": {RxDrp: dropcheck.ParseCounterValue("1,000"), RxErr: dropcheck.ParseCounterValue("0")},
			"Ethernet0": {RxDrp: dropcheck.ParseCounterValue("N/A"), RxErr: dropcheck.ParseCounterValue("3")},
		},
	}
	var buf bytes.Buffer
	printCounters(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "INTERFACE")
	assert.Contains(t, out, "1,000")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Ethernet0")), bytes.Index(buf.Bytes(), []byte("Ethernet8")))
}

type fakePlatform struct{ platform string }

func (f fakePlatform) Name() string     { return "dut1" }
func (f fakePlatform) Platform() string { return f.platform }
func (f fakePlatform) HwSKU() string    { return "SKU" }
func (f fakePlatform) NumASIC() int     { return 1 }

func TestPrintPlatform(t *testing.T) {
	rules, err := dropcheck.DefaultCombinationRules()
	require.NoError(t, err)

	var buf bytes.Buffer
	printPlatform(&buf, fakePlatform{"x86_64-mlnx_msn2700-r0"}, rules)
	assert.Contains(t, buf.String(), "combined")

	buf.Reset()
	printPlatform(&buf, fakePlatform{"x86_64-accton_as7712_32x-r0"}, rules)
	assert.NotContains(t, buf.String(), "combined")
	assert.Contains(t, buf.String(), "separate")
}

func TestRootCmd_Version(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"version"})
	assert.NoError(t, root.Execute())
}
