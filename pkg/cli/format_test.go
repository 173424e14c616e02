package cli

import (
	"strings"
	"testing"
)

func withColor(t *testing.T, on bool) {
	t.Helper()
	prev := colorEnabled
	colorEnabled = on
	t.Cleanup(func() { colorEnabled = prev })
}

func TestDotPad_AlignsStatusColumn(t *testing.T) {
	names := []string{"reserved-dmac", "acl-drop", "ip-pkt-exceeded-mtu", "no-egress-drop-on-down-link"}
	const width = 36

	col := -1
	for _, name := range names {
		line := DotPad(name, width) + " PASS"
		at := strings.Index(line, "PASS")
		if col == -1 {
			col = at
		}
		if at != col {
			t.Errorf("%s: status at column %d, want %d (%q)", name, at, col, line)
		}
	}
	if got := DotPad("reserved-dmac", 20); got != "reserved-dmac ......" {
		t.Errorf("DotPad = %q", got)
	}
}

func TestDotPad_NoRoom(t *testing.T) {
	tests := []struct {
		name  string
		width int
	}{
		{"no-egress-drop-on-down-link", 10},
		{"acl-drop", 9}, // name plus space fills the width
		{"acl-drop", 8},
		{"acl-drop", 0},
	}
	for _, tt := range tests {
		if got := DotPad(tt.name, tt.width); got != tt.name {
			t.Errorf("DotPad(%q, %d) = %q, want the name unchanged", tt.name, tt.width, got)
		}
	}
	if got := DotPad("acl-drop", 10); got != "acl-drop ." {
		t.Errorf("one dot expected, got %q", got)
	}
}

func TestStatusColors(t *testing.T) {
	withColor(t, true)
	tests := []struct {
		label string
		fn    func(string) string
		want  string
	}{
		{"PASS", Green, "\033[32mPASS\033[0m"},
		{"SKIP", Yellow, "\033[33mSKIP\033[0m"},
		{"FAIL", Red, "\033[31mFAIL\033[0m"},
		{"ERROR", Red, "\033[31mERROR\033[0m"},
		{"expected 100 drops on RX_DRP, got 0", Dim, "\033[2mexpected 100 drops on RX_DRP, got 0\033[0m"},
	}
	for _, tt := range tests {
		if got := tt.fn(tt.label); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestStatusColors_NoColor(t *testing.T) {
	withColor(t, false)
	for _, fn := range []func(string) string{Green, Yellow, Red, Dim} {
		if got := fn("SKIP"); got != "SKIP" {
			t.Errorf("NO_COLOR output %q carries escapes", got)
		}
	}
	if got := DotPad("acl-drop", 12) + " " + Red("FAIL"); got != "acl-drop ... FAIL" {
		t.Errorf("plain line = %q", got)
	}
}
