// Package cli holds the console formatting shared by dropcheck's progress
// output and its commands.
package cli

import (
	"os"
	"strings"
)

// colorEnabled follows NO_COLOR (no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

const reset = "\033[0m"

func paint(sgr, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + sgr + "m" + s + reset
}

// Green marks passing results.
func Green(s string) string { return paint("32", s) }

// Yellow marks skipped cases and combined counters.
func Yellow(s string) string { return paint("33", s) }

// Red marks failed and errored results.
func Red(s string) string { return paint("31", s) }

// Dim is for failure detail printed under a result line.
func Dim(s string) string { return paint("2", s) }

// DotPad pads a case name with a space and dots to width so the status
// column lines up, as in "reserved-dmac ........ PASS". Names that leave no
// room for a dot are returned as is.
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-len(name)-1)
}
