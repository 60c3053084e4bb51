// Package progress estimates build progress from external tool output.
//
// The estimator is best-effort telemetry, not an authoritative completion
// signal: it scans lines for a bracketed percentage token of the form [NN%]
// (as emitted by the AOSP build system) and rescales it into the active
// stage's progress range. Lines without the token never alter progress.
package progress

import (
	"regexp"
	"strconv"
)

var percentPattern = regexp.MustCompile(`\[(\d+)%\]`)

// Scan extracts a bracketed percentage from a line of tool output. The
// second return value is false when the line carries no usable percentage;
// malformed or out-of-range numbers are ignored rather than reported.
func Scan(line string) (int, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

// Range is a stage's displayed progress window.
type Range struct {
	Lo int
	Hi int
}

// CompileRange is the compilation stage's window: raw tool percentages are
// rescaled into [50,100].
var CompileRange = Range{Lo: 50, Hi: 100}

// Map linearly rescales a raw percentage into the range, floored to an
// integer. For CompileRange, 42 maps to 50 + floor(42*0.5) = 71.
func (r Range) Map(pct int) int {
	return r.Lo + pct*(r.Hi-r.Lo)/100
}

// ScanInto combines Scan and Map: it returns the displayed progress for a
// line, or ok=false when the line should not update progress.
func ScanInto(line string, r Range) (int, bool) {
	pct, ok := Scan(line)
	if !ok {
		return 0, false
	}
	return r.Map(pct), true
}
