// Package glove provides angle sources backed by a flex-sensor glove on a
// serial port, plus a mock for running without hardware.
package glove

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/teslashibe/go-handscore/internal/angles"
)

// linePattern matches "label: value" pairs as printed by the glove firmware,
// e.g. "Thumb: 12.5 index: 40 middle: 38 ring: 35 pinky: 30"
var linePattern = regexp.MustCompile(`(?i)(thumb|index|middle|ring|pinky)\s*:\s*([-+]?\d*\.?\d+)`)

// ParseLine extracts one angle vector from a firmware line. It succeeds only
// when the line carries exactly five pairs naming each finger once.
func ParseLine(line string) (angles.Vector, bool) {
	var v angles.Vector

	matches := linePattern.FindAllStringSubmatch(line, -1)
	if len(matches) != angles.Dims {
		return v, false
	}

	var seen [angles.Dims]bool
	for _, m := range matches {
		k := jointIndex(strings.ToLower(m[1]))
		if k < 0 || seen[k] {
			return v, false
		}
		f, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return v, false
		}
		v[k] = f
		seen[k] = true
	}
	return v, true
}

func jointIndex(name string) int {
	for k, n := range angles.JointNames {
		if n == name {
			return k
		}
	}
	return -1
}
