// Package version provides version information, interpreter compatibility
// checks and update checking.
package version

import (
	"strconv"
	"strings"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
)

// Version is the current version of pydevd-mcp
const Version = "0.2.0"

// GetVersion returns the current version
func GetVersion() string {
	return Version
}

// CompareVersions compares two dotted version strings component by
// component. A leading "v" and any pre-release or local suffix on a
// component ("1.0.0-beta", "3.2.3.dev0") are ignored; missing components
// count as zero. Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2.
func CompareVersions(v1, v2 string) int {
	p1, p2 := parseVersion(v1), parseVersion(v2)
	for i := 0; i < max(len(p1), len(p2)); i++ {
		var a, b int
		if i < len(p1) {
			a = p1[i]
		}
		if i < len(p2) {
			b = p2[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

func parseVersion(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	var parts []int
	for _, field := range strings.Split(v, ".") {
		end := 0
		for end < len(field) && field[end] >= '0' && field[end] <= '9' {
			end++
		}
		if end == 0 {
			break
		}
		n, _ := strconv.Atoi(field[:end])
		parts = append(parts, n)
		if end < len(field) {
			break
		}
	}
	return parts
}

// CheckInterpreter verifies that the debugger version reported in the
// handshake is at least minimum. An empty minimum accepts everything.
func CheckInterpreter(got, minimum string) error {
	if minimum == "" {
		return nil
	}
	if CompareVersions(got, minimum) < 0 {
		return dbgerrors.InterpreterTooOld(got, minimum)
	}
	return nil
}
