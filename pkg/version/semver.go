// Package version implements the Version Store: semver bump/compare and
// publish/get/list over a Prompt's immutable PromptVersion history. It is
// grounded in original_source/backend/app/services/version_service.py.
//
// No pack example ships a semver library that accepts bare "x.y.z" strings
// (golang.org/x/mod/semver requires a leading "v" and Go-modules-style
// pre-release/build metadata, which prompt versions don't carry), so the
// three required operations — parse, bump, compare — are hand-rolled here;
// see DESIGN.md.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyxiaoge/prompthub/pkg/apperr"
)

// Semver is a parsed M.m.p version.
type Semver struct {
	Major, Minor, Patch int
}

func (v Semver) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Parse parses a strict "M.m.p" string.
func Parse(s string) (Semver, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Semver{}, apperr.Validation(apperr.ReasonVariableInvalid, "not a semver: "+s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Semver{}, apperr.Validation(apperr.ReasonVariableInvalid, "not a semver: "+s)
		}
		nums[i] = n
	}
	return Semver{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// BumpKind enumerates the accepted Publish bump types.
type BumpKind string

const (
	BumpPatch BumpKind = "patch"
	BumpMinor BumpKind = "minor"
	BumpMajor BumpKind = "major"
)

// Bump returns the next version string after applying kind to current:
// M+1.0.0 / M.m+1.0 / M.m.p+1.
func Bump(current string, kind BumpKind) (string, error) {
	v, err := Parse(current)
	if err != nil {
		return "", err
	}
	switch kind {
	case BumpMajor:
		return Semver{Major: v.Major + 1}.String(), nil
	case BumpMinor:
		return Semver{Major: v.Major, Minor: v.Minor + 1}.String(), nil
	case BumpPatch:
		return Semver{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}.String(), nil
	default:
		return "", apperr.Validation(apperr.ReasonVariableInvalid, "unknown bump kind: "+string(kind))
	}
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than
// b.
func Compare(a, b Semver) int {
	if a.Major != b.Major {
		return sign(a.Major - b.Major)
	}
	if a.Minor != b.Minor {
		return sign(a.Minor - b.Minor)
	}
	return sign(a.Patch - b.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
