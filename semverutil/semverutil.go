// Package semverutil centralizes semver parsing and comparison on top of
// github.com/Masterminds/semver — the teacher's own dependency — so that
// the Catalog's head-selection, the deps resolver's outdated check, and
// search's "newest non-yanked version" all share one comparator instead of
// each hand-rolling version parsing. See spec §4.1, §4.7, §8.
package semverutil

import (
	"sort"

	"github.com/Masterminds/semver"
)

// Versioned pairs a raw version string with the value it was parsed from,
// for types that want to retain both the parsed form and its source.
type Versioned[T any] struct {
	Version *semver.Version
	Value   T
}

// IsPrerelease reports whether raw parses as a semver with a pre-release
// component (e.g. "0.3.0-alpha.1"). An unparseable string is treated as a
// pre-release so it's excluded from head selection rather than silently
// winning on a bad comparison.
func IsPrerelease(raw string) bool {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return true
	}
	return v.Prerelease() != ""
}

// Max returns the semver-maximal value of the non-prerelease versions in
// items, using get to extract each item's version string. ok is false if
// items contains no parseable non-prerelease version.
//
// This implements the "Head" concept from spec §4.1/§8: "the semver-maximal
// non-pre-release non-yanked version of a crate" (callers filter yanked and
// deprecated before calling Max).
func Max[T any](items []T, get func(T) string) (best T, ok bool) {
	var bestV *semver.Version
	for _, it := range items {
		raw := get(it)
		v, err := semver.NewVersion(raw)
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if bestV == nil || v.GreaterThan(bestV) {
			bestV = v
			best = it
			ok = true
		}
	}
	return best, ok
}

// Satisfies reports whether version satisfies the semver requirement req
// (a Cargo-style requirement string, e.g. "^1.2", "~1.2.3", ">=1,<2"). An
// unparseable requirement or version is treated as unsatisfied, which the
// deps resolver reports as IsOutdated=true rather than silently passing.
func Satisfies(req, version string) bool {
	c, err := semver.NewConstraint(req)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Check(v)
}

// SortDescending sorts raw version strings newest-first. Unparseable
// entries sort last, in their original relative order.
func SortDescending(raw []string) {
	sort.SliceStable(raw, func(i, j int) bool {
		vi, erri := semver.NewVersion(raw[i])
		vj, errj := semver.NewVersion(raw[j])
		switch {
		case erri != nil && errj != nil:
			return false
		case erri != nil:
			return false
		case errj != nil:
			return true
		default:
			return vi.GreaterThan(vj)
		}
	})
}
