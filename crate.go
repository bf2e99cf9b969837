package registry

import "strings"

// Package is a published crate name and its registry-wide configuration.
// See spec §3.
type Package struct {
	Name          string
	LowercaseName string
	Targets       []string
	NativeTargets []string
	Capabilities  []string
	IsDeprecated  bool
	CanRemove     bool
}

// NormalizeName returns the lowercase collision key for a crate name, per
// spec §3's "lowercase_name is unique and is the collision key across case
// variants".
func NormalizeName(name string) string { return strings.ToLower(name) }

// MaxNameLength is the publish metadata validation bound from spec §4.5.
const MaxNameLength = 64

// ValidateName enforces spec §4.5's crate name rule: non-empty, at most
// MaxNameLength characters, first character ASCII alphabetic, every other
// character ASCII alphanumeric, '-', or '_'.
func ValidateName(name string) error {
	if name == "" {
		return New(ErrInvalid, "ValidateName", "crate name must not be empty", nil)
	}
	if len(name) > MaxNameLength {
		return New(ErrInvalid, "ValidateName", "crate name exceeds 64 characters", nil)
	}
	first := name[0]
	if !isASCIIAlpha(first) {
		return New(ErrInvalid, "ValidateName", "crate name must start with an ASCII letter", nil)
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !isASCIIAlpha(c) && !isASCIIDigit(c) && c != '-' && c != '_' {
			return New(ErrInvalid, "ValidateName", "crate name contains an invalid character", nil)
		}
	}
	return nil
}

func isASCIIAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isASCIIDigit(c byte) bool { return c >= '0' && c <= '9' }

// DefaultTarget is used when a Package declares no explicit build targets,
// per spec §4.5 step 7 ("one job per configured target (or the default
// target if none are configured)").
const DefaultTarget = "x86_64-unknown-linux-gnu"

// EffectiveTargets returns p.Targets, or a slice containing DefaultTarget if
// none were configured.
func (p *Package) EffectiveTargets() []string {
	if len(p.Targets) == 0 {
		return []string{DefaultTarget}
	}
	return p.Targets
}

// RequiresNativeToolchain reports whether target is listed in NativeTargets.
func (p *Package) RequiresNativeToolchain(target string) bool {
	for _, t := range p.NativeTargets {
		if t == target {
			return true
		}
	}
	return false
}

// PackageOwner is a many-to-many row between a Package and a User. See
// spec §3 ("at least one owner must remain").
type PackageOwner struct {
	Package string
	UserID  int64
}
