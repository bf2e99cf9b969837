package advisory

import (
	"testing"

	registry "github.com/cratery/registry"
)

func TestRangeContains(t *testing.T) {
	r := registry.AdvisoryRange{Introduced: "0.1.0", Fixed: "0.3.0"}
	cases := map[string]bool{
		"0.0.9": false,
		"0.1.0": true,
		"0.2.5": true,
		"0.3.0": false,
		"0.4.0": false,
	}
	for version, want := range cases {
		if got := rangeContains(r, version); got != want {
			t.Errorf("rangeContains(%v, %q) = %v, want %v", r, version, got, want)
		}
	}
}

func TestAdvisoryAffectsExplicitVersion(t *testing.T) {
	adv := registry.Advisory{Package: "leftpad", ID: "RUSTSEC-2020-0001", Versions: []string{"1.0.0"}}
	if !advisoryAffects(adv, "1.0.0") {
		t.Error("expected explicit version match")
	}
	if advisoryAffects(adv, "1.0.1") {
		t.Error("expected non-listed version to not match")
	}
}
