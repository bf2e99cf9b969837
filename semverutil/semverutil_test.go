package semverutil

import "testing"

type headCase struct {
	Version string
	Yanked  bool
}

// TestMaxSkipsPrereleaseAndYanked exercises spec §8 scenario S6: given
// k 0.1.0, k 0.2.0, k 0.3.0-alpha.1, k 0.2.1(yanked), the head is 0.2.0.
func TestMaxSkipsPrereleaseAndYanked(t *testing.T) {
	versions := []headCase{
		{"0.1.0", false},
		{"0.2.0", false},
		{"0.3.0-alpha.1", false},
		{"0.2.1", true},
	}
	var candidates []headCase
	for _, v := range versions {
		if !v.Yanked {
			candidates = append(candidates, v)
		}
	}
	got, ok := Max(candidates, func(c headCase) string { return c.Version })
	if !ok {
		t.Fatal("expected a head version")
	}
	if got.Version != "0.2.0" {
		t.Fatalf("got head %q, want 0.2.0", got.Version)
	}
}

func TestIsPrerelease(t *testing.T) {
	cases := map[string]bool{
		"1.0.0":         false,
		"1.0.0-alpha.1": true,
		"not-a-version": true,
	}
	for raw, want := range cases {
		if got := IsPrerelease(raw); got != want {
			t.Errorf("IsPrerelease(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestSatisfies(t *testing.T) {
	if !Satisfies("^1.0", "1.2.3") {
		t.Error("expected 1.2.3 to satisfy ^1.0")
	}
	if Satisfies("^1.0", "2.0.0") {
		t.Error("expected 2.0.0 to not satisfy ^1.0")
	}
	if Satisfies("^1.0", "not-a-version") {
		t.Error("expected unparseable version to be unsatisfied")
	}
}

func TestSortDescending(t *testing.T) {
	vs := []string{"0.1.0", "1.2.0", "0.9.0", "garbage"}
	SortDescending(vs)
	want := []string{"1.2.0", "0.9.0", "0.1.0", "garbage"}
	for i := range want {
		if vs[i] != want[i] {
			t.Fatalf("SortDescending = %v, want %v", vs, want)
		}
	}
}
