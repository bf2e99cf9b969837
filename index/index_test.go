package index

import "testing"

func TestShard(t *testing.T) {
	cases := map[string]string{
		"a":      "1",
		"ab":     "2",
		"abc":    "3/a",
		"abcd":   "ab/cd",
		"serde":  "se/rd",
		"":       "_",
	}
	for name, want := range cases {
		if got := Shard(name); got != want {
			t.Errorf("Shard(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestChecksum(t *testing.T) {
	got := Checksum([]byte("hello"))
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("Checksum(hello) = %s, want %s", got, want)
	}
}
