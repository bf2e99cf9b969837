package catalog

import "testing"

func TestClampPerPage(t *testing.T) {
	cases := map[int]int{
		0:    10,
		-5:   10,
		25:   25,
		100:  100,
		101:  100,
		9000: 100,
	}
	for in, want := range cases {
		if got := ClampPerPage(in); got != want {
			t.Errorf("ClampPerPage(%d) = %d, want %d", in, got, want)
		}
	}
}
