package deps

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	registry "github.com/cratery/registry"
)

func strPtr(s string) *string { return &s }

func TestIsActive(t *testing.T) {
	cases := []struct {
		name     string
		dep      registry.IndexDependency
		targets  map[string]bool
		features map[string]bool
		want     bool
	}{
		{
			name: "unconditional required dep",
			dep:  registry.IndexDependency{Name: "serde"},
			want: true,
		},
		{
			name: "cfg target is conservatively inactive",
			dep:  registry.IndexDependency{Name: "winapi", Target: strPtr("cfg(windows)")},
			want: false,
		},
		{
			name:    "literal target matches active set",
			dep:     registry.IndexDependency{Name: "libc", Target: strPtr("x86_64-unknown-linux-gnu")},
			targets: map[string]bool{"x86_64-unknown-linux-gnu": true},
			want:    true,
		},
		{
			name:    "literal target absent from active set",
			dep:     registry.IndexDependency{Name: "libc", Target: strPtr("x86_64-pc-windows-msvc")},
			targets: map[string]bool{"x86_64-unknown-linux-gnu": true},
			want:    false,
		},
		{
			name:     "optional dep enabled via dep: feature",
			dep:      registry.IndexDependency{Name: "tokio", Optional: true},
			features: map[string]bool{"dep:tokio": true},
			want:     true,
		},
		{
			name:     "optional dep enabled via slash feature",
			dep:      registry.IndexDependency{Name: "tokio", Optional: true},
			features: map[string]bool{"tokio/rt-multi-thread": true},
			want:     true,
		},
		{
			name:     "optional dep with no enabling feature",
			dep:      registry.IndexDependency{Name: "tokio", Optional: true},
			features: map[string]bool{"other": true},
			want:     false,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isActive(c.dep, c.targets, c.features); got != c.want {
				t.Errorf("isActive() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestFetchSparseUsesBasicAuthAndParsesNDJSON(t *testing.T) {
	var gotAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		login, secret, ok := r.BasicAuth()
		gotAuth = ok && login == "svc" && secret == "tok"
		recs := []registry.IndexRecord{
			{Name: "leftpad", Vers: "1.0.0"},
			{Name: "leftpad", Vers: "1.1.0"},
		}
		for _, rec := range recs {
			b, _ := json.Marshal(rec)
			w.Write(append(b, '\n'))
		}
	}))
	defer srv.Close()

	r := New(nil, map[string]ExternalRegistry{
		"upstream": {Name: "upstream", IndexURL: srv.URL, Login: "svc", Token: "tok"},
	}, nil, time.Minute)

	records, err := r.fetchSparse(t.Context(), r.external["upstream"], "leftpad")
	if err != nil {
		t.Fatalf("fetchSparse: %v", err)
	}
	if !gotAuth {
		t.Error("expected basic auth credentials on the upstream request")
	}
	if len(records) != 2 || records[1].Vers != "1.1.0" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestFetchCachesWithinStaleWindow(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		b, _ := json.Marshal(registry.IndexRecord{Name: "leftpad", Vers: "1.0.0"})
		w.Write(append(b, '\n'))
	}))
	defer srv.Close()

	r := New(nil, map[string]ExternalRegistry{
		"upstream": {Name: "upstream", IndexURL: srv.URL},
	}, nil, time.Minute)

	ctx := t.Context()
	if _, err := r.fetch(ctx, "upstream", "leftpad"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := r.fetch(ctx, "upstream", "leftpad"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected the second fetch to hit cache, got %d upstream requests", hits)
	}
}
