// Package advisory implements the AdvisoryStore of spec §4.7: a git clone
// of an OSV-style advisory database, refreshed on staleness and parsed into
// a simplified in-memory index keyed by package name.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	registry "github.com/cratery/registry"
	"github.com/quay/zlog"
)

// Config describes where the advisory database lives and how stale the
// local clone is allowed to get before a refresh.
type Config struct {
	Root        string // local clone directory, e.g. <data_dir>/rustsec
	RemoteURL   string
	Branch      string
	StalePeriod time.Duration
}

// Store is the AdvisoryStore: a refreshed git clone plus an in-memory
// package-name index rebuilt on every refresh.
type Store struct {
	cfg Config

	mu          sync.RWMutex
	byPackage   map[string][]registry.Advisory
	lastRefresh time.Time
}

// New constructs a Store. Use Refresh to perform the initial clone/parse.
func New(cfg Config) *Store {
	return &Store{cfg: cfg, byPackage: make(map[string][]registry.Advisory)}
}

// osvEntry is the subset of the upstream OSV-style JSON schema this module
// cares about: package name, affected ranges, and an explicit version list.
type osvEntry struct {
	ID       string `json:"id"`
	Affected []struct {
		Package struct {
			Name string `json:"name"`
		} `json:"package"`
		Ranges []struct {
			Type   string `json:"type"`
			Events []struct {
				Introduced   string `json:"introduced"`
				Fixed        string `json:"fixed"`
				LastAffected string `json:"last_affected"`
			} `json:"events"`
		} `json:"ranges"`
		Versions []string `json:"versions"`
	} `json:"affected"`
}

// Refresh clones the advisory repository if absent, pulls if stale, and
// reparses every *.json advisory file into the in-memory index.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	stale := time.Since(s.lastRefresh) < s.cfg.StalePeriod && !s.lastRefresh.IsZero()
	s.mu.RUnlock()
	if stale {
		return nil
	}

	if _, err := os.Stat(filepath.Join(s.cfg.Root, ".git")); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Root), 0o755); err != nil {
			return err
		}
		if err := s.run(ctx, filepath.Dir(s.cfg.Root), "clone", "--branch", s.cfg.Branch, "--depth", "1", s.cfg.RemoteURL, s.cfg.Root); err != nil {
			return fmt.Errorf("advisory: clone: %w", err)
		}
	} else {
		if err := s.run(ctx, s.cfg.Root, "pull", "--ff-only", "origin", s.cfg.Branch); err != nil {
			zlog.Error(ctx).Err(err).Msg("advisory: pull failed, using existing clone")
		}
	}

	byPackage := make(map[string][]registry.Advisory)
	err := filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var e osvEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil
		}
		for _, aff := range e.Affected {
			if aff.Package.Name == "" {
				continue
			}
			adv := registry.Advisory{Package: aff.Package.Name, ID: e.ID, Versions: aff.Versions}
			for _, r := range aff.Ranges {
				for _, ev := range r.Events {
					if ev.Introduced == "" && ev.Fixed == "" && ev.LastAffected == "" {
						continue
					}
					adv.Ranges = append(adv.Ranges, registry.AdvisoryRange{
						Introduced:   ev.Introduced,
						Fixed:        ev.Fixed,
						LastAffected: ev.LastAffected,
					})
				}
			}
			byPackage[aff.Package.Name] = append(byPackage[aff.Package.Name], adv)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("advisory: parse: %w", err)
	}

	s.mu.Lock()
	s.byPackage = byPackage
	s.lastRefresh = time.Now()
	s.mu.Unlock()
	return nil
}

// Affecting returns every advisory that lists pkg as affected at version.
func (s *Store) Affecting(pkg, version string) []registry.Advisory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []registry.Advisory
	for _, adv := range s.byPackage[pkg] {
		if advisoryAffects(adv, version) {
			out = append(out, adv)
		}
	}
	return out
}

func advisoryAffects(adv registry.Advisory, version string) bool {
	for _, v := range adv.Versions {
		if v == version {
			return true
		}
	}
	for _, r := range adv.Ranges {
		if rangeContains(r, version) {
			return true
		}
	}
	return false
}

// rangeContains reports whether version falls in [introduced, fixed) or
// [introduced, lastAffected], using lexical version compare as a
// placeholder for a full semver range check — callers that need exact
// semver comparisons should prefer semverutil.Satisfies against a derived
// constraint string.
func rangeContains(r registry.AdvisoryRange, version string) bool {
	if r.Introduced != "" && version < r.Introduced {
		return false
	}
	if r.Fixed != "" && version >= r.Fixed {
		return false
	}
	if r.LastAffected != "" && version > r.LastAffected {
		return false
	}
	return true
}

func (s *Store) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return nil
}
