// Package index implements the canonical Cargo index described in spec
// §4.2: a git working copy on local disk, read through both the sparse
// HTTP protocol and git's smart-HTTP protocol, written by shelling out to
// the git binary exactly as a human operator would.
package index

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	registry "github.com/cratery/registry"
	"github.com/quay/zlog"
)

// Config configures an Index's on-disk layout and git identity.
type Config struct {
	Root             string // working copy root
	RemoteOrigin     string // "" disables clone/push
	PushChanges      bool
	UserName         string
	UserEmail        string
	DownloadURL      string // dl field of config.json
	APIURL           string // api field of config.json
	AuthRequired     bool
	GitProtocol      bool // serve info/refs and git-upload-pack
	SparseProtocol   bool // serve sparse index files
}

// Index is the canonical crate index: one git working copy, guarded by a
// single exclusive lock for every write (spec §5's "single exclusive lock
// held for the duration of each write").
type Index struct {
	cfg Config
	mu  sync.Mutex
}

// Open prepares the index working copy per spec §4.2's Initialization
// rules: create if missing, clone if empty and a remote is configured,
// otherwise git init with a fresh config.json.
func Open(ctx context.Context, cfg Config, catalogIsEmpty bool) (*Index, error) {
	idx := &Index{cfg: cfg}

	if _, err := os.Stat(cfg.Root); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, fmt.Errorf("index: create root: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("index: stat root: %w", err)
	}

	empty, err := dirIsEmpty(cfg.Root)
	if err != nil {
		return nil, err
	}
	if empty {
		if cfg.RemoteOrigin != "" {
			if err := idx.run(ctx, cfg.Root, "clone", cfg.RemoteOrigin, "."); err != nil {
				if !catalogIsEmpty {
					return nil, fmt.Errorf("index: clone failed and catalog is non-empty: %w", err)
				}
				zlog.Info(ctx).Err(err).Msg("index clone failed, falling back to init")
				if err := idx.initRepo(ctx); err != nil {
					return nil, err
				}
			}
		} else {
			if err := idx.initRepo(ctx); err != nil {
				return nil, err
			}
		}
	}

	if err := idx.run(ctx, cfg.Root, "config", "user.name", cfg.UserName); err != nil {
		return nil, err
	}
	if err := idx.run(ctx, cfg.Root, "config", "user.email", cfg.UserEmail); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) initRepo(ctx context.Context) error {
	if err := idx.run(ctx, idx.cfg.Root, "init", "."); err != nil {
		return fmt.Errorf("index: init: %w", err)
	}
	cfgDoc := map[string]any{
		"dl":            idx.cfg.DownloadURL,
		"api":           idx.cfg.APIURL,
		"auth-required": idx.cfg.AuthRequired,
	}
	b, err := json.MarshalIndent(cfgDoc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(idx.cfg.Root, "config.json"), b, 0o644); err != nil {
		return err
	}
	if err := idx.run(ctx, idx.cfg.Root, "add", "."); err != nil {
		return err
	}
	return idx.run(ctx, idx.cfg.Root, "commit", "-m", "Initialize index")
}

func dirIsEmpty(root string) (bool, error) {
	ents, err := os.ReadDir(root)
	if err != nil {
		return false, err
	}
	return len(ents) == 0, nil
}

func (idx *Index) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

// Shard computes the sharded path component for a lowercase crate name, per
// spec §4.2's layout rule.
func Shard(nameLower string) string {
	switch len(nameLower) {
	case 0:
		return "_"
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3/" + nameLower[:1]
	default:
		return nameLower[:2] + "/" + nameLower[2:4]
	}
}

// FilePath returns the on-disk path of a crate's index file.
func (idx *Index) FilePath(nameLower string) string {
	return filepath.Join(idx.cfg.Root, Shard(nameLower), nameLower)
}

// AppendAndCommit appends record to the crate's index file, then runs the
// git add/commit/update-server-info/(push) sequence described in spec
// §4.2's Writes. The whole call runs under the Index's single exclusive
// lock.
func (idx *Index) AppendAndCommit(ctx context.Context, nameLower string, record registry.IndexRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	line, err := json.Marshal(record)
	if err != nil {
		return registry.New(registry.ErrInvalid, "AppendAndCommit", "marshal index record", err)
	}

	path := idx.FilePath(nameLower)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return registry.New(registry.ErrBackend, "AppendAndCommit", "mkdir", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return registry.New(registry.ErrBackend, "AppendAndCommit", "open", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return registry.New(registry.ErrBackend, "AppendAndCommit", "write", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return registry.New(registry.ErrBackend, "AppendAndCommit", "fsync", err)
	}
	if err := f.Close(); err != nil {
		return registry.New(registry.ErrBackend, "AppendAndCommit", "close", err)
	}

	return idx.commit(ctx, record.Name, record.Vers)
}

// RewriteWithout removes the line for version from the crate's index file
// and commits, used by physical version removal (spec §3's can_remove).
func (idx *Index) RewriteWithout(ctx context.Context, nameLower, version string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	path := idx.FilePath(nameLower)
	b, err := os.ReadFile(path)
	if err != nil {
		return registry.New(registry.ErrBackend, "RewriteWithout", "read", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l == "" {
			continue
		}
		var rec registry.IndexRecord
		if err := json.Unmarshal([]byte(l), &rec); err != nil {
			return registry.New(registry.ErrBackend, "RewriteWithout", "parse existing record", err)
		}
		if rec.Vers == version {
			continue
		}
		out = append(out, l)
	}
	content := strings.Join(out, "\n")
	if len(out) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return registry.New(registry.ErrBackend, "RewriteWithout", "write", err)
	}
	return idx.commit(ctx, nameLower, "remove "+version)
}

// SetYanked rewrites the yanked flag of one version's IndexRecord line in
// place and commits, per spec §8's "re-read sparse line has yanked:true".
func (idx *Index) SetYanked(ctx context.Context, nameLower, version string, yanked bool) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	path := idx.FilePath(nameLower)
	b, err := os.ReadFile(path)
	if err != nil {
		return registry.New(registry.ErrBackend, "SetYanked", "read", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	found := false
	for i, l := range lines {
		if l == "" {
			continue
		}
		var rec registry.IndexRecord
		if err := json.Unmarshal([]byte(l), &rec); err != nil {
			return registry.New(registry.ErrBackend, "SetYanked", "parse existing record", err)
		}
		if rec.Vers != version {
			continue
		}
		rec.Yanked = yanked
		out, err := json.Marshal(rec)
		if err != nil {
			return registry.New(registry.ErrInvalid, "SetYanked", "marshal record", err)
		}
		lines[i] = string(out)
		found = true
		break
	}
	if !found {
		return registry.New(registry.ErrNotFound, "SetYanked", "no such version in index", nil)
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return registry.New(registry.ErrBackend, "SetYanked", "write", err)
	}
	verb := "unyank"
	if yanked {
		verb = "yank"
	}
	return idx.commit(ctx, nameLower, verb+" "+version)
}

func (idx *Index) commit(ctx context.Context, name, version string) error {
	if err := idx.run(ctx, idx.cfg.Root, "add", "."); err != nil {
		return registry.New(registry.ErrBackend, "commit", "git add", err)
	}
	msg := fmt.Sprintf("Publish %s:%s", name, version)
	if err := idx.run(ctx, idx.cfg.Root, "commit", "-m", msg); err != nil {
		return registry.New(registry.ErrBackend, "commit", "git commit", err)
	}
	if err := idx.run(ctx, idx.cfg.Root, "update-server-info"); err != nil {
		return registry.New(registry.ErrBackend, "commit", "update-server-info", err)
	}
	if idx.cfg.PushChanges && idx.cfg.RemoteOrigin != "" {
		if err := idx.run(ctx, idx.cfg.Root, "push", "origin", "master"); err != nil {
			zlog.Error(ctx).Err(err).Msg("index push to origin failed")
		}
	}
	return nil
}

// ReadRecords returns every IndexRecord line currently stored for a crate.
// Used by the deps resolver and the enriched crate-info endpoint.
func (idx *Index) ReadRecords(nameLower string) ([]registry.IndexRecord, error) {
	b, err := os.ReadFile(idx.FilePath(nameLower))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, registry.New(registry.ErrNotFound, "ReadRecords", "no such crate", err)
		}
		return nil, registry.New(registry.ErrBackend, "ReadRecords", "read", err)
	}
	var out []registry.IndexRecord
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		if line == "" {
			continue
		}
		var rec registry.IndexRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, registry.New(registry.ErrBackend, "ReadRecords", "parse", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Checksum returns the hex SHA-256 of b, the IndexRecord.cksum value.
func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Enumerate walks every crate's index file, yielding each IndexRecord line.
// Used by catalog/postgres.ReconcileIndex (DESIGN.md Open Question #1).
func (idx *Index) Enumerate(yield func(name, version string) bool) error {
	return filepath.WalkDir(idx.cfg.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") || d.Name() == "config.json" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
			if line == "" {
				continue
			}
			var rec registry.IndexRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				continue
			}
			if !yield(rec.Name, rec.Vers) {
				return filepath.SkipAll
			}
		}
		return nil
	})
}
