// Package deps implements the DepsResolver of spec §4.7: given a crate
// version, it determines which declared dependencies are active for a set
// of targets/features, resolves each active dependency's latest version
// from the local index or a cached external registry, and cross-references
// AdvisoryStore for known vulnerabilities.
package deps

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/advisory"
	"github.com/cratery/registry/index"
	"github.com/cratery/registry/semverutil"
)

// ExternalRegistry names a configured external crate source, per spec §6's
// REGISTRY_EXTERNAL_<N>_* environment surface.
type ExternalRegistry struct {
	Name     string
	IndexURL string // sparse index base URL
	Login    string
	Token    string
}

// Resolver implements spec §4.7's DepsResolver against the local Index, a
// set of configured external registries (sparse protocol only — git-mode
// external registries are not supported), and an
// AdvisoryStore for CVE cross-referencing.
type Resolver struct {
	local      *index.Index
	external   map[string]ExternalRegistry
	advisories *advisory.Store
	httpClient *http.Client

	cacheMu sync.Mutex
	cache   map[string]cachedFetch
	stale   time.Duration
}

type cachedFetch struct {
	records []registry.IndexRecord
	fetched time.Time
}

// New constructs a Resolver. external is keyed by registry name, matching
// an UploadDependency.Registry value.
func New(local *index.Index, external map[string]ExternalRegistry, advisories *advisory.Store, stale time.Duration) *Resolver {
	return &Resolver{
		local:      local,
		external:   external,
		advisories: advisories,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      make(map[string]cachedFetch),
		stale:      stale,
	}
}

// Resolve implements spec §4.7's DepsResolver steps 1-5 for one crate
// version against a set of active targets/features.
func (r *Resolver) Resolve(ctx context.Context, pkg, version string, activeTargets, activeFeatures []string) (*registry.AnalysisResult, error) {
	records, err := r.local.ReadRecords(registry.NormalizeName(pkg))
	if err != nil {
		return nil, err
	}

	var self *registry.IndexRecord
	for i := range records {
		if records[i].Vers == version {
			self = &records[i]
			break
		}
	}
	if self == nil {
		return nil, registry.New(registry.ErrNotFound, "Resolve", "no such version in index", nil)
	}

	result := &registry.AnalysisResult{Package: pkg, Version: version}
	targetSet := toSet(activeTargets)
	featureSet := toSet(activeFeatures)

	for _, dep := range self.Deps {
		if !isActive(dep, targetSet, featureSet) {
			continue
		}
		report, err := r.resolveDependency(ctx, dep)
		if err != nil {
			report = registry.DependencyReport{
				Name:        dep.Name,
				Requirement: dep.Req,
				IsOutdated:  true,
			}
		}
		if report.IsOutdated {
			result.HasOutdated = true
		}
		if len(report.CVEIDs) > 0 {
			result.HasCVEs = true
		}
		result.Dependencies = append(result.Dependencies, report)
	}
	return result, nil
}

func (r *Resolver) resolveDependency(ctx context.Context, dep registry.IndexDependency) (registry.DependencyReport, error) {
	source := "local"
	if dep.Registry != nil && *dep.Registry != "" {
		source = *dep.Registry
	}
	depName := dep.Name
	if dep.Package != nil && *dep.Package != "" {
		depName = *dep.Package
	}

	records, err := r.fetch(ctx, source, depName)
	if err != nil {
		return registry.DependencyReport{}, err
	}
	versions := make([]string, 0, len(records))
	for _, rec := range records {
		if !rec.Yanked {
			versions = append(versions, rec.Vers)
		}
	}
	head, ok := semverutil.Max(versions, func(v string) string { return v })
	if !ok {
		return registry.DependencyReport{
			Name: dep.Name, Requirement: dep.Req, ResolvedSource: source, IsOutdated: true,
		}, nil
	}

	outdated := !semverutil.Satisfies(dep.Req, head)
	var cves []string
	if r.advisories != nil {
		for _, adv := range r.advisories.Affecting(depName, head) {
			cves = append(cves, adv.ID)
		}
	}
	return registry.DependencyReport{
		Name:           dep.Name,
		Requirement:    dep.Req,
		ResolvedSource: source,
		LatestVersion:  head,
		IsOutdated:     outdated,
		CVEIDs:         cves,
	}, nil
}

// fetch returns the cached or freshly-fetched IndexRecords for depName
// from the named source ("local" or an external registry name).
func (r *Resolver) fetch(ctx context.Context, source, depName string) ([]registry.IndexRecord, error) {
	key := source + "/" + depName
	r.cacheMu.Lock()
	if c, ok := r.cache[key]; ok && time.Since(c.fetched) < r.stale {
		r.cacheMu.Unlock()
		return c.records, nil
	}
	r.cacheMu.Unlock()

	var records []registry.IndexRecord
	var err error
	if source == "local" {
		records, err = r.local.ReadRecords(registry.NormalizeName(depName))
	} else {
		ext, ok := r.external[source]
		if !ok {
			return nil, registry.New(registry.ErrInvalid, "fetch", "unknown external registry "+source, nil)
		}
		records, err = r.fetchSparse(ctx, ext, depName)
	}
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[key] = cachedFetch{records: records, fetched: time.Now()}
	r.cacheMu.Unlock()
	return records, nil
}

func (r *Resolver) fetchSparse(ctx context.Context, ext ExternalRegistry, depName string) ([]registry.IndexRecord, error) {
	lower := registry.NormalizeName(depName)
	url := strings.TrimRight(ext.IndexURL, "/") + "/" + index.Shard(lower) + "/" + lower
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if ext.Login != "" {
		req.SetBasicAuth(ext.Login, ext.Token)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, registry.New(registry.ErrBackend, "fetchSparse", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, registry.New(registry.ErrNotFound, "fetchSparse", "crate not found upstream", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, registry.New(registry.ErrBackend, "fetchSparse", "unexpected status", nil)
	}
	return decodeNDJSON(resp.Body)
}

// decodeNDJSON parses a sparse-index response body: one IndexRecord per
// line, matching the wire format spec §4.2 defines for the index itself.
func decodeNDJSON(r io.Reader) ([]registry.IndexRecord, error) {
	var out []registry.IndexRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec registry.IndexRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, registry.New(registry.ErrBackend, "decodeNDJSON", "parse upstream index line", err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, registry.New(registry.ErrBackend, "decodeNDJSON", "read upstream index body", err)
	}
	return out, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// isActive implements spec §4.7 step 2: target filter matches literally
// (cfg(...) expressions are always treated as inactive), and optional
// dependencies require an enabling
// feature of the form "dep:<name>" or "<name>/...".
func isActive(dep registry.IndexDependency, targets, features map[string]bool) bool {
	if dep.Target != nil && *dep.Target != "" {
		if strings.HasPrefix(*dep.Target, "cfg(") {
			return false
		}
		if !targets[*dep.Target] {
			return false
		}
	}
	if !dep.Optional {
		return true
	}
	if features["dep:"+dep.Name] {
		return true
	}
	for f := range features {
		if strings.HasPrefix(f, dep.Name+"/") {
			return true
		}
	}
	return false
}
