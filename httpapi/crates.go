package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	registry "github.com/cratery/registry"
)

// cratePublishResponse is the Cargo registry API's publish success body.
type cratePublishResponse struct {
	Warnings *registry.PublishWarnings `json:"warnings"`
}

func (h *HTTP) publish(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, true)
	if !ok {
		return
	}
	meta, tarball, err := parsePublishBody(r.Body)
	if err != nil {
		WriteError(w, r, err, true)
		return
	}
	warnings, err := h.app.Publish(r.Context(), authn, meta, tarball)
	if err != nil {
		WriteError(w, r, err, true)
		return
	}
	writeJSON(w, r, cratePublishResponse{Warnings: warnings})
}

type searchResponse struct {
	Crates []searchCrate `json:"crates"`
	Meta   searchMeta    `json:"meta"`
}

type searchCrate struct {
	Name        string `json:"name"`
	MaxVersion  string `json:"max_version"`
	Description string `json:"description"`
}

type searchMeta struct {
	Total int `json:"total"`
}

func (h *HTTP) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	hits, err := h.app.Search(r.Context(), q.Get("q"), perPage, false)
	if err != nil {
		WriteError(w, r, err, true)
		return
	}
	out := make([]searchCrate, 0, len(hits))
	for _, hit := range hits {
		out = append(out, searchCrate{Name: hit.Package, MaxVersion: hit.MaxVersion, Description: hit.Description})
	}
	writeJSON(w, r, searchResponse{Crates: out, Meta: searchMeta{Total: len(out)}})
}

type cratePackageResponse struct {
	Package  *registry.Package         `json:"package"`
	Versions []*registry.PackageVersion `json:"versions"`
}

func (h *HTTP) getPackage(w http.ResponseWriter, r *http.Request) {
	pkg := r.PathValue("package")
	p, err := h.app.GetPackage(r.Context(), pkg)
	if err != nil {
		WriteError(w, r, err, true)
		return
	}
	versions, err := h.app.ListVersions(r.Context(), pkg)
	if err != nil {
		WriteError(w, r, err, true)
		return
	}
	writeJSON(w, r, cratePackageResponse{Package: p, Versions: versions})
}

func (h *HTTP) download(w http.ResponseWriter, r *http.Request) {
	pkg, version := r.PathValue("package"), r.PathValue("version")
	rc, err := h.app.Download(r.Context(), pkg, version)
	if err != nil {
		WriteError(w, r, downloadAuthError(err), true)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/gzip")
	if _, err := io.Copy(w, rc); err != nil {
		WriteError(w, r, registry.New(registry.ErrBackend, "download", "stream failed", err), true)
	}
}

func (h *HTTP) yank(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, true)
	if !ok {
		return
	}
	if err := h.app.Yank(r.Context(), authn, r.PathValue("package"), r.PathValue("version")); err != nil {
		WriteError(w, r, err, true)
		return
	}
	writeJSON(w, r, map[string]bool{"ok": true})
}

func (h *HTTP) unyank(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, true)
	if !ok {
		return
	}
	if err := h.app.Unyank(r.Context(), authn, r.PathValue("package"), r.PathValue("version")); err != nil {
		WriteError(w, r, err, true)
		return
	}
	writeJSON(w, r, map[string]bool{"ok": true})
}

func (h *HTTP) getOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := h.app.GetOwners(r.Context(), r.PathValue("package"))
	if err != nil {
		WriteError(w, r, err, true)
		return
	}
	type ownerOut struct {
		Login string `json:"login"`
		Name  string `json:"name"`
	}
	out := make([]ownerOut, 0, len(owners))
	for _, u := range owners {
		out = append(out, ownerOut{Login: u.Login, Name: u.DisplayName})
	}
	writeJSON(w, r, map[string]any{"users": out})
}

type ownersRequest struct {
	Users []string `json:"users"`
}

func (h *HTTP) addOwner(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, true)
	if !ok {
		return
	}
	var body ownersRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, r, registry.New(registry.ErrInvalid, "addOwner", "malformed request body", err), true)
		return
	}
	pkg := r.PathValue("package")
	for _, login := range body.Users {
		u, err := h.app.FindUserByLogin(r.Context(), login)
		if err != nil {
			WriteError(w, r, err, true)
			return
		}
		if err := h.app.AddOwner(r.Context(), authn, pkg, u.ID); err != nil {
			WriteError(w, r, err, true)
			return
		}
	}
	writeJSON(w, r, map[string]bool{"ok": true})
}

func (h *HTTP) removeOwner(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, true)
	if !ok {
		return
	}
	var body ownersRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, r, registry.New(registry.ErrInvalid, "removeOwner", "malformed request body", err), true)
		return
	}
	pkg := r.PathValue("package")
	for _, login := range body.Users {
		u, err := h.app.FindUserByLogin(r.Context(), login)
		if err != nil {
			WriteError(w, r, err, true)
			return
		}
		if err := h.app.RemoveOwner(r.Context(), authn, pkg, u.ID); err != nil {
			WriteError(w, r, err, true)
			return
		}
	}
	writeJSON(w, r, map[string]bool{"ok": true})
}
