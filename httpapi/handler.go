package httpapi

import (
	"net/http"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/app"
	"github.com/cratery/registry/auth"
	"github.com/cratery/registry/docgen"
	"github.com/cratery/registry/index"
)

// HTTP is the composition root's single http.Handler, embedding
// *http.ServeMux exactly as the teacher's libvuln.HTTP does.
type HTTP struct {
	*http.ServeMux
	app    *app.Application
	idx    *index.Index
	docs   *docgen.Orchestrator
	domain string
}

// NewHandler registers every route spec §6 names on a fresh ServeMux.
func NewHandler(a *app.Application, idx *index.Index, docs *docgen.Orchestrator, domain string) *HTTP {
	h := &HTTP{app: a, idx: idx, docs: docs, domain: domain}
	m := http.NewServeMux()

	// Cargo-facing.
	m.HandleFunc("PUT /api/v1/crates/new", h.publish)
	m.HandleFunc("GET /api/v1/crates", h.search)
	m.HandleFunc("GET /api/v1/crates/{package}", h.getPackage)
	m.HandleFunc("GET /api/v1/crates/{package}/{version}/download", h.download)
	m.HandleFunc("DELETE /api/v1/crates/{package}/{version}/yank", h.yank)
	m.HandleFunc("PUT /api/v1/crates/{package}/{version}/unyank", h.unyank)
	m.HandleFunc("GET /api/v1/crates/{package}/owners", h.getOwners)
	m.HandleFunc("PUT /api/v1/crates/{package}/owners", h.addOwner)
	m.HandleFunc("DELETE /api/v1/crates/{package}/owners", h.removeOwner)

	// Control plane.
	m.HandleFunc("GET /api/v1/me", h.me)
	m.HandleFunc("POST /api/v1/oauth/code", h.oauthCode)
	m.HandleFunc("POST /api/v1/logout", h.logout)
	m.HandleFunc("GET /api/v1/tokens", h.listTokens)
	m.HandleFunc("PUT /api/v1/tokens", h.createToken)
	m.HandleFunc("DELETE /api/v1/tokens/{id}", h.revokeToken)
	m.HandleFunc("GET /api/v1/users", h.listUsers)
	m.HandleFunc("PATCH /api/v1/users/{email_b64}", h.updateUser)
	m.HandleFunc("DELETE /api/v1/users/{email_b64}", h.deleteUser)
	m.HandleFunc("POST /api/v1/users/{email_b64}/deactivate", h.deactivateUser)
	m.HandleFunc("POST /api/v1/users/{email_b64}/reactivate", h.reactivateUser)

	// Index serving.
	m.HandleFunc("GET /config.json", h.indexConfig)
	m.HandleFunc("GET /info/refs", h.gitInfoRefs)
	m.HandleFunc("POST /git-upload-pack", h.gitUploadPack)
	m.HandleFunc("GET /", h.sparseIndex)

	// Docgen worker duplex channel.
	if docs != nil {
		m.HandleFunc("GET /api/v1/docgen/worker", docs.ServeWorkerSocket)
	}

	h.ServeMux = m
	return h
}

// authenticate resolves the caller's Authentication or writes a 401/403.
func (h *HTTP) authenticate(w http.ResponseWriter, r *http.Request, cargoEnvelope bool) (*auth.Authentication, bool) {
	authn, err := h.app.Authenticate(r)
	if err != nil {
		WriteError(w, r, err, cargoEnvelope)
		return nil, false
	}
	return authn, true
}

// indexAuthFailure writes the WWW-Authenticate/Cache-Control headers spec
// §6 requires on index-endpoint auth failures.
func (h *HTTP) indexAuthFailure(w http.ResponseWriter, err error) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+h.domain+`"`)
	w.Header().Set("Cache-Control", "no-cache")
	status := registry.KindOf(err).HTTPStatus()
	http.Error(w, err.Error(), status)
}
