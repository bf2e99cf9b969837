package httpapi

import "net/http"

// indexAuthGate checks the index's auth-required toggle and, if set,
// demands a valid credential before serving a read, per spec §4.2/§6.
func (h *HTTP) indexAuthGate(w http.ResponseWriter, r *http.Request) bool {
	if !h.idx.AuthRequired() {
		return true
	}
	if _, err := h.app.Authenticate(r); err != nil {
		h.indexAuthFailure(w, err)
		return false
	}
	return true
}

// indexConfig always serves config.json, the one exception to the
// sparse-protocol toggle (spec §4.2).
func (h *HTTP) indexConfig(w http.ResponseWriter, r *http.Request) {
	if !h.indexAuthGate(w, r) {
		return
	}
	h.idx.ServeConfig(w, r)
}

// sparseIndex handles every other GET, serving the sparse index file for
// the requested shard path when the sparse protocol is enabled.
func (h *HTTP) sparseIndex(w http.ResponseWriter, r *http.Request) {
	if !h.idx.SparseProtocolEnabled() {
		http.NotFound(w, r)
		return
	}
	if !h.indexAuthGate(w, r) {
		return
	}
	h.idx.ServeSparse(w, r, r.URL.Path)
}

func (h *HTTP) gitInfoRefs(w http.ResponseWriter, r *http.Request) {
	if !h.idx.GitProtocolEnabled() {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("service") != "git-upload-pack" {
		http.NotFound(w, r)
		return
	}
	if !h.indexAuthGate(w, r) {
		return
	}
	h.idx.ServeInfoRefs(w, r)
}

func (h *HTTP) gitUploadPack(w http.ResponseWriter, r *http.Request) {
	if !h.idx.GitProtocolEnabled() {
		http.NotFound(w, r)
		return
	}
	if !h.indexAuthGate(w, r) {
		return
	}
	h.idx.ServeUploadPack(w, r)
}
