package index

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ServeSparse implements spec §4.2's sparse read: given the path segment
// after the index mount point, it strips leading slashes, refuses .git
// traversal, and streams the file if present. Content-Type follows the
// ".json"/"/HEAD"|"/info/*"/other rule.
func (idx *Index) ServeSparse(w http.ResponseWriter, r *http.Request, reqPath string) {
	reqPath = strings.TrimPrefix(reqPath, "/")
	clean := filepath.Clean("/" + reqPath)
	if clean == "/" || strings.Contains(clean, ".git") {
		http.NotFound(w, r)
		return
	}
	full := filepath.Join(idx.cfg.Root, clean)
	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	switch {
	case strings.HasSuffix(clean, ".json"):
		w.Header().Set("Content-Type", "application/json")
	case strings.HasSuffix(clean, "/HEAD") || strings.Contains(clean, "/info/"):
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	io.Copy(w, f)
}

// ServeConfig always serves config.json regardless of the sparse-protocol
// toggle, per spec §4.2's "one exception: /config.json is always served".
func (idx *Index) ServeConfig(w http.ResponseWriter, r *http.Request) {
	idx.ServeSparse(w, r, "/config.json")
}

// ServeInfoRefs implements the git-upload-pack advertisement endpoint.
func (idx *Index) ServeInfoRefs(w http.ResponseWriter, r *http.Request) {
	cmd := exec.CommandContext(r.Context(), "git-upload-pack", "--http-backend-info-refs", ".")
	cmd.Dir = idx.cfg.Root
	out, err := cmd.Output()
	if err != nil {
		http.Error(w, "index unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-git-upload-pack-advertisement")
	var body bytes.Buffer
	body.WriteString("001e# service=git-upload-pack\n0000")
	body.Write(out)
	io.Copy(w, &body)
}

// ServeUploadPack implements the git-upload-pack RPC endpoint.
func (idx *Index) ServeUploadPack(w http.ResponseWriter, r *http.Request) {
	cmd := exec.CommandContext(r.Context(), "git-upload-pack", "--stateless-rpc", ".")
	cmd.Dir = idx.cfg.Root
	cmd.Stdin = r.Body

	out, err := cmd.StdoutPipe()
	if err != nil {
		http.Error(w, "index unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
	if err := cmd.Start(); err != nil {
		http.Error(w, "index unavailable", http.StatusInternalServerError)
		return
	}
	io.Copy(w, out)
	cmd.Wait()
}

// GitProtocolEnabled and SparseProtocolEnabled report the corresponding
// config toggles, consulted by httpapi before routing to these handlers.
func (idx *Index) GitProtocolEnabled() bool    { return idx.cfg.GitProtocol }
func (idx *Index) SparseProtocolEnabled() bool { return idx.cfg.SparseProtocol }

// AuthRequired reports config.json's auth-required flag, consulted by
// httpapi to decide whether index reads demand a credential.
func (idx *Index) AuthRequired() bool { return idx.cfg.AuthRequired }
