package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	registry "github.com/cratery/registry"
)

func (h *HTTP) me(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, false)
	if !ok {
		return
	}
	u, err := h.app.Me(r.Context(), authn)
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	writeJSON(w, r, u)
}

type oauthCodeRequest struct {
	Code string `json:"code"`
}

func (h *HTTP) oauthCode(w http.ResponseWriter, r *http.Request) {
	var body oauthCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, r, registry.New(registry.ErrInvalid, "oauthCode", "malformed request body", err), false)
		return
	}
	u, err := h.app.CompleteOAuthLogin(r.Context(), w, body.Code)
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	writeJSON(w, r, u)
}

func (h *HTTP) logout(w http.ResponseWriter, r *http.Request) {
	h.app.Logout(w)
	writeJSON(w, r, map[string]bool{"ok": true})
}

type createTokenRequest struct {
	Name     string `json:"name"`
	CanWrite bool   `json:"can_write"`
	CanAdmin bool   `json:"can_admin"`
}

type createTokenResponse struct {
	Token     *registry.UserToken `json:"token"`
	Plaintext string              `json:"plaintext"`
}

func (h *HTTP) listTokens(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, false)
	if !ok {
		return
	}
	tokens, err := h.app.ListTokens(r.Context(), authn)
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	writeJSON(w, r, tokens)
}

func (h *HTTP) createToken(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, false)
	if !ok {
		return
	}
	var body createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, r, registry.New(registry.ErrInvalid, "createToken", "malformed request body", err), false)
		return
	}
	token, plaintext, err := h.app.CreateToken(r.Context(), authn, body.Name, body.CanWrite, body.CanAdmin)
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	writeJSON(w, r, createTokenResponse{Token: token, Plaintext: plaintext})
}

func (h *HTTP) revokeToken(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, false)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		WriteError(w, r, registry.New(registry.ErrInvalid, "revokeToken", "malformed token id", err), false)
		return
	}
	if err := h.app.RevokeToken(r.Context(), authn, id); err != nil {
		WriteError(w, r, err, false)
		return
	}
	writeJSON(w, r, map[string]bool{"ok": true})
}

func (h *HTTP) listUsers(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, false)
	if !ok {
		return
	}
	users, err := h.app.ListUsers(r.Context(), authn)
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	writeJSON(w, r, users)
}

// decodeEmailB64 decodes the URL-safe base64 email path segment spec §6
// names for every /api/v1/users/:email_b64 route.
func decodeEmailB64(seg string) (string, error) {
	b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(seg)
	if err != nil {
		return "", registry.New(registry.ErrInvalid, "decodeEmailB64", "malformed email path segment", err)
	}
	return string(b), nil
}

type updateUserRequest struct {
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

func (h *HTTP) updateUser(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, false)
	if !ok {
		return
	}
	email, err := decodeEmailB64(r.PathValue("email_b64"))
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	target, err := h.app.FindUserByEmail(r.Context(), email)
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	var body updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, r, registry.New(registry.ErrInvalid, "updateUser", "malformed request body", err), false)
		return
	}
	target.DisplayName, target.Roles = body.DisplayName, body.Roles
	if err := h.app.UpdateUser(r.Context(), authn, target); err != nil {
		WriteError(w, r, err, false)
		return
	}
	writeJSON(w, r, map[string]bool{"ok": true})
}

func (h *HTTP) deleteUser(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, false)
	if !ok {
		return
	}
	email, err := decodeEmailB64(r.PathValue("email_b64"))
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	target, err := h.app.FindUserByEmail(r.Context(), email)
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	if err := h.app.DeleteUser(r.Context(), authn, target.ID); err != nil {
		WriteError(w, r, err, false)
		return
	}
	writeJSON(w, r, map[string]bool{"ok": true})
}

func (h *HTTP) deactivateUser(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, false)
	if !ok {
		return
	}
	email, err := decodeEmailB64(r.PathValue("email_b64"))
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	target, err := h.app.FindUserByEmail(r.Context(), email)
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	if err := h.app.DeactivateUser(r.Context(), authn, target.ID); err != nil {
		WriteError(w, r, err, false)
		return
	}
	writeJSON(w, r, map[string]bool{"ok": true})
}

func (h *HTTP) reactivateUser(w http.ResponseWriter, r *http.Request) {
	authn, ok := h.authenticate(w, r, false)
	if !ok {
		return
	}
	email, err := decodeEmailB64(r.PathValue("email_b64"))
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	target, err := h.app.FindUserByEmail(r.Context(), email)
	if err != nil {
		WriteError(w, r, err, false)
		return
	}
	if err := h.app.ReactivateUser(r.Context(), authn, target.ID); err != nil {
		WriteError(w, r, err, false)
		return
	}
	writeJSON(w, r, map[string]bool{"ok": true})
}
