// Package auth implements the AuthPlane of spec §4.4: HTTP Basic bearer
// tokens and an authenticated-encrypted session cookie, both capped by the
// owning user's current capabilities.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/nacl/secretbox"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/catalog"
)

// CookieName is the session cookie spec §4.4 names.
const CookieName = "cratery-user"

// Authentication is the result of a successful credential check, per spec
// §4.4: a principal name/id and the capability bits it carries for this
// request.
type Authentication struct {
	Principal string
	UserID    int64 // 0 for service/global-token principals
	CanWrite  bool
	CanAdmin  bool
}

// Token is a parsed HTTP Basic credential.
type Token struct {
	ID     string
	Secret string
}

// SelfCredential is the configured self-authentication login, checked first
// in the validation order (spec §4.4 step 1).
type SelfCredential struct {
	Login  string
	Secret string
}

// Plane is the AuthPlane: it validates Tokens against the Catalog and the
// configured self-credential, and seals/unseals session cookies.
type Plane struct {
	catalog   catalog.Catalog
	self      SelfCredential
	cookieKey [32]byte
	domain    string
}

// NewPlane constructs a Plane. cookieKey must be exactly 32 bytes (the
// REGISTRY_COOKIE_SECRET environment surface named in spec §6).
func NewPlane(cat catalog.Catalog, self SelfCredential, cookieKey [32]byte, domain string) *Plane {
	return &Plane{catalog: cat, self: self, cookieKey: cookieKey, domain: domain}
}

// ParseBasicAuth extracts a Token from the request's Basic-auth header,
// matching spec §4.4's "the id can be either a user login, a global-token
// name, or a configured service login".
func ParseBasicAuth(r *http.Request) (Token, bool) {
	id, secret, ok := r.BasicAuth()
	if !ok {
		return Token{}, false
	}
	return Token{ID: id, Secret: secret}, true
}

// Authenticate runs the four-step validation order from spec §4.4.
func (p *Plane) Authenticate(ctx context.Context, tok Token) (*Authentication, error) {
	// Step 1: configured self-service credential.
	if p.self.Login != "" &&
		constantTimeEq(tok.ID, p.self.Login) &&
		constantTimeEq(tok.Secret, p.self.Secret) {
		return &Authentication{Principal: p.self.Login, CanWrite: false, CanAdmin: false}, nil
	}

	// Step 2: global token by name.
	if gt, err := p.catalog.FindGlobalToken(ctx, tok.ID); err == nil {
		if constantTimeEq(registry.HashTokenSecret(tok.Secret), gt.SecretSum) {
			p.catalog.TouchToken(ctx, gt.ID, true)
			return &Authentication{Principal: gt.Name, CanWrite: false, CanAdmin: false}, nil
		}
	} else if registry.KindOf(err) != registry.ErrNotFound {
		return nil, err
	}

	// Step 3: user token by owning login.
	candidates, err := p.catalog.FindUserTokenCandidates(ctx, tok.ID)
	if err != nil && registry.KindOf(err) != registry.ErrNotFound {
		return nil, err
	}
	hash := registry.HashTokenSecret(tok.Secret)
	for _, c := range candidates {
		if !constantTimeEq(hash, c.SecretSum) {
			continue
		}
		u, err := p.catalog.GetUserByID(ctx, c.UserID)
		if err != nil {
			return nil, err
		}
		canWrite, canAdmin := c.CappedBy(u)
		p.catalog.TouchToken(ctx, c.ID, false)
		return &Authentication{Principal: u.Login, UserID: u.ID, CanWrite: canWrite, CanAdmin: canAdmin}, nil
	}

	// Step 4.
	return nil, registry.New(registry.ErrUnauthorized, "Authenticate", "invalid credentials", nil)
}

func constantTimeEq(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SealCookie encrypts auth into the authenticated-encrypted form stored in
// the cratery-user cookie.
func (p *Plane) SealCookie(auth Authentication) (string, error) {
	plain, err := json.Marshal(auth)
	if err != nil {
		return "", err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &p.cookieKey)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// UnsealCookie reverses SealCookie, returning registry.ErrUnauthorized if
// value fails to decrypt.
func (p *Plane) UnsealCookie(value string) (*Authentication, error) {
	raw, err := base64.URLEncoding.DecodeString(value)
	if err != nil || len(raw) < 24 {
		return nil, registry.New(registry.ErrUnauthorized, "UnsealCookie", "malformed cookie", err)
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &p.cookieKey)
	if !ok {
		return nil, registry.New(registry.ErrUnauthorized, "UnsealCookie", "cookie decryption failed", nil)
	}
	var auth Authentication
	if err := json.Unmarshal(plain, &auth); err != nil {
		return nil, registry.New(registry.ErrUnauthorized, "UnsealCookie", "malformed cookie payload", err)
	}
	return &auth, nil
}

// SetCookie writes the session cookie for auth onto w, bound to the
// configured domain per spec §4.4's construction rules.
func (p *Plane) SetCookie(w http.ResponseWriter, auth Authentication) error {
	sealed, err := p.SealCookie(auth)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sealed,
		Domain:   p.domain,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   p.domain != "localhost",
	})
	return nil
}

// ClearCookie logs the session out.
func (p *Plane) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Domain:   p.domain,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   p.domain != "localhost",
	})
}

// FromRequest resolves the Authentication for an inbound request: the
// session cookie, if present and valid, otherwise a Basic-auth token. A
// cookie session always carries both write and admin, per spec §4.4 ("the
// cookie session is effectively an all-caps authentication").
func (p *Plane) FromRequest(r *http.Request) (*Authentication, error) {
	if c, err := r.Cookie(CookieName); err == nil {
		auth, err := p.UnsealCookie(c.Value)
		if err != nil {
			return nil, err
		}
		auth.CanWrite, auth.CanAdmin = true, true
		return auth, nil
	}
	tok, ok := ParseBasicAuth(r)
	if !ok {
		return nil, registry.New(registry.ErrUnauthorized, "FromRequest", "no credentials supplied", nil)
	}
	return p.Authenticate(r.Context(), tok)
}
