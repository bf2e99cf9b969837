package app

import (
	"context"
	"net/http"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/auth"
)

// Authenticate resolves the Authentication for an inbound request, per
// spec §4.4's cookie-then-Basic-auth order.
func (a *Application) Authenticate(r *http.Request) (*auth.Authentication, error) {
	return a.authn.FromRequest(r)
}

// OAuthLoginURL returns the URL to redirect the browser to for the
// configured provider's authorization-code flow.
func (a *Application) OAuthLoginURL(state string) string {
	return a.oauthCfg.Config.AuthCodeURL(state)
}

// CompleteOAuthLogin exchanges code for the provider's userinfo, finds or
// creates the local User by email, seals a session cookie, and writes it
// onto w. The very first user ever created is granted admin automatically
// (spec §3); every subsequent user is created with no roles.
func (a *Application) CompleteOAuthLogin(ctx context.Context, w http.ResponseWriter, code string) (*registry.User, error) {
	email, displayName, err := auth.ExchangeCode(ctx, a.oauthCfg, code)
	if err != nil {
		return nil, err
	}

	u, err := a.cat.GetUserByEmail(ctx, email)
	if err != nil {
		if registry.KindOf(err) != registry.ErrNotFound {
			return nil, err
		}
		login := loginFromEmail(email)
		u, err = a.cat.CreateUser(ctx, &registry.User{
			Email:       email,
			Login:       login,
			DisplayName: displayName,
		})
		if err != nil {
			return nil, err
		}
	}
	if !u.Active {
		return nil, registry.New(registry.ErrForbidden, "CompleteOAuthLogin", "account is deactivated", nil)
	}

	session := auth.Authentication{Principal: u.Login, UserID: u.ID, CanWrite: true, CanAdmin: true}
	if err := a.authn.SetCookie(w, session); err != nil {
		return nil, err
	}
	return u, nil
}

// Logout clears the session cookie.
func (a *Application) Logout(w http.ResponseWriter) {
	a.authn.ClearCookie(w)
}

// loginFromEmail derives a default login handle from the local part of an
// email address, the same heuristic the first-login seeding flow uses when
// the identity provider's userinfo carries no separate username claim.
func loginFromEmail(email string) string {
	for i, c := range email {
		if c == '@' {
			return email[:i]
		}
	}
	return email
}
