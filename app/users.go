package app

import (
	"context"

	registry "github.com/cratery/registry"
	"github.com/cratery/registry/auth"
)

// FindUserByLogin resolves a login handle to a User, used by the owners
// endpoints which address users by login rather than numeric id.
func (a *Application) FindUserByLogin(ctx context.Context, login string) (*registry.User, error) {
	return a.cat.GetUserByLogin(ctx, login)
}

// FindUserByEmail resolves an email address to a User, used by the
// base64-email-addressed user-management endpoints (spec §6).
func (a *Application) FindUserByEmail(ctx context.Context, email string) (*registry.User, error) {
	return a.cat.GetUserByEmail(ctx, email)
}

// Me returns the caller's own user record.
func (a *Application) Me(ctx context.Context, authn *auth.Authentication) (*registry.User, error) {
	return a.cat.GetUserByID(ctx, authn.UserID)
}

// ListUsers lists every account; admin only.
func (a *Application) ListUsers(ctx context.Context, authn *auth.Authentication) ([]*registry.User, error) {
	if !authn.CanAdmin {
		return nil, registry.New(registry.ErrForbidden, "ListUsers", "admin required", nil)
	}
	return a.cat.ListUsers(ctx)
}

// UpdateUser changes a user's display name and roles. The catalog layer
// enforces that an admin may not remove their own admin role.
func (a *Application) UpdateUser(ctx context.Context, authn *auth.Authentication, u *registry.User) error {
	if authn.UserID != u.ID && !authn.CanAdmin {
		return registry.New(registry.ErrForbidden, "UpdateUser", "admin required", nil)
	}
	return a.cat.UpdateUser(ctx, authn.UserID, u)
}

// DeactivateUser disables target's account; admin only, and the catalog
// layer rejects self-deactivation.
func (a *Application) DeactivateUser(ctx context.Context, authn *auth.Authentication, target int64) error {
	return a.cat.DeactivateUser(ctx, authn.UserID, target)
}

// ReactivateUser re-enables a deactivated account; admin only.
func (a *Application) ReactivateUser(ctx context.Context, authn *auth.Authentication, target int64) error {
	if !authn.CanAdmin {
		return registry.New(registry.ErrForbidden, "ReactivateUser", "admin required", nil)
	}
	return a.cat.ReactivateUser(ctx, target)
}

// DeleteUser removes target's account; admin only, and the catalog layer
// rejects self-deletion.
func (a *Application) DeleteUser(ctx context.Context, authn *auth.Authentication, target int64) error {
	return a.cat.DeleteUser(ctx, authn.UserID, target)
}

// ListTokens lists the caller's own bearer tokens.
func (a *Application) ListTokens(ctx context.Context, authn *auth.Authentication) ([]*registry.UserToken, error) {
	return a.cat.ListTokens(ctx, authn.UserID)
}

// CreateToken mints a new token for the caller, capped by the caller's own
// current capabilities (spec §3: a token can never grant more than its
// owner already has).
func (a *Application) CreateToken(ctx context.Context, authn *auth.Authentication, name string, canWrite, canAdmin bool) (*registry.UserToken, string, error) {
	if canWrite && !authn.CanWrite {
		return nil, "", registry.New(registry.ErrForbidden, "CreateToken", "cannot grant write beyond your own capability", nil)
	}
	if canAdmin && !authn.CanAdmin {
		return nil, "", registry.New(registry.ErrForbidden, "CreateToken", "cannot grant admin beyond your own capability", nil)
	}
	plaintext, checksum, err := registry.GenerateTokenSecret()
	if err != nil {
		return nil, "", err
	}
	t := &registry.UserToken{
		UserID:    authn.UserID,
		Name:      name,
		SecretSum: checksum,
		CanWrite:  canWrite,
		CanAdmin:  canAdmin,
	}
	created, err := a.cat.CreateToken(ctx, t)
	if err != nil {
		return nil, "", err
	}
	return created, plaintext, nil
}

// RevokeToken deletes one of the caller's own tokens.
func (a *Application) RevokeToken(ctx context.Context, authn *auth.Authentication, tokenID int64) error {
	return a.cat.RevokeToken(ctx, authn.UserID, tokenID)
}
