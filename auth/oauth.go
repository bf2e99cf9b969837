package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	registry "github.com/cratery/registry"
)

// OAuthConfig names the external identity provider endpoints, per spec
// §6's REGISTRY_OAUTH_* environment surface.
type OAuthConfig struct {
	oauth2.Config
	UserinfoURI       string
	UserinfoPathEmail string
	UserinfoPathName  string
}

// ExchangeCode trades an OAuth2 authorization code for the provider's
// userinfo, grounded on the standard golang.org/x/oauth2 authorization-code
// flow. It does not yet create or look up the local User; the caller (the
// Application façade) does that against the Catalog with the returned
// email/display name.
func ExchangeCode(ctx context.Context, cfg OAuthConfig, code string) (email, displayName string, err error) {
	tok, err := cfg.Config.Exchange(ctx, code)
	if err != nil {
		return "", "", registry.New(registry.ErrUnauthorized, "ExchangeCode", "token exchange failed", err)
	}

	client := cfg.Config.Client(ctx, tok)
	resp, err := client.Get(cfg.UserinfoURI)
	if err != nil {
		return "", "", registry.New(registry.ErrBackend, "ExchangeCode", "userinfo request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", registry.New(registry.ErrUnauthorized, "ExchangeCode", fmt.Sprintf("userinfo status %d", resp.StatusCode), nil)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", "", registry.New(registry.ErrBackend, "ExchangeCode", "decode userinfo", err)
	}
	email, _ = lookupPath(doc, cfg.UserinfoPathEmail).(string)
	displayName, _ = lookupPath(doc, cfg.UserinfoPathName).(string)
	if email == "" {
		return "", "", registry.New(registry.ErrUnauthorized, "ExchangeCode", "userinfo response missing email", nil)
	}
	return email, displayName, nil
}

// lookupPath reads a dotted JSON path ("profile.email") out of a decoded
// userinfo document.
func lookupPath(doc map[string]any, path string) any {
	cur := any(doc)
	for _, key := range splitDotted(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func splitDotted(path string) []string {
	if path == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	return out
}
