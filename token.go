package registry

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// UserToken is a bearer credential owned by a User. The secret is returned
// once, at creation time, and only its SHA-256 hash is ever persisted.
// See spec §3, §4.4.
type UserToken struct {
	ID        int64
	UserID    int64
	Name      string
	SecretSum string // hex-encoded SHA-256 of the secret
	LastUsed  *time.Time
	CanWrite  bool
	CanAdmin  bool
}

// GlobalToken is a registry-level service token, not tied to a user. Its
// principal at authentication time is its own name. Always read-only.
type GlobalToken struct {
	ID        int64
	Name      string
	SecretSum string
	LastUsed  *time.Time
}

// tokenSecretBytes is the amount of randomness backing a generated secret.
const tokenSecretBytes = 32

// GenerateTokenSecret returns a new random plaintext secret, hex-encoded,
// and its SHA-256 checksum. The plaintext must be returned to the caller
// exactly once and never stored.
func GenerateTokenSecret() (plaintext, checksum string, err error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token secret: %w", err)
	}
	plaintext = hex.EncodeToString(buf)
	checksum = HashTokenSecret(plaintext)
	return plaintext, checksum, nil
}

// HashTokenSecret returns the hex-encoded SHA-256 of a plaintext secret, the
// form compared against UserToken.SecretSum / GlobalToken.SecretSum.
func HashTokenSecret(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// CappedBy returns the capability bits of t, capped by the capabilities of
// its owning user at use time — elevation beyond what the user can do is
// never possible, per spec §3.
func (t *UserToken) CappedBy(u *User) (canWrite, canAdmin bool) {
	canWrite = t.CanWrite && u.Active
	canAdmin = t.CanAdmin && u.Active && u.IsAdmin()
	return canWrite, canAdmin
}
