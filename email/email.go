// Package email implements the peripheral EmailSender named in spec §4.7:
// a best-effort notification sent on a crate's first transition into a bad
// dependency-health state. Explicitly out of core scope (spec §4.7), so
// this stays a thin net/smtp wrapper rather than reaching for a templating
// or delivery-tracking library.
package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/quay/zlog"
)

// Config names the outbound SMTP relay, loaded from the environment by
// cmd/registry-server alongside the rest of spec §6's surface.
type Config struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// Sender sends plain-text notifications. A Sender with no configured Addr
// (including the zero value) silently no-ops, so deployments that never set the
// SMTP environment variables are unaffected.
type Sender struct {
	cfg Config
}

// New constructs a Sender from cfg.
func New(cfg Config) *Sender { return &Sender{cfg: cfg} }

// NotifyDependencyHealth sends the first-transition-to-bad-state
// notification spec §4.7 describes, to recipients (a crate's owners).
// Failures are logged, not returned: a notification is best-effort and
// must never fail the sweep that triggered it.
func (s *Sender) NotifyDependencyHealth(ctx context.Context, recipients []string, pkg, version string, hasOutdated, hasCVEs bool) {
	if s.cfg.Addr == "" || len(recipients) == 0 {
		return
	}
	subject := fmt.Sprintf("dependency health alert: %s %s", pkg, version)
	body := fmt.Sprintf("%s %s now has outdated=%t cves=%t dependencies.\n", pkg, version, hasOutdated, hasCVEs)
	msg := fmt.Sprintf("From: %s\r\nSubject: %s\r\n\r\n%s", s.cfg.From, subject, body)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		host, _, _ := splitHostPort(s.cfg.Addr)
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host)
	}
	if err := smtp.SendMail(s.cfg.Addr, auth, s.cfg.From, recipients, []byte(msg)); err != nil {
		zlog.Warn(ctx).Err(err).Str("package", pkg).Str("version", version).Msg("email: notification send failed")
	}
}

func splitHostPort(addr string) (host, port string, err error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return addr, "", nil
}
