package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/farmgate-checkout/internal/backend"
	pkgerrors "github.com/angelmondragon/farmgate-checkout/pkg/errors"
)

// SessionGuard answers whether an identity is still authenticated.
type SessionGuard interface {
	Check(ctx context.Context, id Identity) error
}

type sessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type remoteSessionChecker interface {
	CheckSession(ctx context.Context) backend.Result[backend.Session]
}

// TokenGuard checks token expiry, the local revocation list and, when configured, the backend session.
type TokenGuard struct {
	sessions sessionChecker
	remote   remoteSessionChecker
	now      func() time.Time
}

// NewTokenGuard wires a guard. remote may be nil.
func NewTokenGuard(sessions sessionChecker, remote remoteSessionChecker) (*TokenGuard, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session checker required")
	}
	return &TokenGuard{sessions: sessions, remote: remote, now: time.Now}, nil
}

func sessionExpired(reason string) error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired").WithDetails(map[string]string{"reason": reason})
}

// Check returns nil, an UNAUTHORIZED error, or a DEPENDENCY error when the answer is unknown.
func (g *TokenGuard) Check(ctx context.Context, id Identity) error {
	if id.IsGuest() {
		return sessionExpired("not_authenticated")
	}
	if !id.ExpiresAt.IsZero() && !g.now().Before(id.ExpiresAt) {
		return sessionExpired("token_expired")
	}
	if id.SessionID != "" {
		ok, err := g.sessions.HasSession(ctx, id.SessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "session lookup failed")
		}
		if !ok {
			return sessionExpired("session_revoked")
		}
	}
	if g.remote == nil {
		return nil
	}
	sess, err := g.remote.CheckSession(backend.WithAccessToken(ctx, id.AccessToken)).Unpack()
	if err != nil {
		if backend.KindOf(err) == backend.KindAuth {
			return sessionExpired("backend_rejected")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backend session check failed")
	}
	if !sess.Active || (sess.UserID != "" && sess.UserID != id.UserID) {
		return sessionExpired("backend_inactive")
	}
	return nil
}

// IsSessionExpired reports whether err means the caller must log in again.
func IsSessionExpired(err error) bool {
	if err == nil {
		return false
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden:
		return true
	}
	return backend.KindOf(err) == backend.KindAuth
}
