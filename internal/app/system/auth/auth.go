// internal/app/system/auth/auth.go

// Package auth carries the caller identity supplied by the identity
// collaborator. This application performs no authentication of its own:
// the session holds a trusted {uid, displayName, email} and handlers
// read it from the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/huddle/internal/domain/models"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	isAuthKey = "is_authenticated"
	uidKey    = "uid"
	nameKey   = "display_name"
	emailKey  = "email"
)

// SessionManager owns the cookie store for identity sessions.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewSessionManager builds a SessionManager.
//
// In production (secure=true) cookies are Secure + SameSite=None; in
// local dev over http, secure=false with SameSite=Lax so cookies are
// accepted.
func NewSessionManager(sessionKey, name, domain string, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// SignIn stores the identity in the session cookie.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, id models.Identity) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[isAuthKey] = true
	sess.Values[uidKey] = id.UID
	sess.Values[nameKey] = id.DisplayName
	sess.Values[emailKey] = id.Email
	return sess.Save(r, w)
}

// SignOut clears the session.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the identity from context and a "found?" flag.
func CurrentUser(r *http.Request) (models.Identity, bool) {
	u, ok := r.Context().Value(currentUserKey).(models.Identity)
	return u, ok
}

// LoadSessionUser injects the identity into context if signed in.
// A cookie that fails to decode (rotated key, tampering) is treated as
// signed out rather than an error.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			var scErr securecookie.Error
			if errors.As(err, &scErr) && scErr.IsDecode() {
				sm.log.Debug("session cookie failed to decode; treating as signed out", zap.Error(err))
			} else {
				sm.log.Warn("session load failed", zap.Error(err))
			}
		}
		if err == nil {
			if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
				r = withUser(r, models.Identity{
					UID:         getString(sess, uidKey),
					DisplayName: getString(sess, nameKey),
					Email:       getString(sess, emailKey),
				})
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn rejects requests without an identity in context with
// a plain 401. This surface is a JSON API; there is no login page to
// redirect to.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

// WithTestUser injects an identity directly into the request context,
// bypassing the session middleware. For handler tests.
func WithTestUser(r *http.Request, id models.Identity) *http.Request {
	return withUser(r, id)
}

func withUser(r *http.Request, u models.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
