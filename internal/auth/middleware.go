package auth

import (
	"context"
	"net/http"
	"strings"

	"smart-todo/internal/analytics"
	"smart-todo/internal/httpjson"
)

type ctxKey string

const (
	sessionKey    ctxKey = "session"
	sessionIDKey  ctxKey = "session_id"
	SessionCookie        = "smart_todo_session"

	// Bearer callers pass the calendar token pair alongside the access token.
	ProviderTokenHeader        = "X-Provider-Token"
	ProviderRefreshTokenHeader = "X-Provider-Refresh-Token"
)

// Middleware resolves the inbound session: the session cookie first, then
// an Authorization bearer token.
type Middleware struct {
	verifier *Verifier
	idp      IdentityProvider
	store    Store
}

func NewMiddleware(verifier *Verifier, idp IdentityProvider, store Store) Middleware {
	return Middleware{verifier: verifier, idp: idp, store: store}
}

func (m Middleware) resolve(r *http.Request) (*Session, string, error) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		p := NewProvider(m.idp, m.store, c.Value)
		if err := p.Init(r.Context()); err != nil {
			return nil, "", err
		}
		if s := p.Current(); s != nil {
			return s, c.Value, nil
		}
	}

	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return nil, "", ErrNoSession
	}

	s, err := m.verifier.Verify(strings.TrimPrefix(h, "Bearer "))
	if err != nil {
		return nil, "", err
	}
	s.ProviderToken = r.Header.Get(ProviderTokenHeader)
	s.ProviderRefreshToken = r.Header.Get(ProviderRefreshTokenHeader)
	return s, "", nil
}

// Wrap rejects requests without a session with 401.
func (m Middleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, key, err := m.resolve(r)
		if err != nil {
			httpjson.Unauthorized(w)
			return
		}
		next(w, r.WithContext(withSession(r.Context(), s, key)))
	}
}

// Attach adds the session when there is one and lets the request through
// either way.
func (m Middleware) Attach(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s, key, err := m.resolve(r); err == nil {
			r = r.WithContext(withSession(r.Context(), s, key))
		}
		next(w, r)
	}
}

func withSession(ctx context.Context, s *Session, key string) context.Context {
	ctx = context.WithValue(ctx, sessionKey, s)
	if key != "" {
		ctx = context.WithValue(ctx, sessionIDKey, key)
	}
	return analytics.WithUserID(ctx, s.User.ID)
}

// WithSession is for handlers tested without the middleware.
func WithSession(ctx context.Context, s *Session) context.Context {
	return withSession(ctx, s, "")
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

// sessionIDFromContext is the store key of a cookie session; empty for
// bearer sessions.
func sessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}
