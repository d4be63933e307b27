package auth

import (
	"net/http"

	"smart-todo/internal/httpjson"
	"smart-todo/internal/observability"
)

// sessionProvider rebuilds a Provider around the request's session. Bearer
// sessions get a throwaway store since there is nothing to persist.
func (c HandlerConfig) sessionProvider(r *http.Request) (*Provider, error) {
	if key := sessionIDFromContext(r.Context()); key != "" {
		p := c.provider(key)
		return p, p.Init(r.Context())
	}

	p := NewProvider(c.IdP, NewMemoryStore(), "bearer", WithProfileRefetch(c.ProfileRefreshAttempts, 0))
	s, _ := SessionFromContext(r.Context())
	return p, p.Adopt(r.Context(), s)
}

func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFromContext(r.Context())
		if !ok {
			httpjson.Unauthorized(w)
			return
		}

		httpjson.Write(w, http.StatusOK, map[string]any{
			"user":               s.User,
			"expires_at":         s.ExpiresAt,
			"calendar_connected": s.HasCalendarIdentity() && s.ProviderToken != "",
		})
	}
}

// ProfileHandler merges the supplied fields into the user's profile.
// display_name is accepted as an alias for full_name.
func ProfileHandler(cfg HandlerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ProfileUpdate
			DisplayName *string `json:"display_name,omitempty"`
		}
		if err := httpjson.Decode(r, &body); err != nil {
			httpjson.BadRequest(w, "invalid json")
			return
		}
		upd := body.ProfileUpdate
		if upd.FullName == nil {
			upd.FullName = body.DisplayName
		}
		if upd.empty() {
			httpjson.BadRequest(w, "nothing to update")
			return
		}

		p, err := cfg.sessionProvider(r)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		if err := p.UpdateProfile(r.Context(), upd); err != nil {
			writeAuthError(w, r, err)
			return
		}

		user, _ := p.User()
		httpjson.Write(w, http.StatusOK, map[string]any{"user": user})
	}
}

// LogoutHandler is meant to run behind Middleware.Attach: signing out
// without a session still clears the cookie and succeeds.
func LogoutHandler(cfg HandlerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); ok {
			p, err := cfg.sessionProvider(r)
			if err == nil {
				err = p.SignOut(r.Context())
			}
			if err != nil {
				observability.LoggerFromContext(r.Context()).Warn("sign-out", "error", err)
			}
		}

		cfg.clearCookie(w, SessionCookie, "/")
		httpjson.Write(w, http.StatusOK, map[string]any{"ok": true})
	}
}
