package auth

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"smart-todo/internal/apiclient"
	"smart-todo/internal/httpjson"
	"smart-todo/internal/observability"
)

const (
	verifierCookie    = "smart_todo_pkce"
	verifierCookieTTL = 10 * time.Minute
	sessionCookieTTL  = 30 * 24 * time.Hour
)

// HandlerConfig is what the auth endpoints share.
type HandlerConfig struct {
	IdP   IdentityProvider
	Store Store

	// SiteURL is where the browser lands after OAuth; CallbackURL is this
	// server's /auth/callback as the identity provider should call it.
	SiteURL     string
	CallbackURL string

	SecureCookies          bool
	ProfileRefreshAttempts int
}

func (c HandlerConfig) provider(key string) *Provider {
	return NewProvider(c.IdP, c.Store, key, WithProfileRefetch(c.ProfileRefreshAttempts, 500*time.Millisecond))
}

func (c HandlerConfig) setCookie(w http.ResponseWriter, name, value, path string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c HandlerConfig) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectLoginError sends the browser to the login page with msg attached.
func (c HandlerConfig) redirectLoginError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, c.SiteURL+"/login?error="+url.QueryEscape(msg), http.StatusFound)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func LoginHandler(cfg HandlerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		if err := httpjson.Decode(r, &body); err != nil {
			httpjson.BadRequest(w, "invalid json")
			return
		}

		key := uuid.NewString()
		p := cfg.provider(key)
		if err := p.SignIn(r.Context(), body.Email, body.Password); err != nil {
			writeAuthError(w, r, err)
			return
		}

		cfg.setCookie(w, SessionCookie, key, "/", sessionCookieTTL)
		s := p.Current()
		httpjson.Write(w, http.StatusOK, map[string]any{
			"user":       s.User,
			"expires_at": s.ExpiresAt,
		})
	}
}

func SignupHandler(cfg HandlerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		if err := httpjson.Decode(r, &body); err != nil {
			httpjson.BadRequest(w, "invalid json")
			return
		}

		if err := cfg.provider("").SignUp(r.Context(), body.Email, body.Password); err != nil {
			writeAuthError(w, r, err)
			return
		}

		httpjson.Write(w, http.StatusOK, map[string]any{
			"ok":      true,
			"message": "Check your email to confirm your account.",
		})
	}
}

// GoogleHandler starts the OAuth flow. The PKCE verifier waits in a
// short-lived cookie scoped to /auth.
func GoogleHandler(cfg HandlerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, err := cfg.provider("").SignInWithGoogle(cfg.CallbackURL)
		if err != nil {
			observability.LoggerFromContext(r.Context()).Error("start google sign-in", "error", err)
			cfg.redirectLoginError(w, r, "Could not start Google sign-in")
			return
		}

		cfg.setCookie(w, verifierCookie, start.Verifier, "/auth", verifierCookieTTL)
		http.Redirect(w, r, start.URL, http.StatusFound)
	}
}

// CallbackHandler finishes the OAuth flow. Every failure ends on the login
// page with a readable message.
func CallbackHandler(cfg HandlerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		log := observability.LoggerFromContext(r.Context())

		if e := q.Get("error"); e != "" {
			msg := q.Get("error_description")
			if msg == "" {
				msg = e
			}
			log.Warn("oauth provider returned an error", "error", e, "description", msg)
			cfg.redirectLoginError(w, r, msg)
			return
		}

		var verifier string
		if c, err := r.Cookie(verifierCookie); err == nil {
			verifier = c.Value
		}

		key := uuid.NewString()
		if err := cfg.provider(key).CompleteOAuth(r.Context(), q.Get("code"), verifier); err != nil {
			log.Warn("oauth code exchange failed", "error", err)
			cfg.redirectLoginError(w, r, err.Error())
			return
		}

		cfg.clearCookie(w, verifierCookie, "/auth")
		cfg.setCookie(w, SessionCookie, key, "/", sessionCookieTTL)
		http.Redirect(w, r, cfg.SiteURL+"/", http.StatusFound)
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var idErr *IdentityError
	switch {
	case errors.Is(err, ErrMissingCredentials):
		httpjson.BadRequest(w, err.Error())
	case errors.Is(err, apiclient.ErrUnauthenticated):
		httpjson.Unauthorized(w)
	case errors.As(err, &idErr) && idErr.StatusCode < 500:
		httpjson.Error(w, idErr.StatusCode, idErr.Message)
	case errors.As(err, &idErr):
		httpjson.Error(w, http.StatusBadGateway, idErr.Message)
	default:
		observability.LoggerFromContext(r.Context()).Error("auth request failed", "error", err)
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
	}
}
