package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newAuthMux(idp IdentityProvider, store Store) *http.ServeMux {
	cfg := HandlerConfig{
		IdP:         idp,
		Store:       store,
		SiteURL:     "http://site.test",
		CallbackURL: "http://api.test/auth/callback",
	}
	mw := NewMiddleware(NewVerifier(testSecret), idp, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", LoginHandler(cfg))
	mux.HandleFunc("/auth/google", GoogleHandler(cfg))
	mux.HandleFunc("/auth/callback", CallbackHandler(cfg))
	mux.HandleFunc("/auth/me", mw.Wrap(MeHandler()))
	mux.HandleFunc("/auth/profile", mw.Wrap(ProfileHandler(cfg)))
	mux.HandleFunc("/auth/logout", mw.Attach(LogoutHandler(cfg)))
	return mux
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginThenMe(t *testing.T) {
	idp := &fakeIdP{session: liveSession("u1")}
	mux := newAuthMux(idp, NewMemoryStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"ada@example.com","password":"pw"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body)
	}
	session := cookieNamed(rec.Result(), SessionCookie)
	if session == nil || !session.HttpOnly {
		t.Fatalf("session cookie: %+v", session)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d %s", rec.Code, rec.Body)
	}

	var body struct {
		User Principal `json:"user"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.User.ID != "u1" || body.User.Email != "ada@example.com" {
		t.Errorf("me: %+v", body.User)
	}
}

func TestLoginMissingCredentials(t *testing.T) {
	mux := newAuthMux(&fakeIdP{}, NewMemoryStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@x.io"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestLoginProviderRejection(t *testing.T) {
	idp := &fakeIdP{signInErr: &IdentityError{StatusCode: 400, Message: "Invalid login credentials"}}
	mux := newAuthMux(idp, NewMemoryStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"a@x.io","password":"bad"}`)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Invalid login credentials") {
		t.Fatalf("got %d %s", rec.Code, rec.Body)
	}
}

func TestMeRequiresSession(t *testing.T) {
	mux := newAuthMux(&fakeIdP{}, NewMemoryStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("got %d %s", rec.Code, rec.Body)
	}
}

func TestMeWithBearerAndProviderToken(t *testing.T) {
	mux := newAuthMux(&fakeIdP{}, NewMemoryStore())
	tok, _ := signToken(testSecret, Principal{ID: "u2", Email: "g@x.io", Provider: "google"}, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set(ProviderTokenHeader, "gtok")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"calendar_connected":true`) {
		t.Errorf("body: %s", rec.Body)
	}
}

func TestGoogleSetsVerifierCookie(t *testing.T) {
	mux := newAuthMux(&fakeIdP{}, NewMemoryStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status %d", rec.Code)
	}

	c := cookieNamed(rec.Result(), verifierCookie)
	if c == nil || c.Path != "/auth" || !c.HttpOnly {
		t.Fatalf("verifier cookie: %+v", c)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "code_challenge="+CodeChallenge(c.Value)) {
		t.Errorf("redirect does not carry the challenge: %s", loc)
	}
}

func TestCallbackSurfacesErrors(t *testing.T) {
	mux := newAuthMux(&fakeIdP{session: liveSession("u1")}, NewMemoryStore())

	tests := map[string]struct {
		target  string
		wantErr string
	}{
		"provider rejected":   {"/auth/callback?error=access_denied&error_description=User+denied+access", "User denied access"},
		"provider bare error": {"/auth/callback?error=server_error", "server_error"},
		"missing verifier":    {"/auth/callback?code=abc", "sign-in expired, please try again"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != http.StatusFound {
				t.Fatalf("status %d", rec.Code)
			}

			loc, err := url.Parse(rec.Header().Get("Location"))
			if err != nil {
				t.Fatal(err)
			}
			if loc.Path != "/login" || loc.Query().Get("error") != tt.wantErr {
				t.Errorf("redirect: %s", loc)
			}
			if cookieNamed(rec.Result(), SessionCookie) != nil {
				t.Error("no session cookie expected on failure")
			}
		})
	}
}

func TestCallbackExchangesCode(t *testing.T) {
	idp := &fakeIdP{session: liveSession("u1")}
	mux := newAuthMux(idp, NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc", nil)
	req.AddCookie(&http.Cookie{Name: verifierCookie, Value: "verifier-1"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "http://site.test/" {
		t.Fatalf("got %d -> %s", rec.Code, rec.Header().Get("Location"))
	}
	if len(idp.exchanged) != 1 || idp.exchanged[0] != "abc:verifier-1" {
		t.Errorf("exchange: %v", idp.exchanged)
	}
	if cookieNamed(rec.Result(), SessionCookie) == nil {
		t.Error("missing session cookie")
	}
	if c := cookieNamed(rec.Result(), verifierCookie); c == nil || c.MaxAge >= 0 {
		t.Errorf("verifier cookie not cleared: %+v", c)
	}
}

func TestProfileAndLogout(t *testing.T) {
	idp := &fakeIdP{
		session: liveSession("u1"),
		users:   []Principal{{ID: "u1", FullName: "Ada Lovelace"}},
	}
	store := NewMemoryStore()
	mux := newAuthMux(idp, store)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"ada@example.com","password":"pw"}`)))
	session := cookieNamed(rec.Result(), SessionCookie)

	req := httptest.NewRequest(http.MethodPatch, "/auth/profile", strings.NewReader(`{"display_name":"Ada Lovelace"}`))
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Ada Lovelace") {
		t.Fatalf("profile: %d %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	if c := cookieNamed(rec.Result(), SessionCookie); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie not cleared: %+v", c)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("session still valid after logout: %d", rec.Code)
	}
}
