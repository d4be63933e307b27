package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"smart-todo/internal/observability"
)

// CalendarScopes is what Google sign-in asks for so the provider token can
// write calendar events.
var CalendarScopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/calendar.events",
}

// OAuthOptions shape an authorize URL.
type OAuthOptions struct {
	RedirectTo    string
	Scopes        []string
	CodeChallenge string
	QueryParams   map[string]string
}

// IdentityProvider is the external auth service.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) error
	SignOut(ctx context.Context, accessToken string) error
	AuthorizeURL(provider string, opts OAuthOptions) string
	ExchangeCode(ctx context.Context, code, verifier string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	GetUser(ctx context.Context, accessToken string) (Principal, error)
	UpdateUser(ctx context.Context, accessToken string, metadata json.RawMessage) error
}

// IdentityError is a non-2xx answer from the identity provider.
type IdentityError struct {
	StatusCode int
	Message    string
}

func (e *IdentityError) Error() string { return e.Message }

// GoTrue talks to a GoTrue-compatible /auth/v1 API.
type GoTrue struct {
	baseURL string
	anonKey string
	http    *http.Client
	now     func() time.Time
}

func NewGoTrue(baseURL, anonKey string, hc *http.Client) *GoTrue {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoTrue{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    hc,
		now:     time.Now,
	}
}

func (g *GoTrue) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	raw, err := g.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	return g.sessionFrom(raw)
}

func (g *GoTrue) SignUp(ctx context.Context, email, password string) error {
	_, err := g.do(ctx, http.MethodPost, "/auth/v1/signup", "", map[string]string{
		"email":    email,
		"password": password,
	})
	return err
}

func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	_, err := g.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil)
	return err
}

func (g *GoTrue) AuthorizeURL(provider string, opts OAuthOptions) string {
	q := url.Values{}
	q.Set("provider", provider)
	if opts.RedirectTo != "" {
		q.Set("redirect_to", opts.RedirectTo)
	}
	if len(opts.Scopes) > 0 {
		q.Set("scopes", strings.Join(opts.Scopes, " "))
	}
	if opts.CodeChallenge != "" {
		q.Set("code_challenge", opts.CodeChallenge)
		q.Set("code_challenge_method", "s256")
	}
	for k, v := range opts.QueryParams {
		q.Set(k, v)
	}
	return g.baseURL + "/auth/v1/authorize?" + q.Encode()
}

func (g *GoTrue) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	raw, err := g.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", "", map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	})
	if err != nil {
		return nil, err
	}
	return g.sessionFrom(raw)
}

func (g *GoTrue) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	raw, err := g.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	return g.sessionFrom(raw)
}

func (g *GoTrue) GetUser(ctx context.Context, accessToken string) (Principal, error) {
	raw, err := g.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil)
	if err != nil {
		return Principal{}, err
	}
	return NormalizePrincipal(raw), nil
}

func (g *GoTrue) UpdateUser(ctx context.Context, accessToken string, metadata json.RawMessage) error {
	_, err := g.do(ctx, http.MethodPut, "/auth/v1/user", accessToken, map[string]json.RawMessage{
		"data": metadata,
	})
	return err
}

// sessionFrom reads a token response. expires_at wins over expires_in.
func (g *GoTrue) sessionFrom(raw []byte) (*Session, error) {
	res := gjson.ParseBytes(raw)

	s := &Session{
		AccessToken:          res.Get("access_token").String(),
		RefreshToken:         res.Get("refresh_token").String(),
		ProviderToken:        res.Get("provider_token").String(),
		ProviderRefreshToken: res.Get("provider_refresh_token").String(),
		User:                 NormalizePrincipal([]byte(res.Get("user").Raw)),
	}
	if s.AccessToken == "" {
		return nil, &IdentityError{StatusCode: http.StatusBadGateway, Message: "identity provider returned no access token"}
	}

	switch {
	case res.Get("expires_at").Int() > 0:
		s.ExpiresAt = time.Unix(res.Get("expires_at").Int(), 0).UTC()
	case res.Get("expires_in").Int() > 0:
		s.ExpiresAt = g.now().Add(time.Duration(res.Get("expires_in").Int()) * time.Second).UTC()
	}
	return s, nil
}

func (g *GoTrue) do(ctx context.Context, method, path, bearer string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", g.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = g.anonKey
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := identityMessage(resp, raw)
		observability.LoggerFromContext(ctx).Warn("identity provider error",
			"method", method, "path", strings.SplitN(path, "?", 2)[0], "status", resp.StatusCode, "message", msg)
		return nil, &IdentityError{StatusCode: resp.StatusCode, Message: msg}
	}
	return raw, nil
}

func identityMessage(resp *http.Response, raw []byte) string {
	if gjson.ValidBytes(raw) {
		res := gjson.ParseBytes(raw)
		for _, key := range []string{"error_description", "msg", "message", "error"} {
			if v := res.Get(key); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	return resp.Status
}
