// Package auth owns the signed-in session: who the user is, the tokens that
// prove it, where the session is kept between requests, and the HTTP
// surface that establishes and tears it down.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"smart-todo/internal/apiclient"
	"smart-todo/internal/observability"
)

var ErrMissingCredentials = errors.New("email and password are required")

// OAuthStart is what a caller needs to send the user to the provider: the
// authorize URL and the PKCE verifier to keep until the callback.
type OAuthStart struct {
	URL      string
	Verifier string
}

type ProfileUpdate struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

func (u ProfileUpdate) empty() bool {
	return u.FullName == nil && u.AvatarURL == nil
}

func (u ProfileUpdate) appliedTo(p Principal) bool {
	if u.FullName != nil && p.FullName != *u.FullName {
		return false
	}
	if u.AvatarURL != nil && p.AvatarURL != *u.AvatarURL {
		return false
	}
	return true
}

// MergeMetadata writes the supplied profile fields into an existing metadata
// object. Fields not in upd are left alone.
func MergeMetadata(existing string, upd ProfileUpdate) (json.RawMessage, error) {
	doc := existing
	if !gjson.Valid(doc) || !gjson.Parse(doc).IsObject() {
		doc = "{}"
	}

	var err error
	if upd.FullName != nil {
		if doc, err = sjson.Set(doc, "full_name", *upd.FullName); err != nil {
			return nil, err
		}
	}
	if upd.AvatarURL != nil {
		if doc, err = sjson.Set(doc, "avatar_url", *upd.AvatarURL); err != nil {
			return nil, err
		}
	}
	return json.RawMessage(doc), nil
}

// Provider is the Session Provider for one session key. It holds the
// current session in memory, persists it through a Store and tells
// subscribers whenever it changes.
type Provider struct {
	idp   IdentityProvider
	store Store
	key   string

	now             func() time.Time
	refetchAttempts int
	refetchDelay    time.Duration

	refreshMu sync.Mutex

	mu      sync.RWMutex
	session *Session
	loading bool
	subs    map[int]func(*Session)
	nextSub int
}

type ProviderOption func(*Provider)

func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

// WithProfileRefetch sets how many times UpdateProfile re-reads the user
// waiting for the write to show up, and the pause between reads.
func WithProfileRefetch(attempts int, delay time.Duration) ProviderOption {
	return func(p *Provider) {
		p.refetchAttempts = attempts
		p.refetchDelay = delay
	}
}

// NewProvider starts in the loading state; call Init to resolve it.
func NewProvider(idp IdentityProvider, store Store, key string, opts ...ProviderOption) *Provider {
	p := &Provider{
		idp:             idp,
		store:           store,
		key:             key,
		now:             time.Now,
		refetchAttempts: 3,
		refetchDelay:    500 * time.Millisecond,
		loading:         true,
		subs:            make(map[int]func(*Session)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init resolves the stored session, refreshing it when expired. A session
// that cannot be refreshed is dropped, not reported as an error.
func (p *Provider) Init(ctx context.Context) error {
	p.begin()

	s, err := p.store.Load(ctx, p.key)
	if errors.Is(err, ErrNoSession) {
		p.set(nil)
		return nil
	}
	if err != nil {
		p.set(nil)
		return err
	}

	if s.Expired(p.now()) {
		fresh, err := p.refresh(ctx, s)
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("stored session could not be refreshed", "error", err)
			if err := p.store.Delete(ctx, p.key); err != nil {
				observability.LoggerFromContext(ctx).Warn("drop stale session", "error", err)
			}
			p.set(nil)
			return nil
		}
		s = fresh
	}

	p.set(s)
	return nil
}

func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

func (p *Provider) Current() *Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session.clone()
}

func (p *Provider) User() (Principal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil {
		return Principal{}, false
	}
	return p.session.User, true
}

// UserID is the ambient "who is signed in" slot. It never returns a stale
// id after sign-out.
func (p *Provider) UserID() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil || p.session.User.ID == "" {
		return "", apiclient.ErrUnauthenticated
	}
	return p.session.User.ID, nil
}

// AccessToken returns a usable access token, refreshing an expired session
// first.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	s := p.Current()
	if s == nil || s.AccessToken == "" {
		return "", apiclient.ErrUnauthenticated
	}
	if !s.Expired(p.now()) {
		return s.AccessToken, nil
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	// another caller may have refreshed while we waited
	if cur := p.Current(); cur != nil && !cur.Expired(p.now()) {
		return cur.AccessToken, nil
	}

	fresh, err := p.refresh(ctx, s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apiclient.ErrUnauthenticated, err)
	}
	p.set(fresh)
	return fresh.AccessToken, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}

	p.begin()
	s, err := p.idp.SignInWithPassword(ctx, email, password)
	if err != nil {
		p.end()
		return err
	}
	return p.establish(ctx, s)
}

// SignInWithGoogle only prepares the redirect. The session appears later,
// through CompleteOAuth.
func (p *Provider) SignInWithGoogle(redirectTo string) (OAuthStart, error) {
	verifier, err := NewCodeVerifier()
	if err != nil {
		return OAuthStart{}, err
	}

	u := p.idp.AuthorizeURL(CalendarProvider, OAuthOptions{
		RedirectTo:    redirectTo,
		Scopes:        CalendarScopes,
		CodeChallenge: CodeChallenge(verifier),
		QueryParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
	})
	return OAuthStart{URL: u, Verifier: verifier}, nil
}

func (p *Provider) CompleteOAuth(ctx context.Context, code, verifier string) error {
	if code == "" {
		return errors.New("missing authorization code")
	}
	if verifier == "" {
		return errors.New("sign-in expired, please try again")
	}

	p.begin()
	s, err := p.idp.ExchangeCode(ctx, code, verifier)
	if err != nil {
		p.end()
		return err
	}
	return p.establish(ctx, s)
}

// Adopt makes an already-verified session current (bearer-token callers).
func (p *Provider) Adopt(ctx context.Context, s *Session) error {
	if s == nil {
		return apiclient.ErrUnauthenticated
	}
	p.begin()
	return p.establish(ctx, s.clone())
}

// SignUp registers the user. Confirmation is the identity provider's job;
// no session is created here.
func (p *Provider) SignUp(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	return p.idp.SignUp(ctx, email, password)
}

// SignOut always clears local state, even when the provider call fails.
func (p *Provider) SignOut(ctx context.Context) error {
	p.begin()

	if s := p.Current(); s != nil && s.AccessToken != "" {
		if err := p.idp.SignOut(ctx, s.AccessToken); err != nil {
			observability.LoggerFromContext(ctx).Warn("provider sign-out failed", "error", err)
		}
	}

	err := p.store.Delete(ctx, p.key)
	p.set(nil)
	return err
}

// UpdateProfile merges upd into the user's metadata, then re-reads the user
// until the change is visible. If it never shows up within the configured
// attempts, the merged values are applied locally.
func (p *Provider) UpdateProfile(ctx context.Context, upd ProfileUpdate) error {
	s := p.Current()
	if s == nil {
		return apiclient.ErrUnauthenticated
	}
	if upd.empty() {
		return nil
	}

	merged, err := MergeMetadata(s.User.Metadata, upd)
	if err != nil {
		return fmt.Errorf("merge profile: %w", err)
	}

	token, err := p.AccessToken(ctx)
	if err != nil {
		return err
	}
	if err := p.idp.UpdateUser(ctx, token, merged); err != nil {
		return err
	}

	local := s.User
	local.Metadata = string(merged)
	if upd.FullName != nil {
		local.FullName = *upd.FullName
	}
	if upd.AvatarURL != nil {
		local.AvatarURL = *upd.AvatarURL
	}
	user := p.refetchUser(ctx, token, upd, local)

	s = p.Current()
	if s == nil {
		return apiclient.ErrUnauthenticated
	}
	s.User = user
	if err := p.store.Save(ctx, p.key, s); err != nil {
		return err
	}
	p.set(s)
	return nil
}

func (p *Provider) refetchUser(ctx context.Context, token string, upd ProfileUpdate, fallback Principal) Principal {
	for i := 0; i < p.refetchAttempts; i++ {
		if i > 0 && p.refetchDelay > 0 {
			select {
			case <-ctx.Done():
				return fallback
			case <-time.After(p.refetchDelay):
			}
		}

		u, err := p.idp.GetUser(ctx, token)
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("refetch user after profile update", "error", err)
			return fallback
		}
		if upd.appliedTo(u) {
			if u.Metadata == "" {
				u.Metadata = fallback.Metadata
			}
			return u
		}
	}
	return fallback
}

// Subscribe registers fn for every session change (nil on sign-out).
func (p *Provider) Subscribe(fn func(*Session)) (cancel func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// refresh trades the refresh token for a new session. The provider token
// pair is carried over since token refreshes do not return it.
func (p *Provider) refresh(ctx context.Context, old *Session) (*Session, error) {
	if old.RefreshToken == "" {
		return nil, errors.New("session expired")
	}

	fresh, err := p.idp.Refresh(ctx, old.RefreshToken)
	if err != nil {
		return nil, err
	}
	if fresh.ProviderToken == "" {
		fresh.ProviderToken = old.ProviderToken
	}
	if fresh.ProviderRefreshToken == "" {
		fresh.ProviderRefreshToken = old.ProviderRefreshToken
	}
	if fresh.User.ID == "" {
		fresh.User = old.User
	}

	if err := p.store.Save(ctx, p.key, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (p *Provider) establish(ctx context.Context, s *Session) error {
	if err := p.store.Save(ctx, p.key, s); err != nil {
		p.end()
		return err
	}
	p.set(s)
	return nil
}

func (p *Provider) begin() {
	p.mu.Lock()
	p.loading = true
	p.mu.Unlock()
}

func (p *Provider) end() {
	p.mu.Lock()
	p.loading = false
	p.mu.Unlock()
}

func (p *Provider) set(s *Session) {
	p.mu.Lock()
	p.session = s.clone()
	p.loading = false
	subs := make([]func(*Session), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(s.clone())
	}
}
