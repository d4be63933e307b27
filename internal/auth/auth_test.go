package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"smart-todo/internal/apiclient"
)

type fakeIdP struct {
	mu sync.Mutex

	session    *Session
	signInErr  error
	refreshed  *Session
	refreshErr error

	// successive GetUser answers; the last one repeats
	users    []Principal
	getCalls int

	updated   []json.RawMessage
	signedOut []string
	exchanged []string
}

func (f *fakeIdP) SignInWithPassword(_ context.Context, email, _ string) (*Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	s := f.session.clone()
	s.User.Email = email
	return s, nil
}

func (f *fakeIdP) SignUp(context.Context, string, string) error { return nil }

func (f *fakeIdP) SignOut(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, token)
	return nil
}

func (f *fakeIdP) AuthorizeURL(provider string, opts OAuthOptions) string {
	return "https://idp.test/authorize?provider=" + provider + "&code_challenge=" + opts.CodeChallenge +
		"&scopes=" + strings.Join(opts.Scopes, "+") + "&access_type=" + opts.QueryParams["access_type"]
}

func (f *fakeIdP) ExchangeCode(_ context.Context, code, verifier string) (*Session, error) {
	f.mu.Lock()
	f.exchanged = append(f.exchanged, code+":"+verifier)
	f.mu.Unlock()
	return f.session.clone(), nil
}

func (f *fakeIdP) Refresh(context.Context, string) (*Session, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed.clone(), nil
}

func (f *fakeIdP) GetUser(context.Context, string) (Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.users) == 0 {
		return Principal{}, errors.New("no user")
	}
	i := f.getCalls
	if i >= len(f.users) {
		i = len(f.users) - 1
	}
	f.getCalls++
	return f.users[i], nil
}

func (f *fakeIdP) UpdateUser(_ context.Context, _ string, metadata json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, metadata)
	return nil
}

func liveSession(id string) *Session {
	return &Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         Principal{ID: id, Email: id + "@example.com"},
	}
}

func TestInitWithoutStoredSession(t *testing.T) {
	p := NewProvider(&fakeIdP{}, NewMemoryStore(), "k")
	if !p.Loading() {
		t.Fatal("provider should be loading before Init")
	}

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.Loading() {
		t.Error("loading should be false after Init")
	}
	if p.Current() != nil {
		t.Error("expected no session")
	}
	if _, err := p.UserID(); !errors.Is(err, apiclient.ErrUnauthenticated) {
		t.Errorf("UserID: expected ErrUnauthenticated, got %v", err)
	}
}

func TestSignInPersistsAndNotifies(t *testing.T) {
	idp := &fakeIdP{session: liveSession("u1")}
	store := NewMemoryStore()
	p := NewProvider(idp, store, "k")

	var seen []*Session
	cancel := p.Subscribe(func(s *Session) { seen = append(seen, s) })
	defer cancel()

	if err := p.SignIn(context.Background(), " ada@example.com ", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	if id, err := p.UserID(); err != nil || id != "u1" {
		t.Errorf("UserID = %q, %v", id, err)
	}
	stored, err := store.Load(context.Background(), "k")
	if err != nil || stored.User.Email != "ada@example.com" {
		t.Errorf("stored session: %+v, %v", stored, err)
	}
	if len(seen) != 1 || seen[0] == nil {
		t.Fatalf("subscriber calls: %v", seen)
	}
}

func TestSignInRequiresCredentials(t *testing.T) {
	p := NewProvider(&fakeIdP{}, NewMemoryStore(), "k")
	if err := p.SignIn(context.Background(), "  ", "pw"); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestSignOutClearsUserIDSlot(t *testing.T) {
	idp := &fakeIdP{session: liveSession("u1")}
	store := NewMemoryStore()
	p := NewProvider(idp, store, "k")
	ctx := context.Background()

	if err := p.SignIn(ctx, "a@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	if _, err := p.UserID(); !errors.Is(err, apiclient.ErrUnauthenticated) {
		t.Errorf("UserID after sign-out: %v", err)
	}
	if _, err := p.AccessToken(ctx); !errors.Is(err, apiclient.ErrUnauthenticated) {
		t.Errorf("AccessToken after sign-out: %v", err)
	}
	if _, err := store.Load(ctx, "k"); !errors.Is(err, ErrNoSession) {
		t.Errorf("store still holds the session: %v", err)
	}
	if len(idp.signedOut) != 1 || idp.signedOut[0] != "access-u1" {
		t.Errorf("provider sign-out: %v", idp.signedOut)
	}
}

func TestInitRefreshesExpiredSessionKeepingProviderTokens(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	old := liveSession("u1")
	old.ExpiresAt = now.Add(-time.Minute)
	old.ProviderToken = "gtok"
	old.ProviderRefreshToken = "grefresh"

	fresh := liveSession("u1")
	fresh.AccessToken = "access-new"
	fresh.ExpiresAt = now.Add(time.Hour)

	store := NewMemoryStore()
	_ = store.Save(context.Background(), "k", old)

	p := NewProvider(&fakeIdP{refreshed: fresh}, store, "k", WithClock(func() time.Time { return now }))
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	s := p.Current()
	if s == nil || s.AccessToken != "access-new" {
		t.Fatalf("session not refreshed: %+v", s)
	}
	if s.ProviderToken != "gtok" || s.ProviderRefreshToken != "grefresh" {
		t.Errorf("provider tokens lost: %+v", s)
	}
}

func TestInitDropsSessionThatCannotRefresh(t *testing.T) {
	now := time.Now()
	old := liveSession("u1")
	old.ExpiresAt = now.Add(-time.Minute)

	store := NewMemoryStore()
	_ = store.Save(context.Background(), "k", old)

	p := NewProvider(&fakeIdP{refreshErr: errors.New("revoked")}, store, "k")
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.Current() != nil {
		t.Error("expired session should be dropped")
	}
	if _, err := store.Load(context.Background(), "k"); !errors.Is(err, ErrNoSession) {
		t.Errorf("stale session left in store: %v", err)
	}
}

func TestAccessTokenExpiredWithoutRefreshToken(t *testing.T) {
	s := liveSession("u1")
	s.RefreshToken = ""
	s.ExpiresAt = time.Now().Add(-time.Second)

	p := NewProvider(&fakeIdP{}, NewMemoryStore(), "k")
	if err := p.Adopt(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AccessToken(context.Background()); !errors.Is(err, apiclient.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestUpdateProfileMergesAndConverges(t *testing.T) {
	s := liveSession("u1")
	s.User.FullName = "Ada"
	s.User.Metadata = `{"full_name":"Ada","theme":"dark"}`

	avatar := "https://img.example.com/ada.png"
	idp := &fakeIdP{users: []Principal{
		{ID: "u1", FullName: "Ada"},
		{ID: "u1", FullName: "Ada", AvatarURL: avatar},
	}}
	p := NewProvider(idp, NewMemoryStore(), "k", WithProfileRefetch(3, 0))
	if err := p.Adopt(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	if err := p.UpdateProfile(context.Background(), ProfileUpdate{AvatarURL: &avatar}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	if len(idp.updated) != 1 {
		t.Fatalf("UpdateUser calls: %d", len(idp.updated))
	}
	sent := gjson.ParseBytes(idp.updated[0])
	if sent.Get("theme").String() != "dark" || sent.Get("full_name").String() != "Ada" {
		t.Errorf("unspecified fields overwritten: %s", idp.updated[0])
	}
	if sent.Get("avatar_url").String() != avatar {
		t.Errorf("avatar not merged: %s", idp.updated[0])
	}

	if idp.getCalls != 2 {
		t.Errorf("expected refetch until visible, got %d reads", idp.getCalls)
	}
	if u, _ := p.User(); u.AvatarURL != avatar {
		t.Errorf("in-memory user not updated: %+v", u)
	}
}

func TestUpdateProfileAppliesLocallyWhenRefetchStaysStale(t *testing.T) {
	s := liveSession("u1")
	s.User.Metadata = `{"theme":"dark"}`

	name := "Grace"
	idp := &fakeIdP{users: []Principal{{ID: "u1"}}}
	p := NewProvider(idp, NewMemoryStore(), "k", WithProfileRefetch(2, 0))
	if err := p.Adopt(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	if err := p.UpdateProfile(context.Background(), ProfileUpdate{FullName: &name}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	u, _ := p.User()
	if u.FullName != name {
		t.Errorf("FullName = %q", u.FullName)
	}
	if gjson.Get(u.Metadata, "theme").String() != "dark" {
		t.Errorf("metadata lost: %s", u.Metadata)
	}
}

func TestUpdateProfileWithoutSession(t *testing.T) {
	name := "x"
	p := NewProvider(&fakeIdP{}, NewMemoryStore(), "k")
	_ = p.Init(context.Background())
	if err := p.UpdateProfile(context.Background(), ProfileUpdate{FullName: &name}); !errors.Is(err, apiclient.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSignInWithGoogleRequestsCalendarScope(t *testing.T) {
	p := NewProvider(&fakeIdP{}, NewMemoryStore(), "k")

	start, err := p.SignInWithGoogle("http://localhost:8080/auth/callback")
	if err != nil {
		t.Fatal(err)
	}
	if start.Verifier == "" {
		t.Fatal("missing verifier")
	}
	if !strings.Contains(start.URL, "code_challenge="+CodeChallenge(start.Verifier)) {
		t.Errorf("challenge does not match verifier: %s", start.URL)
	}
	if !strings.Contains(start.URL, "calendar.events") || !strings.Contains(start.URL, "access_type=offline") {
		t.Errorf("calendar access not requested: %s", start.URL)
	}
	if p.Current() != nil {
		t.Error("starting OAuth must not create a session")
	}
}

func TestMergeMetadataReplacesInvalidDocument(t *testing.T) {
	name := "Ada"
	got, err := MergeMetadata("not json", ProfileUpdate{FullName: &name})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"full_name":"Ada"}` {
		t.Errorf("got %s", got)
	}
}
