package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// CalendarProvider is the identity provider whose OAuth tokens can reach
// the calendar API.
const CalendarProvider = "google"

var ErrNoSession = errors.New("no session")

// Principal is the signed-in user, normalized once from whatever shape the
// identity provider returned.
type Principal struct {
	ID        string `json:"id" yaml:"id"`
	Email     string `json:"email" yaml:"email"`
	Provider  string `json:"provider,omitempty" yaml:"provider,omitempty"`
	FullName  string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`

	// Metadata is the raw user metadata object, kept so profile updates can
	// merge into it instead of overwriting it.
	Metadata string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NormalizePrincipal reads a user object. Display fields may live under
// user_metadata or raw_user_meta_data; user_metadata wins.
func NormalizePrincipal(raw []byte) Principal {
	u := gjson.ParseBytes(raw)

	p := Principal{
		ID:       u.Get("id").String(),
		Email:    u.Get("email").String(),
		Provider: u.Get("app_metadata.provider").String(),
	}
	p.FullName = firstString(u,
		"user_metadata.full_name", "raw_user_meta_data.full_name",
		"user_metadata.name", "raw_user_meta_data.name",
	)
	p.AvatarURL = firstString(u,
		"user_metadata.avatar_url", "raw_user_meta_data.avatar_url",
		"user_metadata.picture", "raw_user_meta_data.picture",
	)

	meta := u.Get("user_metadata")
	if !meta.IsObject() {
		meta = u.Get("raw_user_meta_data")
	}
	if meta.IsObject() {
		p.Metadata = meta.Raw
	}
	return p
}

func firstString(u gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := u.Get(path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

type Session struct {
	AccessToken          string    `json:"access_token" yaml:"access_token"`
	RefreshToken         string    `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	ExpiresAt            time.Time `json:"expires_at" yaml:"expires_at"`
	ProviderToken        string    `json:"provider_token,omitempty" yaml:"provider_token,omitempty"`
	ProviderRefreshToken string    `json:"provider_refresh_token,omitempty" yaml:"provider_refresh_token,omitempty"`
	User                 Principal `json:"user" yaml:"user"`
}

// Expired reports whether the access token is past its expiry. A zero
// ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// HasCalendarIdentity is true when the user signed in through the calendar
// provider.
func (s *Session) HasCalendarIdentity() bool {
	return s.User.Provider == CalendarProvider
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Store persists sessions under an opaque key (a cookie value on the
// server, a profile name in the CLI).
type Store interface {
	Load(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, s *Session) error
	Delete(ctx context.Context, key string) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrNoSession
	}
	return s.clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, key string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = s.clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func marshalSession(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalSession(b []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
