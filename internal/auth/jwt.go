package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the payload of an identity-provider access token.
type AccessClaims struct {
	Email        string         `json:"email,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 access tokens signed with the identity provider's
// JWT secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Verify(tokenString string) (*Session, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: verification not configured", ErrInvalidToken)
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	raw, err := json.Marshal(map[string]any{
		"id":            claims.Subject,
		"email":         claims.Email,
		"app_metadata":  claims.AppMetadata,
		"user_metadata": claims.UserMetadata,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{AccessToken: tokenString, User: NormalizePrincipal(raw)}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
