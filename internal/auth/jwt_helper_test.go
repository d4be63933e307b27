package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signToken signs an access token for p the way the identity provider
// would.
func signToken(secret []byte, p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email:       p.Email,
		AppMetadata: map[string]any{"provider": p.Provider},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if p.FullName != "" || p.AvatarURL != "" {
		claims.UserMetadata = map[string]any{}
		if p.FullName != "" {
			claims.UserMetadata["full_name"] = p.FullName
		}
		if p.AvatarURL != "" {
			claims.UserMetadata["avatar_url"] = p.AvatarURL
		}
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}
