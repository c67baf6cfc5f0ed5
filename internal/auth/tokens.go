package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "vitrina"

// Secrets holds the two HMAC signing keys. Access and refresh tokens are
// signed with distinct secrets so a leaked refresh key cannot forge access
// tokens, and an access token can never be replayed as a refresh token.
type Secrets struct {
	Access  []byte
	Refresh []byte
}

// NewSecrets validates the configured key material. Both values are required
// and must differ; a missing secret is a startup failure, never a per-request
// condition.
func NewSecrets(access, refresh string) (Secrets, error) {
	access = strings.TrimSpace(access)
	refresh = strings.TrimSpace(refresh)
	if access == "" || refresh == "" {
		return Secrets{}, errors.New("auth: both access and refresh secrets are required")
	}
	if access == refresh {
		return Secrets{}, errors.New("auth: access and refresh secrets must differ")
	}
	return Secrets{Access: []byte(access), Refresh: []byte(refresh)}, nil
}

// Claims carried by both access and refresh tokens.
type Claims struct {
	Kind Kind `json:"kind,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 token for the given principal with the supplied secret.
func Issue(principalID string, kind Kind, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return "", errors.New("auth: principal id is required")
	}
	if ttl <= 0 {
		return "", errors.New("auth: ttl must be greater than zero")
	}
	now = now.UTC()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Verify checks the token signature and expiry against the designated secret.
// It returns ErrTokenExpired when the only problem is that the expiry passed,
// and ErrInvalidToken for every other failure.
func Verify(token string, secret []byte) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
