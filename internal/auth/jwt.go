package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token verification failures. Callers branch on these: an expired token
// means "log in again", an invalid one means tampering or corruption.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

const issuer = "authgate"

// TokenKind selects the secret and lifetime a token is issued with.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// TokenPayload is the identity carried by every session token.
type TokenPayload struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Claims represents the JWT claims of an access or refresh token.
type Claims struct {
	TokenPayload
	Type TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

type keyConfig struct {
	secret []byte
	ttl    time.Duration
}

// TokenIssuer signs and verifies HS256 session tokens. Access and refresh
// tokens use separate secrets and lifetimes.
type TokenIssuer struct {
	keys map[TokenKind]keyConfig
	now  func() time.Time
}

// NewTokenIssuer creates an issuer. Both secrets are required.
func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("jwt: access and refresh secrets must be configured")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("jwt: token lifetimes must be positive")
	}
	return &TokenIssuer{
		keys: map[TokenKind]keyConfig{
			AccessToken:  {secret: []byte(accessSecret), ttl: accessTTL},
			RefreshToken: {secret: []byte(refreshSecret), ttl: refreshTTL},
		},
		now: time.Now,
	}, nil
}

// TTL returns the lifetime of tokens of the given kind.
func (t *TokenIssuer) TTL(kind TokenKind) time.Duration {
	return t.keys[kind].ttl
}

// Issue creates a signed token of the given kind for payload.
func (t *TokenIssuer) Issue(payload TokenPayload, kind TokenKind) (string, error) {
	key, ok := t.keys[kind]
	if !ok {
		return "", fmt.Errorf("jwt: unknown token kind %q", kind)
	}

	now := t.now().UTC()
	claims := &Claims{
		TokenPayload: payload,
		Type:         kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   payload.Email,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(key.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify parses a token of the given kind. It returns ErrTokenExpired for a
// correctly signed token past its expiry and ErrTokenInvalid for anything
// else, including a token of the other kind.
func (t *TokenIssuer) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	key, ok := t.keys[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token kind %q", ErrTokenInvalid, kind)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return key.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Type != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrTokenInvalid, kind, claims.Type)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrTokenInvalid)
	}
	return claims, nil
}
