package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contactbook/apiserver/config"
	"github.com/golang-jwt/jwt/v5"
)

// Kind tells which flow a token belongs to.
type Kind string

const (
	KindAccess        Kind = "access"
	KindRefresh       Kind = "refresh"
	KindEmailVerify   Kind = "email_verify"
	KindPasswordReset Kind = "password_reset"
)

const (
	defaultAccessTTL        = time.Hour
	defaultRefreshTTL       = 7 * 24 * time.Hour
	defaultEmailVerifyTTL   = 24 * time.Hour
	defaultPasswordResetTTL = 30 * time.Minute
)

var (
	// ErrInvalidToken covers bad signatures, expiry, malformed tokens and
	// tokens minted for a different kind.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnauthorized means the token was valid but names no known user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Claims are the JWT claims issued by the service.
type Claims struct {
	Kind Kind `json:"kind"`
	jwt.RegisteredClaims
}

type signingKey struct {
	secret []byte
	ttl    time.Duration
}

// TokenService signs and verifies the four token kinds. Refresh tokens use
// their own secret; the others share the primary secret.
type TokenService struct {
	method jwt.SigningMethod
	keys   map[Kind]signingKey
	now    func() time.Time
}

// NewTokenService builds a TokenService from JWT config.
func NewTokenService(cfg config.JWTConfig) (*TokenService, error) {
	if strings.TrimSpace(cfg.Secret) == "" || strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, errors.New("jwt secrets are required")
	}

	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing method %q", cfg.Algorithm)
	}

	primary := []byte(cfg.Secret)
	return &TokenService{
		method: method,
		keys: map[Kind]signingKey{
			KindAccess:        {secret: primary, ttl: orDefault(cfg.AccessTTL(), defaultAccessTTL)},
			KindRefresh:       {secret: []byte(cfg.RefreshSecret), ttl: orDefault(cfg.RefreshTTL(), defaultRefreshTTL)},
			KindEmailVerify:   {secret: primary, ttl: orDefault(cfg.EmailVerifyTTL, defaultEmailVerifyTTL)},
			KindPasswordReset: {secret: primary, ttl: orDefault(cfg.PasswordResetTTL, defaultPasswordResetTTL)},
		},
		now: time.Now,
	}, nil
}

// Issue signs a token of the given kind for subject with the kind's TTL.
func (s *TokenService) Issue(kind Kind, subject string) (string, error) {
	k, ok := s.keys[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
	return s.sign(kind, subject, k.secret, k.ttl)
}

// IssueWithTTL is Issue with an explicit lifetime.
func (s *TokenService) IssueWithTTL(kind Kind, subject string, ttl time.Duration) (string, error) {
	k, ok := s.keys[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
	return s.sign(kind, subject, k.secret, ttl)
}

// Verify checks signature, expiry and kind and returns the subject.
func (s *TokenService) Verify(kind Kind, tokenString string) (string, error) {
	k, ok := s.keys[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}

	claims := Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(token *jwt.Token) (any, error) {
			return k.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Kind != kind {
		return "", fmt.Errorf("%w: expected %s token", ErrInvalidToken, kind)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// TTL returns the lifetime configured for kind.
func (s *TokenService) TTL(kind Kind) time.Duration {
	return s.keys[kind].ttl
}

func (s *TokenService) sign(kind Kind, subject string, secret []byte, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(s.method, claims)
	return token.SignedString(secret)
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
