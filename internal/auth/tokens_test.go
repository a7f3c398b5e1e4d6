package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/contactbook/apiserver/config"
	"github.com/golang-jwt/jwt/v5"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "primary-secret",
		RefreshSecret:     "refresh-secret",
		Algorithm:         "HS256",
		AccessTTLSeconds:  3600,
		RefreshTTLSeconds: 7 * 24 * 3600,
		EmailVerifyTTL:    24 * time.Hour,
		PasswordResetTTL:  30 * time.Minute,
	}
}

func newTestTokens(t *testing.T) *TokenService {
	t.Helper()
	tokens, err := NewTokenService(testJWTConfig())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return tokens
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()
	tokens := newTestTokens(t)

	for _, kind := range []Kind{KindAccess, KindRefresh, KindEmailVerify, KindPasswordReset} {
		tok, err := tokens.Issue(kind, "alice")
		if err != nil {
			t.Fatalf("Issue(%s): %v", kind, err)
		}
		sub, err := tokens.Verify(kind, tok)
		if err != nil {
			t.Fatalf("Verify(%s): %v", kind, err)
		}
		if sub != "alice" {
			t.Fatalf("subject mismatch for %s: %q", kind, sub)
		}
	}
}

func TestDefaultTTLs(t *testing.T) {
	t.Parallel()
	tokens, err := NewTokenService(config.JWTConfig{Secret: "a", RefreshSecret: "b"})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	want := map[Kind]time.Duration{
		KindAccess:        3600 * time.Second,
		KindRefresh:       7 * 24 * time.Hour,
		KindEmailVerify:   24 * time.Hour,
		KindPasswordReset: 30 * time.Minute,
	}
	for kind, ttl := range want {
		if got := tokens.TTL(kind); got != ttl {
			t.Fatalf("ttl(%s) = %s, want %s", kind, got, ttl)
		}
	}
}

func TestRefreshAndAccessAreNotInterchangeable(t *testing.T) {
	t.Parallel()
	tokens := newTestTokens(t)

	refresh, _ := tokens.Issue(KindRefresh, "alice")
	if _, err := tokens.Verify(KindAccess, refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}

	access, _ := tokens.Issue(KindAccess, "alice")
	if _, err := tokens.Verify(KindRefresh, access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
}

func TestKindMismatchWithSharedSecret(t *testing.T) {
	t.Parallel()
	tokens := newTestTokens(t)

	reset, _ := tokens.Issue(KindPasswordReset, "alice@example.com")
	if _, err := tokens.Verify(KindAccess, reset); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reset token accepted as access: %v", err)
	}
	if _, err := tokens.Verify(KindEmailVerify, reset); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reset token accepted as email verification: %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()
	tokens := newTestTokens(t)

	tok, err := tokens.IssueWithTTL(KindAccess, "alice", -time.Second)
	if err != nil {
		t.Fatalf("IssueWithTTL: %v", err)
	}
	_, err = tokens.Verify(KindAccess, tok)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyClockAdvance(t *testing.T) {
	t.Parallel()
	tokens := newTestTokens(t)

	start := time.Now()
	tokens.now = func() time.Time { return start }
	tok, _ := tokens.Issue(KindPasswordReset, "alice@example.com")

	tokens.now = func() time.Time { return start.Add(29 * time.Minute) }
	if _, err := tokens.Verify(KindPasswordReset, tok); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}

	tokens.now = func() time.Time { return start.Add(31 * time.Minute) }
	if _, err := tokens.Verify(KindPasswordReset, tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token accepted after expiry: %v", err)
	}
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	t.Parallel()
	tokens := newTestTokens(t)

	tests := map[string]func() string{
		"garbage": func() string { return "not-a-jwt" },
		"other secret": func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
				Kind: KindAccess,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "alice",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			})
			s, _ := tok.SignedString([]byte("someone-else"))
			return s
		},
		"other algorithm": func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
				Kind: KindAccess,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "alice",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			})
			s, _ := tok.SignedString([]byte("primary-secret"))
			return s
		},
		"no expiry": func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
				Kind:             KindAccess,
				RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
			})
			s, _ := tok.SignedString([]byte("primary-secret"))
			return s
		},
		"empty subject": func() string {
			s, _ := tokens.Issue(KindAccess, "  ")
			return s
		},
	}

	for name, build := range tests {
		if _, err := tokens.Verify(KindAccess, build()); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewTokenServiceErrors(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig()
	cfg.Secret = ""
	if _, err := NewTokenService(cfg); err == nil {
		t.Fatalf("expected error for missing secret")
	}

	cfg = testJWTConfig()
	cfg.Algorithm = "RS256"
	if _, err := NewTokenService(cfg); err == nil {
		t.Fatalf("expected error for non-HMAC algorithm")
	}
}
