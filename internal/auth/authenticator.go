package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/contactbook/apiserver/internal/sessioncache"
	"github.com/contactbook/apiserver/internal/store"
	"github.com/contactbook/apiserver/types"
)

const defaultCacheWriteTimeout = 2 * time.Second

// UserLookup is the subset of the user store needed to resolve a subject.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
}

// SnapshotCache stores identities keyed by token subject.
type SnapshotCache interface {
	Get(ctx context.Context, subject string) (types.Identity, error)
	Set(ctx context.Context, subject string, identity types.Identity) error
}

// Authenticator resolves access tokens to identities, reading through the
// session cache before falling back to the user store.
type Authenticator struct {
	tokens *TokenService
	cache  SnapshotCache
	users  UserLookup
	logger *slog.Logger
}

// NewAuthenticator constructs an Authenticator. cache may be nil, in which
// case every request hits the store.
func NewAuthenticator(tokens *TokenService, cache SnapshotCache, users UserLookup, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		tokens: tokens,
		cache:  cache,
		users:  users,
		logger: logger,
	}
}

// Authenticate verifies an access token and returns the identity it names.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (types.Identity, error) {
	subject, err := a.tokens.Verify(KindAccess, token)
	if err != nil {
		return types.Identity{}, err
	}

	if a.cache != nil {
		identity, err := a.cache.Get(ctx, subject)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, sessioncache.ErrMiss) {
			a.logger.WarnContext(ctx, "session cache read failed", "error", err)
		}
	}

	user, err := a.lookup(ctx, subject)
	if err != nil {
		return types.Identity{}, err
	}

	identity := user.Identity()
	a.populate(ctx, subject, identity)
	return identity, nil
}

func (a *Authenticator) lookup(ctx context.Context, subject string) (types.User, error) {
	user, err := a.users.GetByUsername(ctx, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("load user: %w", err)
	}

	user, err = a.users.GetByEmail(ctx, subject)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, ErrUnauthorized
	}
	return types.User{}, fmt.Errorf("load user: %w", err)
}

// populate writes the snapshot without holding up the response.
func (a *Authenticator) populate(ctx context.Context, subject string, identity types.Identity) {
	if a.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, defaultCacheWriteTimeout)
		defer cancel()
		if err := a.cache.Set(ctx, subject, identity); err != nil {
			a.logger.WarnContext(ctx, "session cache write failed", "error", err, "user_id", identity.ID)
		}
	}()
}
