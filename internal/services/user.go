package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"github.com/contactbook/apiserver/internal/auth"
	"github.com/contactbook/apiserver/internal/avatar"
	mailer "github.com/contactbook/apiserver/internal/mail"
	"github.com/contactbook/apiserver/internal/store"
	"github.com/contactbook/apiserver/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLen   = 150
	maxEmailLen      = 255
	maxAvatarURLLen  = 255
	minPasswordLen   = 6
	maxPasswordBytes = 72
)

// usernameReserved lists characters not allowed in usernames: ':' separates
// Redis key parts and '@' marks an email login.
const usernameReserved = ":@"

// MaxAvatarUploadSize bounds an uploaded avatar image.
const MaxAvatarUploadSize = 5 << 20

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	MarkVerified(ctx context.Context, id int) error
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
	UpdateAvatar(ctx context.Context, id int, avatar string) (types.User, error)
}

// SessionInvalidator drops cached identities.
type SessionInvalidator interface {
	Invalidate(ctx context.Context, subjects ...string) error
}

// AvatarStore keeps uploaded avatar images.
type AvatarStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	KeyFromURL(raw string) (string, bool)
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// UserDeps are the collaborators of UserService. Sessions and Avatars may
// be nil.
type UserDeps struct {
	Repo       UserRepository
	Tokens     *auth.TokenService
	Sessions   SessionInvalidator
	Dispatcher mailer.Dispatcher
	Messages   mailer.Builder
	Avatars    AvatarStore
	Logger     *slog.Logger
	HashCost   int
}

// UserService implements account flows: sign-up, login, token refresh,
// email verification, password reset and avatar changes.
type UserService struct {
	repo       UserRepository
	tokens     *auth.TokenService
	sessions   SessionInvalidator
	dispatcher mailer.Dispatcher
	messages   mailer.Builder
	avatars    AvatarStore
	logger     *slog.Logger
	hashCost   int
}

func NewUserService(deps UserDeps) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cost := deps.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserService{
		repo:       deps.Repo,
		tokens:     deps.Tokens,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		messages:   deps.Messages,
		avatars:    deps.Avatars,
		logger:     logger,
		hashCost:   cost,
	}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// Register creates an unverified account with the given role and sends a
// verification email. Email conflicts are reported before username ones.
func (s *UserService) Register(ctx context.Context, in RegisterInput, role types.Role) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateRegistration(in); err != nil {
		return types.User{}, err
	}
	if !role.Valid() {
		return types.User{}, invalid("role", "must be user or admin")
	}

	if err := s.ensureFree(ctx, in); err != nil {
		return types.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     in.Username,
		Email:        in.Email,
		Avatar:       avatar.Gravatar(in.Email),
		Role:         role,
		PasswordHash: string(hash),
	})
	if err != nil {
		return types.User{}, err
	}

	s.sendVerification(ctx, user.Email)
	return user, nil
}

func (s *UserService) ensureFree(ctx context.Context, in RegisterInput) error {
	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return fmt.Errorf("%w: user with email %s already exists", store.ErrConflict, in.Email)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, err := s.repo.GetByUsername(ctx, in.Username); err == nil {
		return fmt.Errorf("%w: user with username %s already exists", store.ErrConflict, in.Username)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// Login checks the password and issues a token pair. The login name may be
// a username or an email. Either failure is reported as ErrUnauthorized.
func (s *UserService) Login(ctx context.Context, login, password string) (TokenPair, error) {
	user, err := s.findByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		return TokenPair{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, auth.ErrUnauthorized
	}

	access, err := s.tokens.Issue(auth.KindAccess, user.Username)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.Issue(auth.KindRefresh, user.Username)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is returned unchanged and stays valid until it expires.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	subject, err := s.tokens.Verify(auth.KindRefresh, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	user, err := s.findByLogin(ctx, subject)
	if err != nil {
		return TokenPair{}, err
	}

	access, err := s.tokens.Issue(auth.KindAccess, user.Username)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refreshToken, TokenType: "bearer"}, nil
}

func (s *UserService) findByLogin(ctx context.Context, login string) (types.User, error) {
	if login == "" {
		return types.User{}, auth.ErrUnauthorized
	}
	user, err := s.repo.GetByUsername(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.repo.GetByEmail(ctx, login)
	}
	if errors.Is(err, store.ErrNotFound) {
		return types.User{}, auth.ErrUnauthorized
	}
	return user, err
}

// VerifyEmail marks the account named by an email-verification token as
// verified. Verifying twice is not an error.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (types.User, error) {
	email, err := s.tokens.Verify(auth.KindEmailVerify, token)
	if err != nil {
		return types.User{}, err
	}
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return types.User{}, err
	}
	if user.IsVerified {
		return user, nil
	}
	if err := s.repo.MarkVerified(ctx, user.ID); err != nil {
		return types.User{}, err
	}
	user.IsVerified = true
	s.invalidate(ctx, user)
	return user, nil
}

// RequestPasswordReset mails a reset link to a known address.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	token, err := s.tokens.Issue(auth.KindPasswordReset, user.Email)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	s.dispatch(ctx, s.messages.PasswordReset(user.Email, token))
	return nil
}

// ConfirmPasswordReset sets a new password for the account named by a
// reset token.
func (s *UserService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := validatePassword("new_password", newPassword); err != nil {
		return err
	}
	email, err := s.tokens.Verify(auth.KindPasswordReset, token)
	if err != nil {
		return err
	}
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	s.invalidate(ctx, user)
	return nil
}

// UpdateAvatar sets the caller's avatar to an external image URL.
func (s *UserService) UpdateAvatar(ctx context.Context, caller types.Identity, avatarURL string) (types.User, error) {
	if err := auth.Authorize(caller, types.RoleAdmin); err != nil {
		return types.User{}, err
	}
	avatarURL = strings.TrimSpace(avatarURL)
	if err := validateAvatarURL(avatarURL); err != nil {
		return types.User{}, err
	}
	return s.replaceAvatar(ctx, caller, avatarURL)
}

// UploadAvatar stores an image in object storage and makes its public URL
// the caller's avatar. The previous uploaded image, if any, is removed.
func (s *UserService) UploadAvatar(ctx context.Context, caller types.Identity, r io.Reader) (types.User, error) {
	if err := auth.Authorize(caller, types.RoleAdmin); err != nil {
		return types.User{}, err
	}
	if s.avatars == nil {
		return types.User{}, fmt.Errorf("%w: avatar storage is not configured", ErrUnavailable)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxAvatarUploadSize+1))
	if err != nil {
		return types.User{}, fmt.Errorf("read avatar: %w", err)
	}
	if len(data) == 0 {
		return types.User{}, invalid("avatar", "is empty")
	}
	if len(data) > MaxAvatarUploadSize {
		return types.User{}, invalid("avatar", "exceeds %d bytes", MaxAvatarUploadSize)
	}
	contentType := http.DetectContentType(data)
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return types.User{}, invalid("avatar", "has unsupported type %s", contentType)
	}

	key := fmt.Sprintf("users/%d/%s%s", caller.ID, uuid.NewString(), ext)
	publicURL, err := s.avatars.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return types.User{}, fmt.Errorf("store avatar: %w", err)
	}
	return s.replaceAvatar(ctx, caller, publicURL)
}

func (s *UserService) replaceAvatar(ctx context.Context, caller types.Identity, avatarURL string) (types.User, error) {
	user, err := s.repo.UpdateAvatar(ctx, caller.ID, avatarURL)
	if err != nil {
		return types.User{}, err
	}
	s.invalidate(ctx, user)

	if s.avatars != nil && caller.Avatar != avatarURL {
		if key, ok := s.avatars.KeyFromURL(caller.Avatar); ok {
			if err := s.avatars.Delete(ctx, key); err != nil {
				s.logger.WarnContext(ctx, "delete previous avatar failed", "key", key, "error", err)
			}
		}
	}
	return user, nil
}

func (s *UserService) sendVerification(ctx context.Context, email string) {
	token, err := s.tokens.Issue(auth.KindEmailVerify, email)
	if err != nil {
		s.logger.ErrorContext(ctx, "issue verification token failed", "error", err)
		return
	}
	s.dispatch(ctx, s.messages.Verification(email, token))
}

func (s *UserService) dispatch(ctx context.Context, msg mailer.Message) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "dispatch mail failed", "kind", msg.Kind, "error", err)
	}
}

// invalidate drops the cached snapshot under both subjects a token may use.
func (s *UserService) invalidate(ctx context.Context, user types.User) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.Invalidate(ctx, user.Username, user.Email); err != nil {
		s.logger.WarnContext(ctx, "session cache invalidation failed", "user_id", user.ID, "error", err)
	}
}

func validateRegistration(in RegisterInput) error {
	var errs []error
	if in.Username == "" {
		errs = append(errs, invalid("username", "is required"))
	} else if len(in.Username) > maxUsernameLen {
		errs = append(errs, invalid("username", "must be at most %d characters", maxUsernameLen))
	} else if strings.ContainsAny(in.Username, usernameReserved) {
		errs = append(errs, invalid("username", "must not contain %q", usernameReserved))
	}
	if err := validateEmail("email", in.Email); err != nil {
		errs = append(errs, err)
	}
	if in.Password == "" {
		errs = append(errs, invalid("password", "is required"))
	} else if len(in.Password) > maxPasswordBytes {
		errs = append(errs, invalid("password", "must be at most %d bytes", maxPasswordBytes))
	}
	return errors.Join(errs...)
}

func validateEmail(field, email string) error {
	if email == "" {
		return invalid(field, "is required")
	}
	if len(email) > maxEmailLen {
		return invalid(field, "must be at most %d characters", maxEmailLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid(field, "is not a valid email address")
	}
	return nil
}

func validatePassword(field, password string) error {
	if len(password) < minPasswordLen {
		return invalid(field, "must be at least %d characters", minPasswordLen)
	}
	if len(password) > maxPasswordBytes {
		return invalid(field, "must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

func validateAvatarURL(raw string) error {
	if raw == "" {
		return invalid("new_avatar", "is required")
	}
	if len(raw) > maxAvatarURLLen {
		return invalid("new_avatar", "must be at most %d characters", maxAvatarURLLen)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("new_avatar", "must be an http or https URL")
	}
	return nil
}
