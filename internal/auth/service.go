package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/petdonor/backend/internal/users"
	"go.uber.org/zap"
)

var (
	// ErrUserExists indicates a registration collision on login or email.
	ErrUserExists = errors.New("auth: login or email already exists")
	// ErrUserNotFound indicates neither login nor email resolved to an account.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrIncorrectPassword indicates the account exists but the password check failed.
	ErrIncorrectPassword = errors.New("auth: incorrect password")
	// ErrUnauthorized indicates a missing, malformed, expired or rejected token.
	ErrUnauthorized = errors.New("auth: unauthorized")

	errMissingUserRepository = errors.New("user repository dependency required")
	errMissingTokenStore     = errors.New("token store dependency required")
	errMissingCodec          = errors.New("token codec dependency required")
	errMissingHasher         = errors.New("password hasher dependency required")
)

// externalLoginPrefix prefixes the generated login of accounts created
// through VK social login.
const externalLoginPrefix = "vk_"

// UserRepository is the account persistence contract the service depends on.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*users.User, error)
	FindByLogin(ctx context.Context, login string) (*users.User, error)
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*users.User, error)
	ExistsByLoginOrEmail(ctx context.Context, login, email string) (bool, error)
	Create(ctx context.Context, user *users.User) error
	Save(ctx context.Context, user *users.User) error
}

// IdentityVerifier exchanges a third-party proof for a stable external user
// id and fetches optional profile fields.
type IdentityVerifier interface {
	ExchangeSilentToken(ctx context.Context, silentToken, clientInstanceID string) (string, error)
	FetchProfile(ctx context.Context, externalID string) (Profile, error)
}

// Credentials is the issued (access, refresh) token pair.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// ServiceConfig describes the dependencies of the auth service.
type ServiceConfig struct {
	Users    UserRepository
	Tokens   TokenStore
	Codec    *Codec
	Hasher   *PasswordHasher
	Identity IdentityVerifier
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Service orchestrates registration, login, logout, token refresh and VK
// social login. It raises typed failures and never touches HTTP statuses;
// that mapping belongs to the transport layer.
type Service struct {
	users    UserRepository
	tokens   TokenStore
	codec    *Codec
	hasher   *PasswordHasher
	identity IdentityVerifier
	logger   *zap.Logger
	clock    func() time.Time
}

// NewService constructs the auth service. Identity is optional; social login
// fails as unauthorized when no verifier is wired.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Users == nil {
		return nil, errMissingUserRepository
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokenStore
	}
	if cfg.Codec == nil {
		return nil, errMissingCodec
	}
	if cfg.Hasher == nil {
		return nil, errMissingHasher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		users:    cfg.Users,
		tokens:   cfg.Tokens,
		codec:    cfg.Codec,
		hasher:   cfg.Hasher,
		identity: cfg.Identity,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Register creates an account and issues its first token pair. Fails with
// ErrUserExists when either login or email is already taken.
func (s *Service) Register(ctx context.Context, login, email, password string) (Credentials, error) {
	taken, err := s.users.ExistsByLoginOrEmail(ctx, login, email)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth: uniqueness check failed: %w", err)
	}
	if taken {
		return Credentials{}, ErrUserExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth: password hashing failed: %w", err)
	}

	now := s.clock().UTC()
	user := &users.User{
		Login:        login,
		Email:        &email,
		PasswordHash: &hash,
		PasswordSet:  true,
		CreatedAt:    now,
		LastActiveAt: now,
		AvatarURL:    users.DefaultAvatarURL,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return Credentials{}, fmt.Errorf("auth: user create failed: %w", err)
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("login", login))
	return s.issueAndStore(ctx, user.ID)
}

// Login resolves the account by login first, then email. Accounts without a
// password hash always fail with ErrIncorrectPassword; a password can only
// authenticate once its owner has set one.
func (s *Service) Login(ctx context.Context, loginOrEmail, password string) (Credentials, error) {
	user, err := s.users.FindByLogin(ctx, loginOrEmail)
	if errors.Is(err, users.ErrNotFound) {
		user, err = s.users.FindByEmail(ctx, loginOrEmail)
	}
	if errors.Is(err, users.ErrNotFound) {
		return Credentials{}, ErrUserNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("auth: user lookup failed: %w", err)
	}

	if user.PasswordHash == nil || !s.hasher.Verify(password, *user.PasswordHash) {
		return Credentials{}, ErrIncorrectPassword
	}

	s.touchLastActive(ctx, user)
	return s.issueAndStore(ctx, user.ID)
}

// Logout verifies the access token and deletes the stored pair for its
// subject. Repeating the call with the same still-valid token succeeds
// again; deleting a missing row is a no-op.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	userID, err := s.SubjectOf(accessToken)
	if err != nil {
		return err
	}
	if err := s.tokens.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("auth: token delete failed: %w", err)
	}
	return nil
}

// Refresh verifies both tokens independently and issues a brand-new pair for
// the access token's subject, fully replacing the stored one. The two tokens
// are not cross-checked as an issued pair, and a stale-but-unexpired pair
// still refreshes; verification is stateless.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (Credentials, error) {
	userID, err := s.SubjectOf(accessToken)
	if err != nil {
		return Credentials{}, err
	}
	if _, err := s.SubjectOf(refreshToken); err != nil {
		return Credentials{}, err
	}
	return s.issueAndStore(ctx, userID)
}

// SocialLogin exchanges a VK silent token for the stable VK user id, reusing
// the bound account or creating one without a local password. Profile
// enrichment is best-effort; its failures never abort account creation.
// Returns the resolved account login alongside the issued pair.
func (s *Service) SocialLogin(ctx context.Context, silentToken, clientInstanceID string) (string, Credentials, error) {
	if s.identity == nil {
		return "", Credentials{}, fmt.Errorf("%w: social login not configured", ErrUnauthorized)
	}

	externalID, err := s.identity.ExchangeSilentToken(ctx, silentToken, clientInstanceID)
	if err != nil {
		s.logger.Warn("silent token exchange failed", zap.Error(err))
		return "", Credentials{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user, err := s.users.FindByExternalID(ctx, externalID)
	if errors.Is(err, users.ErrNotFound) {
		user, err = s.createExternalUser(ctx, externalID)
	}
	if err != nil {
		return "", Credentials{}, fmt.Errorf("auth: external user resolution failed: %w", err)
	}

	s.touchLastActive(ctx, user)
	credentials, err := s.issueAndStore(ctx, user.ID)
	if err != nil {
		return "", Credentials{}, err
	}
	return user.Login, credentials, nil
}

// ChangePassword sets a new password for the user. The old password must
// match unless the account never had one; a mismatch fails with
// ErrIncorrectPassword.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("auth: user lookup failed: %w", err)
	}

	if user.PasswordHash != nil && !s.hasher.Verify(oldPassword, *user.PasswordHash) {
		return ErrIncorrectPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("auth: password hashing failed: %w", err)
	}
	user.PasswordHash = &hash
	user.PasswordSet = true
	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("auth: password update failed: %w", err)
	}
	return nil
}

// SubjectOf verifies the bearer token and returns its subject user id.
// Every verification failure resolves to ErrUnauthorized.
func (s *Service) SubjectOf(token string) (int64, error) {
	userID, err := s.codec.Verify(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return userID, nil
}

func (s *Service) createExternalUser(ctx context.Context, externalID string) (*users.User, error) {
	now := s.clock().UTC()
	user := &users.User{
		Login:        externalLoginPrefix + externalID,
		VKUserID:     &externalID,
		PasswordSet:  false,
		CreatedAt:    now,
		LastActiveAt: now,
		AvatarURL:    users.DefaultAvatarURL,
	}

	profile, err := s.identity.FetchProfile(ctx, externalID)
	if err != nil {
		s.logger.Debug("profile enrichment skipped", zap.String("vk_user_id", externalID), zap.Error(err))
	} else {
		if profile.FirstName != "" {
			user.Name = &profile.FirstName
		}
		if profile.LastName != "" {
			user.Surname = &profile.LastName
		}
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("external user created", zap.Int64("user_id", user.ID), zap.String("vk_user_id", externalID))
	return user, nil
}

func (s *Service) issueAndStore(ctx context.Context, userID int64) (Credentials, error) {
	accessToken, err := s.codec.IssueAccessToken(userID)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth: access token issue failed: %w", err)
	}
	refreshToken, err := s.codec.IssueRefreshToken(userID)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth: refresh token issue failed: %w", err)
	}
	if err := s.tokens.Upsert(ctx, userID, accessToken, refreshToken); err != nil {
		return Credentials{}, fmt.Errorf("auth: token store failed: %w", err)
	}
	return Credentials{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *Service) touchLastActive(ctx context.Context, user *users.User) {
	user.LastActiveAt = s.clock().UTC()
	if err := s.users.Save(ctx, user); err != nil {
		s.logger.Warn("last active update failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}

// BearerToken extracts the token from an Authorization header of the form
// "bearer <token>" with a case-insensitive prefix. An absent or malformed
// header yields the empty string, which fails verification downstream.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
