// Package service implements authentication: credential verification and
// access token issuance. Tokens carry the actor's role and firm set, which
// downstream visibility checks are built on.
package service

import (
	"context"
	"time"

	"orderflow_backend/internal/auth/repository"
	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/platform/apperr"
	"orderflow_backend/platform/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const invalidCredentialsMsg = "invalid email or password"

// Service handles authentication.
type Service struct {
	users  repository.UserRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates the auth service.
func NewService(users repository.UserRepository, cfg config.AuthServiceConfig) *Service {
	return &Service{
		users:  users,
		secret: []byte(cfg.GetJWTAccessSecret()),
		ttl:    cfg.GetAccessTokenTTL(),
		now:    time.Now,
	}
}

// LoginResult is a successful authentication.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        repository.User
}

// Login verifies the credentials and issues an access token. Unknown
// emails and wrong passwords produce the same error, so the endpoint
// cannot be used to probe for accounts.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return LoginResult{}, apperr.Unauthorized(invalidCredentialsMsg)
		}
		return LoginResult{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return LoginResult{}, apperr.Unauthorized(invalidCredentialsMsg)
	}

	token, expiresAt, err := s.issueToken(user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *Service) issueToken(user repository.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"role":  user.Role,
		"firms": user.Firms,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, apperr.Internal("failed to sign access token")
	}
	return signed, expiresAt, nil
}

// CreateUserInput is the payload for provisioning an account.
type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     string
	Firms    []string
}

// CreateUser provisions a new account. Only masters may do this; handing
// out the "all" sentinel or the master role is itself a visibility grant.
func (s *Service) CreateUser(ctx context.Context, actorRole string, input CreateUserInput) (repository.User, error) {
	if actorRole != domain.RoleMaster {
		return repository.User{}, apperr.Forbidden("only masters may create accounts")
	}
	if len(input.Password) < 8 {
		return repository.User{}, apperr.Validation("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return repository.User{}, apperr.Internal("failed to hash password")
	}

	return s.users.Create(ctx, repository.CreateUserParams{
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hash),
		Role:         input.Role,
		Firms:        input.Firms,
	})
}

// Profile returns the account of the authenticated actor.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (repository.User, error) {
	return s.users.GetByID(ctx, id)
}

// Refresh re-issues an access token for an authenticated actor. The user
// is reloaded so role or firm changes take effect at the next refresh
// rather than living on in old tokens indefinitely.
func (s *Service) Refresh(ctx context.Context, id uuid.UUID) (LoginResult, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return LoginResult{}, err
	}

	token, expiresAt, err := s.issueToken(user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}
