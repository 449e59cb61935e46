// Package service provides business logic between the HTTP handlers and the
// persistence gateway.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/firstserv/chat-platform/internal/auth"
	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/store"
	"github.com/firstserv/chat-platform/pkg/logger"
)

// UserService handles account and profile operations.
type UserService struct {
	store         *store.Store
	authenticator *auth.Authenticator
	logger        *logger.Logger
}

// NewUserService creates a new user service.
func NewUserService(st *store.Store, authenticator *auth.Authenticator, log *logger.Logger) *UserService {
	return &UserService{
		store:         st,
		authenticator: authenticator,
		logger:        log,
	}
}

// Signup creates a new account with a bcrypt-hashed credential.
func (s *UserService) Signup(ctx context.Context, req *model.SignupRequest) (*model.User, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	rec := &model.UserRecord{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Name:         req.Name,
		PasswordHash: hash,
		Bio:          req.Bio,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(rec); err != nil {
		return nil, err
	}

	s.logger.Info("user created", "user", rec.Name)
	user := rec.Public()
	return &user, nil
}

// Login verifies a credential pair and issues a bearer token. Unknown
// handles and wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, name, password string) (string, error) {
	rec, err := s.store.GetUser(name)
	if err != nil {
		return "", auth.ErrInvalidCredential
	}
	if err := auth.VerifyPassword(rec.PasswordHash, password); err != nil {
		return "", auth.ErrInvalidCredential
	}
	return s.authenticator.IssueToken(rec.Name)
}

// Get fetches a public profile by handle.
func (s *UserService) Get(ctx context.Context, handle string) (*model.User, error) {
	rec, err := s.store.GetUser(handle)
	if err != nil {
		return nil, err
	}
	user := rec.Public()
	return &user, nil
}

// List returns every public profile.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	recs, err := s.store.ListUsers()
	if err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(recs))
	for i := range recs {
		users = append(users, recs[i].Public())
	}
	return users, nil
}

// UpdateBio replaces the caller's bio.
func (s *UserService) UpdateBio(ctx context.Context, handle, bio string) (*model.User, error) {
	rec, err := s.store.UpdateUserBio(handle, bio)
	if err != nil {
		return nil, err
	}
	user := rec.Public()
	return &user, nil
}

// UpdateAvatar replaces the caller's avatar reference.
func (s *UserService) UpdateAvatar(ctx context.Context, handle, avatarURL string) (*model.User, error) {
	rec, err := s.store.UpdateUserAvatar(handle, avatarURL)
	if err != nil {
		return nil, err
	}
	user := rec.Public()
	return &user, nil
}
