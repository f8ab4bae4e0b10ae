package service

import (
	"context"
	"errors"

	"github.com/mmynk/meetapp/internal/apperr"
	"github.com/mmynk/meetapp/internal/auth"
	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/storage"
)

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// UpdateUserInput changes profile fields. Changing the password requires
// the old password and a matching confirmation.
type UpdateUserInput struct {
	Name            *string `json:"name" validate:"omitempty,min=1"`
	Email           *string `json:"email" validate:"omitempty,email"`
	OldPassword     string  `json:"old_password" validate:"required_with=Password"`
	Password        string  `json:"password" validate:"omitempty,min=6"`
	ConfirmPassword string  `json:"confirm_password" validate:"required_with=Password,eqfield=Password"`
}

// LoginInput is the payload for opening a session.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is an authenticated user and their bearer token.
type Session struct {
	User  *models.User
	Token string
}

// UserService manages accounts.
type UserService struct {
	base
	authenticator auth.Authenticator
}

// NewUserService creates a new UserService.
func NewUserService(store storage.Store, authenticator auth.Authenticator, opts ...Option) *UserService {
	return &UserService{base: newBase(store, opts), authenticator: authenticator}
}

// Register creates a new account.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	s.logger.Info("Register request received", "email", in.Email)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.authenticator.Register(ctx, in.Email, in.Name, in.Password)
	switch {
	case errors.Is(err, auth.ErrEmailExists):
		return nil, apperr.Conflict(apperr.MsgUserExists)
	case errors.Is(err, auth.ErrWeakPassword):
		return nil, apperr.Validation(map[string]string{"password": err.Error()})
	case err != nil:
		return nil, s.unexpected("Register", err, "email", in.Email)
	}

	s.logger.Info("User registered successfully", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Update changes requesterID's profile.
func (s *UserService) Update(ctx context.Context, requesterID string, in UpdateUserInput) (*models.User, error) {
	s.logger.Info("UpdateUser request received", "user_id", requesterID)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, requesterID)
	if err != nil {
		return nil, s.unexpected("GetUserByID", err, "user_id", requesterID)
	}
	if user == nil {
		return nil, apperr.NotFound(apperr.MsgUserNotFound)
	}

	if in.Email != nil && *in.Email != user.Email {
		taken, err := s.store.GetUserByEmail(ctx, *in.Email)
		if err != nil {
			return nil, s.unexpected("GetUserByEmail", err, "user_id", requesterID)
		}
		if taken != nil {
			return nil, apperr.Conflict(apperr.MsgUserExists)
		}
		user.Email = *in.Email
	}

	if in.OldPassword != "" && !s.authenticator.CheckCredential(user, in.OldPassword) {
		s.logger.Warn("UpdateUser with wrong password", "user_id", requesterID)
		return nil, apperr.Unauthorized(apperr.MsgPasswordMismatch)
	}
	if in.Password != "" {
		hash, err := s.authenticator.HashCredential(in.Password)
		if err != nil {
			return nil, s.unexpected("HashCredential", err, "user_id", requesterID)
		}
		user.PasswordHash = hash
	}
	if in.Name != nil {
		user.Name = *in.Name
	}

	switch err := s.store.UpdateUser(ctx, user); {
	case errors.Is(err, storage.ErrEmailTaken):
		return nil, apperr.Conflict(apperr.MsgUserExists)
	case isNotFound(err):
		return nil, apperr.NotFound(apperr.MsgUserNotFound)
	case err != nil:
		return nil, s.unexpected("UpdateUser", err, "user_id", requesterID)
	}

	s.logger.Info("User updated", "user_id", user.ID)
	return user, nil
}

// SessionService opens sessions.
type SessionService struct {
	base
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
}

// NewSessionService creates a new SessionService.
func NewSessionService(store storage.Store, authenticator auth.Authenticator, jwtManager *auth.JWTManager, opts ...Option) *SessionService {
	return &SessionService{
		base:          newBase(store, opts),
		authenticator: authenticator,
		jwtManager:    jwtManager,
	}
}

// Login authenticates a user and returns a signed token.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	s.logger.Info("Login request", "email", in.Email)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.authenticator.Authenticate(ctx, in.Email, in.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.logger.Warn("Login failed", "email", in.Email)
		return nil, apperr.Unauthorized(apperr.MsgBadCredentials)
	}
	if err != nil {
		return nil, s.unexpected("Login", err, "email", in.Email)
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		return nil, s.unexpected("Generate token", err, "user_id", user.ID)
	}

	s.logger.Info("User logged in successfully", "user_id", user.ID)
	return &Session{User: user, Token: token}, nil
}
