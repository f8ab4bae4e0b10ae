package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/meetapp/internal/apperr"
)

func TestUserServiceRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := f.users.Register(ctx, RegisterInput{Name: "Other", Email: "alice@example.com", Password: "secret2"})
		require.ErrorIs(t, err, apperr.ErrConflict)
		assert.Equal(t, apperr.MsgUserExists, apperr.From(err).Message)
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := f.users.Register(ctx, RegisterInput{Email: "nope", Password: "123"})
		require.ErrorIs(t, err, apperr.ErrValidation)
		fields := apperr.From(err).Fields
		assert.Contains(t, fields, "name")
		assert.Contains(t, fields, "email")
		assert.Contains(t, fields, "password")
	})
}

func TestUserServiceUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.users.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = f.users.Register(ctx, RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "secret1"})
	require.NoError(t, err)

	t.Run("rename", func(t *testing.T) {
		user, err := f.users.Update(ctx, alice.ID, UpdateUserInput{Name: ptr("Alice B.")})
		require.NoError(t, err)
		assert.Equal(t, "Alice B.", user.Name)
	})

	t.Run("email taken", func(t *testing.T) {
		_, err := f.users.Update(ctx, alice.ID, UpdateUserInput{Email: ptr("bob@example.com")})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("wrong old password", func(t *testing.T) {
		_, err := f.users.Update(ctx, alice.ID, UpdateUserInput{
			OldPassword: "wrong-password", Password: "secret2", ConfirmPassword: "secret2",
		})
		require.ErrorIs(t, err, apperr.ErrUnauthorized)
		assert.Equal(t, apperr.MsgPasswordMismatch, apperr.From(err).Message)
	})

	t.Run("password without old password", func(t *testing.T) {
		_, err := f.users.Update(ctx, alice.ID, UpdateUserInput{Password: "secret2", ConfirmPassword: "secret2"})
		require.ErrorIs(t, err, apperr.ErrValidation)
		assert.Contains(t, apperr.From(err).Fields, "old_password")
	})

	t.Run("confirmation mismatch", func(t *testing.T) {
		_, err := f.users.Update(ctx, alice.ID, UpdateUserInput{
			OldPassword: "secret1", Password: "secret2", ConfirmPassword: "secret3",
		})
		require.ErrorIs(t, err, apperr.ErrValidation)
		assert.Contains(t, apperr.From(err).Fields, "confirm_password")
	})

	t.Run("change password", func(t *testing.T) {
		_, err := f.users.Update(ctx, alice.ID, UpdateUserInput{
			OldPassword: "secret1", Password: "secret2", ConfirmPassword: "secret2",
		})
		require.NoError(t, err)

		_, err = f.sessions.Login(ctx, LoginInput{Email: "alice@example.com", Password: "secret2"})
		assert.NoError(t, err)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.users.Update(ctx, "ghost", UpdateUserInput{Name: ptr("x")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestSessionServiceLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		session, err := f.sessions.Login(ctx, LoginInput{Email: "alice@example.com", Password: "secret1"})
		require.NoError(t, err)
		assert.Equal(t, user.ID, session.User.ID)

		claims, err := f.jwt.Validate(session.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.sessions.Login(ctx, LoginInput{Email: "alice@example.com", Password: "nope-nope"})
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := f.sessions.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"})
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("missing password", func(t *testing.T) {
		_, err := f.sessions.Login(ctx, LoginInput{Email: "alice@example.com"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}
