// Package auth implements password credentials and JWT session tokens.
package auth

import (
	"context"

	"github.com/mmynk/meetapp/internal/models"
)

// Authenticator defines the interface for authentication implementations.
// Services depend on it rather than on bcrypt or the user table directly.
type Authenticator interface {
	// Register creates a new user account. It returns ErrEmailExists when
	// the email is taken and ErrWeakPassword when the credential is rejected.
	Register(ctx context.Context, email, name, credential string) (*models.User, error)

	// Authenticate verifies the user's credentials and returns the user.
	// Any mismatch yields ErrInvalidCredentials.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// CheckCredential reports whether credential matches the user's stored one.
	CheckCredential(user *models.User, credential string) bool

	// HashCredential returns the stored form of a new credential.
	HashCredential(credential string) (string, error)
}
