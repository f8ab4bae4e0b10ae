package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/meetapp/internal/apperr"
)

type signup struct {
	Name            string     `json:"name" validate:"required"`
	Email           string     `json:"email" validate:"required,email"`
	Password        string     `json:"password" validate:"required,min=6"`
	ConfirmPassword string     `json:"confirm_password" validate:"eqfield=Password"`
	Nickname        *string    `json:"nickname,omitempty" validate:"omitempty,min=1"`
	Date            *time.Time `json:"date" validate:"required"`
}

func TestStruct(t *testing.T) {
	v := New()
	now := time.Now()
	empty := ""

	t.Run("valid", func(t *testing.T) {
		err := v.Struct(signup{
			Name: "Alice", Email: "alice@example.com",
			Password: "secret1", ConfirmPassword: "secret1", Date: &now,
		})
		assert.NoError(t, err)
	})

	t.Run("field messages keyed by json name", func(t *testing.T) {
		err := v.Struct(signup{
			Email: "not-an-email", Password: "123",
			ConfirmPassword: "456", Nickname: &empty,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrValidation)

		appErr := apperr.From(err)
		assert.Equal(t, apperr.MsgValidation, appErr.Message)
		assert.Equal(t, map[string]string{
			"name":             "is required",
			"email":            "must be a valid email",
			"password":         "must be at least 6 characters",
			"confirm_password": "must match password",
			"nickname":         "must be at least 1 characters",
			"date":             "is required",
		}, appErr.Fields)
	})
}

func TestToSnake(t *testing.T) {
	assert.Equal(t, "old_password", toSnake("OldPassword"))
	assert.Equal(t, "password", toSnake("Password"))
}
