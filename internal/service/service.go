// Package service implements the meetapp rule engines. Each method takes the
// requester's user ID explicitly, validates its input, applies the business
// rules against storage and returns either a record or an *apperr.Error.
package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/meetapp/internal/apperr"
	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/schedule"
	"github.com/mmynk/meetapp/internal/storage"
	"github.com/mmynk/meetapp/internal/validation"
)

// base carries the dependencies shared by every service.
type base struct {
	store     storage.Store
	validator *validation.Validator
	clock     schedule.Clock
	logger    *slog.Logger
}

// Option configures a service.
type Option func(*base)

// WithClock overrides the clock used for date rules.
func WithClock(clock schedule.Clock) Option {
	return func(b *base) { b.clock = clock }
}

// WithLogger overrides the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *base) { b.logger = logger }
}

func newBase(store storage.Store, opts []Option) base {
	b := base{
		store:     store,
		validator: validation.New(),
		clock:     schedule.SystemClock,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// now returns the current time at the precision meetup dates are stored.
func (b *base) now() time.Time {
	return schedule.Normalize(b.clock())
}

// unexpected logs a storage failure and hides it behind the generic message.
func (b *base) unexpected(op string, err error, attrs ...any) error {
	b.logger.Error(op+" failed", append(attrs, "error", err)...)
	return apperr.Unexpected(err)
}

func markPast(meetup *models.Meetup, now time.Time) {
	meetup.Past = schedule.IsPast(meetup.Date, now)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
