// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/meetapp/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadySubscribed is returned by CreateSubscription when the user
	// already holds a subscription to the meetup.
	ErrAlreadySubscribed = errors.New("user already subscribed to meetup")

	// ErrDateConflict is returned by CreateSubscription when the user holds a
	// subscription to another meetup with the same date.
	ErrDateConflict = errors.New("user already subscribed to a meetup at that date")

	// ErrEmailTaken is returned when a user is created or updated with an
	// email that belongs to another user.
	ErrEmailTaken = errors.New("email already registered")
)

// Store defines the interface for meetapp storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer.
type Store interface {
	UserStore
	FileStore
	MeetupStore
	SubscriptionStore

	// Close releases any resources held by the store.
	Close() error
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail returns nil and no error when no user has the email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID returns nil and no error when the user does not exist.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	UpdateUser(ctx context.Context, user *models.User) error
}

// FileStore persists uploaded file metadata.
type FileStore interface {
	CreateFile(ctx context.Context, file *models.File) error

	// GetFile returns ErrNotFound when the file does not exist.
	GetFile(ctx context.Context, id string) (*models.File, error)
}

// MeetupStore persists meetups. Meetups returned by the store have Banner
// populated when a banner is set; Past is left for the caller to compute.
type MeetupStore interface {
	// CreateMeetup persists a new meetup. ID and timestamps are generated
	// when empty.
	CreateMeetup(ctx context.Context, meetup *models.Meetup) error

	// GetMeetup returns ErrNotFound when the meetup does not exist.
	GetMeetup(ctx context.Context, id string) (*models.Meetup, error)

	// ListMeetupsByOrganizer returns the organizer's meetups by date ascending.
	ListMeetupsByOrganizer(ctx context.Context, organizerID string) ([]*models.Meetup, error)

	// UpdateMeetup overwrites the mutable fields of an existing meetup. It
	// returns ErrDateConflict, leaving the meetup unchanged, when one of its
	// subscribers holds another subscription dated at meetup.Date.
	UpdateMeetup(ctx context.Context, meetup *models.Meetup) error

	// DeleteMeetup removes a meetup and its subscriptions.
	DeleteMeetup(ctx context.Context, id string) error
}

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	// CreateSubscription atomically checks the subscription invariants and
	// inserts. It returns ErrAlreadySubscribed or ErrDateConflict when the
	// user already holds a subscription to the meetup or to another meetup
	// with the same date, and ErrNotFound when the meetup is gone.
	CreateSubscription(ctx context.Context, sub *models.Subscription) error

	// FindSubscription returns the user's subscription to a meetup, or nil.
	FindSubscription(ctx context.Context, userID, meetupID string) (*models.Subscription, error)

	// FindSubscriptionAt returns one of the user's subscriptions whose meetup
	// is dated exactly at date, or nil. Meetup is populated.
	FindSubscriptionAt(ctx context.Context, userID string, date time.Time) (*models.Subscription, error)

	// ListSubscriptionsAfter returns the user's subscriptions to meetups
	// dated strictly after t, ordered by meetup date ascending. Meetup is
	// populated.
	ListSubscriptionsAfter(ctx context.Context, userID string, t time.Time) ([]*models.Subscription, error)
}
