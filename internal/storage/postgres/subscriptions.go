package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/storage"
)

const subscriptionWithMeetup = `
	SELECT s.id AS sub_id, s.meetup_id AS sub_meetup_id, s.user_id AS subscriber_id,
	       s.created_at AS sub_created_at,` + meetupColumns + `
	FROM subscriptions s
	JOIN meetups m ON m.id = s.meetup_id
	LEFT JOIN files f ON f.id = m.banner_id`

const lockSubscriber = "SELECT pg_advisory_xact_lock(hashtext($1))"

type subscriptionRow struct {
	SubID        string `db:"sub_id"`
	MeetupID     string `db:"sub_meetup_id"`
	UserID       string `db:"subscriber_id"`
	SubCreatedAt int64  `db:"sub_created_at"`
	meetupRow
}

func (r subscriptionRow) model() *models.Subscription {
	return &models.Subscription{
		ID:        r.SubID,
		MeetupID:  r.MeetupID,
		UserID:    r.UserID,
		CreatedAt: r.SubCreatedAt,
		Meetup:    r.meetupRow.model(),
	}
}

// CreateSubscription checks the subscription invariants and inserts the
// subscription in one transaction. Concurrent subscriptions of the same
// user are serialized with a transaction-scoped advisory lock, taken after
// the shared lock on the meetup row.
func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt == 0 {
		sub.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Meetup row first, then the subscriber: UpdateMeetup locks in the
	// same order.
	var date time.Time
	err = tx.GetContext(ctx, &date, "SELECT date FROM meetups WHERE id = $1 FOR SHARE", sub.MeetupID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get meetup date: %w", err)
	}

	if _, err := tx.ExecContext(ctx, lockSubscriber, sub.UserID); err != nil {
		return fmt.Errorf("failed to lock subscriber: %w", err)
	}

	var exists bool
	err = tx.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1 AND meetup_id = $2)",
		sub.UserID, sub.MeetupID,
	)
	if err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	if exists {
		return storage.ErrAlreadySubscribed
	}

	err = tx.GetContext(ctx, &exists,
		`SELECT EXISTS (
			SELECT 1 FROM subscriptions s JOIN meetups m ON m.id = s.meetup_id
			WHERE s.user_id = $1 AND m.date = $2 AND m.id <> $3)`,
		sub.UserID, date, sub.MeetupID,
	)
	if err != nil {
		return fmt.Errorf("failed to check date conflict: %w", err)
	}
	if exists {
		return storage.ErrDateConflict
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO subscriptions (id, meetup_id, user_id, created_at) VALUES ($1, $2, $3, $4)",
		sub.ID, sub.MeetupID, sub.UserID, sub.CreatedAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrAlreadySubscribed
	}
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindSubscription retrieves a user's subscription to a meetup.
func (s *Store) FindSubscription(ctx context.Context, userID, meetupID string) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := s.db.QueryRowxContext(ctx,
		"SELECT id, meetup_id, user_id, created_at FROM subscriptions WHERE user_id = $1 AND meetup_id = $2",
		userID, meetupID,
	).Scan(&sub.ID, &sub.MeetupID, &sub.UserID, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}

	return sub, nil
}

// FindSubscriptionAt retrieves one of the user's subscriptions to a meetup
// dated exactly at date.
func (s *Store) FindSubscriptionAt(ctx context.Context, userID string, date time.Time) (*models.Subscription, error) {
	var row subscriptionRow
	err := s.db.GetContext(ctx, &row,
		subscriptionWithMeetup+" WHERE s.user_id = $1 AND m.date = $2 LIMIT 1",
		userID, date,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription by date: %w", err)
	}

	return row.model(), nil
}

// ListSubscriptionsAfter retrieves the user's subscriptions to meetups
// dated after t, soonest first.
func (s *Store) ListSubscriptionsAfter(ctx context.Context, userID string, t time.Time) ([]*models.Subscription, error) {
	var rows []subscriptionRow
	err := s.db.SelectContext(ctx, &rows,
		subscriptionWithMeetup+" WHERE s.user_id = $1 AND m.date > $2 ORDER BY m.date ASC, s.created_at ASC",
		userID, t,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	subs := make([]*models.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.model())
	}

	return subs, nil
}
