package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/storage"
)

const subscriptionWithMeetup = `
	SELECT s.id, s.meetup_id, s.user_id, s.created_at,` + meetupColumns + `
	FROM subscriptions s
	JOIN meetups m ON m.id = s.meetup_id
	LEFT JOIN files f ON f.id = m.banner_id`

// CreateSubscription checks the subscription invariants and inserts the
// subscription in one transaction.
func (s *SQLiteStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt == 0 {
		sub.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var date int64
	err = tx.QueryRowContext(ctx, "SELECT date FROM meetups WHERE id = ?", sub.MeetupID).Scan(&date)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get meetup date: %w", err)
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM subscriptions WHERE user_id = ? AND meetup_id = ?",
		sub.UserID, sub.MeetupID,
	).Scan(&exists)
	if err == nil {
		return storage.ErrAlreadySubscribed
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check subscription: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM subscriptions s JOIN meetups m ON m.id = s.meetup_id
		 WHERE s.user_id = ? AND m.date = ? AND m.id <> ? LIMIT 1`,
		sub.UserID, date, sub.MeetupID,
	).Scan(&exists)
	if err == nil {
		return storage.ErrDateConflict
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check date conflict: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO subscriptions (id, meetup_id, user_id, created_at) VALUES (?, ?, ?, ?)",
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
func (s *SQLiteStore) FindSubscription(ctx context.Context, userID, meetupID string) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, meetup_id, user_id, created_at FROM subscriptions WHERE user_id = ? AND meetup_id = ?",
		userID, meetupID,
	).Scan(&sub.ID, &sub.MeetupID, &sub.UserID, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}

	return sub, nil
}

// FindSubscriptionAt retrieves one of the user's subscriptions to a meetup
// dated exactly at date.
func (s *SQLiteStore) FindSubscriptionAt(ctx context.Context, userID string, date time.Time) (*models.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		subscriptionWithMeetup+" WHERE s.user_id = ? AND m.date = ? LIMIT 1",
		userID, date.Unix(),
	)

	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription by date: %w", err)
	}

	return sub, nil
}

// ListSubscriptionsAfter retrieves the user's subscriptions to meetups
// dated after t, soonest first.
func (s *SQLiteStore) ListSubscriptionsAfter(ctx context.Context, userID string, t time.Time) ([]*models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		subscriptionWithMeetup+" WHERE s.user_id = ? AND m.date > ? ORDER BY m.date ASC, s.created_at ASC",
		userID, t.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*models.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return subs, nil
}

func scanSubscription(row scanner) (*models.Subscription, error) {
	sub := &models.Subscription{}
	meetup, err := scanMeetup(row, &sub.ID, &sub.MeetupID, &sub.UserID, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	sub.Meetup = meetup
	return sub, nil
}
