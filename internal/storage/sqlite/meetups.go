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

// meetupColumns selects a meetup and its optional banner.
// Use with "FROM meetups m LEFT JOIN files f ON f.id = m.banner_id".
const meetupColumns = `
	m.id, m.user_id, m.title, m.description, m.location, m.date, m.banner_id,
	m.created_at, m.updated_at,
	f.id, f.name, f.path, f.created_at`

// CreateMeetup persists a new meetup to the database.
func (s *SQLiteStore) CreateMeetup(ctx context.Context, meetup *models.Meetup) error {
	// Generate IDs if not set
	if meetup.ID == "" {
		meetup.ID = uuid.New().String()
	}
	if meetup.CreatedAt == 0 {
		meetup.CreatedAt = time.Now().Unix()
		meetup.UpdatedAt = meetup.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meetups (id, user_id, title, description, location, date, banner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meetup.ID, meetup.OrganizerID, meetup.Title, meetup.Description, meetup.Location,
		meetup.Date.Unix(), nullString(meetup.BannerID), meetup.CreatedAt, meetup.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert meetup: %w", err)
	}

	return nil
}

// GetMeetup retrieves a meetup by ID, including its banner.
func (s *SQLiteStore) GetMeetup(ctx context.Context, id string) (*models.Meetup, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+meetupColumns+" FROM meetups m LEFT JOIN files f ON f.id = m.banner_id WHERE m.id = ?",
		id,
	)

	meetup, err := scanMeetup(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meetup: %w", err)
	}

	return meetup, nil
}

// ListMeetupsByOrganizer retrieves all meetups organized by a user.
func (s *SQLiteStore) ListMeetupsByOrganizer(ctx context.Context, organizerID string) ([]*models.Meetup, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT"+meetupColumns+` FROM meetups m LEFT JOIN files f ON f.id = m.banner_id
		 WHERE m.user_id = ? ORDER BY m.date ASC, m.created_at ASC`,
		organizerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetups by organizer: %w", err)
	}
	defer rows.Close()

	meetups := []*models.Meetup{}
	for rows.Next() {
		meetup, err := scanMeetup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meetup: %w", err)
		}
		meetups = append(meetups, meetup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meetups: %w", err)
	}

	return meetups, nil
}

// UpdateMeetup updates an existing meetup. It returns ErrDateConflict when a
// subscriber already holds another subscription at the meetup's date.
func (s *SQLiteStore) UpdateMeetup(ctx context.Context, meetup *models.Meetup) error {
	meetup.UpdatedAt = time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM subscriptions s
		 JOIN subscriptions o ON o.user_id = s.user_id AND o.meetup_id <> s.meetup_id
		 JOIN meetups om ON om.id = o.meetup_id
		 WHERE s.meetup_id = ? AND om.date = ? LIMIT 1`,
		meetup.ID, meetup.Date.Unix(),
	).Scan(&exists)
	if err == nil {
		return storage.ErrDateConflict
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check subscriber conflicts: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE meetups
		 SET title = ?, description = ?, location = ?, date = ?, banner_id = ?, updated_at = ?
		 WHERE id = ?`,
		meetup.Title, meetup.Description, meetup.Location, meetup.Date.Unix(),
		nullString(meetup.BannerID), meetup.UpdatedAt, meetup.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update meetup: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated meetup: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteMeetup removes a meetup by ID. Subscriptions are removed by cascade.
func (s *SQLiteStore) DeleteMeetup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM meetups WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete meetup: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted meetup: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// scanMeetup reads the columns listed in meetupColumns.
func scanMeetup(row scanner, extra ...any) (*models.Meetup, error) {
	meetup := &models.Meetup{}
	var (
		date               int64
		bannerID           sql.NullString
		fileID, name, path sql.NullString
		fileCreatedAt      sql.NullInt64
	)

	dest := append(extra,
		&meetup.ID, &meetup.OrganizerID, &meetup.Title, &meetup.Description, &meetup.Location,
		&date, &bannerID, &meetup.CreatedAt, &meetup.UpdatedAt,
		&fileID, &name, &path, &fileCreatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	meetup.Date = time.Unix(date, 0).UTC()
	meetup.BannerID = bannerID.String
	if fileID.Valid {
		meetup.Banner = &models.File{
			ID:        fileID.String,
			Name:      name.String,
			Path:      path.String,
			CreatedAt: fileCreatedAt.Int64,
		}
	}

	return meetup, nil
}
