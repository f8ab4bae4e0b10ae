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

const meetupColumns = `
	m.id, m.user_id, m.title, m.description, m.location, m.date, m.banner_id,
	m.created_at, m.updated_at,
	f.id AS file_id, f.name AS file_name, f.path AS file_path, f.created_at AS file_created_at`

const meetupFrom = " FROM meetups m LEFT JOIN files f ON f.id = m.banner_id"

type meetupRow struct {
	ID            string         `db:"id"`
	OrganizerID   string         `db:"user_id"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	Location      string         `db:"location"`
	Date          time.Time      `db:"date"`
	BannerID      sql.NullString `db:"banner_id"`
	CreatedAt     int64          `db:"created_at"`
	UpdatedAt     int64          `db:"updated_at"`
	FileID        sql.NullString `db:"file_id"`
	FileName      sql.NullString `db:"file_name"`
	FilePath      sql.NullString `db:"file_path"`
	FileCreatedAt sql.NullInt64  `db:"file_created_at"`
}

func (r meetupRow) model() *models.Meetup {
	meetup := &models.Meetup{
		ID:          r.ID,
		OrganizerID: r.OrganizerID,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		Date:        r.Date.UTC(),
		BannerID:    r.BannerID.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.FileID.Valid {
		meetup.Banner = &models.File{
			ID:        r.FileID.String,
			Name:      r.FileName.String,
			Path:      r.FilePath.String,
			CreatedAt: r.FileCreatedAt.Int64,
		}
	}
	return meetup
}

// CreateMeetup persists a new meetup to the database.
func (s *Store) CreateMeetup(ctx context.Context, meetup *models.Meetup) error {
	if meetup.ID == "" {
		meetup.ID = uuid.New().String()
	}
	if meetup.CreatedAt == 0 {
		meetup.CreatedAt = time.Now().Unix()
		meetup.UpdatedAt = meetup.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meetups (id, user_id, title, description, location, date, banner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		meetup.ID, meetup.OrganizerID, meetup.Title, meetup.Description, meetup.Location,
		meetup.Date, nullString(meetup.BannerID), meetup.CreatedAt, meetup.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert meetup: %w", err)
	}

	return nil
}

// GetMeetup retrieves a meetup by ID, including its banner.
func (s *Store) GetMeetup(ctx context.Context, id string) (*models.Meetup, error) {
	var row meetupRow
	err := s.db.GetContext(ctx, &row, "SELECT"+meetupColumns+meetupFrom+" WHERE m.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meetup: %w", err)
	}

	return row.model(), nil
}

// ListMeetupsByOrganizer retrieves all meetups organized by a user.
func (s *Store) ListMeetupsByOrganizer(ctx context.Context, organizerID string) ([]*models.Meetup, error) {
	var rows []meetupRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT"+meetupColumns+meetupFrom+" WHERE m.user_id = $1 ORDER BY m.date ASC, m.created_at ASC",
		organizerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetups by organizer: %w", err)
	}

	meetups := make([]*models.Meetup, 0, len(rows))
	for _, row := range rows {
		meetups = append(meetups, row.model())
	}

	return meetups, nil
}

// UpdateMeetup updates an existing meetup. It returns ErrDateConflict when a
// subscriber already holds another subscription at the meetup's date.
func (s *Store) UpdateMeetup(ctx context.Context, meetup *models.Meetup) error {
	meetup.UpdatedAt = time.Now().Unix()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The row lock keeps new subscribers out; the advisory locks keep the
	// existing ones from subscribing elsewhere until commit.
	var id string
	err = tx.GetContext(ctx, &id, "SELECT id FROM meetups WHERE id = $1 FOR UPDATE", meetup.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock meetup: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext(user_id))
		 FROM subscriptions WHERE meetup_id = $1 ORDER BY hashtext(user_id)`,
		meetup.ID,
	); err != nil {
		return fmt.Errorf("failed to lock subscribers: %w", err)
	}

	var conflict bool
	err = tx.GetContext(ctx, &conflict,
		`SELECT EXISTS (
			SELECT 1 FROM subscriptions s
			JOIN subscriptions o ON o.user_id = s.user_id AND o.meetup_id <> s.meetup_id
			JOIN meetups om ON om.id = o.meetup_id
			WHERE s.meetup_id = $1 AND om.date = $2)`,
		meetup.ID, meetup.Date,
	)
	if err != nil {
		return fmt.Errorf("failed to check subscriber conflicts: %w", err)
	}
	if conflict {
		return storage.ErrDateConflict
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE meetups
		 SET title = $1, description = $2, location = $3, date = $4, banner_id = $5, updated_at = $6
		 WHERE id = $7`,
		meetup.Title, meetup.Description, meetup.Location, meetup.Date,
		nullString(meetup.BannerID), meetup.UpdatedAt, meetup.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update meetup: %w", err)
	}
	if err := expectOneRow(res, "updated meetup"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteMeetup removes a meetup by ID. Subscriptions are removed by cascade.
func (s *Store) DeleteMeetup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM meetups WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete meetup: %w", err)
	}

	return expectOneRow(res, "deleted meetup")
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", what, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
