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

// CreateFile records an uploaded file.
func (s *SQLiteStore) CreateFile(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if file.CreatedAt == 0 {
		file.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO files (id, name, path, created_at) VALUES (?, ?, ?, ?)",
		file.ID, file.Name, file.Path, file.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	return nil
}

// GetFile retrieves file metadata by ID.
func (s *SQLiteStore) GetFile(ctx context.Context, id string) (*models.File, error) {
	file := &models.File{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, path, created_at FROM files WHERE id = ?",
		id,
	).Scan(&file.ID, &file.Name, &file.Path, &file.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return file, nil
}
