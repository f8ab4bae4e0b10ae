package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mmynk/meetapp/internal/apperr"
	"github.com/mmynk/meetapp/internal/models"
	"github.com/mmynk/meetapp/internal/storage"
)

// FileService stores uploads on local disk.
type FileService struct {
	base
	dir      string
	baseURL  string
	maxBytes int64
}

// NewFileService creates a FileService writing under dir. Public URLs are
// built as baseURL + "/files/" + path.
func NewFileService(store storage.Store, dir, baseURL string, maxBytes int64, opts ...Option) (*FileService, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &FileService{
		base:     newBase(store, opts),
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
	}, nil
}

// Dir returns the upload directory.
func (s *FileService) Dir() string {
	return s.dir
}

// URL returns the public URL of a stored file.
func (s *FileService) URL(file *models.File) string {
	return s.baseURL + "/files/" + file.Path
}

// Store saves the content of r under a random name that keeps the
// extension of name, and records it.
func (s *FileService) Store(ctx context.Context, name string, r io.Reader) (*models.File, error) {
	s.logger.Info("StoreFile request received", "name", name)

	if name == "" {
		return nil, apperr.Validation(map[string]string{"file": "is required"})
	}

	path := uuid.New().String() + strings.ToLower(filepath.Ext(name))
	full := filepath.Join(s.dir, path)

	if err := s.write(full, r); err != nil {
		os.Remove(full)
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, s.unexpected("WriteFile", err, "name", name)
	}

	file := &models.File{Name: name, Path: path}
	if err := s.store.CreateFile(ctx, file); err != nil {
		os.Remove(full)
		return nil, s.unexpected("CreateFile", err, "name", name)
	}

	s.logger.Info("File stored", "file_id", file.ID, "path", path)
	return file, nil
}

// Get returns the metadata of a stored file.
func (s *FileService) Get(ctx context.Context, id string) (*models.File, error) {
	file, err := s.store.GetFile(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(apperr.MsgFileNotFound)
	}
	if err != nil {
		return nil, s.unexpected("GetFile", err, "file_id", id)
	}
	return file, nil
}

func (s *FileService) write(full string, r io.Reader) error {
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		return err
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return apperr.Validation(map[string]string{
			"file": fmt.Sprintf("must be at most %d bytes", s.maxBytes),
		})
	}
	return f.Close()
}
