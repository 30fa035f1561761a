package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// PhotoStore persists venue photos.
type PhotoStore interface {
	// Save writes data under a new unique name and returns its path.
	Save(ctx context.Context, data []byte) (string, error)
	// Remove deletes a stored photo. Missing files are not an error.
	Remove(ctx context.Context, path string) error
}

type filePhotoStore struct {
	dir string
}

// NewFilePhotoStore stores photos as <uuid>.jpg files under dir.
func NewFilePhotoStore(dir string) PhotoStore {
	return &filePhotoStore{dir: dir}
}

var _ PhotoStore = (*filePhotoStore)(nil)

func (s *filePhotoStore) Save(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty photo")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	path := filepath.Join(s.dir, uuid.NewString()+".jpg")
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store photo: %w", err)
	}
	return path, nil
}

func (s *filePhotoStore) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove photo: %w", err)
	}
	return nil
}
