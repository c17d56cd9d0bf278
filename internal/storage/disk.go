package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"storefront/internal/models"
)

// DiskStore keeps assets as files in a single directory.
type DiskStore struct {
	root   string
	namer  Namer
	logger zerolog.Logger
}

// NewDiskStore creates root if needed and returns a store writing into it.
func NewDiskStore(root string, logger zerolog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory %s: %w", root, err)
	}
	return &DiskStore{
		root:   root,
		namer:  DefaultNamer(),
		logger: logger.With().Str("component", "disk-asset-store").Logger(),
	}, nil
}

// WithNamer replaces the naming source.
func (s *DiskStore) WithNamer(n Namer) *DiskStore {
	s.namer = n
	return s
}

// Store writes r to a new file. The file is created exclusively so an
// existing asset is never overwritten.
func (s *DiskStore) Store(ctx context.Context, field, originalFilename string, r io.Reader) (string, error) {
	var (
		f    *os.File
		name string
		err  error
	)
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name, err = s.namer.Name(field, originalFilename)
		if err != nil {
			return "", err
		}
		f, err = os.OpenFile(filepath.Join(s.root, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil || !errors.Is(err, fs.ErrExist) {
			break
		}
		s.logger.Warn().Str("stored_name", name).Msg("stored name already taken, drawing another")
	}
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %v", models.ErrStorageWrite, name, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: write %s: %v", models.ErrStorageWrite, name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: close %s: %v", models.ErrStorageWrite, name, err)
	}

	s.logger.Debug().Str("stored_name", name).Str("original_name", originalFilename).Msg("asset stored")
	return name, nil
}

// Open opens a stored file for reading.
func (s *DiskStore) Open(ctx context.Context, storedName string) (io.ReadCloser, string, error) {
	if !validName(storedName) {
		return nil, "", fmt.Errorf("asset %q: %w", storedName, models.ErrNotFound)
	}
	f, err := os.Open(filepath.Join(s.root, storedName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("asset %q: %w", storedName, models.ErrNotFound)
		}
		return nil, "", fmt.Errorf("failed to open asset %s: %w", storedName, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(storedName))
	if contentType == "" {
		mt, err := mimetype.DetectReader(f)
		if err == nil {
			contentType = mt.String()
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("failed to rewind asset %s: %w", storedName, err)
		}
	}
	return f, contentType, nil
}

// Delete removes a stored file.
func (s *DiskStore) Delete(ctx context.Context, storedName string) error {
	if !validName(storedName) {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, storedName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete asset %s: %w", storedName, err)
	}
	return nil
}
