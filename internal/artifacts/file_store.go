package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-features/pkg/logger"
)

// FileStore keeps one JSON file per artifact in a directory.
type FileStore struct {
	dir string
	log *logrus.Entry
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &FileStore{dir: dir, log: logger.WithArtifact("file", "")}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", key, ErrArtifactExists)
		}
		return fmt.Errorf("failed to create artifact %s: %w", key, err)
	}
	if _, err := f.Write(blob); err != nil {
		_ = f.Close()
		_ = os.Remove(s.path(key))
		return fmt.Errorf("failed to write artifact %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close artifact %s: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{
		"artifact": key,
		"bytes":    len(blob),
	}).Debug("Stored artifact")
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("failed to read artifact %s: %w", key, err)
	}
	return blob, nil
}

func (s *FileStore) Backend() string {
	return "file"
}
