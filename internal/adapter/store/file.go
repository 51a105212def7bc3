package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/pkg/logger"
)

var ErrInvalidKey = errors.New("invalid store key")

// FileStore keeps one file per key under dir, so state survives across
// processes (the CLI and the server can share a directory).
type FileStore struct {
	dir         string
	retryConfig retry.Config
	log         *logger.Logger
}

var _ ports.KVStore = (*FileStore)(nil)

func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{
		dir: dir,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		log: log,
	}, nil
}

// resolvePath maps a key to a direct child of the store directory.
func (s *FileStore) resolvePath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	path := filepath.Join(s.dir, key+".json")
	if filepath.Dir(path) != filepath.Clean(s.dir) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	path, err := s.resolvePath(key)
	if err != nil {
		return "", false, err
	}

	found := true
	value, err := retry.New[string](s.retryConfig).Do(ctx, func(ctx context.Context) (string, error) {
		// #nosec G304 -- path is resolved and validated via resolvePath
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			found = false
			return "", nil
		}
		return string(data), err
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, found, nil
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	path, err := s.resolvePath(key)
	if err != nil {
		return err
	}

	_, err = retry.New[struct{}](s.retryConfig).Do(ctx, func(ctx context.Context) (struct{}, error) {
		tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
		if err != nil {
			return struct{}{}, err
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.WriteString(value); err != nil {
			tmp.Close()
			return struct{}{}, err
		}
		if err := tmp.Close(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, os.Rename(tmp.Name(), path)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.log.Debug("Store set", "backend", "file", "key", key)
	return nil
}

func (s *FileStore) Remove(ctx context.Context, key string) error {
	path, err := s.resolvePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	s.log.Debug("Store remove", "backend", "file", "key", key)
	return nil
}
