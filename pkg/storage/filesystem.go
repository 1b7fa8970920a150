// Package storage persists the last assembled board export on disk.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/farol/pkg/domain/board"
	"github.com/felixgeelhaar/fortify/retry"
)

const FarolDir = ".farol"
const SnapshotFile = "snapshot.json"

// ErrSnapshotNotFound is returned when no export has been saved yet.
var ErrSnapshotNotFound = errors.New("no saved snapshot")

type FilesystemRepository struct {
	root        string
	retryConfig retry.Config
}

func NewFilesystemRepository(root string) *FilesystemRepository {
	return &FilesystemRepository{
		root: root,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Root returns the data root directory.
func (r *FilesystemRepository) Root() string {
	return r.root
}

// ResolvePath ensures the path is a direct child of the .farol directory.
func (r *FilesystemRepository) ResolvePath(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}

	baseDir := filepath.Join(r.root, FarolDir)
	cleanPath := filepath.Clean(filepath.Join(baseDir, filename))

	if !strings.HasPrefix(cleanPath, baseDir) || filepath.Dir(cleanPath) != baseDir {
		return "", fmt.Errorf("invalid file path: %s", filename)
	}

	return cleanPath, nil
}

func (r *FilesystemRepository) Initialize() error {
	path := filepath.Join(r.root, FarolDir)
	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", FarolDir, err)
	}
	return nil
}

// SaveSnapshot writes the export, replacing any previous one atomically.
func (r *FilesystemRepository) SaveSnapshot(export *board.Export) error {
	if export == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if err := r.Initialize(); err != nil {
		return err
	}
	path, err := r.ResolvePath(SnapshotFile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the saved export. Transient read failures are retried;
// a missing file yields ErrSnapshotNotFound immediately.
func (r *FilesystemRepository) LoadSnapshot(ctx context.Context) (*board.Export, error) {
	path, err := r.ResolvePath(SnapshotFile)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrSnapshotNotFound
	}

	retryer := retry.New[*board.Export](r.retryConfig)
	return retryer.Do(ctx, func(ctx context.Context) (*board.Export, error) {
		// #nosec G304 -- Path is resolved and validated via ResolvePath
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}

		var export board.Export
		if err := json.Unmarshal(data, &export); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		return &export, nil
	})
}
