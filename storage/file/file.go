// Package file provides a JSON-file implementation of the routequota.Storage interface.
// The whole state lives in one small file that is replaced atomically on save.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/mihaimyh/routequota/pkg/routequota"
)

// DefaultPath is the counter file used when no path is configured
const DefaultPath = ".api_quota.json"

// Config holds file storage configuration
type Config struct {
	// Path is the counter file location (default: DefaultPath)
	Path string

	// Perm is the file mode for new files (default: 0o600)
	Perm fs.FileMode
}

// Storage implements routequota.Storage using a JSON file
type Storage struct {
	path string
	perm fs.FileMode
}

// New creates a new file storage adapter
func New(config Config) (*Storage, error) {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.Perm == 0 {
		config.Perm = 0o600
	}
	return &Storage{path: config.Path, perm: config.Perm}, nil
}

// Path returns the counter file location
func (s *Storage) Path() string {
	return s.path
}

// LoadState implements routequota.Storage
func (s *Storage) LoadState(ctx context.Context) (*routequota.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil // No state yet is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read quota file: %w", err)
	}

	var state routequota.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", routequota.ErrCorruptState, s.path, err)
	}
	return &state, nil
}

// SaveState implements routequota.Storage.
// The new content is written to a temporary file in the same directory and
// renamed over the old one, so a crash never leaves a truncated counter.
func (s *Storage) SaveState(ctx context.Context, state *routequota.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("state is required")
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode quota state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create quota directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write quota file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync quota file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close quota file: %w", err)
	}
	if err := os.Chmod(tmpName, s.perm); err != nil {
		return fmt.Errorf("failed to set quota file mode: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace quota file: %w", err)
	}
	return nil
}
