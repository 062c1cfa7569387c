// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package util provides path resolution and file helpers shared by the
// localassist packages.
package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// EnvStateDir overrides the state directory root.
	EnvStateDir = "LOCALASSIST_STATE_DIR"
	// EnvReadOnly puts the state box into read-only mode when set to "1".
	EnvReadOnly = "LOCALASSIST_READONLY"

	defaultStateDir = "~/.localassist"
)

// ErrReadOnlyMode is returned when a write is attempted on a read-only state box.
var ErrReadOnlyMode = errors.New("read-only environment: write operations disabled")

// StateBox manages the canonical state directory for localassist.
// Every mutable file (feedback database, exports, backups, learner state)
// is resolved through it so that a single environment variable relocates
// all of them.
type StateBox struct {
	rootPath string
	readOnly bool
	mu       sync.RWMutex
}

// NewStateBox creates a StateBox from LOCALASSIST_STATE_DIR and
// LOCALASSIST_READONLY. The root defaults to ~/.localassist.
func NewStateBox() (*StateBox, error) {
	stateDir := os.Getenv(EnvStateDir)
	if stateDir == "" {
		stateDir = defaultStateDir
	}
	return NewStateBoxAt(stateDir, os.Getenv(EnvReadOnly) == "1")
}

// NewStateBoxAt creates a StateBox rooted at dir.
func NewStateBoxAt(dir string, readOnly bool) (*StateBox, error) {
	resolvedPath, err := ExpandPath(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state directory: %w", err)
	}
	return &StateBox{
		rootPath: resolvedPath,
		readOnly: readOnly,
	}, nil
}

// RootPath returns the resolved State Box root directory.
func (sb *StateBox) RootPath() string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.rootPath
}

// IsReadOnly returns whether the State Box is in read-only mode.
func (sb *StateBox) IsReadOnly() bool {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.readOnly
}

// SetReadOnly toggles read-only mode.
func (sb *StateBox) SetReadOnly(readOnly bool) {
	sb.mu.Lock()
	sb.readOnly = readOnly
	sb.mu.Unlock()
}

// DataDir returns the directory holding the feedback database.
func (sb *StateBox) DataDir() string {
	return filepath.Join(sb.RootPath(), "data")
}

// ExportDir returns the default directory for training-data exports.
func (sb *StateBox) ExportDir() string {
	return filepath.Join(sb.RootPath(), "data", "rlhf_exports")
}

// LogsDir returns the directory used for rotating log files.
func (sb *StateBox) LogsDir() string {
	return filepath.Join(sb.RootPath(), "logs")
}

// ResolvePath joins a relative path with the State Box root.
// Absolute and tilde-prefixed paths are returned expanded and cleaned.
func (sb *StateBox) ResolvePath(relativePath string) string {
	if relativePath == "" {
		return sb.RootPath()
	}

	if strings.HasPrefix(relativePath, "~") || filepath.IsAbs(relativePath) {
		cleaned, err := ExpandPath(relativePath)
		if err != nil {
			return filepath.Clean(relativePath)
		}
		return cleaned
	}

	return filepath.Join(sb.RootPath(), relativePath)
}

// EnsureDir creates a directory with 0700 permissions if it doesn't exist.
// It returns ErrReadOnlyMode when the directory is missing and the box is read-only.
func (sb *StateBox) EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path exists but is not a directory: %s", path)
		}
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat directory %s: %w", path, err)
	}

	if sb.IsReadOnly() {
		return ErrReadOnlyMode
	}

	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// ExpandPath expands a leading tilde to the user's home directory and
// returns a cleaned absolute path.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
