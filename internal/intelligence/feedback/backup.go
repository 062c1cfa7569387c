// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/util"
)

// DefaultBackupPath returns <db dir>/backups/feedback_backup_<YYYYmmdd_HHMMSS>.db.
func (s *Store) DefaultBackupPath(now time.Time) string {
	name := fmt.Sprintf("feedback_backup_%s.db", now.Format("20060102_150405"))
	return filepath.Join(filepath.Dir(s.path), "backups", name)
}

// Backup writes a consistent snapshot of the store to dest using VACUUM
// INTO. An empty dest selects DefaultBackupPath.
//
// Returns:
//   - string: The snapshot path
//   - error: ErrReadOnlyMode, an existing dest, or a database failure
func (s *Store) Backup(ctx context.Context, dest string) (string, error) {
	if s.readOnly() {
		return "", util.ErrReadOnlyMode
	}
	if dest == "" {
		dest = s.DefaultBackupPath(time.Now())
	}
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup target %s already exists", dest)
	}

	dir := filepath.Dir(dest)
	if s.sb != nil {
		if err := s.sb.EnsureDir(dir); err != nil {
			return "", err
		}
	} else if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	err := s.run(ctx, false, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
			return fmt.Errorf("failed to back up feedback store: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := os.Chmod(dest, 0600); err != nil {
		log.Warnf("failed to restrict permissions of %s: %v", dest, err)
	}
	log.Infof("feedback store backed up to %s", dest)
	return dest, nil
}

// Restore replaces the store with the snapshot at src. The snapshot must
// carry the current layout. The live file is backed up first.
//
// Returns:
//   - string: The path of the pre-restore backup, empty when there was no live file
//   - error: Any validation or copy failure
func (s *Store) Restore(ctx context.Context, src string) (string, error) {
	if s.readOnly() {
		return "", util.ErrReadOnlyMode
	}
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("backup file not found: %w", err)
	}
	if err := validateSnapshot(ctx, src); err != nil {
		return "", fmt.Errorf("invalid backup %s: %w", src, err)
	}

	var previous string
	if _, err := os.Stat(s.path); err == nil {
		p, err := s.Backup(ctx, "")
		if err != nil {
			return "", fmt.Errorf("failed to back up current store before restore: %w", err)
		}
		previous = p
	} else if err := s.ensureDir(); err != nil {
		return "", err
	}

	if err := s.sb.Snapshot(src, s.path); err != nil {
		return previous, fmt.Errorf("failed to restore feedback store: %w", err)
	}
	log.Infof("feedback store restored from %s", src)
	return previous, nil
}

func validateSnapshot(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return err
	}
	defer db.Close()
	return checkSchema(ctx, db)
}
