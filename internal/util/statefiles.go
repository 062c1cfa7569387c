// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ErrCorruptState is returned by ReadJSON when neither a state file nor its
// backup decodes.
var ErrCorruptState = errors.New("state file is corrupt")

// WriteOptions controls how a state file is replaced.
type WriteOptions struct {
	// KeepBackup copies the current file to <path>.bak before replacing it.
	KeepBackup bool
	// Perm is the mode of the written file (default 0600).
	Perm os.FileMode
}

// BackupPath returns the path of the backup kept next to a state file.
func BackupPath(path string) string {
	return path + ".bak"
}

// WriteFile atomically replaces path with data. A nil state box writes the
// path as given; a read-only one refuses with ErrReadOnlyMode.
func (sb *StateBox) WriteFile(path string, data []byte, opts WriteOptions) error {
	if sb.readOnlyBox() {
		return ErrReadOnlyMode
	}
	path = sb.resolve(path)
	if opts.KeepBackup {
		if err := sb.keepBackup(path); err != nil {
			// The new content is still written; only the previous generation is lost.
			sb.logger().WithError(err).Warnf("no backup kept for %s", filepath.Base(path))
		}
	}
	return writeAtomic(path, opts.perm(), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteJSON encodes v as indented JSON and writes it with WriteFile.
func (sb *StateBox) WriteJSON(path string, v interface{}, opts WriteOptions) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return sb.WriteFile(path, append(data, '\n'), opts)
}

// ReadJSON decodes the state file at path into v.
//
// A missing file yields an error matching os.ErrNotExist. When the file does
// not decode, the backup written by WriteJSON is tried instead; if that
// succeeds the damaged file is moved aside to <path>.corrupt-<timestamp> so
// the next save does not rotate it into the backup slot. When both fail the
// error matches ErrCorruptState.
func (sb *StateBox) ReadJSON(path string, v interface{}) error {
	path = sb.resolve(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	decodeErr := json.Unmarshal(data, v)
	if decodeErr == nil {
		return nil
	}

	entry := sb.logger().WithField("file", filepath.Base(path))
	backup, err := os.ReadFile(BackupPath(path))
	if err != nil || json.Unmarshal(backup, v) != nil {
		entry.WithError(decodeErr).Warn("state file and its backup are unreadable")
		return fmt.Errorf("%w: %s: %v", ErrCorruptState, filepath.Base(path), decodeErr)
	}
	entry.WithError(decodeErr).Warn("state file is damaged, recovered from backup")
	sb.quarantine(path)
	return nil
}

// Snapshot copies src over dst atomically with 0600 permissions. The feedback
// store uses it to keep a copy before repair and to install a restored
// database.
func (sb *StateBox) Snapshot(src, dst string) error {
	if sb.readOnlyBox() {
		return ErrReadOnlyMode
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	dst = sb.resolve(dst)
	if err := writeAtomic(dst, 0600, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return err
	}
	sb.logger().Debugf("copied %s to %s", filepath.Base(src), dst)
	return nil
}

// WriteFileAtomic replaces path with data outside any state box, for files
// such as training-data exports that live wherever the user points them.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if perm == 0 {
		perm = 0600
	}
	return writeAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func (o WriteOptions) perm() os.FileMode {
	if o.Perm == 0 {
		return 0600
	}
	return o.Perm
}

func (sb *StateBox) readOnlyBox() bool {
	return sb != nil && sb.IsReadOnly()
}

func (sb *StateBox) resolve(path string) string {
	if sb == nil {
		return path
	}
	return sb.ResolvePath(path)
}

func (sb *StateBox) logger() *log.Entry {
	if sb == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return log.WithField("state_dir", sb.RootPath())
}

func (sb *StateBox) keepBackup(path string) error {
	in, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()
	return writeAtomic(BackupPath(path), 0600, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func (sb *StateBox) quarantine(path string) {
	if sb.readOnlyBox() {
		return
	}
	target := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102_150405"))
	if err := os.Rename(path, target); err != nil {
		sb.logger().WithError(err).Warnf("could not move aside %s", filepath.Base(path))
		return
	}
	sb.logger().Infof("damaged state file moved to %s", filepath.Base(target))
}

// writeAtomic fills a temp file in the target directory, fsyncs it and
// renames it over path. A crash leaves either the old or the new content.
func writeAtomic(path string, perm os.FileMode, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp := fmt.Sprintf("%s.tmp.%s", path, uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmp)
		}
	}()

	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to fsync %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	renamed = true

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
