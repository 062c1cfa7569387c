// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// AuditResult describes the permission state of one path under the state box.
type AuditResult struct {
	Path         string
	CurrentMode  os.FileMode
	RequiredMode os.FileMode
	WasCorrected bool
	Error        error
}

// NeedsCorrection reports whether the path's mode differs from the required one.
func (r AuditResult) NeedsCorrection() bool {
	return r.Error == nil && r.CurrentMode != r.RequiredMode
}

// AuditPermissions walks the state box and reports the mode of every
// directory and every file holding feedback data (databases, backups,
// exports and learner state). Nothing is modified.
func AuditPermissions(sb *StateBox) ([]AuditResult, error) {
	return walkPermissions(sb, false)
}

// HardenPermissions walks the state box and chmods directories to 0700 and
// feedback data files to 0600. Individual failures are logged and recorded
// in the returned results.
func HardenPermissions(sb *StateBox) ([]AuditResult, error) {
	if sb != nil && sb.IsReadOnly() {
		return nil, ErrReadOnlyMode
	}
	return walkPermissions(sb, true)
}

func walkPermissions(sb *StateBox, fix bool) ([]AuditResult, error) {
	if sb == nil {
		return nil, fmt.Errorf("StateBox cannot be nil")
	}

	root := sb.RootPath()
	if _, err := os.Stat(root); os.IsNotExist(err) {
		log.Debugf("permission audit: state dir %s does not exist", root)
		return nil, nil
	}

	var results []AuditResult
	corrected := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warnf("permission audit: failed to access %s: %v", path, err)
			results = append(results, AuditResult{Path: path, Error: err})
			return nil
		}

		var required os.FileMode
		switch {
		case info.IsDir():
			required = 0700
		case isSensitiveFile(path):
			required = 0600
		default:
			return nil
		}

		res := AuditResult{Path: path, CurrentMode: info.Mode().Perm(), RequiredMode: required}
		if fix && res.NeedsCorrection() {
			if chmodErr := os.Chmod(path, required); chmodErr != nil {
				log.Warnf("permission hardening: failed to chmod %s: %v", path, chmodErr)
				res.Error = chmodErr
			} else {
				res.WasCorrected = true
				corrected++
			}
		}
		results = append(results, res)
		return nil
	})
	if err != nil {
		return results, fmt.Errorf("failed to walk state directory: %w", err)
	}

	if corrected > 0 {
		log.Infof("permission hardening: corrected %d paths", corrected)
	}
	return results, nil
}

// isSensitiveFile matches SQLite files (including backups) and JSON/JSONL documents.
func isSensitiveFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	switch filepath.Ext(name) {
	case ".db", ".json", ".jsonl", ".backup":
		return true
	}
	return strings.HasSuffix(name, ".db.backup")
}
