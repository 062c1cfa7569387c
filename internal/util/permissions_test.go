// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAuditPermissions_ReportsWithoutChanging(t *testing.T) {
	root := t.TempDir()
	sb, _ := NewStateBoxAt(root, false)

	dbPath := filepath.Join(root, "feedback.db")
	if err := os.WriteFile(dbPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	results, err := AuditPermissions(sb)
	if err != nil {
		t.Fatalf("AuditPermissions() failed: %v", err)
	}

	var found bool
	for _, r := range results {
		if r.Path == dbPath {
			found = true
			if !r.NeedsCorrection() {
				t.Error("Expected 0644 database file to need correction")
			}
			if r.WasCorrected {
				t.Error("Audit must not correct permissions")
			}
		}
	}
	if !found {
		t.Fatal("database file missing from audit results")
	}

	info, _ := os.Stat(dbPath)
	if info.Mode().Perm() != 0644 {
		t.Errorf("Audit changed permissions to %v", info.Mode().Perm())
	}
}

func TestHardenPermissions_Corrects(t *testing.T) {
	root := t.TempDir()
	sb, _ := NewStateBoxAt(root, false)

	sub := filepath.Join(root, "data")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]os.FileMode{
		filepath.Join(sub, "feedback.db"):        0600,
		filepath.Join(sub, "feedback.db.backup"): 0600,
		filepath.Join(sub, "state.json"):         0600,
		filepath.Join(sub, "notes.txt"):          0644,
	}
	for path := range files {
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := HardenPermissions(sb); err != nil {
		t.Fatalf("HardenPermissions() failed: %v", err)
	}

	info, _ := os.Stat(sub)
	if info.Mode().Perm() != 0700 {
		t.Errorf("Expected directory mode 0700, got %v", info.Mode().Perm())
	}
	for path, want := range files {
		info, _ := os.Stat(path)
		if info.Mode().Perm() != want {
			t.Errorf("%s: expected %v, got %v", filepath.Base(path), want, info.Mode().Perm())
		}
	}
}

func TestHardenPermissions_ReadOnly(t *testing.T) {
	sb, _ := NewStateBoxAt(t.TempDir(), true)
	if _, err := HardenPermissions(sb); err != ErrReadOnlyMode {
		t.Errorf("Expected ErrReadOnlyMode, got %v", err)
	}
}

func TestHardenPermissions_NonExistentRoot(t *testing.T) {
	sb, _ := NewStateBoxAt(filepath.Join(t.TempDir(), "missing"), false)
	results, err := HardenPermissions(sb)
	if err != nil || len(results) != 0 {
		t.Errorf("Expected no results and no error, got %v, %v", results, err)
	}
}

func TestHideAPIKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"sk-1234567890abcd", "sk-1...abcd"},
		{"abcdef", "ab...ef"},
		{"abc", "a...c"},
		{"ab", "ab"},
	}
	for _, tt := range tests {
		if got := HideAPIKey(tt.in); got != tt.want {
			t.Errorf("HideAPIKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := MaskAuthorizationHeader("Bearer sk-1234567890abcd"); got != "Bearer sk-1...abcd" {
		t.Errorf("unexpected mask %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("xin chào", 3); got != "xin..." {
		t.Errorf("got %q", got)
	}
	if got := Truncate("ngắn", 10); got != "ngắn" {
		t.Errorf("got %q", got)
	}
}
