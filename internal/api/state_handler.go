// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/traylinx/localassist/internal/util"
)

// Permission status values of StateStatus.
const (
	PermissionOK      = "ok"
	PermissionWarning = "warning"
	PermissionError   = "error"
)

// StateStatus describes the state directory and the files kept in it.
type StateStatus struct {
	RootPath         string                 `json:"root_path"`
	ReadOnly         bool                   `json:"read_only"`
	Files            map[string]*FileStatus `json:"files"`
	PermissionStatus string                 `json:"permission_status"`
	Warnings         []string               `json:"warnings"`
	Errors           []string               `json:"errors"`
}

// FileStatus is the on-disk status of one state file.
type FileStatus struct {
	Path    string    `json:"path"`
	Exists  bool      `json:"exists"`
	Size    int64     `json:"size"`
	Mode    string    `json:"mode,omitempty"`
	ModTime time.Time `json:"mod_time,omitempty"`
}

func fileStatus(path string) (*FileStatus, os.FileMode) {
	status := &FileStatus{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		return status, 0
	}
	status.Exists = true
	status.Size = info.Size()
	status.Mode = info.Mode().String()
	status.ModTime = info.ModTime()
	return status, info.Mode().Perm()
}

// StateStatusHandler returns a handler for GET /v1/state. files returns the
// state files to report, keyed by name; files readable by group or others
// raise a warning.
func StateStatusHandler(sb *util.StateBox, files func() map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sb == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state directory not initialized"})
			return
		}

		status := &StateStatus{
			RootPath:         sb.RootPath(),
			ReadOnly:         sb.IsReadOnly(),
			Files:            map[string]*FileStatus{},
			PermissionStatus: PermissionOK,
			Warnings:         []string{},
			Errors:           []string{},
		}
		warn := func(msg string) {
			status.Warnings = append(status.Warnings, msg)
			if status.PermissionStatus == PermissionOK {
				status.PermissionStatus = PermissionWarning
			}
		}

		if _, err := os.Stat(sb.RootPath()); err != nil {
			if os.IsNotExist(err) {
				warn("state directory does not exist")
			} else {
				status.Errors = append(status.Errors, "failed to access state directory")
				status.PermissionStatus = PermissionError
			}
		}

		var paths map[string]string
		if files != nil {
			paths = files()
		}
		names := make([]string, 0, len(paths))
		for name := range paths {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if paths[name] == "" {
				continue
			}
			fs, perm := fileStatus(paths[name])
			status.Files[name] = fs
			if fs.Exists && perm&0077 != 0 {
				warn(name + " has overly permissive permissions")
			}
		}

		c.JSON(http.StatusOK, status)
	}
}
