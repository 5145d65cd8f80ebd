// Copyright (c) 2025 @AmarnathCJD

// Package session persists long-polling offsets so a restarted poller
// resumes after the last update it handled.
package session

import "errors"

// OffsetStore is the interface which allows you to keep poll offsets in
// different storages (filesystem, memory).
type OffsetStore interface {
	// Load returns the next offset for botID, 0 when none was stored.
	Load(botID string) (int64, error)
	Store(botID string, offset int64) error
	Path() string
	Delete() error
}

var (
	ErrNotDirectory = errors.New("not a directory")
	ErrPathNotFound = "file not found"
)
