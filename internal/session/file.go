// Copyright (c) 2025 @AmarnathCJD

package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"errors"
)

type fileOffsetStore struct {
	mu         sync.Mutex
	path       string
	lastEdited time.Time
	cached     map[string]int64
}

var _ OffsetStore = (*fileOffsetStore)(nil)

// NewFromFile keeps offsets in a JSON file at path. The directory must exist.
func NewFromFile(path string) OffsetStore {
	return &fileOffsetStore{path: path}
}

func (l *fileOffsetStore) Path() string {
	return l.path
}

func (l *fileOffsetStore) Load(botID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	offsets, err := l.read()
	if err != nil {
		return 0, err
	}
	return offsets[botID], nil
}

func (l *fileOffsetStore) Store(botID string, offset int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir, _ := filepath.Split(l.path)
	if dir != "" {
		if stat, err := os.Stat(dir); err != nil {
			return fmt.Errorf("%v: directory not found", dir)
		} else if !stat.IsDir() {
			return fmt.Errorf("%v: %w", dir, ErrNotDirectory)
		}
	}

	offsets, err := l.read()
	if err != nil {
		return err
	}
	next := make(map[string]int64, len(offsets)+1)
	for k, v := range offsets {
		next[k] = v
	}
	next[botID] = offset

	data, err := json.Marshal(offsetFileFormat{Offsets: next, UpdatedAt: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("encoding offsets: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0600); err != nil {
		return err
	}

	l.cached = next
	if info, err := os.Stat(l.path); err == nil {
		l.lastEdited = info.ModTime()
	}
	return nil
}

func (l *fileOffsetStore) Delete() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
	l.lastEdited = time.Time{}
	return os.Remove(l.path)
}

// read returns the file contents, reusing the cached copy while the
// modification time is unchanged. A missing file holds no offsets.
func (l *fileOffsetStore) read() (map[string]int64, error) {
	info, err := os.Stat(l.path)
	switch {
	case err == nil:
	case errors.Is(err, syscall.ENOENT):
		return nil, nil
	default:
		return nil, err
	}

	if info.ModTime().Equal(l.lastEdited) && l.cached != nil {
		return l.cached, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	file := new(offsetFileFormat)
	if err := json.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}

	l.cached = file.Offsets
	l.lastEdited = info.ModTime()
	return file.Offsets, nil
}

type offsetFileFormat struct {
	Offsets   map[string]int64 `json:"offsets"`
	UpdatedAt int64            `json:"updated_at"`
}

func NewInMemory() OffsetStore {
	return &inMemoryOffsetStore{offsets: make(map[string]int64)}
}

type inMemoryOffsetStore struct {
	mu      sync.Mutex
	offsets map[string]int64
}

var _ OffsetStore = (*inMemoryOffsetStore)(nil)

func (l *inMemoryOffsetStore) Path() string {
	return ":memory:"
}

func (l *inMemoryOffsetStore) Load(botID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offsets[botID], nil
}

func (l *inMemoryOffsetStore) Store(botID string, offset int64) error {
	l.mu.Lock()
	l.offsets[botID] = offset
	l.mu.Unlock()
	return nil
}

func (l *inMemoryOffsetStore) Delete() error {
	l.mu.Lock()
	clear(l.offsets)
	l.mu.Unlock()
	return nil
}
