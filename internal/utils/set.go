// Copyright (c) 2025 @AmarnathCJD

package utils

import (
	"sync"
)

type null = struct{}

// RecentSet remembers the last N distinct keys. Adding beyond capacity
// evicts the oldest key.
type RecentSet[T comparable] struct {
	mu    sync.Mutex
	m     map[T]null
	order []T
	head  int
	size  int
}

func NewRecentSet[T comparable](capacity int) *RecentSet[T] {
	if capacity <= 0 {
		capacity = 1024
	}
	return &RecentSet[T]{
		m:     make(map[T]null, capacity),
		order: make([]T, capacity),
	}
}

// Add inserts key and reports whether it was not seen before.
func (s *RecentSet[T]) Add(key T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[key]; ok {
		return false
	}

	if s.size == len(s.order) {
		delete(s.m, s.order[s.head])
	} else {
		s.size++
	}
	s.order[s.head] = key
	s.head = (s.head + 1) % len(s.order)
	s.m[key] = null{}
	return true
}

// Remove forgets key so that a later Add reports it as new again.
func (s *RecentSet[T]) Remove(key T) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

func (s *RecentSet[T]) Has(key T) bool {
	s.mu.Lock()
	_, ok := s.m[key]
	s.mu.Unlock()
	return ok
}

func (s *RecentSet[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *RecentSet[T]) Clear() {
	s.mu.Lock()
	clear(s.m)
	s.head, s.size = 0, 0
	s.mu.Unlock()
}
