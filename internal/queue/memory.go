// Copyright (c) 2025 @AmarnathCJD

package queue

import (
	"context"
	"sync"
	"time"
)

const memoryPollInterval = 5 * time.Millisecond

type memoryEntry struct {
	readyAt time.Time
	raw     []byte
}

// Memory keeps lanes in process. Jobs are stored encoded so a consumer
// never shares a pointer with the producer.
type Memory struct {
	mu    sync.Mutex
	lanes map[string][]memoryEntry
	now   func() time.Time
}

var _ Queue = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{lanes: make(map[string][]memoryEntry), now: time.Now}
}

func (m *Memory) Push(_ context.Context, lane string, job *Job, delay time.Duration) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.lanes[lane] = append(m.lanes[lane], memoryEntry{readyAt: m.now().Add(delay), raw: raw})
	m.mu.Unlock()
	return nil
}

func (m *Memory) Pop(ctx context.Context, timeout time.Duration, lanes ...string) (*Job, string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if raw, lane, ok := m.take(lanes); ok {
			job, err := decode(raw)
			return job, lane, err
		}
		if !time.Now().Before(deadline) {
			return nil, "", ErrEmpty
		}
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(memoryPollInterval):
		}
	}
}

func (m *Memory) take(lanes []string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, lane := range lanes {
		entries := m.lanes[lane]
		for i, e := range entries {
			if e.readyAt.After(now) {
				continue
			}
			m.lanes[lane] = append(entries[:i:i], entries[i+1:]...)
			return e.raw, lane, true
		}
	}
	return nil, "", false
}

func (m *Memory) Len(_ context.Context, lane string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lanes[lane]), nil
}
