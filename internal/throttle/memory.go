package throttle

import (
	"context"
	"sync"
	"time"

	"admin-auth-service/internal/models"
)

type entry struct {
	count       int
	lockedUntil time.Time
	touched     time.Time
}

// MemoryStore keeps throttle state in process. It is only correct for a
// single replica.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (m *MemoryStore) Reserve(_ context.Context, key string, now time.Time, p Policy) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.touched = now

	if now.Before(e.lockedUntil) {
		return Decision{RetryAfter: e.lockedUntil.Sub(now)}, nil
	}
	if !e.lockedUntil.IsZero() {
		e.lockedUntil = time.Time{}
		e.count = 0
	}
	if e.count >= p.MaxFailures {
		e.lockedUntil = now.Add(p.LockoutDuration)
		return Decision{RetryAfter: p.LockoutDuration}, nil
	}
	e.count++
	return Decision{Allowed: true}, nil
}

func (m *MemoryStore) Record(_ context.Context, key string, success bool, now time.Time, p Policy) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		delete(m.entries, key)
		return Outcome{}, nil
	}

	e, ok := m.entries[key]
	if !ok {
		return Outcome{}, nil
	}
	e.touched = now
	if now.Before(e.lockedUntil) {
		return Outcome{FailedCount: e.count}, nil
	}
	if e.count >= p.MaxFailures {
		e.lockedUntil = now.Add(p.LockoutDuration)
		return Outcome{FailedCount: e.count, Locked: true}, nil
	}
	return Outcome{FailedCount: e.count}, nil
}

func (m *MemoryStore) State(_ context.Context, key string, now time.Time) (models.ThrottleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return models.ThrottleState{}, nil
	}
	st := models.ThrottleState{FailedCount: e.count}
	if now.Before(e.lockedUntil) {
		until := e.lockedUntil
		st.LockedUntil = &until
	}
	return st, nil
}

// Sweep drops idle unlocked entries and returns how many were removed.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, e := range m.entries {
		if now.Before(e.lockedUntil) {
			continue
		}
		if now.Sub(e.touched) > stateTTL {
			delete(m.entries, key)
			n++
		}
	}
	return n
}
