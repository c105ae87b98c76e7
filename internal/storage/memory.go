package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Store. Used for dry runs and tests.
type Memory struct {
	mu     sync.RWMutex
	sheets map[string][]Row
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{sheets: make(map[string][]Row)}
}

func (m *Memory) GetRow(ctx context.Context, sheet, key string) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.sheets[sheet] {
		if r.Key() == key {
			return cloneRow(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) AppendRow(ctx context.Context, sheet string, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sheets[sheet] = append(m.sheets[sheet], cloneRow(row))
	return nil
}

func (m *Memory) UpdateRow(ctx context.Context, sheet, key string, row Row) error {
	if row.Key() == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.sheets[sheet]
	for i, r := range rows {
		if r.Key() == key {
			rows[i] = cloneRow(row)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ListRows(ctx context.Context, sheet string) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.sheets[sheet]
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, cloneRow(r))
	}
	return out, nil
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

var _ Store = (*Memory)(nil)
