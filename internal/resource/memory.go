package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fenceline.dev/internal/ids"
)

var _ Store = (*Memory)(nil)

// Memory implements Store in process memory, preserving creation order for
// Find results. Used by tests and the dev bootstrap.
type Memory struct {
	mu    sync.RWMutex
	byID  map[string]Record
	order []string
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byID: make(map[string]Record),
		now:  time.Now,
	}
}

func (m *Memory) Find(ctx context.Context, filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, id := range m.order {
		rec := m.byID[id]
		if matches(rec, filter) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) Create(ctx context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.AccountID == "" {
		return Record{}, fmt.Errorf("%w: account_id is required", ErrInvalid)
	}
	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	now := m.now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	m.byID[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return rec.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, id string, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.AccountID == "" {
		return Record{}, fmt.Errorf("%w: account_id is required", ErrInvalid)
	}
	next := rec.Clone()
	next.ID = id
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = m.now().UTC()
	m.byID[id] = next
	return next.Clone(), nil
}

func (m *Memory) Patch(ctx context.Context, id string, fields map[string]any) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	next := current.Clone()
	for k, v := range fields {
		if k == "account_id" {
			if s, ok := v.(string); ok {
				next.AccountID = s
			}
			continue
		}
		next.Fields[k] = v
	}
	next.UpdatedAt = m.now().UTC()
	m.byID[id] = next
	return next.Clone(), nil
}

func (m *Memory) Remove(ctx context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	delete(m.byID, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return rec, nil
}

func matches(rec Record, filter Filter) bool {
	for k, want := range filter {
		var got any
		switch k {
		case "id":
			got = rec.ID
		case "account_id":
			got = rec.AccountID
		default:
			got = rec.Fields[k]
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
