// Package resource defines the owned-record store contract the authorization
// pipeline scopes. Every record carries an account_id ownership field; the
// stores themselves enforce nothing about it; isolation is the pipeline's
// job.
package resource

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("resource: not found")
	ErrInvalid  = errors.New("resource: invalid record")
)

// Record is one stored document. Fields holds the free-form payload; the
// ownership field and timestamps are lifted out as columns.
type Record struct {
	ID        string
	AccountID string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter is an equality predicate over a record. Keys "id" and "account_id"
// match the lifted columns, everything else matches Fields.
type Filter map[string]any

// Store is the persistence surface for one record collection.
type Store interface {
	Find(ctx context.Context, filter Filter) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Create(ctx context.Context, rec Record) (Record, error)
	Update(ctx context.Context, id string, rec Record) (Record, error)
	Patch(ctx context.Context, id string, fields map[string]any) (Record, error)
	Remove(ctx context.Context, id string) (Record, error)
}

// FromFields builds a Record from a flat payload, lifting account_id out of
// the field map.
func FromFields(fields map[string]any) Record {
	rec := Record{Fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		if k == "account_id" {
			if s, ok := v.(string); ok {
				rec.AccountID = s
			}
			continue
		}
		rec.Fields[k] = v
	}
	return rec
}

// Flatten returns the wire representation of the record: payload fields plus
// id, account_id, and timestamps.
func (r Record) Flatten() map[string]any {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	out["account_id"] = r.AccountID
	out["created_at"] = r.CreatedAt
	out["updated_at"] = r.UpdatedAt
	return out
}

// Clone returns a deep copy so callers can mutate results safely.
func (r Record) Clone() Record {
	out := r
	out.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}
