package resource

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"fenceline.dev/internal/ids"
)

var _ Store = (*PGStore)(nil)

var tablePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// PGStore implements Store on PostgreSQL. Each collection is one table with
// lifted id/account_id/timestamp columns and the payload in a jsonb column.
type PGStore struct {
	db    *sql.DB
	table string
}

// NewPGStore binds a store to a table. The table name is validated because
// it is interpolated into SQL.
func NewPGStore(db *sql.DB, table string) (*PGStore, error) {
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("resource: invalid table name %q", table)
	}
	return &PGStore{db: db, table: table}, nil
}

func (s *PGStore) Find(ctx context.Context, filter Filter) ([]Record, error) {
	where, args := buildWhere(filter)
	query := fmt.Sprintf(
		`select id, account_id, data, created_at, updated_at from %s%s order by created_at asc, id asc`,
		s.table, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`select id, account_id, data, created_at, updated_at from %s where id=$1`, s.table), id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *PGStore) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.AccountID == "" {
		return Record{}, fmt.Errorf("%w: account_id is required", ErrInvalid)
	}
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return Record{}, err
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`insert into %s(id, account_id, data) values($1,$2,$3) returning created_at, updated_at`, s.table),
		rec.ID, rec.AccountID, data)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PGStore) Update(ctx context.Context, id string, rec Record) (Record, error) {
	if rec.AccountID == "" {
		return Record{}, fmt.Errorf("%w: account_id is required", ErrInvalid)
	}
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return Record{}, err
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`update %s set account_id=$2, data=$3, updated_at=now() where id=$1 returning created_at, updated_at`, s.table),
		id, rec.AccountID, data)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.ID = id
	return rec, nil
}

func (s *PGStore) Patch(ctx context.Context, id string, fields map[string]any) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, fmt.Sprintf(
		`select id, account_id, data, created_at, updated_at from %s where id=$1 for update`, s.table), id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	for k, v := range fields {
		if k == "account_id" {
			if str, ok := v.(string); ok {
				rec.AccountID = str
			}
			continue
		}
		rec.Fields[k] = v
	}
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return Record{}, err
	}
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(
		`update %s set account_id=$2, data=$3, updated_at=now() where id=$1 returning updated_at`, s.table),
		id, rec.AccountID, data).Scan(&rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PGStore) Remove(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`delete from %s where id=$1 returning id, account_id, data, created_at, updated_at`, s.table), id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func scanRecord(scan func(...any) error) (Record, error) {
	var (
		rec  Record
		data []byte
	)
	if err := scan(&rec.ID, &rec.AccountID, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Fields = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Fields); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// buildWhere renders the filter as a where clause. Keys are sorted so the
// generated SQL is stable for a given filter.
func buildWhere(filter Filter) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		clauses []string
		args    []any
	)
	for i, k := range keys {
		switch k {
		case "id", "account_id":
			clauses = append(clauses, fmt.Sprintf("%s=$%d", k, i+1))
		default:
			clauses = append(clauses, fmt.Sprintf("data->>'%s'=$%d", sanitizeKey(k), i+1))
		}
		args = append(args, fmt.Sprint(filter[k]))
	}
	return " where " + strings.Join(clauses, " and "), args
}

func sanitizeKey(k string) string {
	return strings.Map(func(r rune) rune {
		if r == '\'' || r == '\\' {
			return -1
		}
		return r
	}, k)
}
