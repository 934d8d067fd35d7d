// Package migrate applies the schema migrations embedded alongside it.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var embedded embed.FS

const defaultTable = "schema_migrations"

// Runner applies .up.sql files in lexical order and records each one in
// a bookkeeping table so reruns are idempotent.
type Runner struct {
	db    *sql.DB
	fsys  fs.FS
	root  string
	table string
}

// Option configures Runner.
type Option func(*Runner)

// WithFS replaces the embedded migration set. Used by tests.
func WithFS(fsys fs.FS, root string) Option {
	return func(r *Runner) {
		r.fsys = fsys
		r.root = root
	}
}

// WithTable overrides the bookkeeping table name.
func WithTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.table = name
		}
	}
}

func New(db *sql.DB, opts ...Option) *Runner {
	r := &Runner{
		db:    db,
		fsys:  embedded,
		root:  "migrations",
		table: defaultTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Up applies every pending migration and returns the names it ran.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}
	names, err := r.list(".up.sql")
	if err != nil {
		return nil, err
	}
	var ran []string
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.execFile(ctx, name); err != nil {
			return ran, fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx,
			fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, r.table),
			name, time.Now().UTC()); err != nil {
			return ran, err
		}
		ran = append(ran, name)
	}
	return ran, nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureTable(ctx); err != nil {
		return err
	}
	history, err := r.Status(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if _, err := fs.Stat(r.fsys, r.root+"/"+down); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.execFile(ctx, down); err != nil {
		return fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, r.table), last)
	return err
}

// Status returns applied migrations in application order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Runner) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, r.table))
	return err
}

func (r *Runner) list(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(r.fsys, r.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// execFile runs one migration file inside a transaction, splitting it
// into statements on semicolons outside string literals.
func (r *Runner) execFile(ctx context.Context, name string) error {
	raw, err := fs.ReadFile(r.fsys, r.root+"/"+name)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func splitStatements(script string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range script {
		switch r {
		case '\'':
			current.WriteRune(r)
			inString = !inString
		case ';':
			current.WriteRune(r)
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
