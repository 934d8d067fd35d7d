package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var _ Directory = (*PGDirectory)(nil)

// PGDirectory implements Directory on PostgreSQL.
type PGDirectory struct {
	db *sql.DB
}

func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

func (d *PGDirectory) Users() UserStore             { return &pgUserStore{db: d.db} }
func (d *PGDirectory) Accounts() AccountStore       { return &pgAccountStore{db: d.db} }
func (d *PGDirectory) Permissions() PermissionStore { return &pgPermissionStore{db: d.db} }

// User store ---------------------------------------------------------------
type pgUserStore struct{ db *sql.DB }

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, status, created_at, updated_at from users where id=$1`, id)
	return scanUser(row)
}

func (s *pgUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, status, created_at, updated_at from users where email=$1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return &u, nil
}

// Account store ------------------------------------------------------------
type pgAccountStore struct{ db *sql.DB }

func (s *pgAccountStore) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, coalesce(plan_id, ''), created_at, updated_at from accounts where id=$1`, id)
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.PlanID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return &a, nil
}

// Permission store ---------------------------------------------------------
type pgPermissionStore struct{ db *sql.DB }

func (s *pgPermissionStore) FindFirst(ctx context.Context, userID string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, account_id, rights, created_at from permissions
		 where user_id=$1 order by created_at asc, id asc limit 1`, userID)
	return scanPermission(row)
}

func (s *pgPermissionStore) Find(ctx context.Context, userID, accountID string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, account_id, rights, created_at from permissions
		 where user_id=$1 and account_id=$2`, userID, accountID)
	return scanPermission(row)
}

func scanPermission(row *sql.Row) (*Permission, error) {
	var (
		p      Permission
		rights []byte
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.AccountID, &rights, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if len(rights) > 0 {
		_ = json.Unmarshal(rights, &p.Rights)
	}
	return &p, nil
}
