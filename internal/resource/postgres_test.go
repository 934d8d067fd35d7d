package resource

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newPGStore(t *testing.T) (*PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	store, err := NewPGStore(db, "posts")
	if err != nil {
		t.Fatalf("NewPGStore: %v", err)
	}
	return store, mock, func() { _ = db.Close() }
}

func TestNewPGStoreRejectsBadTable(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	for _, table := range []string{"", "Posts", "posts; drop table users", "1posts"} {
		if _, err := NewPGStore(db, table); err == nil {
			t.Fatalf("expected rejection of table %q", table)
		}
	}
}

func TestPGFindScopesFilterColumns(t *testing.T) {
	store, mock, closeFn := newPGStore(t)
	defer closeFn()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "account_id", "data", "created_at", "updated_at"}).
		AddRow("r1", "a1", []byte(`{"title":"x"}`), now, now)
	mock.ExpectQuery(`select id, account_id, data, created_at, updated_at from posts where account_id=\$1 and data->>'title'=\$2 order by created_at asc, id asc`).
		WithArgs("a1", "x").
		WillReturnRows(rows)

	recs, err := store.Find(context.Background(), Filter{"title": "x", "account_id": "a1"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 1 || recs[0].Fields["title"] != "x" {
		t.Fatalf("unexpected result %v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGCreateInsertsOwner(t *testing.T) {
	store, mock, closeFn := newPGStore(t)
	defer closeFn()

	now := time.Now().UTC()
	mock.ExpectQuery(`insert into posts\(id, account_id, data\) values\(\$1,\$2,\$3\) returning created_at, updated_at`).
		WithArgs(sqlmock.AnyArg(), "a1", []byte(`{"title":"x"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	rec, err := store.Create(context.Background(), FromFields(map[string]any{
		"title":      "x",
		"account_id": "a1",
	}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" || rec.AccountID != "a1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGUpdateMissingRowIsNotFound(t *testing.T) {
	store, mock, closeFn := newPGStore(t)
	defer closeFn()

	mock.ExpectQuery(`update posts set account_id=\$2, data=\$3, updated_at=now\(\) where id=\$1 returning created_at, updated_at`).
		WithArgs("missing", "a1", []byte(`{"title":"x"}`)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.Update(context.Background(), "missing", FromFields(map[string]any{
		"title":      "x",
		"account_id": "a1",
	}))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRemoveReturnsDeletedRecord(t *testing.T) {
	store, mock, closeFn := newPGStore(t)
	defer closeFn()

	now := time.Now().UTC()
	mock.ExpectQuery(`delete from posts where id=\$1 returning id, account_id, data, created_at, updated_at`).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "data", "created_at", "updated_at"}).
			AddRow("r1", "a1", []byte(`{"title":"x"}`), now, now))

	rec, err := store.Remove(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if rec.AccountID != "a1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
