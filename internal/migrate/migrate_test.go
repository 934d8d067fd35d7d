package migrate

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestUpSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"m/0001_first.up.sql":  {Data: []byte("create table a (id text);")},
		"m/0002_second.up.sql": {Data: []byte("create table b (id text);")},
	}

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`create table b`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec(`insert into schema_migrations`).
		WithArgs("0002_second.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := New(db, WithFS(fsys, "m"))
	ran, err := r.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(ran) != 1 || ran[0] != "0002_second.up.sql" {
		t.Fatalf("ran = %v, want only the pending migration", ran)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDownRequiresDownFile(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"m/0001_first.up.sql": {Data: []byte("create table a (id text);")},
	}

	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`create table if not exists schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select name from schema_migrations order by`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.up.sql"))

	r := New(db, WithFS(fsys, "m"))
	err = r.Down(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing down migration") {
		t.Fatalf("Down err = %v, want missing down migration", err)
	}
}

func TestSplitStatementsRespectsStrings(t *testing.T) {
	stmts := splitStatements(`insert into t(v) values ('a;b'); create table x (id text);`)
	if len(stmts) != 2 {
		t.Fatalf("got %d statements: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[0], "a;b") {
		t.Fatalf("first statement split inside a string literal: %q", stmts[0])
	}
}

func TestEmbeddedMigrationsPairUp(t *testing.T) {
	entries, err := fs.ReadDir(embedded, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups[strings.TrimSuffix(e.Name(), ".up.sql")] = true
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs[strings.TrimSuffix(e.Name(), ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatal("no embedded migrations")
	}
	for name := range ups {
		if !downs[name] {
			t.Errorf("migration %s has no down file", name)
		}
	}
	for name := range downs {
		if !ups[name] {
			t.Errorf("down file %s has no up migration", name)
		}
	}
}
