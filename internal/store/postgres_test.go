package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"fish-tracker/internal/model"
)

func newPostgresWithMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewPostgres(db), mock
}

func TestPostgres_CreateUser(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WithArgs("u1", "Ada", "key", "hash", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := p.CreateUser(context.Background(), model.User{ID: "u1", Name: "Ada", Key: "key", PasswordHash: "hash", CreatedAt: created}); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_CreateUserConflict(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := p.CreateUser(context.Background(), model.User{ID: "u1", Name: "Ada"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPostgres_UserByID(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "name", "fernet_key", "password_hash", "created_at"}).
		AddRow("u1", "Ada", "key", "hash", created)
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*name,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("u1").
		WillReturnRows(rows)

	u, err := p.UserByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UserByID error: %v", err)
	}
	if u.Name != "Ada" || u.Key != "key" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestPostgres_UserByIDNotFound(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	if _, err := p.UserByID(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_DBErrorIsWrapped(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+name`).
		WithArgs("Ada").
		WillReturnError(errors.New("db down"))

	_, err := p.UserByName(context.Background(), "Ada")
	if err == nil || errors.Is(err, ErrNotFound) || err.Error() != "db error: db down" {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestPostgres_ListUsers(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)^SELECT\s+count\(\*\)\s+FROM\s+users\s+WHERE\s+name\s+ILIKE\s+\$1\s+ESCAPE\s+'\\'$`).
		WithArgs("%ad%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`(?s)ORDER\s+BY\s+created_at\s+DESC.*LIMIT\s+\$2\s+OFFSET\s+\$3`).
		WithArgs("%ad%", 1, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "fernet_key", "password_hash", "created_at"}).
			AddRow("u2", "Adam", "k", "", created))

	users, total, err := p.ListUsers(context.Background(), UserQuery{Search: "ad", Limit: 1})
	if err != nil {
		t.Fatalf("ListUsers error: %v", err)
	}
	if total != 2 || len(users) != 1 || users[0].Name != "Adam" {
		t.Fatalf("unexpected result: total=%d %+v", total, users)
	}
}

func TestPostgres_ListUsersEscapesWildcards(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT\s+count\(\*\)\s+FROM\s+users`).
		WithArgs(`%a\_b\%c\\%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`(?s)ILIKE\s+\$1\s+ESCAPE\s+'\\'.*LIMIT`).
		WithArgs(`%a\_b\%c\\%`, 10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "fernet_key", "password_hash", "created_at"}))

	users, total, err := p.ListUsers(context.Background(), UserQuery{Search: `a_b%c\`, Limit: 10})
	if err != nil {
		t.Fatalf("ListUsers error: %v", err)
	}
	if total != 0 || len(users) != 0 {
		t.Fatalf("unexpected result: total=%d %+v", total, users)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_AppendAndListCatches(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	ctx := context.Background()
	ns := model.Namespace{Kind: model.KindFish, User: "Ada", Gamemode: "earth"}
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := 4

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+catches`).
		WithArgs("c1", "fish", "Ada", "earth", "Perch", int64(4), ts).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*fish,\s*rarity,\s*created_at\s+FROM\s+catches.*ORDER\s+BY\s+seq$`).
		WithArgs("fish", "Ada", "earth").
		WillReturnRows(sqlmock.NewRows([]string{"id", "fish", "rarity", "created_at"}).
			AddRow("c1", "Perch", int64(4), ts).
			AddRow("c2", model.CrabMarker, nil, ts))

	if err := p.AppendCatch(ctx, ns, model.Catch{ID: "c1", Fish: "Perch", Rarity: &r, Timestamp: ts}); err != nil {
		t.Fatalf("AppendCatch error: %v", err)
	}
	rows, err := p.ListCatches(ctx, ns)
	if err != nil {
		t.Fatalf("ListCatches error: %v", err)
	}
	if len(rows) != 2 || rows[0].Rarity == nil || *rows[0].Rarity != 4 || rows[1].Rarity != nil {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgres_DeleteCatchNotFound(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	ns := model.Namespace{Kind: model.KindFish, User: "Ada", Gamemode: "earth"}
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+catches\s+WHERE\s+kind`).
		WithArgs("fish", "Ada", "earth", "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := p.DeleteCatch(context.Background(), ns, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_DeleteCatches(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	ns := model.Namespace{Kind: model.KindCrab, User: "Ada", Gamemode: "earth"}
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+catches\s+WHERE\s+seq\s+IN.*LIMIT\s+\$4\)$`).
		WithArgs("crab", "Ada", "earth", 5).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := p.DeleteCatches(context.Background(), ns, 5)
	if err != nil || n != 3 {
		t.Fatalf("DeleteCatches: %d %v", n, err)
	}
	if n, _ := p.DeleteCatches(context.Background(), ns, 0); n != 0 {
		t.Fatalf("expected no-op for n=0, got %d", n)
	}
}

func TestRunMigrations_UsesGoose(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	called := false
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		called = true
		if dir != "." {
			t.Fatalf("unexpected migrations dir %q", dir)
		}
		return nil
	}

	if err := RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
	if !called {
		t.Fatalf("expected goose to run")
	}
}
