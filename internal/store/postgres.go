package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"fish-tracker/internal/model"
	"fish-tracker/internal/store/migrations"
)

const uniqueViolation = "23505"

type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects through the pgx stdlib driver and applies the
// embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres: DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return NewPostgres(db), nil
}

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func dbErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return fmt.Errorf("db error: %w", err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return dbErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const userColumns = `id, name, fernet_key, password_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Key, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

func (p *Postgres) CreateUser(ctx context.Context, u model.User) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users (id, name, fernet_key, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Name, u.Key, u.PasswordHash, u.CreatedAt)
	return dbErr(err)
}

func (p *Postgres) UserByID(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return model.User{}, dbErr(err)
	}
	return u, nil
}

func (p *Postgres) UserByName(ctx context.Context, name string) (model.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE name = $1`, name))
	if err != nil {
		return model.User{}, dbErr(err)
	}
	return u, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches search as a literal substring under ILIKE ... ESCAPE '\'.
func containsPattern(search string) string {
	return "%" + likeEscaper.Replace(search) + "%"
}

func (p *Postgres) ListUsers(ctx context.Context, q UserQuery) ([]model.User, int, error) {
	pattern := containsPattern(q.Search)

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE name ILIKE $1 ESCAPE '\'`, pattern).Scan(&total); err != nil {
		return nil, 0, dbErr(err)
	}

	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE name ILIKE $1 ESCAPE '\'
		 ORDER BY created_at DESC, id ASC LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, 0, dbErr(err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, dbErr(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, dbErr(err)
	}
	return users, total, nil
}

func (p *Postgres) CountUsersSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE created_at >= $1`, since).Scan(&n)
	return n, dbErr(err)
}

func (p *Postgres) UpdateUser(ctx context.Context, u model.User) error {
	return affected(p.db.ExecContext(ctx,
		`UPDATE users SET name = $2, fernet_key = $3, password_hash = $4 WHERE id = $1`,
		u.ID, u.Name, u.Key, u.PasswordHash))
}

func (p *Postgres) DeleteUser(ctx context.Context, id string) error {
	return affected(p.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id))
}

func (p *Postgres) CreateAdmin(ctx context.Context, a model.Admin) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO admins (username, password_hash, role, created_at) VALUES ($1, $2, $3, $4)`,
		a.Username, a.PasswordHash, a.Role, a.CreatedAt)
	return dbErr(err)
}

func (p *Postgres) AdminByUsername(ctx context.Context, username string) (model.Admin, error) {
	var a model.Admin
	err := p.db.QueryRowContext(ctx,
		`SELECT username, password_hash, role, created_at FROM admins WHERE username = $1`, username).
		Scan(&a.Username, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if err != nil {
		return model.Admin{}, dbErr(err)
	}
	return a, nil
}

func (p *Postgres) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT username, password_hash, role, created_at FROM admins ORDER BY username`)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	admins := make([]model.Admin, 0)
	for rows.Next() {
		var a model.Admin
		if err := rows.Scan(&a.Username, &a.PasswordHash, &a.Role, &a.CreatedAt); err != nil {
			return nil, dbErr(err)
		}
		admins = append(admins, a)
	}
	return admins, dbErr(rows.Err())
}

func (p *Postgres) DeleteAdmin(ctx context.Context, username string) error {
	return affected(p.db.ExecContext(ctx, `DELETE FROM admins WHERE username = $1`, username))
}

func (p *Postgres) AppendCatch(ctx context.Context, ns model.Namespace, c model.Catch) error {
	var rarity sql.NullInt64
	if c.Rarity != nil {
		rarity = sql.NullInt64{Int64: int64(*c.Rarity), Valid: true}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO catches (id, kind, user_name, gamemode, fish, rarity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, string(ns.Kind), ns.User, ns.Gamemode, c.Fish, rarity, c.Timestamp)
	return dbErr(err)
}

func (p *Postgres) ListCatches(ctx context.Context, ns model.Namespace) ([]model.Catch, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, fish, rarity, created_at FROM catches
		 WHERE kind = $1 AND user_name = $2 AND gamemode = $3
		 ORDER BY seq`,
		string(ns.Kind), ns.User, ns.Gamemode)
	if err != nil {
		return nil, dbErr(err)
	}
	defer rows.Close()

	catches := make([]model.Catch, 0)
	for rows.Next() {
		var (
			c      model.Catch
			rarity sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Fish, &rarity, &c.Timestamp); err != nil {
			return nil, dbErr(err)
		}
		if rarity.Valid {
			r := int(rarity.Int64)
			c.Rarity = &r
		}
		catches = append(catches, c)
	}
	return catches, dbErr(rows.Err())
}

func (p *Postgres) CountCatches(ctx context.Context, ns model.Namespace) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM catches WHERE kind = $1 AND user_name = $2 AND gamemode = $3`,
		string(ns.Kind), ns.User, ns.Gamemode).Scan(&n)
	return n, dbErr(err)
}

func (p *Postgres) DeleteCatch(ctx context.Context, ns model.Namespace, id string) error {
	return affected(p.db.ExecContext(ctx,
		`DELETE FROM catches WHERE kind = $1 AND user_name = $2 AND gamemode = $3 AND id = $4`,
		string(ns.Kind), ns.User, ns.Gamemode, id))
}

func (p *Postgres) DeleteCatches(ctx context.Context, ns model.Namespace, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM catches WHERE seq IN (
		     SELECT seq FROM catches
		     WHERE kind = $1 AND user_name = $2 AND gamemode = $3
		     ORDER BY seq LIMIT $4)`,
		string(ns.Kind), ns.User, ns.Gamemode, n)
	if err != nil {
		return 0, dbErr(err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, dbErr(err)
	}
	return int(removed), nil
}

func (p *Postgres) PurgeUserCatches(ctx context.Context, userName string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM catches WHERE user_name = $1`, userName)
	return dbErr(err)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
