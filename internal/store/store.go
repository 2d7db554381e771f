package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fish-tracker/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type UserQuery struct {
	// Search is a case-insensitive substring of the user name.
	Search string
	Offset int
	// Limit of 0 returns every match.
	Limit int
}

// Store is the persistence boundary shared by every driver. Users are listed
// newest first, catches oldest first.
type Store interface {
	CreateUser(ctx context.Context, u model.User) error
	UserByID(ctx context.Context, id string) (model.User, error)
	UserByName(ctx context.Context, name string) (model.User, error)
	ListUsers(ctx context.Context, q UserQuery) ([]model.User, int, error)
	CountUsersSince(ctx context.Context, since time.Time) (int, error)
	UpdateUser(ctx context.Context, u model.User) error
	DeleteUser(ctx context.Context, id string) error

	CreateAdmin(ctx context.Context, a model.Admin) error
	AdminByUsername(ctx context.Context, username string) (model.Admin, error)
	ListAdmins(ctx context.Context) ([]model.Admin, error)
	DeleteAdmin(ctx context.Context, username string) error

	AppendCatch(ctx context.Context, ns model.Namespace, c model.Catch) error
	ListCatches(ctx context.Context, ns model.Namespace) ([]model.Catch, error)
	CountCatches(ctx context.Context, ns model.Namespace) (int, error)
	DeleteCatch(ctx context.Context, ns model.Namespace, id string) error
	// DeleteCatches removes up to n of the oldest catches in ns.
	DeleteCatches(ctx context.Context, ns model.Namespace, n int) (int, error)
	PurgeUserCatches(ctx context.Context, userName string) error

	Ping(ctx context.Context) error
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver      string
	StateFile   string
	DataDir     string
	DatabaseURL string
}

// Open returns the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemory(MemoryOptions{StateFile: opts.StateFile}), nil
	case DriverBadger:
		return OpenBadger(opts.DataDir)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
