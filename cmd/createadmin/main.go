// Command createadmin provisions a dashboard account in the configured store.
//
//	createadmin -username root -password 's3cretpass' -role superadmin
//
// The memory driver needs STATE_FILE, and the server must be stopped while
// this runs against a memory or badger store: the server owns those files and
// would overwrite the new account. To seed the first admin of a running
// deployment, set ADMIN_BOOTSTRAP_USERNAME and ADMIN_BOOTSTRAP_PASSWORD for
// the server instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"fish-tracker/internal/auth"
	"fish-tracker/internal/config"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/model"
	"fish-tracker/internal/store"
)

func main() {
	username := flag.String("username", "", "admin username")
	password := flag.String("password", "", "admin password (at least 8 characters)")
	role := flag.String("role", model.RoleAdmin, "admin or superadmin")
	flag.Parse()

	if err := run(*username, *password, *role); err != nil {
		fmt.Fprintln(os.Stderr, "createadmin:", err)
		os.Exit(1)
	}
}

func run(username, password, role string) error {
	if username == "" || len(password) < 8 {
		return errors.New("-username and a -password of at least 8 characters are required")
	}
	if role != model.RoleAdmin && role != model.RoleSuperAdmin {
		return fmt.Errorf("unknown role %q", role)
	}

	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreDriver == store.DriverMemory && cfg.StateFile == "" {
		return errors.New("the memory store keeps nothing after exit; set STATE_FILE or use the badger or postgres driver")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: "console"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		StateFile:   cfg.StateFile,
		DataDir:     cfg.DataDir,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	err = st.CreateAdmin(ctx, model.Admin{Username: username, PasswordHash: hash, Role: role, CreatedAt: time.Now().UTC()})
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("admin %q already exists", username)
	}
	if err != nil {
		return err
	}
	logging.Info().Str("username", username).Str("role", role).Msg("admin created")
	return nil
}
