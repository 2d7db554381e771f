package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fish-tracker/internal/auth"
	"fish-tracker/internal/logging"
	"fish-tracker/internal/model"
	"fish-tracker/internal/store"
)

// BootstrapAdmin creates username as a superadmin when st has no admins.
// It reports whether an account was created. An empty username is a no-op.
func BootstrapAdmin(ctx context.Context, st store.Store, username, password string) (bool, error) {
	if username == "" {
		return false, nil
	}
	admins, err := st.ListAdmins(ctx)
	if err != nil {
		return false, fmt.Errorf("list admins: %w", err)
	}
	if len(admins) > 0 {
		return false, nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	err = st.CreateAdmin(ctx, model.Admin{
		Username:     username,
		PasswordHash: hash,
		Role:         model.RoleSuperAdmin,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	logging.Info().Str("username", username).Msg("bootstrap superadmin created")
	return true, nil
}
