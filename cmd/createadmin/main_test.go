package main

import (
	"context"
	"path/filepath"
	"testing"

	"fish-tracker/internal/model"
	"fish-tracker/internal/store"
)

func TestRun_RejectsEphemeralMemoryStore(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("STATE_FILE", "")

	if err := run("root", "s3cretpass", model.RoleSuperAdmin); err == nil {
		t.Fatalf("expected an error for a memory store without STATE_FILE")
	}
}

func TestRun_PersistsToStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STATE_FILE", path)

	if err := run("root", "s3cretpass", model.RoleSuperAdmin); err != nil {
		t.Fatalf("run: %v", err)
	}

	reloaded := store.NewMemory(store.MemoryOptions{StateFile: path})
	a, err := reloaded.AdminByUsername(context.Background(), "root")
	if err != nil {
		t.Fatalf("admin not persisted: %v", err)
	}
	if a.Role != model.RoleSuperAdmin {
		t.Fatalf("expected superadmin, got %q", a.Role)
	}

	if err := run("root", "s3cretpass", model.RoleSuperAdmin); err == nil {
		t.Fatalf("expected a duplicate admin to fail")
	}
}

func TestRun_ValidatesFlags(t *testing.T) {
	if err := run("", "s3cretpass", model.RoleAdmin); err == nil {
		t.Fatalf("expected missing username to fail")
	}
	if err := run("root", "short", model.RoleAdmin); err == nil {
		t.Fatalf("expected short password to fail")
	}
	if err := run("root", "s3cretpass", "owner"); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}
