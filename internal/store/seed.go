package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ubik80/bookCafe/internal/model"
)

// AdminUsername is the account name that receives the Admin role on seed,
// when such an account exists.
const AdminUsername = "Admin"

// Seed ensures the built-in roles exist and, if a user named Admin has been
// registered, grants it the Admin role. Safe to run on every start.
func Seed(ctx context.Context, db *sql.DB) error {
	queries := New(db)

	for _, name := range []string{model.RoleAdmin, model.RoleUser} {
		if _, err := queries.GetRoleByName(ctx, name); err == nil {
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking role %s: %w", name, err)
		}
		if _, err := queries.CreateRole(ctx, name); err != nil {
			return fmt.Errorf("creating role %s: %w", name, err)
		}
		slog.Info("database initialized", "role", name)
	}

	admin, err := queries.GetUserByUsername(ctx, AdminUsername)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Info("no Admin account yet; register one to manage the library")
			return nil
		}
		return fmt.Errorf("looking up admin user: %w", err)
	}

	adminRole, err := queries.GetRoleByName(ctx, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("looking up admin role: %w", err)
	}

	if err := queries.AssignRole(ctx, adminRole.ID, admin.ID); err != nil {
		return fmt.Errorf("assigning admin role: %w", err)
	}

	if !admin.IsAdmin() {
		slog.Info("admin role assigned", "user_id", admin.ID)
	}
	return nil
}
