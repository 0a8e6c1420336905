package flows

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/uptrace/bun"
)

//go:embed data/sql/migrations/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// RunMigrations applies the embedded schema migrations in lexical order.
// Hosts with their own migration tooling can read GetMigrationsFS instead.
func RunMigrations(ctx context.Context, db *bun.DB) error {
	entries, err := migrationsFS.ReadDir("data/sql/migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := migrationsFS.ReadFile("data/sql/migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
