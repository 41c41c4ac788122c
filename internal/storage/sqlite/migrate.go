package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/storage/sqlite/migrations"
)

// migration is one schema upgrade step. Steps run in version order inside a
// single transaction with foreign keys disabled, so a table rewrite cannot
// leave the store half-migrated or trip FK enforcement mid-swap.
type migration struct {
	version     int
	description string
	run         func(ctx context.Context, conn *sql.Conn) error
}

// allMigrations lists every schema version in order. Version 1 is the
// initial layout (created directly by the schema constant); later versions
// probe the live schema and no-op on stores that already have the shape.
var allMigrations = []migration{
	{version: 1, description: "initial schema"},
	{version: 2, description: "upsert uniqueness constraints", run: migrations.MigrateUpsertConstraints},
	{version: 3, description: "dead-letter recency index", run: migrations.MigrateDLQRecencyIndex},
}

// RunMigrations brings the store up to currentSchemaVersion. It is
// idempotent: already-applied versions are skipped, and each probe-based
// migration is a no-op when the schema already has its target shape.
func RunMigrations(db *sql.DB) error {
	ctx := context.Background()

	// A dedicated connection keeps the PRAGMA changes and the transaction
	// on the same underlying handle.
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migrations: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var current sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if int(current.Int64) >= currentSchemaVersion {
		return nil
	}

	// Foreign keys must be off before the transaction starts; the pragma is
	// a no-op inside one. Table rewrites would otherwise trip enforcement
	// while the old table is dropped.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return fmt.Errorf("failed to disable foreign keys: %w", err)
	}
	defer func() { _, _ = conn.ExecContext(context.Background(), "PRAGMA foreign_keys=ON") }()

	if err := beginWithRetry(ctx, conn, "BEGIN EXCLUSIVE", 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	for _, m := range allMigrations {
		if m.version <= int(current.Int64) {
			continue
		}
		if m.run != nil {
			if err := m.run(ctx, conn); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
			}
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO schema_version (version, description) VALUES (?, ?)
		`, m.version, m.description); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true
	return nil
}
