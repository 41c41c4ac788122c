package sqlite

import (
	"context"
	"testing"
)

// The migration runner assumes versions are dense and ordered: it skips
// everything <= MAX(schema_version) and applies the rest in slice order.
// A gap or duplicate would silently strand a step.
func TestMigrationVersionsContiguous(t *testing.T) {
	if len(allMigrations) == 0 {
		t.Fatal("allMigrations is empty")
	}
	for i, m := range allMigrations {
		want := i + 1
		if m.version != want {
			t.Errorf("allMigrations[%d].version = %d, want %d", i, m.version, want)
		}
		if m.description == "" {
			t.Errorf("allMigrations[%d] has no description", i)
		}
	}
	last := allMigrations[len(allMigrations)-1].version
	if last != currentSchemaVersion {
		t.Errorf("last migration version = %d, currentSchemaVersion = %d; they must match", last, currentSchemaVersion)
	}
}

// A fresh store must record every version in schema_version, not just the
// latest, so RunMigrations on reopen sees the full history.
func TestFreshStoreRecordsAllVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows, err := s.db.QueryContext(ctx, `SELECT version, description FROM schema_version ORDER BY version`)
	if err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	defer rows.Close()

	seen := make(map[int]string)
	for rows.Next() {
		var v int
		var desc string
		if err := rows.Scan(&v, &desc); err != nil {
			t.Fatalf("scan: %v", err)
		}
		seen[v] = desc
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}

	for _, m := range allMigrations {
		desc, ok := seen[m.version]
		if !ok {
			t.Errorf("version %d missing from schema_version", m.version)
			continue
		}
		if desc != m.description {
			t.Errorf("version %d description = %q, want %q", m.version, desc, m.description)
		}
	}
	if len(seen) != len(allMigrations) {
		t.Errorf("schema_version has %d rows, want %d", len(seen), len(allMigrations))
	}
}

// Running migrations against an up-to-date store must be a no-op.
func TestMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if err := RunMigrations(s.db); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
	after, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("schema version after rerun: %v", err)
	}
	if before != after {
		t.Errorf("schema version changed on rerun: %d -> %d", before, after)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&n); err != nil {
		t.Fatalf("count schema_version: %v", err)
	}
	if n != len(allMigrations) {
		t.Errorf("schema_version has %d rows after rerun, want %d", n, len(allMigrations))
	}
}
