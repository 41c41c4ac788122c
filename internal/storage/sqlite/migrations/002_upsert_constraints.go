// Package migrations contains ordered schema upgrade steps for the sqlite
// store. Each migration probes the live schema and no-ops when the store
// already has the target shape, so re-running is always safe.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MigrateUpsertConstraints rewrites the session, checkpoint, and dead-letter
// tables to carry the uniqueness constraints that upsert writes conflict on.
// Stores created before the constraints existed accumulate duplicate rows;
// the rewrite keeps the newest row per natural key and drops the rest.
//
// The caller runs this inside a single transaction with foreign keys
// disabled. Indexes are re-created after each table swap.
func MigrateUpsertConstraints(ctx context.Context, conn *sql.Conn) error {
	rewrites := []tableRewrite{
		{
			table:      "extraction_sessions",
			uniqueCols: []string{"id"},
			create: `CREATE TABLE extraction_sessions_new (
				id TEXT PRIMARY KEY,
				started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				completed_at DATETIME,
				status TEXT NOT NULL DEFAULT 'pending',
				total_items INTEGER NOT NULL DEFAULT 0,
				success_count INTEGER NOT NULL DEFAULT 0,
				error_count INTEGER NOT NULL DEFAULT 0,
				config TEXT NOT NULL DEFAULT '{}',
				metadata TEXT NOT NULL DEFAULT '{}'
			)`,
			columns: []copyColumn{
				{name: "id"},
				{name: "started_at"},
				{name: "completed_at"},
				{name: "status", fallback: "'pending'"},
				{name: "total_items", fallback: "0"},
				{name: "success_count", fallback: "0"},
				{name: "error_count", fallback: "0"},
				{name: "config", fallback: "'{}'"},
				{name: "metadata", fallback: "'{}'"},
			},
			dedupeKey: "id",
			indexes: []string{
				`CREATE INDEX IF NOT EXISTS idx_extraction_sessions_started ON extraction_sessions(started_at)`,
			},
		},
		{
			table:      "restoration_sessions",
			uniqueCols: []string{"id"},
			create: `CREATE TABLE restoration_sessions_new (
				id TEXT PRIMARY KEY,
				started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				completed_at DATETIME,
				status TEXT NOT NULL DEFAULT 'pending',
				total_items INTEGER NOT NULL DEFAULT 0,
				success_count INTEGER NOT NULL DEFAULT 0,
				error_count INTEGER NOT NULL DEFAULT 0,
				source_instance TEXT NOT NULL DEFAULT '',
				destination_instance TEXT NOT NULL DEFAULT '',
				config TEXT NOT NULL DEFAULT '{}',
				metadata TEXT NOT NULL DEFAULT '{}'
			)`,
			columns: []copyColumn{
				{name: "id"},
				{name: "started_at"},
				{name: "completed_at"},
				{name: "status", fallback: "'pending'"},
				{name: "total_items", fallback: "0"},
				{name: "success_count", fallback: "0"},
				{name: "error_count", fallback: "0"},
				{name: "source_instance", fallback: "''"},
				{name: "destination_instance", fallback: "''"},
				{name: "config", fallback: "'{}'"},
				{name: "metadata", fallback: "'{}'"},
			},
			dedupeKey: "id",
			indexes: []string{
				`CREATE INDEX IF NOT EXISTS idx_restoration_sessions_started ON restoration_sessions(started_at)`,
			},
		},
		{
			table:      "sync_checkpoints",
			uniqueCols: []string{"session_id", "content_type", "started_at"},
			create: `CREATE TABLE sync_checkpoints_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL,
				content_type TEXT NOT NULL,
				checkpoint_data TEXT NOT NULL DEFAULT '{}',
				started_at DATETIME NOT NULL,
				completed_at DATETIME,
				item_count INTEGER NOT NULL DEFAULT 0,
				error_count INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				UNIQUE(session_id, content_type, started_at),
				FOREIGN KEY (session_id) REFERENCES extraction_sessions(id) ON DELETE CASCADE
			)`,
			columns: []copyColumn{
				{name: "id"},
				{name: "session_id"},
				{name: "content_type"},
				{name: "checkpoint_data", fallback: "'{}'"},
				{name: "started_at"},
				{name: "completed_at"},
				{name: "item_count", fallback: "0"},
				{name: "error_count", fallback: "0"},
				{name: "error_message"},
			},
			dedupeKey: "session_id, content_type, started_at",
			indexes: []string{
				`CREATE INDEX IF NOT EXISTS idx_sync_checkpoints_session ON sync_checkpoints(session_id)`,
			},
		},
		{
			table:      "restoration_checkpoints",
			uniqueCols: []string{"session_id", "content_type", "started_at"},
			create: `CREATE TABLE restoration_checkpoints_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL,
				content_type TEXT NOT NULL,
				checkpoint_data TEXT NOT NULL DEFAULT '{}',
				started_at DATETIME NOT NULL,
				completed_at DATETIME,
				item_count INTEGER NOT NULL DEFAULT 0,
				error_count INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				UNIQUE(session_id, content_type, started_at),
				FOREIGN KEY (session_id) REFERENCES restoration_sessions(id) ON DELETE CASCADE
			)`,
			columns: []copyColumn{
				{name: "id"},
				{name: "session_id"},
				{name: "content_type"},
				{name: "checkpoint_data", fallback: "'{}'"},
				{name: "started_at"},
				{name: "completed_at"},
				{name: "item_count", fallback: "0"},
				{name: "error_count", fallback: "0"},
				{name: "error_message"},
			},
			dedupeKey: "session_id, content_type, started_at",
			indexes: []string{
				`CREATE INDEX IF NOT EXISTS idx_restoration_checkpoints_session ON restoration_checkpoints(session_id)`,
			},
		},
		{
			table:      "dead_letter_queue",
			uniqueCols: []string{"session_id", "content_id", "content_type", "retry_count"},
			create: `CREATE TABLE dead_letter_queue_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL,
				content_id TEXT NOT NULL,
				content_type TEXT NOT NULL,
				content_data BLOB,
				error_message TEXT NOT NULL DEFAULT '',
				error_type TEXT NOT NULL DEFAULT 'unknown',
				stack_trace TEXT,
				retry_count INTEGER NOT NULL DEFAULT 0,
				failed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				metadata TEXT NOT NULL DEFAULT '{}',
				UNIQUE(session_id, content_id, content_type, retry_count),
				FOREIGN KEY (session_id) REFERENCES restoration_sessions(id) ON DELETE CASCADE
			)`,
			columns: []copyColumn{
				{name: "id"},
				{name: "session_id"},
				{name: "content_id"},
				{name: "content_type"},
				{name: "content_data"},
				{name: "error_message", fallback: "''"},
				{name: "error_type", fallback: "'unknown'"},
				{name: "stack_trace"},
				{name: "retry_count", fallback: "0"},
				{name: "failed_at"},
				{name: "metadata", fallback: "'{}'"},
			},
			dedupeKey: "session_id, content_id, content_type, retry_count",
			indexes: []string{
				`CREATE INDEX IF NOT EXISTS idx_dlq_session ON dead_letter_queue(session_id)`,
			},
		},
	}

	for _, rw := range rewrites {
		if err := rw.apply(ctx, conn); err != nil {
			return fmt.Errorf("rewrite %s: %w", rw.table, err)
		}
	}
	return nil
}

// tableRewrite describes one constraint-adding table swap.
type tableRewrite struct {
	table      string       // existing table name
	uniqueCols []string     // the natural key the new shape must be unique on
	create     string       // CREATE TABLE <table>_new statement
	columns    []copyColumn // columns to carry over, with defaults for ones older stores lack
	dedupeKey  string       // GROUP BY expression selecting the surviving row per key
	indexes    []string     // secondary indexes to re-create after the swap
}

// copyColumn names a column in the new shape; fallback is the SQL literal
// used when the legacy table does not have the column.
type copyColumn struct {
	name     string
	fallback string
}

func (rw tableRewrite) apply(ctx context.Context, conn *sql.Conn) error {
	exists, err := tableExists(ctx, conn, rw.table)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	hasConstraint, err := hasUniqueIndexOn(ctx, conn, rw.table, rw.uniqueCols)
	if err != nil {
		return err
	}
	if hasConstraint {
		return nil
	}

	legacyCols, err := tableColumns(ctx, conn, rw.table)
	if err != nil {
		return err
	}

	// Build the SELECT list: real columns copy through, columns the legacy
	// table lacks take their declared default.
	insertCols := make([]string, 0, len(rw.columns))
	selectCols := make([]string, 0, len(rw.columns))
	for _, col := range rw.columns {
		insertCols = append(insertCols, col.name)
		if legacyCols[col.name] {
			selectCols = append(selectCols, col.name)
		} else if col.fallback != "" {
			selectCols = append(selectCols, col.fallback)
		} else {
			selectCols = append(selectCols, "NULL")
		}
	}

	if _, err := conn.ExecContext(ctx, rw.create); err != nil {
		return fmt.Errorf("create replacement table: %w", err)
	}

	// Keep the newest duplicate per natural key: rowid is monotonically
	// assigned, so MAX(rowid) is the latest write.
	copyStmt := fmt.Sprintf(
		`INSERT INTO %s_new (%s) SELECT %s FROM %s WHERE rowid IN (SELECT MAX(rowid) FROM %s GROUP BY %s)`,
		rw.table,
		strings.Join(insertCols, ", "),
		strings.Join(selectCols, ", "),
		rw.table, rw.table, rw.dedupeKey,
	) // #nosec G201 - table and column names are package constants
	if _, err := conn.ExecContext(ctx, copyStmt); err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, rw.table)); err != nil { // #nosec G201
		return fmt.Errorf("drop legacy table: %w", err)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s_new RENAME TO %s`, rw.table, rw.table)); err != nil { // #nosec G201
		return fmt.Errorf("rename replacement table: %w", err)
	}

	for _, idx := range rw.indexes {
		if _, err := conn.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("re-create index: %w", err)
		}
	}
	return nil
}

// tableExists probes sqlite_master for the table.
func tableExists(ctx context.Context, conn *sql.Conn, table string) (bool, error) {
	var n int
	err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("probe table %s: %w", table, err)
	}
	return n > 0, nil
}

// tableColumns returns the column names of a table via PRAGMA table_info.
func tableColumns(ctx context.Context, conn *sql.Conn, table string) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table)) // #nosec G201
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// hasUniqueIndexOn reports whether the table has a unique index covering
// exactly the given columns (in any order). Inline UNIQUE constraints and
// TEXT primary keys both surface here as sqlite_autoindex entries.
func hasUniqueIndexOn(ctx context.Context, conn *sql.Conn, table string, cols []string) (bool, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list(%s)`, table)) // #nosec G201
	if err != nil {
		return false, fmt.Errorf("index_list %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var uniqueIndexes []string
	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return false, err
		}
		if unique == 1 {
			uniqueIndexes = append(uniqueIndexes, name)
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	want := make(map[string]bool, len(cols))
	for _, c := range cols {
		want[c] = true
	}

	for _, idx := range uniqueIndexes {
		idxCols, err := indexColumns(ctx, conn, idx)
		if err != nil {
			return false, err
		}
		if len(idxCols) != len(want) {
			continue
		}
		match := true
		for _, c := range idxCols {
			if !want[c] {
				match = false
				break
			}
		}
		if match {
			return true, nil
		}
	}

	// An INTEGER PRIMARY KEY is the rowid and never appears in index_list.
	if len(cols) == 1 && cols[0] == "id" {
		return integerPrimaryKey(ctx, conn, table)
	}
	return false, nil
}

func indexColumns(ctx context.Context, conn *sql.Conn, index string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_info(%s)`, index)) // #nosec G201
	if err != nil {
		return nil, fmt.Errorf("index_info %s: %w", index, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var (
			seqno int
			cid   int
			name  sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}

func integerPrimaryKey(ctx context.Context, conn *sql.Conn, table string) (bool, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table)) // #nosec G201
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == "id" && pk == 1 && strings.EqualFold(colType, "INTEGER") {
			return true, nil
		}
	}
	return false, rows.Err()
}
