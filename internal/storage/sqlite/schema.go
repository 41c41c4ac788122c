package sqlite

// currentSchemaVersion is the version a freshly created store reports.
// Version 1 is the legacy layout without upsert uniqueness constraints;
// version 2 added them (see migrations); version 3 added the DLQ recency
// index.
const currentSchemaVersion = 3

const schema = `
-- Content items: one row per extracted Looker object. content_data holds
-- the deterministic msgpack encoding of the API payload.
CREATE TABLE IF NOT EXISTS content_items (
    id TEXT PRIMARY KEY,
    content_type TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    owner_id TEXT,
    folder_id TEXT,
    parent_id TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted INTEGER NOT NULL DEFAULT 0,
    content_data BLOB NOT NULL,
    content_size INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_content_items_type_id ON content_items(content_type, id);
CREATE INDEX IF NOT EXISTS idx_content_items_folder ON content_items(folder_id);
CREATE INDEX IF NOT EXISTS idx_content_items_parent ON content_items(parent_id);

-- Extraction sessions
CREATE TABLE IF NOT EXISTS extraction_sessions (
    id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME,
    status TEXT NOT NULL DEFAULT 'pending',
    total_items INTEGER NOT NULL DEFAULT 0,
    success_count INTEGER NOT NULL DEFAULT 0,
    error_count INTEGER NOT NULL DEFAULT 0,
    config TEXT NOT NULL DEFAULT '{}',
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_extraction_sessions_started ON extraction_sessions(started_at);

-- Extraction checkpoints. checkpoint_data is the JSON payload with
-- completed_ids and last_offset; the natural key makes saves upserts.
CREATE TABLE IF NOT EXISTS sync_checkpoints (
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
);

CREATE INDEX IF NOT EXISTS idx_sync_checkpoints_session ON sync_checkpoints(session_id);

-- Restoration sessions
CREATE TABLE IF NOT EXISTS restoration_sessions (
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
);

CREATE INDEX IF NOT EXISTS idx_restoration_sessions_started ON restoration_sessions(started_at);

-- Restoration checkpoints (parallel schema to sync_checkpoints)
CREATE TABLE IF NOT EXISTS restoration_checkpoints (
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
);

CREATE INDEX IF NOT EXISTS idx_restoration_checkpoints_session ON restoration_checkpoints(session_id);

-- Source-to-destination ID mappings for cross-instance restoration
CREATE TABLE IF NOT EXISTS id_mappings (
    source_instance TEXT NOT NULL,
    content_type TEXT NOT NULL,
    source_id TEXT NOT NULL,
    destination_id TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    session_id TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (source_instance, content_type, source_id)
);

-- Dead-letter queue: restoration failures that exhausted their retries.
-- The uniqueness key deduplicates re-failures at the same retry level.
CREATE TABLE IF NOT EXISTS dead_letter_queue (
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
);

CREATE INDEX IF NOT EXISTS idx_dlq_session ON dead_letter_queue(session_id);
CREATE INDEX IF NOT EXISTS idx_dlq_failed_at ON dead_letter_queue(failed_at DESC);

-- Schema version bookkeeping for migrations
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    description TEXT NOT NULL DEFAULT ''
);
`
