package store

// schemaSQL is the DDL for all tables. Every statement is idempotent so it
// can run on each open.
const schemaSQL = `
-- One row per distinct input, keyed by content hash
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    source TEXT NOT NULL,
    content_hash TEXT NOT NULL UNIQUE,
    status TEXT DEFAULT 'processing',
    segment_count INTEGER DEFAULT 0,
    triple_count INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Triples in segment order, before alias resolution
CREATE TABLE IF NOT EXISTS triples (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    segment_index INTEGER NOT NULL,
    subject TEXT NOT NULL,
    predicate TEXT NOT NULL,
    object TEXT NOT NULL
);

-- Alias map, one row per variant; group_index keeps response order
CREATE TABLE IF NOT EXISTS aliases (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    group_index INTEGER NOT NULL,
    canonical TEXT NOT NULL,
    variant TEXT
);

-- Assembled graph
CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    role TEXT NOT NULL,
    community INTEGER DEFAULT -1,
    UNIQUE(document_id, name)
);

CREATE TABLE IF NOT EXISTS edges (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    source TEXT NOT NULL,
    target TEXT NOT NULL,
    label TEXT NOT NULL
);

-- Responses keyed by request fingerprint
CREATE TABLE IF NOT EXISTS llm_cache (
    key TEXT PRIMARY KEY,
    model TEXT,
    response TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_triples_doc ON triples(document_id, segment_index);
CREATE INDEX IF NOT EXISTS idx_aliases_doc ON aliases(document_id, group_index);
CREATE INDEX IF NOT EXISTS idx_nodes_doc ON nodes(document_id);
CREATE INDEX IF NOT EXISTS idx_edges_doc ON edges(document_id);
`
