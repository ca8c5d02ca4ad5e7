package store

// schemaSQL is the base schema for the audit log. The log records events
// only: chat turns and ingest attempts. It never stores embeddings or
// chunk content, so it is not a persistence layer for the index.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS chat_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	mode TEXT NOT NULL,
	source_count INTEGER DEFAULT 0,
	retrieved_count INTEGER DEFAULT 0,
	model_used TEXT DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chat_log_conversation ON chat_log(conversation_id);
CREATE INDEX IF NOT EXISTS idx_chat_log_created ON chat_log(created_at);

CREATE TABLE IF NOT EXISTS ingest_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id TEXT DEFAULT '',
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	chunks INTEGER DEFAULT 0,
	status TEXT NOT NULL,
	error TEXT DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_ingest_log_created ON ingest_log(created_at);
`
