package storage

var sqliteMigrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS mnemo_schema_version (
			num INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mnemo_memory (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'fact',
			content TEXT NOT NULL,
			embedding BLOB,
			salience REAL NOT NULL DEFAULT 0.5,
			decay_at TIMESTAMP,
			source_origin TEXT,
			source_context TEXT,
			tags TEXT,
			uniq TEXT NOT NULL,
			date_created TIMESTAMP NOT NULL,
			date_updated TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_mnemo_memory_owner_uniq
			ON mnemo_memory (owner, uniq)`,
		`CREATE INDEX IF NOT EXISTS idx_mnemo_memory_owner_decay
			ON mnemo_memory (owner, decay_at)`,
	},
}

var postgresMigrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS mnemo_schema_version (
			num INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mnemo_memory (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'fact',
			content TEXT NOT NULL,
			embedding BYTEA,
			salience DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			decay_at TIMESTAMPTZ,
			source_origin TEXT,
			source_context TEXT,
			tags TEXT,
			uniq TEXT NOT NULL,
			date_created TIMESTAMPTZ NOT NULL,
			date_updated TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_mnemo_memory_owner_uniq
			ON mnemo_memory (owner, uniq)`,
		`CREATE INDEX IF NOT EXISTS idx_mnemo_memory_owner_decay
			ON mnemo_memory (owner, decay_at)`,
	},
}
