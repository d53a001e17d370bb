// Package persistence provides SQLite-backed storage for agent
// snapshots and the network event journal. The coordinator itself
// never touches this package; the daemon feeds it from the event
// stream and uses it to restore the graph at boot.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"agentnet/pkg/logx"
)

// CurrentSchemaVersion defines the schema version for migration support.
const CurrentSchemaVersion = 1

// InitializeDatabase opens the database, applies pragmas, and brings
// the schema to the current version. Idempotent.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logx.NewLogger("persistence").Info("📦 Database initialized: %s", dbPath)
	return db, nil
}

func initializeSchema(db *sql.DB) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}

	switch {
	case version == 0:
		return createSchema(db)
	case version == CurrentSchemaVersion:
		return nil
	default:
		return fmt.Errorf("unsupported schema version %d (current is %d)", version, CurrentSchemaVersion)
	}
}

func schemaVersion(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect schema: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	var version int
	if err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE schema_version (
		version INTEGER NOT NULL
	);

	CREATE TABLE agents (
		id           TEXT PRIMARY KEY,
		agent_type   TEXT NOT NULL,
		state        TEXT NOT NULL,
		dependencies TEXT NOT NULL DEFAULT '[]',
		updated_at   TIMESTAMP NOT NULL
	);

	CREATE TABLE network_events (
		id         TEXT PRIMARY KEY,
		agent_id   TEXT NOT NULL,
		from_state TEXT,
		to_state   TEXT,
		edge_op    TEXT,
		other_id   TEXT,
		pruned     INTEGER NOT NULL DEFAULT 0,
		trigger    TEXT NOT NULL,
		timestamp  TIMESTAMP NOT NULL
	);

	CREATE INDEX idx_network_events_agent ON network_events(agent_id);
	CREATE INDEX idx_network_events_time  ON network_events(timestamp);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
