package config

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xlttj/sshfwd/pkg/logging"

	_ "modernc.org/sqlite"
)

// SQLiteBackend persists profiles in a SQLite database under ~/.sshfwd.
type SQLiteBackend struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteBackend creates and initializes the SQLite-based profile backend.
func NewSQLiteBackend() (*SQLiteBackend, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".sshfwd")
	dbPath := filepath.Join(configDir, "sshfwd.db")

	// Ensure config directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return NewSQLiteBackendAt(dbPath)
}

// NewSQLiteBackendAt opens a SQLite backend at an explicit path (used by tests).
func NewSQLiteBackendAt(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	backend := &SQLiteBackend{
		db:     db,
		dbPath: dbPath,
	}

	if err := backend.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.LogDebug("SQLite profile backend initialized at: %s", dbPath)
	return backend, nil
}

// initializeSchema creates the database tables and indexes
func (b *SQLiteBackend) initializeSchema() error {
	schema := `
	-- SSH connection profiles
	CREATE TABLE IF NOT EXISTS profiles (
		name TEXT PRIMARY KEY,
		hostname TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		port INTEGER
	);

	-- Port forward rules, one row per rule, ordered by position
	CREATE TABLE IF NOT EXISTS forwards (
		profile_name TEXT NOT NULL,
		position INTEGER NOT NULL,
		local_port INTEGER NOT NULL,
		remote_host TEXT NOT NULL,
		remote_port INTEGER NOT NULL,
		FOREIGN KEY (profile_name) REFERENCES profiles(name) ON DELETE CASCADE,
		PRIMARY KEY (profile_name, position)
	);

	CREATE INDEX IF NOT EXISTS idx_forwards_profile ON forwards(profile_name);
	`

	_, err := b.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (b *SQLiteBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// LoadAll reads every profile with its forward rules in insertion order.
func (b *SQLiteBackend) LoadAll() (map[string]Profile, error) {
	rows, err := b.db.Query(`SELECT name, hostname, username, port FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]Profile)
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.Name, &p.Hostname, &p.Username, &p.Port); err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles[p.Name] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}

	fwdRows, err := b.db.Query(`SELECT profile_name, local_port, remote_host, remote_port FROM forwards ORDER BY profile_name, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query forwards: %w", err)
	}
	defer fwdRows.Close()

	for fwdRows.Next() {
		var name string
		var fwd ForwardRule
		if err := fwdRows.Scan(&name, &fwd.LocalPort, &fwd.RemoteHost, &fwd.RemotePort); err != nil {
			return nil, fmt.Errorf("failed to scan forward row: %w", err)
		}
		p, ok := profiles[name]
		if !ok {
			logging.LogError("Orphaned forward rule for unknown profile %q, skipping", name)
			continue
		}
		p.Forwards = append(p.Forwards, fwd)
		profiles[name] = p
	}
	if err := fwdRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate forwards: %w", err)
	}

	logging.LogDebug("Loaded %d profiles from %s", len(profiles), b.dbPath)
	return profiles, nil
}

// SaveAll replaces the persisted profile set in a single transaction.
func (b *SQLiteBackend) SaveAll(profiles map[string]Profile) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM forwards`); err != nil {
		return fmt.Errorf("failed to clear forwards: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM profiles`); err != nil {
		return fmt.Errorf("failed to clear profiles: %w", err)
	}

	for name, p := range profiles {
		if _, err := tx.Exec(
			`INSERT INTO profiles (name, hostname, username, port) VALUES (?, ?, ?, ?)`,
			name, p.Hostname, p.Username, p.Port,
		); err != nil {
			return fmt.Errorf("failed to insert profile %q: %w", name, err)
		}
		for i, fwd := range p.Forwards {
			if _, err := tx.Exec(
				`INSERT INTO forwards (profile_name, position, local_port, remote_host, remote_port) VALUES (?, ?, ?, ?, ?)`,
				name, i, fwd.LocalPort, fwd.RemoteHost, fwd.RemotePort,
			); err != nil {
				return fmt.Errorf("failed to insert forward %d for %q: %w", i, name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit profiles: %w", err)
	}

	logging.LogDebug("Saved %d profiles to %s", len(profiles), b.dbPath)
	return nil
}
