// Package history manages migration history tracking.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/sqlgen"
)

// TableName is the history table.
const TableName = "_schemadelta_migrations"

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// MigrationRecord represents a migration in the history
type MigrationRecord struct {
	ID            int64
	App           string
	Name          string
	AppliedAt     time.Time
	Checksum      string
	ExecutionTime int64 // milliseconds
	ToolVersion   string
}

// Key returns the migration key the record belongs to.
func (r MigrationRecord) Key() descriptor.Key {
	return descriptor.Key{App: r.App, Name: r.Name}
}

// Manager manages migration history
type Manager struct {
	provider string
}

// NewManager creates a history manager for the given provider.
func NewManager(provider string) (*Manager, error) {
	normalized, err := sqlgen.NormalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	return &Manager{provider: normalized}, nil
}

// InitTable creates the history table if it does not exist.
func (m *Manager) InitTable(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, m.createTableSQL()); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// Record stores an applied migration. Pass the migration's transaction so
// the row commits or rolls back with the schema change.
func (m *Manager) Record(ctx context.Context, db Execer, record MigrationRecord) error {
	_, err := db.ExecContext(ctx, m.insertSQL(),
		record.App,
		record.Name,
		record.AppliedAt.UTC(),
		record.Checksum,
		record.ExecutionTime,
		record.ToolVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %s.%s: %w", record.App, record.Name, err)
	}
	return nil
}

// Remove deletes the record of an unapplied migration.
func (m *Manager) Remove(ctx context.Context, db Execer, key descriptor.Key) error {
	if _, err := db.ExecContext(ctx, m.deleteSQL(), key.App, key.Name); err != nil {
		return fmt.Errorf("failed to remove migration %s: %w", key, err)
	}
	return nil
}

// Applied returns every applied migration keyed by app and name.
func (m *Manager) Applied(ctx context.Context, db Queryer) (map[descriptor.Key]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx, m.selectAllSQL())
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	records := make(map[descriptor.Key]MigrationRecord)
	for rows.Next() {
		var record MigrationRecord
		var executionTime sql.NullInt64
		var toolVersion sql.NullString
		if err := rows.Scan(
			&record.ID,
			&record.App,
			&record.Name,
			&record.AppliedAt,
			&record.Checksum,
			&executionTime,
			&toolVersion,
		); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		record.ExecutionTime = executionTime.Int64
		record.ToolVersion = toolVersion.String
		records[record.Key()] = record
	}
	return records, rows.Err()
}

func (m *Manager) createTableSQL() string {
	switch m.provider {
	case "postgres":
		return `
			CREATE TABLE IF NOT EXISTS ` + TableName + ` (
				id SERIAL PRIMARY KEY,
				app VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				applied_at TIMESTAMP WITH TIME ZONE NOT NULL,
				checksum VARCHAR(64) NOT NULL,
				execution_time INTEGER,
				tool_version VARCHAR(64),
				UNIQUE (app, name)
			)
		`
	case "mysql":
		return `
			CREATE TABLE IF NOT EXISTS ` + TableName + ` (
				id INT AUTO_INCREMENT PRIMARY KEY,
				app VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				applied_at DATETIME(6) NOT NULL,
				checksum VARCHAR(64) NOT NULL,
				execution_time INT,
				tool_version VARCHAR(64),
				UNIQUE KEY uniq_app_name (app, name)
			)
		`
	default:
		return `
			CREATE TABLE IF NOT EXISTS ` + TableName + ` (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				app TEXT NOT NULL,
				name TEXT NOT NULL,
				applied_at DATETIME NOT NULL,
				checksum TEXT NOT NULL,
				execution_time INTEGER,
				tool_version TEXT,
				UNIQUE (app, name)
			)
		`
	}
}

func (m *Manager) insertSQL() string {
	if m.provider == "postgres" {
		return `
			INSERT INTO ` + TableName + ` (app, name, applied_at, checksum, execution_time, tool_version)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
	}
	return `
		INSERT INTO ` + TableName + ` (app, name, applied_at, checksum, execution_time, tool_version)
		VALUES (?, ?, ?, ?, ?, ?)
	`
}

func (m *Manager) deleteSQL() string {
	if m.provider == "postgres" {
		return `DELETE FROM ` + TableName + ` WHERE app = $1 AND name = $2`
	}
	return `DELETE FROM ` + TableName + ` WHERE app = ? AND name = ?`
}

func (m *Manager) selectAllSQL() string {
	return `
		SELECT id, app, name, applied_at, checksum, execution_time, tool_version
		FROM ` + TableName + `
		ORDER BY id ASC
	`
}
