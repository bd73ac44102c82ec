// Package journal records an append-only operational log of project activity
// in a local sqlite database, so workflows that mutate the projects file have
// a queryable history alongside it.
package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/newtondotcom/roomplanv2/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal is a sqlite-backed activity log. Safe for concurrent use through
// database/sql's connection pool.
type Journal struct {
	*sql.DB
	logf func(format string, v ...interface{})
}

// Entry is one recorded journal row.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	ProjectID string    `json:"project_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Open opens (or creates) the journal database at path and applies any
// pending schema migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	j := &Journal{DB: db, logf: monitoring.Prefixed("journal")}
	if err := j.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// migrateUp runs all pending migrations from the embedded set.
func (j *Journal) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(j.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Note: we don't close m here because it would close the underlying DB
	// connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Record appends one entry. Journal failures are logged, not fatal: the
// workflows it documents must not fail because their history could not be
// written.
func (j *Journal) Record(kind string, projectID uuid.UUID, detail string) {
	var pid interface{}
	if projectID != uuid.Nil {
		pid = projectID.String()
	}
	_, err := j.Exec(
		`INSERT INTO journal (kind, project_id, detail) VALUES (?, ?, ?)`,
		kind, pid, detail,
	)
	if err != nil {
		j.logf("failed to record %s: %v", kind, err)
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.Query(
		`SELECT id, write_timestamp, kind, COALESCE(project_id, ''), COALESCE(detail, '')
		 FROM journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts float64
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.ProjectID, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		sec := int64(ts)
		e.Timestamp = time.Unix(sec, int64((ts-float64(sec))*1e9)).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
