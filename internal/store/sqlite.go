package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	apperr "github.com/definium/defsearch/internal/errors"
)

// schemaVersion is the current database schema version, tracked via
// PRAGMA user_version so upgrades can be introduced without data loss.
const schemaVersion = 1

// migrations holds one SQL script per schema version, applied in order.
var migrations = []string{
	// v1: initial schema
	`
	CREATE TABLE IF NOT EXISTS categories (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		sort_number  INTEGER NOT NULL DEFAULT 0,
		display_name TEXT NOT NULL DEFAULT '',
		locales      TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS definitions (
		id          TEXT PRIMARY KEY,
		version     INTEGER NOT NULL DEFAULT 1,
		category_id TEXT NOT NULL DEFAULT '',
		type        TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL DEFAULT '',
		sort_number INTEGER NOT NULL DEFAULT 0,
		seq         INTEGER NOT NULL,
		payload     TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_definitions_category ON definitions(category_id);
	CREATE INDEX IF NOT EXISTS idx_definitions_type ON definitions(type);
	CREATE INDEX IF NOT EXISTS idx_definitions_name ON definitions(name);
	CREATE INDEX IF NOT EXISTS idx_definitions_sort ON definitions(sort_number);

	CREATE TABLE IF NOT EXISTS metadata (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`,
}

// Metadata keys.
const (
	metaDefinitionCount = "definition_count"
	metaCategoryCount   = "category_count"
	metaLastUpdated     = "last_updated"
)

// SQLiteStore implements DocumentStore on SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ DocumentStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the document store at path.
// An empty path creates an in-memory store for testing. Opening is
// idempotent; an unopenable engine fails with ERR_201_STORAGE_UNAVAILABLE.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, apperr.StorageUnavailable(
				fmt.Sprintf("cannot create data directory %s", filepath.Dir(path)), err)
		}
		// WAL mode for concurrent readers, busy timeout for lock contention
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.StorageUnavailable("cannot open document store", err)
	}

	// Single connection: serializes writers and keeps :memory: stores coherent
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, apperr.StorageUnavailable("document store not responding", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, apperr.StorageUnavailable("schema migration failed", err)
	}

	return s, nil
}

// migrate applies pending schema migrations tracked by PRAGMA user_version.
func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version > schemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported %d", version, schemaVersion)
	}

	for v := version; v < schemaVersion; v++ {
		if _, err := s.db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("applying migration %d: %w", v+1, err)
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("bumping schema version to %d: %w", v+1, err)
		}
	}

	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path (empty for in-memory stores).
func (s *SQLiteStore) Path() string {
	return s.path
}

// BulkReplace clears all prior content then inserts the given sets in a
// single transaction, and recomputes metadata counters.
func (s *SQLiteStore) BulkReplace(ctx context.Context, categories []*Category, definitions []*Definition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StorageError("beginning replace transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{"DELETE FROM definitions", "DELETE FROM categories", "DELETE FROM metadata"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apperr.StorageError("clearing prior content", err)
		}
	}

	if err := upsertCategories(ctx, tx, categories); err != nil {
		return err
	}
	if err := upsertDefinitions(ctx, tx, definitions, 0); err != nil {
		return err
	}
	if err := recomputeMetadata(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.StorageError("committing replace transaction", err)
	}
	return nil
}

// BulkAppend upserts into existing content without clearing. Definitions
// sharing an ID with an existing one overwrite it but keep its insertion
// order; categories merge by ID.
func (s *SQLiteStore) BulkAppend(ctx context.Context, categories []*Category, definitions []*Definition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StorageError("beginning append transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var maxSeq int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM definitions").Scan(&maxSeq); err != nil {
		return apperr.StorageError("reading insertion counter", err)
	}

	if err := upsertCategories(ctx, tx, categories); err != nil {
		return err
	}
	if err := upsertDefinitions(ctx, tx, definitions, maxSeq); err != nil {
		return err
	}
	if err := recomputeMetadata(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.StorageError("committing append transaction", err)
	}
	return nil
}

// Clear removes all categories, definitions, and metadata, returning the
// store to its initial empty state.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StorageError("beginning clear transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{"DELETE FROM definitions", "DELETE FROM categories", "DELETE FROM metadata"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apperr.StorageError("clearing store", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.StorageError("committing clear transaction", err)
	}
	return nil
}

// Categories returns all categories in unspecified order.
func (s *SQLiteStore) Categories(ctx context.Context) ([]*Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sort_number, display_name, locales FROM categories
	`)
	if err != nil {
		return nil, apperr.StorageError("querying categories", err)
	}
	defer rows.Close()

	categories := []*Category{}
	for rows.Next() {
		var c Category
		var locales string
		if err := rows.Scan(&c.ID, &c.Name, &c.SortNumber, &c.DisplayName, &locales); err != nil {
			return nil, apperr.StorageError("scanning category", err)
		}
		if locales != "" && locales != "{}" {
			if err := json.Unmarshal([]byte(locales), &c.LocalizedNames); err != nil {
				return nil, apperr.StorageError("decoding category locales", err)
			}
		}
		categories = append(categories, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StorageError("iterating categories", err)
	}

	return categories, nil
}

// DefinitionsByCategory returns definitions in the category, ordered by
// sort number ascending with insertion order breaking ties.
func (s *SQLiteStore) DefinitionsByCategory(ctx context.Context, categoryID string) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, category_id, type, name, sort_number, seq, payload
		FROM definitions WHERE category_id = ?
		ORDER BY sort_number, seq
	`, categoryID)
	if err != nil {
		return nil, apperr.StorageError("querying definitions by category", err)
	}
	defer rows.Close()

	return scanDefinitions(rows)
}

// Definition returns the definition with the given ID, or ErrNotFound.
func (s *SQLiteStore) Definition(ctx context.Context, id string) (*Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, version, category_id, type, name, sort_number, seq, payload
		FROM definitions WHERE id = ?
	`, id)

	var d Definition
	var payload string
	err := row.Scan(&d.ID, &d.Version, &d.CategoryID, &d.Type, &d.Name, &d.SortNumber, &d.Seq, &payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.StorageError("scanning definition", err)
	}
	if err := json.Unmarshal([]byte(payload), &d.Payload); err != nil {
		return nil, apperr.StorageError("decoding definition payload", err)
	}

	return &d, nil
}

// AllDefinitions returns the full definition set in insertion order.
func (s *SQLiteStore) AllDefinitions(ctx context.Context) ([]*Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, category_id, type, name, sort_number, seq, payload
		FROM definitions ORDER BY seq
	`)
	if err != nil {
		return nil, apperr.StorageError("querying all definitions", err)
	}
	defer rows.Close()

	return scanDefinitions(rows)
}

// Count returns the total definition count.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM definitions").Scan(&n); err != nil {
		return 0, apperr.StorageError("counting definitions", err)
	}
	return n, nil
}

// Stats returns the stored metadata counters. A store that has never been
// written returns zero counters.
func (s *SQLiteStore) Stats(ctx context.Context) (*Metadata, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM metadata")
	if err != nil {
		return nil, apperr.StorageError("querying metadata", err)
	}
	defer rows.Close()

	meta := &Metadata{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, apperr.StorageError("scanning metadata", err)
		}
		switch name {
		case metaDefinitionCount:
			fmt.Sscanf(value, "%d", &meta.DefinitionCount) //nolint:errcheck
		case metaCategoryCount:
			fmt.Sscanf(value, "%d", &meta.CategoryCount) //nolint:errcheck
		case metaLastUpdated:
			if t, perr := time.Parse(time.RFC3339, value); perr == nil {
				meta.LastUpdated = t
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StorageError("iterating metadata", err)
	}

	return meta, nil
}

// upsertCategories merges categories by ID within tx.
func upsertCategories(ctx context.Context, tx *sql.Tx, categories []*Category) error {
	if len(categories) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO categories (id, name, sort_number, display_name, locales)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			sort_number = excluded.sort_number,
			display_name = excluded.display_name,
			locales = excluded.locales
	`)
	if err != nil {
		return apperr.StorageError("preparing category upsert", err)
	}
	defer stmt.Close()

	for _, c := range categories {
		locales := "{}"
		if len(c.LocalizedNames) > 0 {
			data, merr := json.Marshal(c.LocalizedNames)
			if merr != nil {
				return apperr.StorageError("encoding category locales", merr)
			}
			locales = string(data)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.SortNumber, c.DisplayName, locales); err != nil {
			return apperr.StorageError(fmt.Sprintf("upserting category %s", c.ID), err)
		}
	}

	return nil
}

// upsertDefinitions inserts definitions within tx, assigning insertion
// order from baseSeq upward. An ID conflict overwrites every field except
// seq, so overwritten definitions keep their original position.
func upsertDefinitions(ctx context.Context, tx *sql.Tx, definitions []*Definition, baseSeq int64) error {
	if len(definitions) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO definitions (id, version, category_id, type, name, sort_number, seq, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			category_id = excluded.category_id,
			type = excluded.type,
			name = excluded.name,
			sort_number = excluded.sort_number,
			payload = excluded.payload
	`)
	if err != nil {
		return apperr.StorageError("preparing definition upsert", err)
	}
	defer stmt.Close()

	seq := baseSeq
	for _, d := range definitions {
		payload, merr := json.Marshal(d.Payload)
		if merr != nil {
			return apperr.StorageError(fmt.Sprintf("encoding payload for %s", d.ID), merr)
		}
		seq++
		if _, err := stmt.ExecContext(ctx, d.ID, d.Version, d.CategoryID, string(d.Type),
			d.Name, d.SortNumber, seq, string(payload)); err != nil {
			return apperr.StorageError(fmt.Sprintf("upserting definition %s", d.ID), err)
		}
	}

	return nil
}

// recomputeMetadata refreshes the display counters within tx.
func recomputeMetadata(ctx context.Context, tx *sql.Tx) error {
	var defCount, catCount int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM definitions").Scan(&defCount); err != nil {
		return apperr.StorageError("counting definitions for metadata", err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&catCount); err != nil {
		return apperr.StorageError("counting categories for metadata", err)
	}

	pairs := [][2]string{
		{metaDefinitionCount, fmt.Sprintf("%d", defCount)},
		{metaCategoryCount, fmt.Sprintf("%d", catCount)},
		{metaLastUpdated, time.Now().UTC().Format(time.RFC3339)},
	}
	for _, p := range pairs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO metadata (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value
		`, p[0], p[1]); err != nil {
			return apperr.StorageError("writing metadata", err)
		}
	}

	return nil
}

// scanDefinitions reads a definition result set.
func scanDefinitions(rows *sql.Rows) ([]*Definition, error) {
	definitions := []*Definition{}
	for rows.Next() {
		var d Definition
		var payload string
		if err := rows.Scan(&d.ID, &d.Version, &d.CategoryID, &d.Type, &d.Name,
			&d.SortNumber, &d.Seq, &payload); err != nil {
			return nil, apperr.StorageError("scanning definition", err)
		}
		if err := json.Unmarshal([]byte(payload), &d.Payload); err != nil {
			return nil, apperr.StorageError("decoding definition payload", err)
		}
		definitions = append(definitions, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StorageError("iterating definitions", err)
	}

	return definitions, nil
}
