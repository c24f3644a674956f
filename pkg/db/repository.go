package db

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/waltr/flashstation/pkg/errors"
	_ "modernc.org/sqlite"
)

// maxStoredOutput bounds how much esptool output is kept per attempt
const maxStoredOutput = 4096

// Repository is the durable version store. Writes are single statements,
// so a reader never observes a half-written variant.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	// WAL lets the sync writer and the control loop reader proceed together
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Mark(errors.Wrap(err, "failed to open database"), errors.ErrStorage)
	}

	// Create schema
	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Mark(errors.Wrap(err, "failed to create schema"), errors.ErrStorage)
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Get retrieves a variant by key. It returns nil, nil when the key is unknown.
func (r *Repository) Get(ctx context.Context, key string) (*Variant, error) {
	slog.Debug("database_query_variant", "key", key)

	query := `
		SELECT key, version, path, is_idf, created_at, updated_at
		FROM variants WHERE key = ?
	`
	var v Variant
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&v.Key, &v.Version, &v.Path, &v.IsIDF, &v.CreatedAt, &v.UpdatedAt)

	if err == sql.ErrNoRows {
		slog.Info("database_variant_not_found", "key", key)
		return nil, nil // Not found
	}
	if err != nil {
		slog.Error("database_query_failed", "key", key, "error", err)
		return nil, errors.Mark(errors.Wrap(err, "failed to query variant"), errors.ErrStorage)
	}

	slog.Debug("database_variant_found", "key", key, "version", v.Version)
	return &v, nil
}

// List returns a snapshot of every cached variant keyed by trigger key
func (r *Repository) List(ctx context.Context) (map[string]*Variant, error) {
	slog.Debug("database_list_variants")

	query := `
		SELECT key, version, path, is_idf, created_at, updated_at
		FROM variants ORDER BY key
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Mark(errors.Wrap(err, "failed to list variants"), errors.ErrStorage)
	}
	defer rows.Close()

	variants := make(map[string]*Variant)
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.Key, &v.Version, &v.Path, &v.IsIDF, &v.CreatedAt, &v.UpdatedAt); err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Mark(errors.Wrap(err, "failed to scan row"), errors.ErrStorage)
		}
		variants[v.Key] = &v
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Mark(errors.Wrap(err, "rows error"), errors.ErrStorage)
	}

	slog.Debug("database_list_complete", "variant_count", len(variants))
	return variants, nil
}

// Upsert inserts a variant or, when the key already exists, replaces its
// version and path. isIDF is only written on insert; an existing row keeps
// the flag it was created with.
func (r *Repository) Upsert(ctx context.Context, key, version, path string, isIDF bool) error {
	slog.Info("database_upsert_variant", "key", key, "version", version, "path", path)

	query := `
		INSERT INTO variants (key, version, path, is_idf)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE
		SET version = excluded.version, path = excluded.path, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, key, version, path, isIDF); err != nil {
		slog.Error("database_upsert_failed", "key", key, "version", version, "error", err)
		return errors.Mark(errors.Wrap(err, "failed to upsert variant"), errors.ErrStorage)
	}

	slog.Info("database_variant_upserted", "key", key, "version", version)
	return nil
}

// RecordFlash appends a flash attempt to the history
func (r *Repository) RecordFlash(ctx context.Context, a *FlashAttempt) error {
	output := a.Output
	if len(output) > maxStoredOutput {
		output = output[len(output)-maxStoredOutput:]
	}

	query := `
		INSERT INTO flash_attempts (key, version, outcome, exit_code, output, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query, a.Key, a.Version, a.Outcome, a.ExitCode, output, a.DurationMS)
	if err != nil {
		slog.Error("database_record_flash_failed", "key", a.Key, "outcome", a.Outcome, "error", err)
		return errors.Mark(errors.Wrap(err, "failed to record flash"), errors.ErrStorage)
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "key", a.Key, "error", err)
		return errors.Mark(errors.Wrap(err, "failed to get last insert id"), errors.ErrStorage)
	}
	a.ID = id

	slog.Info("database_flash_recorded", "attempt_id", a.ID, "key", a.Key, "outcome", a.Outcome)
	return nil
}

// ListFlashes returns the most recent flash attempts, newest first
func (r *Repository) ListFlashes(ctx context.Context, limit int) ([]*FlashAttempt, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, key, version, outcome, exit_code, output, duration_ms, created_at
		FROM flash_attempts ORDER BY id DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		slog.Error("database_list_flashes_failed", "error", err)
		return nil, errors.Mark(errors.Wrap(err, "failed to list flashes"), errors.ErrStorage)
	}
	defer rows.Close()

	var attempts []*FlashAttempt
	for rows.Next() {
		var a FlashAttempt
		var output sql.NullString
		if err := rows.Scan(&a.ID, &a.Key, &a.Version, &a.Outcome, &a.ExitCode, &output, &a.DurationMS, &a.CreatedAt); err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Mark(errors.Wrap(err, "failed to scan row"), errors.ErrStorage)
		}
		a.Output = output.String
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Mark(errors.Wrap(err, "rows error"), errors.ErrStorage)
	}

	return attempts, nil
}
