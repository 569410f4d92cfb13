package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps plugin objects in a single `plugin_storage` table.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:" for
// a throwaway database. Parent directories are created if needed.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "state"), zap.String("store", "sqlite"))

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("state: creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: opening database: %w", err)
	}
	// ":memory:" databases live only as long as their connection.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("state: enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{db: db, logger: logger, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: creating schema: %w", err)
	}

	logger.Info("sqlite store initialized", zap.String("path", path))
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS plugin_storage (
			plugin_key TEXT PRIMARY KEY,
			storage BLOB NOT NULL,
			snapshot_id TEXT NOT NULL,
			etag TEXT NOT NULL,
			extra TEXT,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, ref Ref) (map[string]any, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}

	query := `SELECT storage, snapshot_id, etag, extra, updated_at FROM plugin_storage WHERE plugin_key = ?`
	row := s.db.QueryRowContext(ctx, query, key)
	payload, meta, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Meta{}, false, nil
	}
	if err != nil {
		return nil, Meta{}, false, fmt.Errorf("state: querying %s: %w", key, err)
	}
	storage, err := decodeStorage(payload)
	if err != nil {
		return nil, Meta{}, false, err
	}
	return storage, meta, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, ref Ref, storage map[string]any, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	payload, etag, err := encodeStorage(storage)
	if err != nil {
		return Meta{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("state: begin: %w", err)
	}
	defer tx.Rollback()

	var currentETag string
	err = tx.QueryRowContext(ctx, `SELECT etag FROM plugin_storage WHERE plugin_key = ?`, key).Scan(&currentETag)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Meta{}, fmt.Errorf("state: querying %s: %w", key, err)
	}
	if err := checkETag(meta.ETag, currentETag); err != nil {
		return Meta{}, err
	}

	saved := nextMeta(meta, etag, s.now())
	var extra sql.NullString
	if len(saved.Extra) > 0 {
		encoded, err := json.Marshal(saved.Extra)
		if err != nil {
			return Meta{}, fmt.Errorf("state: encode extra: %w", err)
		}
		extra = sql.NullString{String: string(encoded), Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO plugin_storage (plugin_key, storage, snapshot_id, etag, extra, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, key, payload, saved.SnapshotID, saved.ETag, extra, saved.UpdatedAt.Format(time.RFC3339Nano)); err != nil {
		return Meta{}, fmt.Errorf("state: saving %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return Meta{}, fmt.Errorf("state: commit: %w", err)
	}

	s.logger.Debug("saved plugin storage", zap.String("plugin", ref.Plugin), zap.String("etag", saved.ETag), zap.Int("size", len(payload)))
	return cloneMeta(saved), nil
}

// Plugins lists the plugin ids with stored objects, sorted.
func (s *SQLiteStore) Plugins(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT plugin_key FROM plugin_storage ORDER BY plugin_key`)
	if err != nil {
		return nil, fmt.Errorf("state: listing plugins: %w", err)
	}
	defer rows.Close()

	var plugins []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("state: scanning plugin: %w", err)
		}
		plugins = append(plugins, strings.TrimPrefix(key, "plugins/"))
	}
	return plugins, rows.Err()
}

func scanRecord(row *sql.Row) ([]byte, Meta, error) {
	var (
		payload   []byte
		meta      Meta
		extra     sql.NullString
		updatedAt string
	)
	if err := row.Scan(&payload, &meta.SnapshotID, &meta.ETag, &extra, &updatedAt); err != nil {
		return nil, Meta{}, err
	}
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &meta.Extra); err != nil {
			return nil, Meta{}, fmt.Errorf("decode extra: %w", err)
		}
	}
	if updatedAt != "" {
		parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, Meta{}, fmt.Errorf("parse updated_at: %w", err)
		}
		meta.UpdatedAt = parsed
	}
	return payload, meta, nil
}
