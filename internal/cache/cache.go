// Package cache persists materialized snapshots in an embedded SQLite
// database for fast status queries. It is strictly a cache: the event log is
// the only source of truth, and every row here is safe to discard and
// recompute at any time.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/Priivacy-ai/spec-kitty-sub006/internal/domain"
)

const defaultDBName = "snapshots.db"

var ErrNotFound = errors.New("not found")

//go:embed sql/*.sql
var migrationsFS embed.FS

type Config struct {
	Root string
}

func dbPath(root string) string {
	if root == "" {
		root = "."
	}
	return filepath.Join(root, ".wps", defaultDBName)
}

// Open opens the cache database under <root>/.wps, creating it if missing,
// and applies pending migrations.
func Open(cfg Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Join(cfg.Root, ".wps"), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", dbPath(cfg.Root))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

type migration struct {
	Version int
	Name    string
	UpSQL   string
}

func loadMigrations() ([]migration, error) {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	var migrations []migration
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := migrationsFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		var v int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", f.Name(), err)
		}
		migrations = append(migrations, migration{Version: v, Name: f.Name(), UpSQL: string(data)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func migrate(db *sql.DB) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
		current = 0
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := tx.Exec(m.UpSQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, m.Version); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
		current = m.Version
	}
	return tx.Commit()
}

// Store reads and writes cached snapshots.
type Store struct {
	DB *sql.DB
}

// SaveSnapshot upserts the cached snapshot for a feature.
func (s Store) SaveSnapshot(ctx context.Context, snap domain.StatusSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO snapshots(feature_slug, materialized_at, event_count, last_event_id, payload_json)
		VALUES (?,?,?,?,?)
		ON CONFLICT(feature_slug) DO UPDATE SET
			materialized_at=excluded.materialized_at,
			event_count=excluded.event_count,
			last_event_id=excluded.last_event_id,
			payload_json=excluded.payload_json`,
		snap.FeatureSlug, snap.MaterializedAt, snap.EventCount, snap.LastEventID, string(payload))
	return err
}

// GetSnapshot returns the cached snapshot for a feature, or ErrNotFound.
func (s Store) GetSnapshot(ctx context.Context, featureSlug string) (domain.StatusSnapshot, error) {
	var payload string
	err := s.DB.QueryRowContext(ctx, `SELECT payload_json FROM snapshots WHERE feature_slug=?`, featureSlug).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.StatusSnapshot{}, ErrNotFound
	}
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	var snap domain.StatusSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return domain.StatusSnapshot{}, fmt.Errorf("unmarshal cached snapshot: %w", err)
	}
	return snap, nil
}

// ListFeatures returns the feature slugs with cached snapshots.
func (s Store) ListFeatures(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT feature_slug FROM snapshots ORDER BY feature_slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}
