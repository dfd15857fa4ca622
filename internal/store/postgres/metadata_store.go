// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/musicdex/pagalgana-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MetadataStoreConfig controls the Postgres connection pool used for song
// metadata rows.
type MetadataStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// MetadataStore mirrors extracted song metadata into Postgres, keyed by the
// song page URL. Re-extracting a known song replaces its row.
type MetadataStore struct {
	pool  execCloser
	table string
}

// NewMetadataStore creates a Postgres-backed MetadataStore using the provided config.
func NewMetadataStore(ctx context.Context, cfg MetadataStoreConfig) (*MetadataStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "song_metadata"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &MetadataStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewMetadataStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewMetadataStoreWithPool(pool execCloser, table string) (*MetadataStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "song_metadata"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &MetadataStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *MetadataStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveRecord upserts a metadata record by URL. The full record is stored as a
// jsonb document alongside a few queryable columns.
func (s *MetadataStore) SaveRecord(ctx context.Context, rec crawler.MetadataRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("metadata store is not configured")
	}
	if rec.URL == "" {
		return fmt.Errorf("record url is required")
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal metadata record: %w", err)
	}
	var audioURL any
	if rec.AudioURL != nil {
		audioURL = *rec.AudioURL
	}
	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	title,
	audio_url,
	thumbnail_url,
	extract_error,
	document,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	audio_url = EXCLUDED.audio_url,
	thumbnail_url = EXCLUDED.thumbnail_url,
	extract_error = EXCLUDED.extract_error,
	document = EXCLUDED.document,
	updated_at = EXCLUDED.updated_at`, s.table)

	args := []any{
		rec.URL,
		rec.Fields["Song Name"],
		audioURL,
		rec.Thumbnail,
		errText,
		doc,
		time.Now().UTC(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert song metadata: %w", err)
	}
	return nil
}
