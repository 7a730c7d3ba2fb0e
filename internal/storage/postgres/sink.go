// Package postgres provides a Postgres-backed record sink.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/adintel/internal/ads"
)

// DefaultTable receives records when no table is configured.
const DefaultTable = "preprocessed_ads"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for record rows.
type Config struct {
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	Table           string        `mapstructure:"table" yaml:"table"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	// CreateTable issues CREATE TABLE IF NOT EXISTS on startup.
	CreateTable bool `mapstructure:"create_table" yaml:"create_table"`
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink writes one row per preprocessed record.
type Sink struct {
	pool  pool
	table string
}

// New creates a Postgres-backed sink using the provided config.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sink := &Sink{pool: p, table: table}
	if cfg.CreateTable {
		if err := sink.EnsureTable(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return sink, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Sink, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Sink{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// EnsureTable creates the record table when it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id TEXT NOT NULL,
	ad_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	preprocessing_status TEXT NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL,
	document JSONB NOT NULL,
	PRIMARY KEY (job_id, ad_id)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// WriteRecords implements ads.RecordSink. Rows for a job are written in one
// transaction; a record seen twice keeps its latest document.
func (s *Sink) WriteRecords(ctx context.Context, jobID string, records []ads.PreprocessedRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres sink is not configured")
	}
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	if len(records) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	job_id,
	ad_id,
	platform,
	preprocessing_status,
	collected_at,
	document
) VALUES (
	$1,$2,$3,$4,$5,$6
)
ON CONFLICT (job_id, ad_id) DO UPDATE
SET platform = EXCLUDED.platform,
	preprocessing_status = EXCLUDED.preprocessing_status,
	collected_at = EXCLUDED.collected_at,
	document = EXCLUDED.document`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, record := range records {
		doc, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", record.AdID, err)
		}
		if _, err := tx.Exec(ctx, query,
			jobID,
			record.AdID,
			record.Platform,
			string(record.Quality.PreprocessingStatus),
			record.CollectedAt,
			doc,
		); err != nil {
			return fmt.Errorf("insert record %s: %w", record.AdID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
