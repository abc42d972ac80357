// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package corpus persists the benchmark corpus: paper records, the metadata
// index catalog with its per-stage processing ledger, and the three derived
// artifact stores. Everything lives in one SQLite database so that an
// artifact write and its ledger update commit in a single transaction.
package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "corpus.db"
)

// MetadataExtractor maps a paper's raw payload to structured metadata.
// Implementations report missing required fields through their error; the
// returned metadata may still be partially populated in that case.
type MetadataExtractor interface {
	Extract(raw []byte) (types.PaperMetadata, error)
}

// Store manages the corpus SQLite database.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Open opens or creates the corpus database at dataDir/index/corpus.db and
// creates the schema if it does not exist.
func Open(cfg types.StoreConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.DataDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dataDir: cfg.DataDir}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			raw_content BLOB NOT NULL,
			fetched_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			paper_id TEXT PRIMARY KEY REFERENCES papers(id),
			title TEXT,
			first_author TEXT,
			journal TEXT,
			year TEXT,
			abstract TEXT,
			collection TEXT,
			abstract_hash TEXT,
			indexed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger (
			paper_id TEXT NOT NULL REFERENCES entries(paper_id),
			stage TEXT NOT NULL,
			status TEXT NOT NULL
				CHECK (status IN ('pending','running','done','failed')),
			run_id TEXT,
			detail TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (paper_id, stage)
		)`,
		`CREATE TABLE IF NOT EXISTS query_artifacts (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL REFERENCES entries(paper_id),
			seq INTEGER NOT NULL,
			payload TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			UNIQUE (paper_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS synthesis_artifacts (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL REFERENCES entries(paper_id),
			seq INTEGER NOT NULL,
			payload TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			UNIQUE (paper_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS label_artifacts (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL REFERENCES entries(paper_id),
			seq INTEGER NOT NULL,
			payload TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			UNIQUE (paper_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			generated INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			skipped INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_stage ON ledger(stage, status)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	return nil
}

// stageTable maps a generation stage to its derived store table.
func stageTable(stage string) (string, error) {
	switch stage {
	case types.StageQuery:
		return "query_artifacts", nil
	case types.StageSynthesis:
		return "synthesis_artifacts", nil
	case types.StageLabel:
		return "label_artifacts", nil
	default:
		return "", fmt.Errorf("unknown generation stage %q", stage)
	}
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
