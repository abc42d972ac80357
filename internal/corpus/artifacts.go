// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// CommitArtifacts writes a generator's output and the matching ledger
// transitions in one transaction: either the artifacts exist and every
// paper in paperIDs is marked done, or nothing persists. Under force the
// papers' prior artifacts for the stage are replaced.
//
// For the per-paper stages paperIDs holds the single source paper; for
// synthesis it holds every batch member while the artifact rows reference
// the batch anchor.
func (s *Store) CommitArtifacts(ctx context.Context, stage string, paperIDs []string, artifacts []types.ArtifactRecord, force bool) error {
	table, err := stageTable(stage)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if force {
			for _, paperID := range paperIDs {
				if _, err := tx.ExecContext(ctx,
					fmt.Sprintf(`DELETE FROM %s WHERE paper_id = ?`, table), paperID,
				); err != nil {
					return fmt.Errorf("clearing prior artifacts for %s: %w", paperID, err)
				}
			}
		}

		for _, a := range artifacts {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, paper_id, seq, payload, generated_at)
				 VALUES (?, ?, ?, ?, ?)`, table),
				a.ID, a.PaperID, a.Seq, string(a.Payload), formatTime(now),
			); err != nil {
				return fmt.Errorf("inserting artifact %s: %w", a.ID, err)
			}
		}

		for _, paperID := range paperIDs {
			res, err := tx.ExecContext(ctx,
				`UPDATE ledger SET status = 'done', detail = '', updated_at = ?
				 WHERE paper_id = ? AND stage = ?`,
				formatTime(now), paperID, stage,
			)
			if err != nil {
				return fmt.Errorf("marking %s/%s done: %w", paperID, stage, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("ledger row %s/%s: %w", paperID, stage, ErrNotFound)
			}
		}
		return nil
	})
}

// ArtifactsFor returns the artifacts referencing paperID in a stage's
// derived store, ordered by sequence index.
func (s *Store) ArtifactsFor(ctx context.Context, stage, paperID string) ([]types.ArtifactRecord, error) {
	table, err := stageTable(stage)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, paper_id, seq, payload, generated_at
		 FROM %s WHERE paper_id = ? ORDER BY seq`, table), paperID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading %s artifacts for %s: %w", stage, paperID, err)
	}
	defer rows.Close()

	return scanArtifacts(rows, stage)
}

// AllArtifacts returns every artifact in a stage's derived store, ordered
// by paper then sequence index.
func (s *Store) AllArtifacts(ctx context.Context, stage string) ([]types.ArtifactRecord, error) {
	table, err := stageTable(stage)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, paper_id, seq, payload, generated_at
		 FROM %s ORDER BY paper_id, seq`, table),
	)
	if err != nil {
		return nil, fmt.Errorf("reading %s artifacts: %w", stage, err)
	}
	defer rows.Close()

	return scanArtifacts(rows, stage)
}

func scanArtifacts(rows *sql.Rows, stage string) ([]types.ArtifactRecord, error) {
	var artifacts []types.ArtifactRecord
	for rows.Next() {
		var (
			a           types.ArtifactRecord
			payload     string
			generatedAt string
		)
		if err := rows.Scan(&a.ID, &a.PaperID, &a.Seq, &payload, &generatedAt); err != nil {
			return nil, fmt.Errorf("scanning artifact row: %w", err)
		}
		a.Stage = stage
		a.Payload = []byte(payload)
		a.GeneratedAt = parseTime(generatedAt)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// RecordRun persists one orchestrator run's summary.
func (s *Store) RecordRun(ctx context.Context, run types.RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, stage, started_at, finished_at, generated, failed, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Stage, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Generated, run.Failed, run.Skipped,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]types.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage, started_at, finished_at, generated, failed, skipped
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}
	defer rows.Close()

	var runs []types.RunRecord
	for rows.Next() {
		var (
			r                 types.RunRecord
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Stage, &started, &finished,
			&r.Generated, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
