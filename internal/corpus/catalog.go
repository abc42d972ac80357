// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Index builds or refreshes the catalog entry for a stored paper. Metadata
// comes from the supplied extractor; when it reports missing required
// fields the entry is written with whatever partial metadata was extracted
// and its indexing ledger row is marked failed instead of aborting. The
// generation-stage ledger rows are seeded pending on first indexing.
//
// The entry upsert, ledger seeding, and indexing status all commit in one
// transaction.
func (s *Store) Index(ctx context.Context, paper *types.PaperRecord, extractor MetadataExtractor) (*types.IndexEntry, error) {
	if paper == nil {
		return nil, fmt.Errorf("index: %w", ErrNotFound)
	}

	meta, extractErr := extractor.Extract(paper.RawContent)

	now := time.Now().UTC()
	abstractHash := ""
	if meta.Abstract != "" {
		h := sha256.Sum256([]byte(meta.Abstract))
		abstractHash = fmt.Sprintf("%x", h)
	}

	indexStatus := types.StatusDone
	detail := ""
	if extractErr != nil {
		indexStatus = types.StatusFailed
		detail = extractErr.Error()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entries (paper_id, title, first_author, journal, year,
				abstract, collection, abstract_hash, indexed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(paper_id) DO UPDATE SET
				title=excluded.title, first_author=excluded.first_author,
				journal=excluded.journal, year=excluded.year,
				abstract=excluded.abstract, collection=excluded.collection,
				abstract_hash=excluded.abstract_hash, indexed_at=excluded.indexed_at`,
			paper.ID, meta.Title, meta.FirstAuthor, meta.Journal, meta.Year,
			meta.Abstract, meta.Collection, abstractHash, formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("upserting entry: %w", err)
		}

		// Seed pending ledger rows for the generation stages. Existing
		// rows keep their state.
		for _, stage := range types.GenerationStages() {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO ledger (paper_id, stage, status, updated_at)
				 VALUES (?, ?, 'pending', ?)`,
				paper.ID, stage, formatTime(now),
			); err != nil {
				return fmt.Errorf("seeding ledger for %s: %w", stage, err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO ledger (paper_id, stage, status, detail, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(paper_id, stage) DO UPDATE SET
				status=excluded.status, detail=excluded.detail,
				updated_at=excluded.updated_at`,
			paper.ID, types.StageIndexing, string(indexStatus), detail, formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("recording indexing status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("indexing paper %s: %w", paper.ID, err)
	}

	return s.Entry(ctx, paper.ID)
}

// Entry returns one index entry with its full ledger, or ErrNotFound.
func (s *Store) Entry(ctx context.Context, paperID string) (*types.IndexEntry, error) {
	var (
		e         types.IndexEntry
		indexedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT paper_id, rowid, title, first_author, journal, year,
			abstract, collection, abstract_hash, indexed_at
		 FROM entries WHERE paper_id = ?`, paperID,
	).Scan(&e.PaperID, &e.Seq, &e.Title, &e.FirstAuthor, &e.Journal, &e.Year,
		&e.Abstract, &e.Collection, &e.AbstractHash, &indexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", paperID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", paperID, err)
	}
	e.IndexedAt = parseTime(indexedAt)

	e.Ledger, err = s.ledgerFor(ctx, paperID)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ledgerFor(ctx context.Context, paperID string) (map[string]types.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, status, COALESCE(run_id,''), COALESCE(detail,''), updated_at
		 FROM ledger WHERE paper_id = ?`, paperID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading ledger for %s: %w", paperID, err)
	}
	defer rows.Close()

	ledger := make(map[string]types.LedgerEntry)
	for rows.Next() {
		var (
			stage, status, runID, detail, updatedAt string
		)
		if err := rows.Scan(&stage, &status, &runID, &detail, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		ledger[stage] = types.LedgerEntry{
			Status:    types.StageStatus(status),
			RunID:     runID,
			Detail:    detail,
			UpdatedAt: parseTime(updatedAt),
		}
	}
	return ledger, rows.Err()
}

// Mark updates the ledger status for (paperID, stage). The update is
// idempotent: setting an already-set status again is a no-op, not an error.
func (s *Store) Mark(ctx context.Context, paperID, stage string, status types.StageStatus, detail string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE ledger SET status = ?, detail = ?, updated_at = ?
			 WHERE paper_id = ? AND stage = ?`,
			string(status), detail, formatTime(time.Now()), paperID, stage,
		)
		if err != nil {
			return fmt.Errorf("marking %s/%s %s: %w", paperID, stage, status, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("ledger row %s/%s: %w", paperID, stage, ErrNotFound)
		}
		return nil
	})
}

// ClaimOptions widens the set of ledger states Claim may transition from.
type ClaimOptions struct {
	// RetryFailed permits reclaiming entries that previously failed.
	RetryFailed bool

	// Force permits reclaiming entries already done, for regeneration.
	Force bool

	// StaleAfter is the age at which a running row counts as abandoned
	// and becomes claimable again. Zero uses defaultClaimStaleAfter.
	StaleAfter time.Duration
}

// defaultClaimStaleAfter bounds how long a running claim shields its entry
// from other runs. A crashed run leaves updated_at frozen, so its rows age
// past the window and are reclaimed.
const defaultClaimStaleAfter = 10 * time.Minute

// Claim attempts the compare-and-swap transition to running for
// (paperID, stage), recording the claiming run. It is the advisory lock
// that keeps two invocations from generating for the same pair at once:
// a live running row is not claimable, so only one concurrent Claim can
// win the transition.
//
// Pending entries are always claimable. Running entries become claimable
// again only once they age past the staleness window (left by a crashed
// run); failed entries only with RetryFailed; done entries only with
// Force. Returns false when the entry was not claimable.
func (s *Store) Claim(ctx context.Context, runID, paperID, stage string, opts ClaimOptions) (bool, error) {
	allowed := []any{string(types.StatusPending)}
	if opts.RetryFailed {
		allowed = append(allowed, string(types.StatusFailed))
	}
	if opts.Force {
		allowed = append(allowed, string(types.StatusDone))
	}

	placeholders := "?"
	for i := 1; i < len(allowed); i++ {
		placeholders += ",?"
	}

	staleAfter := opts.StaleAfter
	if staleAfter == 0 {
		staleAfter = defaultClaimStaleAfter
	}
	now := time.Now()

	args := []any{runID, formatTime(now), paperID, stage}
	args = append(args, allowed...)
	args = append(args, formatTime(now.Add(-staleAfter)))

	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger SET status = 'running', run_id = ?, detail = '', updated_at = ?
		 WHERE paper_id = ? AND stage = ?
		   AND (status IN (`+placeholders+`)
			OR (status = 'running' AND julianday(updated_at) < julianday(?)))`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("claiming %s/%s: %w", paperID, stage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release reverts a running claim back to pending, the cancellation path.
// A released entry is picked up again by the next run.
func (s *Store) Release(ctx context.Context, paperID, stage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ledger SET status = 'pending', run_id = NULL, updated_at = ?
		 WHERE paper_id = ? AND stage = ? AND status = 'running'`,
		formatTime(time.Now()), paperID, stage,
	)
	if err != nil {
		return fmt.Errorf("releasing %s/%s: %w", paperID, stage, err)
	}
	return nil
}

// PendingFor returns every entry whose ledger status for stage is not done,
// in index-insertion order. The scan reads current ledger state on every
// call; nothing is cached.
func (s *Store) PendingFor(ctx context.Context, stage string) ([]*types.IndexEntry, error) {
	if !types.ValidStage(stage) {
		return nil, fmt.Errorf("unknown generation stage %q", stage)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT e.paper_id, e.rowid, e.title, e.first_author, e.journal, e.year,
			e.abstract, e.collection, e.abstract_hash, e.indexed_at,
			l.status, COALESCE(l.run_id,''), COALESCE(l.detail,''), l.updated_at
		 FROM entries e
		 JOIN ledger l ON l.paper_id = e.paper_id AND l.stage = ?
		 WHERE l.status != 'done'
		 ORDER BY e.rowid`, stage,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning pending entries for %s: %w", stage, err)
	}
	defer rows.Close()

	var entries []*types.IndexEntry
	for rows.Next() {
		var (
			e                              types.IndexEntry
			indexedAt                      string
			status, runID, detail, updated string
		)
		if err := rows.Scan(&e.PaperID, &e.Seq, &e.Title, &e.FirstAuthor,
			&e.Journal, &e.Year, &e.Abstract, &e.Collection, &e.AbstractHash,
			&indexedAt, &status, &runID, &detail, &updated); err != nil {
			return nil, fmt.Errorf("scanning pending entry: %w", err)
		}
		e.IndexedAt = parseTime(indexedAt)
		e.Ledger = map[string]types.LedgerEntry{
			stage: {
				Status:    types.StageStatus(status),
				RunID:     runID,
				Detail:    detail,
				UpdatedAt: parseTime(updated),
			},
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DonePapers returns the paper ids marked done for a stage, in
// index-insertion order.
func (s *Store) DonePapers(ctx context.Context, stage string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.paper_id FROM entries e
		 JOIN ledger l ON l.paper_id = e.paper_id AND l.stage = ?
		 WHERE l.status = 'done'
		 ORDER BY e.rowid`, stage,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning done entries for %s: %w", stage, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning done entry: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StageSummary counts ledger states for one stage.
type StageSummary map[types.StageStatus]int

// Summary returns per-stage ledger counts for the status surface.
func (s *Store) Summary(ctx context.Context) (map[string]StageSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, status, COUNT(*) FROM ledger GROUP BY stage, status`,
	)
	if err != nil {
		return nil, fmt.Errorf("summarizing ledger: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]StageSummary)
	for rows.Next() {
		var (
			stage, status string
			count         int
		)
		if err := rows.Scan(&stage, &status, &count); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		if summary[stage] == nil {
			summary[stage] = make(StageSummary)
		}
		summary[stage][types.StageStatus(status)] = count
	}
	return summary, rows.Err()
}
