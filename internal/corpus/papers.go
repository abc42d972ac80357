// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// pmcPattern matches PubMed Central identifiers: "PMC9918763" or bare digits.
var pmcPattern = regexp.MustCompile(`^(?i:PMC)?(\d{4,9})$`)

// slugUnsafe matches characters stripped from non-PMC identifiers.
var slugUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PaperID derives the stable identifier for an external source identifier.
// PMC ids normalize to the canonical "PMC<digits>" form; other identifiers
// are slugified, falling back to a content-derived hash slug when nothing
// usable survives. The same external id always maps to the same paper id.
func PaperID(externalID string) string {
	externalID = strings.TrimSpace(externalID)

	if m := pmcPattern.FindStringSubmatch(externalID); m != nil {
		return "PMC" + m[1]
	}

	slug := strings.Trim(slugUnsafe.ReplaceAllString(externalID, "-"), "-.")
	if slug == "" || len(slug) > 64 {
		return hashSlug(externalID)
	}
	return slug
}

func hashSlug(externalID string) string {
	h := sha256.Sum256([]byte(externalID))
	return fmt.Sprintf("src-%x", h[:8])
}

// ContentHash returns the hex SHA-256 of a raw payload.
func ContentHash(raw []byte) string {
	h := sha256.Sum256(raw)
	return fmt.Sprintf("%x", h)
}

// PutOptions controls conflict handling for Put.
type PutOptions struct {
	// Overwrite permits replacing an existing record whose content differs.
	Overwrite bool
}

// Put stores a fetched paper payload under its stable id. If a record with
// the same id and identical content already exists, the stored record is
// returned unchanged. If the content differs, Put fails with ErrConflict
// unless opts.Overwrite is set, in which case the record is replaced. The
// conflict check and the write share one transaction, so a concurrent Put
// cannot slip a differing payload in between them. The second return value
// reports whether a write happened.
func (s *Store) Put(ctx context.Context, externalID string, raw []byte, opts PutOptions) (*types.PaperRecord, bool, error) {
	id := PaperID(externalID)
	hash := ContentHash(raw)

	rec := &types.PaperRecord{
		ID:          id,
		ExternalID:  externalID,
		ContentHash: hash,
		RawContent:  raw,
		FetchedAt:   time.Now().UTC(),
	}

	var existing *types.PaperRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			cur       types.PaperRecord
			fetchedAt string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, external_id, content_hash, raw_content, fetched_at
			 FROM papers WHERE id = ?`, id,
		).Scan(&cur.ID, &cur.ExternalID, &cur.ContentHash, &cur.RawContent, &fetchedAt)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// New paper, fall through to the insert.
		case err != nil:
			return fmt.Errorf("reading paper %s: %w", id, err)
		case cur.ContentHash == hash:
			cur.FetchedAt = parseTime(fetchedAt)
			existing = &cur
			return nil
		case !opts.Overwrite:
			return fmt.Errorf("paper %s: stored content differs: %w", id, ErrConflict)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO papers (id, external_id, content_hash, raw_content, fetched_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				external_id=excluded.external_id, content_hash=excluded.content_hash,
				raw_content=excluded.raw_content, fetched_at=excluded.fetched_at`,
			rec.ID, rec.ExternalID, rec.ContentHash, rec.RawContent, formatTime(rec.FetchedAt),
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("storing paper %s: %w", id, err)
	}
	if existing != nil {
		return existing, false, nil
	}
	return rec, true, nil
}

// Get returns the stored paper record, or ErrNotFound.
func (s *Store) Get(ctx context.Context, paperID string) (*types.PaperRecord, error) {
	var (
		rec       types.PaperRecord
		fetchedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, content_hash, raw_content, fetched_at
		 FROM papers WHERE id = ?`, paperID,
	).Scan(&rec.ID, &rec.ExternalID, &rec.ContentHash, &rec.RawContent, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("paper %s: %w", paperID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading paper %s: %w", paperID, err)
	}
	rec.FetchedAt = parseTime(fetchedAt)
	return &rec, nil
}

// Purge removes a paper together with its index entry, ledger rows, and
// artifacts in one transaction. This is the only way paper data is deleted.
func (s *Store) Purge(ctx context.Context, paperID string) error {
	if _, err := s.Get(ctx, paperID); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{
			"query_artifacts", "synthesis_artifacts", "label_artifacts",
			"ledger", "entries", "papers",
		} {
			col := "paper_id"
			if table == "papers" {
				col = "id"
			}
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, col), paperID,
			); err != nil {
				return fmt.Errorf("purging %s: %w", table, err)
			}
		}
		return nil
	})
}
