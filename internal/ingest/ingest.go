// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest loads fetched paper payloads into the corpus: each payload
// is stored under its stable identifier and indexed into the catalog. The
// fetch itself happens outside the pipeline; ingest only consumes the JSON
// documents the fetch collaborator wrote.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/corpus-engine/internal/corpus"
	"github.com/pdiddy/corpus-engine/internal/extract"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Result holds the outcome of a batch ingest run.
type Result struct {
	// Stored counts papers written or overwritten.
	Stored int

	// Unchanged counts papers whose content matched the stored record.
	Unchanged int

	// IndexFailed counts papers indexed with partial metadata.
	IndexFailed int

	// Failed counts payloads that could not be stored at all.
	Failed int
}

// Total returns the number of payload files processed.
func (r Result) Total() int {
	return r.Stored + r.Unchanged + r.Failed
}

// HasFailures reports whether any payload failed.
func (r Result) HasFailures() bool {
	return r.Failed > 0 || r.IndexFailed > 0
}

// Run ingests every *.json payload in cfg.InputDir, printing per-item
// status and continuing past individual failures. Unchanged papers are
// still re-indexed so metadata refreshes take effect; content conflicts
// fail unless cfg.Overwrite is set.
func Run(ctx context.Context, store *corpus.Store, extractor corpus.MetadataExtractor, cfg types.IngestConfig, w io.Writer) (Result, error) {
	entries, err := os.ReadDir(cfg.InputDir)
	if err != nil {
		return Result{}, fmt.Errorf("reading input directory %s: %w", cfg.InputDir, err)
	}

	var result Result
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		path := filepath.Join(cfg.InputDir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", entry.Name(), err)
			result.Failed++
			continue
		}

		stem := strings.TrimSuffix(entry.Name(), ".json")
		externalID := extract.ExternalID(raw, stem)

		paper, written, err := store.Put(ctx, externalID, raw, corpus.PutOptions{Overwrite: cfg.Overwrite})
		if err != nil {
			if errors.Is(err, corpus.ErrConflict) {
				fmt.Fprintf(w, "conflict %s: content changed; rerun with --overwrite\n", externalID)
			} else {
				fmt.Fprintf(w, "failed  %s: %v\n", externalID, err)
			}
			result.Failed++
			continue
		}

		indexed, err := store.Index(ctx, paper, extractor)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", paper.ID, err)
			result.Failed++
			continue
		}

		if written {
			result.Stored++
		} else {
			result.Unchanged++
		}

		if indexed.Status(types.StageIndexing) == types.StatusFailed {
			result.IndexFailed++
			fmt.Fprintf(w, "indexed %s (partial: %s)\n", paper.ID, indexed.Ledger[types.StageIndexing].Detail)
		} else if written {
			fmt.Fprintf(w, "indexed %s\n", paper.ID)
		} else {
			fmt.Fprintf(w, "skipped %s (unchanged)\n", paper.ID)
		}
	}

	fmt.Fprintf(w, "\nIngest summary: %d stored, %d unchanged, %d partial, %d failed (total: %d)\n",
		result.Stored, result.Unchanged, result.IndexFailed, result.Failed, result.Total())
	return result, nil
}
