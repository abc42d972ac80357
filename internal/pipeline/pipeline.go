// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline drives the generation stages over the index catalog. For
// every pending entry it claims the ledger row, runs the stage's generator,
// and commits artifacts together with the done transition in one store
// transaction, so a crash mid-run never leaves orphaned artifacts or a done
// entry without output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/corpus-engine/internal/corpus"
	"github.com/pdiddy/corpus-engine/internal/generate"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Runner executes generation stages against a corpus store.
type Runner struct {
	// Store is the corpus database.
	Store *corpus.Store

	// Cfg supplies generator and worker settings.
	Cfg types.Config

	// Log receives structured run events.
	Log zerolog.Logger

	// Force regenerates entries already done, replacing their artifacts.
	Force bool

	// RetryFailed reprocesses entries that previously failed. Failed
	// entries are never retried implicitly.
	RetryFailed bool

	// StaleClaimAfter overrides how long a running claim shields its
	// entry from other runs. Zero keeps the store default.
	StaleClaimAfter time.Duration

	// Collection restricts the run to entries with this collection tag.
	Collection string

	// Groups overrides the synthesis batching: group name to paper ids.
	// When nil, entries are partitioned by their collection tag.
	Groups map[string][]string
}

// Summary holds per-entry outcome counts for one stage run.
type Summary struct {
	Generated int
	Failed    int
	Skipped   int
}

// Total returns the number of entries considered.
func (s Summary) Total() int {
	return s.Generated + s.Failed + s.Skipped
}

// HasFailures reports whether any entry ended failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// RunStage processes every pending entry of one generation stage, printing
// per-entry progress to w. Per-entry failures are isolated: they mark only
// that entry failed and the run continues. The run itself errors only when
// the stage cannot run at all or every entry failed.
func (r *Runner) RunStage(ctx context.Context, stage string, w io.Writer) (Summary, error) {
	if !types.ValidStage(stage) {
		return Summary{}, fmt.Errorf("unknown generation stage %q", stage)
	}

	runID := uuid.NewString()
	started := time.Now().UTC()

	log := r.Log.With().Str("run_id", runID).Str("stage", stage).Logger()
	log.Info().Bool("force", r.Force).Bool("retry_failed", r.RetryFailed).Msg("stage run starting")

	entries, err := r.Store.PendingFor(ctx, stage)
	if err != nil {
		return Summary{}, err
	}
	entries = r.filterEntries(entries)

	if r.Force {
		// Done entries are excluded from the pending scan; pull them
		// back in for regeneration.
		entries, err = r.withDoneEntries(ctx, stage, entries)
		if err != nil {
			return Summary{}, err
		}
	}

	var summary Summary
	switch stage {
	case types.StageSynthesis:
		summary, err = r.runBatches(ctx, runID, entries, w)
	default:
		summary, err = r.runPerPaper(ctx, runID, stage, entries, w)
	}
	if err != nil {
		return summary, err
	}

	run := types.RunRecord{
		ID:         runID,
		Stage:      stage,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Generated:  summary.Generated,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
	}
	if err := r.Store.RecordRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("recording run history failed")
	}

	fmt.Fprintf(w, "\nStage %s: %d generated, %d failed, %d skipped (total: %d)\n",
		stage, summary.Generated, summary.Failed, summary.Skipped, summary.Total())
	log.Info().Int("generated", summary.Generated).Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).Msg("stage run finished")

	if summary.Total() > 0 && summary.Failed == summary.Total() {
		return summary, fmt.Errorf("stage %s: every entry failed", stage)
	}
	return summary, nil
}

func (r *Runner) filterEntries(entries []*types.IndexEntry) []*types.IndexEntry {
	if r.Collection == "" {
		return entries
	}
	var filtered []*types.IndexEntry
	for _, e := range entries {
		if e.Collection == r.Collection {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// withDoneEntries appends the stage's done entries to a pending set, for
// force regeneration. Order follows index insertion.
func (r *Runner) withDoneEntries(ctx context.Context, stage string, pending []*types.IndexEntry) ([]*types.IndexEntry, error) {
	seen := make(map[string]bool, len(pending))
	for _, e := range pending {
		seen[e.PaperID] = true
	}

	entries := pending
	doneIDs, err := r.Store.DonePapers(ctx, stage)
	if err != nil {
		return nil, err
	}
	for _, id := range doneIDs {
		if seen[id] {
			continue
		}
		e, err := r.Store.Entry(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	entries = r.filterEntries(entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}

// runPerPaper drives a per-paper generator over the entries with a bounded
// worker pool. Ledger updates serialize per (paper, stage) through Claim.
func (r *Runner) runPerPaper(ctx context.Context, runID, stage string, entries []*types.IndexEntry, w io.Writer) (Summary, error) {
	gen, err := generate.ForStage(stage, r.Cfg)
	if err != nil {
		return Summary{}, err
	}

	workers := r.Cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 4
	}

	var (
		mu      sync.Mutex
		summary Summary
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, entry := range entries {
		entry := entry
		if entry.Status(stage) == types.StatusFailed && !r.RetryFailed {
			fmt.Fprintf(w, "skipped %s (failed; rerun with --retry-failed)\n", entry.PaperID)
			summary.Skipped++
			continue
		}

		g.Go(func() error {
			outcome, detail := r.processEntry(ctx, runID, stage, gen, entry)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeGenerated:
				fmt.Fprintf(w, "generated %s (%s)\n", entry.PaperID, detail)
				summary.Generated++
			case outcomeFailed:
				fmt.Fprintf(w, "failed  %s: %s\n", entry.PaperID, detail)
				summary.Failed++
			case outcomeSkipped:
				fmt.Fprintf(w, "skipped %s (%s)\n", entry.PaperID, detail)
				summary.Skipped++
			case outcomeCancelled:
				return ctx.Err()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

type entryOutcome int

const (
	outcomeGenerated entryOutcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeCancelled
)

// processEntry runs one (paper, stage) unit: claim, generate, commit. On
// cancellation the claim is released so the entry is reprocessed later; it
// is never left done without artifacts.
func (r *Runner) processEntry(ctx context.Context, runID, stage string, gen generate.Generator, entry *types.IndexEntry) (entryOutcome, string) {
	claimed, err := r.Store.Claim(ctx, runID, entry.PaperID, stage, corpus.ClaimOptions{
		RetryFailed: r.RetryFailed,
		Force:       r.Force,
		StaleAfter:  r.StaleClaimAfter,
	})
	if err != nil {
		return outcomeFailed, err.Error()
	}
	if !claimed {
		return outcomeSkipped, "claimed elsewhere"
	}

	paper, err := r.Store.Get(ctx, entry.PaperID)
	if err != nil {
		r.markFailed(ctx, entry.PaperID, stage, err)
		return outcomeFailed, err.Error()
	}

	artifacts, err := gen.Generate(entry, paper)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			r.release(entry.PaperID, stage)
			return outcomeCancelled, ""
		}
		r.markFailed(ctx, entry.PaperID, stage, err)
		return outcomeFailed, err.Error()
	}

	if ctx.Err() != nil {
		r.release(entry.PaperID, stage)
		return outcomeCancelled, ""
	}

	err = r.Store.CommitArtifacts(ctx, stage, []string{entry.PaperID}, artifacts, r.Force)
	if err != nil {
		// The atomic commit failed: nothing was applied. Report the
		// entry failed so a later run retries it.
		r.markFailed(ctx, entry.PaperID, stage, err)
		return outcomeFailed, err.Error()
	}

	return outcomeGenerated, fmt.Sprintf("%d artifacts", len(artifacts))
}

// runBatches drives the synthesis generator over pre-grouped entry batches.
// Each batch commits its single artifact and every member's done transition
// atomically; a batch failure marks every claimed member failed.
func (r *Runner) runBatches(ctx context.Context, runID string, entries []*types.IndexEntry, w io.Writer) (Summary, error) {
	gen := generate.NewSynthesisGenerator(r.Cfg.Synthesis)

	var summary Summary
	for _, group := range r.groupEntries(entries) {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		var members []*types.IndexEntry
		for _, e := range group.entries {
			if e.Status(types.StageSynthesis) == types.StatusFailed && !r.RetryFailed {
				fmt.Fprintf(w, "skipped %s (failed; rerun with --retry-failed)\n", e.PaperID)
				summary.Skipped++
				continue
			}
			claimed, err := r.Store.Claim(ctx, runID, e.PaperID, types.StageSynthesis, corpus.ClaimOptions{
				RetryFailed: r.RetryFailed,
				Force:       r.Force,
				StaleAfter:  r.StaleClaimAfter,
			})
			if err != nil {
				return summary, err
			}
			if !claimed {
				fmt.Fprintf(w, "skipped %s (claimed elsewhere)\n", e.PaperID)
				summary.Skipped++
				continue
			}
			members = append(members, e)
		}
		if len(members) == 0 {
			continue
		}

		memberIDs := make([]string, len(members))
		for i, m := range members {
			memberIDs[i] = m.PaperID
		}

		artifacts, err := gen.GenerateBatch(members)
		if err != nil {
			for _, id := range memberIDs {
				r.markFailed(ctx, id, types.StageSynthesis, err)
			}
			fmt.Fprintf(w, "failed  batch %s: %v\n", group.name, err)
			summary.Failed += len(members)
			continue
		}

		if ctx.Err() != nil {
			for _, id := range memberIDs {
				r.release(id, types.StageSynthesis)
			}
			return summary, ctx.Err()
		}

		if err := r.Store.CommitArtifacts(ctx, types.StageSynthesis, memberIDs, artifacts, r.Force); err != nil {
			for _, id := range memberIDs {
				r.markFailed(ctx, id, types.StageSynthesis, err)
			}
			fmt.Fprintf(w, "failed  batch %s: %v\n", group.name, err)
			summary.Failed += len(members)
			continue
		}

		fmt.Fprintf(w, "generated batch %s (%d papers)\n", group.name, len(members))
		summary.Generated += len(members)
	}

	return summary, nil
}

type batch struct {
	name    string
	entries []*types.IndexEntry
}

// groupEntries partitions entries into synthesis batches: the supplied
// groups when configured, otherwise one batch per collection tag. Batch
// order is deterministic.
func (r *Runner) groupEntries(entries []*types.IndexEntry) []batch {
	byID := make(map[string]*types.IndexEntry, len(entries))
	for _, e := range entries {
		byID[e.PaperID] = e
	}

	grouped := make(map[string][]*types.IndexEntry)

	if r.Groups != nil {
		for name, ids := range r.Groups {
			for _, id := range ids {
				if e, ok := byID[id]; ok {
					grouped[name] = append(grouped[name], e)
				}
			}
		}
	} else {
		for _, e := range entries {
			name := e.Collection
			if name == "" {
				name = "default"
			}
			grouped[name] = append(grouped[name], e)
		}
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	batches := make([]batch, 0, len(names))
	for _, name := range names {
		members := grouped[name]
		sort.Slice(members, func(i, j int) bool { return members[i].Seq < members[j].Seq })
		batches = append(batches, batch{name: name, entries: members})
	}
	return batches
}

func (r *Runner) markFailed(ctx context.Context, paperID, stage string, cause error) {
	if err := r.Store.Mark(ctx, paperID, stage, types.StatusFailed, cause.Error()); err != nil {
		r.Log.Error().Err(err).Str("paper_id", paperID).Str("stage", stage).
			Msg("recording failure in ledger failed")
	}
}

// release reverts a claim outside the (possibly cancelled) run context.
func (r *Runner) release(paperID, stage string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Store.Release(ctx, paperID, stage); err != nil {
		r.Log.Error().Err(err).Str("paper_id", paperID).Str("stage", stage).
			Msg("releasing claim failed")
	}
}
