// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// stubExtractor returns canned metadata, standing in for payload parsing.
type stubExtractor struct {
	meta types.PaperMetadata
	err  error
}

func (s stubExtractor) Extract(raw []byte) (types.PaperMetadata, error) {
	return s.meta, s.err
}

// indexPaper stores and indexes one paper with complete metadata.
func indexPaper(t *testing.T, store *Store, pmcid, collection string) *types.IndexEntry {
	t.Helper()
	ctx := context.Background()

	raw := payloadJSON(t, pmcid, "Study "+pmcid, "Abstract for "+pmcid+".")
	paper, _, err := store.Put(ctx, pmcid, raw, PutOptions{})
	if err != nil {
		t.Fatal(err)
	}

	entry, err := store.Index(ctx, paper, stubExtractor{meta: types.PaperMetadata{
		Title:      "Study " + pmcid,
		Abstract:   "Abstract for " + pmcid + ".",
		Collection: collection,
	}})
	if err != nil {
		t.Fatal(err)
	}
	return entry
}

// --- indexing tests ---

func TestIndexSeedsLedger(t *testing.T) {
	store := testStore(t)
	entry := indexPaper(t, store, "PMC2000001", "cem")

	if entry.Status(types.StageIndexing) != types.StatusDone {
		t.Errorf("indexing status = %q, want done", entry.Status(types.StageIndexing))
	}
	for _, stage := range types.GenerationStages() {
		if entry.Status(stage) != types.StatusPending {
			t.Errorf("%s status = %q, want pending", stage, entry.Status(stage))
		}
	}
	if entry.AbstractHash == "" {
		t.Error("abstract hash not recorded")
	}
}

func TestIndexPartialMetadataMarksFailed(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	raw := payloadJSON(t, "PMC2000002", "Only Title", "")
	paper, _, err := store.Put(ctx, "PMC2000002", raw, PutOptions{})
	if err != nil {
		t.Fatal(err)
	}

	// The extractor reports missing fields; the entry is still written with
	// the partial metadata and only its indexing row turns failed.
	entry, err := store.Index(ctx, paper, stubExtractor{
		meta: types.PaperMetadata{Title: "Only Title"},
		err:  errors.New("missing required fields: abstract"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if entry.Status(types.StageIndexing) != types.StatusFailed {
		t.Errorf("indexing status = %q, want failed", entry.Status(types.StageIndexing))
	}
	if !strings.Contains(entry.Ledger[types.StageIndexing].Detail, "abstract") {
		t.Errorf("detail = %q, should name the missing field", entry.Ledger[types.StageIndexing].Detail)
	}
	if entry.Title != "Only Title" {
		t.Errorf("partial metadata lost: title = %q", entry.Title)
	}
	if entry.Status(types.StageQuery) != types.StatusPending {
		t.Error("generation stages should still seed pending")
	}
}

func TestIndexRefreshKeepsLedgerState(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	entry := indexPaper(t, store, "PMC2000003", "cem")

	if err := store.Mark(ctx, entry.PaperID, types.StageQuery, types.StatusDone, ""); err != nil {
		t.Fatal(err)
	}

	// Re-index: metadata refreshes, generation ledger rows keep their state.
	paper, err := store.Get(ctx, entry.PaperID)
	if err != nil {
		t.Fatal(err)
	}
	refreshed, err := store.Index(ctx, paper, stubExtractor{meta: types.PaperMetadata{
		Title: "Updated Title", Abstract: "Updated abstract.",
	}})
	if err != nil {
		t.Fatal(err)
	}

	if refreshed.Title != "Updated Title" {
		t.Errorf("title = %q, want refreshed metadata", refreshed.Title)
	}
	if refreshed.Status(types.StageQuery) != types.StatusDone {
		t.Errorf("query status = %q, re-indexing must not reset done stages", refreshed.Status(types.StageQuery))
	}
}

// --- mark tests ---

func TestMarkIsIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	entry := indexPaper(t, store, "PMC2000004", "cem")

	for i := 0; i < 2; i++ {
		if err := store.Mark(ctx, entry.PaperID, types.StageLabel, types.StatusDone, ""); err != nil {
			t.Fatalf("mark attempt %d: %v", i+1, err)
		}
	}

	got, err := store.Entry(ctx, entry.PaperID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status(types.StageLabel) != types.StatusDone {
		t.Errorf("label status = %q, want done", got.Status(types.StageLabel))
	}
}

func TestMarkUnknownPaper(t *testing.T) {
	store := testStore(t)

	err := store.Mark(context.Background(), "PMC9999999", types.StageQuery, types.StatusDone, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// --- claim tests ---

func TestClaimPending(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	entry := indexPaper(t, store, "PMC2000005", "cem")

	claimed, err := store.Claim(ctx, "run-1", entry.PaperID, types.StageQuery, ClaimOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("pending entry must be claimable")
	}

	got, err := store.Entry(ctx, entry.PaperID)
	if err != nil {
		t.Fatal(err)
	}
	l := got.Ledger[types.StageQuery]
	if l.Status != types.StatusRunning {
		t.Errorf("status = %q, want running", l.Status)
	}
	if l.RunID != "run-1" {
		t.Errorf("run_id = %q, want run-1", l.RunID)
	}
}

func TestClaimLiveRunningNotClaimable(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	entry := indexPaper(t, store, "PMC2000006", "cem")

	claimed, err := store.Claim(ctx, "run-a", entry.PaperID, types.StageQuery, ClaimOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("first claim must win")
	}

	// A second live run must lose the CAS: the first claim is still fresh.
	claimed, err = store.Claim(ctx, "run-b", entry.PaperID, types.StageQuery, ClaimOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if claimed {
		t.Fatal("live running entry must not be claimable by another run")
	}

	got, _ := store.Entry(ctx, entry.PaperID)
	if got.Ledger[types.StageQuery].RunID != "run-a" {
		t.Errorf("run_id = %q, want run-a to keep ownership", got.Ledger[types.StageQuery].RunID)
	}
}

func TestClaimStaleRunning(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	entry := indexPaper(t, store, "PMC2000017", "cem")

	if _, err := store.Claim(ctx, "crashed-run", entry.PaperID, types.StageQuery, ClaimOptions{}); err != nil {
		t.Fatal(err)
	}

	// Age the claim past the staleness window, as a crashed run would.
	if _, err := store.db.Exec(
		`UPDATE ledger SET updated_at = ? WHERE paper_id = ? AND stage = ?`,
		formatTime(time.Now().Add(-time.Hour)), entry.PaperID, types.StageQuery,
	); err != nil {
		t.Fatal(err)
	}

	claimed, err := store.Claim(ctx, "run-2", entry.PaperID, types.StageQuery, ClaimOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("stale running entry must be reclaimable")
	}

	got, _ := store.Entry(ctx, entry.PaperID)
	if got.Ledger[types.StageQuery].RunID != "run-2" {
		t.Errorf("run_id = %q, want run-2", got.Ledger[types.StageQuery].RunID)
	}
}

func TestClaimFailedRequiresRetry(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	entry := indexPaper(t, store, "PMC2000007", "cem")

	if err := store.Mark(ctx, entry.PaperID, types.StageQuery, types.StatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}

	claimed, err := store.Claim(ctx, "run-1", entry.PaperID, types.StageQuery, ClaimOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if claimed {
		t.Fatal("failed entry must not be claimable without retry")
	}

	claimed, err = store.Claim(ctx, "run-1", entry.PaperID, types.StageQuery, ClaimOptions{RetryFailed: true})
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("failed entry must be claimable with RetryFailed")
	}
}

func TestClaimDoneRequiresForce(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	entry := indexPaper(t, store, "PMC2000008", "cem")

	if err := store.Mark(ctx, entry.PaperID, types.StageQuery, types.StatusDone, ""); err != nil {
		t.Fatal(err)
	}

	claimed, err := store.Claim(ctx, "run-1", entry.PaperID, types.StageQuery, ClaimOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if claimed {
		t.Fatal("done entry must not be claimable without force")
	}

	claimed, err = store.Claim(ctx, "run-1", entry.PaperID, types.StageQuery, ClaimOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("done entry must be claimable with Force")
	}
}

func TestRelease(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	entry := indexPaper(t, store, "PMC2000009", "cem")

	if _, err := store.Claim(ctx, "run-1", entry.PaperID, types.StageQuery, ClaimOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := store.Release(ctx, entry.PaperID, types.StageQuery); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Entry(ctx, entry.PaperID)
	l := got.Ledger[types.StageQuery]
	if l.Status != types.StatusPending {
		t.Errorf("status = %q, want pending after release", l.Status)
	}
	if l.RunID != "" {
		t.Errorf("run_id = %q, want cleared", l.RunID)
	}

	// Releasing a non-running entry is a no-op.
	if err := store.Release(ctx, entry.PaperID, types.StageQuery); err != nil {
		t.Errorf("release of pending entry: %v", err)
	}
}

// --- pending scan tests ---

func TestPendingForExcludesDone(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	first := indexPaper(t, store, "PMC2000010", "cem")
	second := indexPaper(t, store, "PMC2000011", "cem")
	third := indexPaper(t, store, "PMC2000012", "bim")

	if err := store.Mark(ctx, second.PaperID, types.StageQuery, types.StatusDone, ""); err != nil {
		t.Fatal(err)
	}

	pending, err := store.PendingFor(ctx, types.StageQuery)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending entries, want 2", len(pending))
	}
	// Insertion order.
	if pending[0].PaperID != first.PaperID || pending[1].PaperID != third.PaperID {
		t.Errorf("pending order = [%s %s], want [%s %s]",
			pending[0].PaperID, pending[1].PaperID, first.PaperID, third.PaperID)
	}
	// Failed entries stay in the scan; skipping them is the orchestrator's
	// decision, not the store's.
	if err := store.Mark(ctx, first.PaperID, types.StageQuery, types.StatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}
	pending, err = store.PendingFor(ctx, types.StageQuery)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Errorf("got %d pending entries after failure, want 2", len(pending))
	}
}

func TestPendingForUnknownStage(t *testing.T) {
	store := testStore(t)

	if _, err := store.PendingFor(context.Background(), "bogus"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
}

func TestDonePapers(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	a := indexPaper(t, store, "PMC2000013", "cem")
	b := indexPaper(t, store, "PMC2000014", "cem")

	if err := store.Mark(ctx, b.PaperID, types.StageLabel, types.StatusDone, ""); err != nil {
		t.Fatal(err)
	}

	done, err := store.DonePapers(ctx, types.StageLabel)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 || done[0] != b.PaperID {
		t.Errorf("done = %v, want [%s] without %s", done, b.PaperID, a.PaperID)
	}
}

// --- summary tests ---

func TestSummary(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	indexPaper(t, store, "PMC2000015", "cem")
	entry := indexPaper(t, store, "PMC2000016", "cem")
	if err := store.Mark(ctx, entry.PaperID, types.StageQuery, types.StatusDone, ""); err != nil {
		t.Fatal(err)
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if summary[types.StageIndexing][types.StatusDone] != 2 {
		t.Errorf("indexing done = %d, want 2", summary[types.StageIndexing][types.StatusDone])
	}
	if summary[types.StageQuery][types.StatusPending] != 1 {
		t.Errorf("query pending = %d, want 1", summary[types.StageQuery][types.StatusPending])
	}
	if summary[types.StageQuery][types.StatusDone] != 1 {
		t.Errorf("query done = %d, want 1", summary[types.StageQuery][types.StatusDone])
	}
}
