// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// --- test helpers ---

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(types.StoreConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func payloadJSON(t *testing.T, pmcid, title, abstract string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"pmcid":        pmcid,
		"first_author": "Smith J",
		"title":        title,
		"source":       "J Health Econ",
		"year":         "2023",
		"abstract":     abstract,
		"type":         "CEM",
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

// --- identifier tests ---

func TestPaperID(t *testing.T) {
	tests := []struct {
		name       string
		externalID string
		want       string
	}{
		{"canonical pmc", "PMC9918763", "PMC9918763"},
		{"lowercase pmc", "pmc9918763", "PMC9918763"},
		{"bare digits", "9918763", "PMC9918763"},
		{"surrounding whitespace", "  PMC9918763 ", "PMC9918763"},
		{"doi slugified", "10.1234/abc def", "10.1234-abc-def"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PaperID(tt.externalID); got != tt.want {
				t.Errorf("PaperID(%q) = %q, want %q", tt.externalID, got, tt.want)
			}
		})
	}
}

func TestPaperIDHashFallback(t *testing.T) {
	// Nothing slug-worthy survives: fall back to a content-derived slug.
	got := PaperID("///")
	if !strings.HasPrefix(got, "src-") {
		t.Errorf("PaperID(///) = %q, want src- prefix", got)
	}

	long := strings.Repeat("x", 80)
	if got := PaperID(long); !strings.HasPrefix(got, "src-") {
		t.Errorf("PaperID(long) = %q, want src- prefix", got)
	}

	// Same input always maps to the same id.
	if PaperID("///") != PaperID("///") {
		t.Error("hash slug is not stable")
	}
}

// --- put/get tests ---

func TestPutAndGet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	raw := payloadJSON(t, "PMC1000001", "A Study", "An abstract.")
	rec, written, err := store.Put(ctx, "PMC1000001", raw, PutOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !written {
		t.Error("written = false, want true for a new paper")
	}
	if rec.ID != "PMC1000001" {
		t.Errorf("ID = %q, want PMC1000001", rec.ID)
	}
	if rec.ContentHash != ContentHash(raw) {
		t.Errorf("ContentHash = %q, want %q", rec.ContentHash, ContentHash(raw))
	}

	got, err := store.Get(ctx, "PMC1000001")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.RawContent) != string(raw) {
		t.Error("stored content does not round-trip")
	}
	if got.FetchedAt.IsZero() {
		t.Error("FetchedAt not recorded")
	}
}

func TestPutUnchangedContentIsIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	raw := payloadJSON(t, "PMC1000002", "A Study", "An abstract.")
	first, _, err := store.Put(ctx, "PMC1000002", raw, PutOptions{})
	if err != nil {
		t.Fatal(err)
	}

	second, written, err := store.Put(ctx, "PMC1000002", raw, PutOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if written {
		t.Error("written = true, want false for identical content")
	}
	if second.FetchedAt != first.FetchedAt {
		t.Error("idempotent put must return the stored record unchanged")
	}
}

func TestPutChangedContentConflicts(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, _, err := store.Put(ctx, "PMC1000003",
		payloadJSON(t, "PMC1000003", "A Study", "Version one."), PutOptions{}); err != nil {
		t.Fatal(err)
	}

	changed := payloadJSON(t, "PMC1000003", "A Study", "Version two.")
	_, _, err := store.Put(ctx, "PMC1000003", changed, PutOptions{})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// Explicit overwrite replaces the record.
	rec, written, err := store.Put(ctx, "PMC1000003", changed, PutOptions{Overwrite: true})
	if err != nil {
		t.Fatal(err)
	}
	if !written {
		t.Error("written = false, want true under overwrite")
	}
	if rec.ContentHash != ContentHash(changed) {
		t.Error("overwrite did not replace the content hash")
	}
}

func TestPutConflictLeavesStoredRecordIntact(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	original := payloadJSON(t, "PMC1000008", "A Study", "Version one.")
	if _, _, err := store.Put(ctx, "PMC1000008", original, PutOptions{}); err != nil {
		t.Fatal(err)
	}

	// A rejected conflicting write must not touch the stored row: the
	// conflict check and the write run in the same transaction.
	changed := payloadJSON(t, "PMC1000008", "A Study", "Version two.")
	if _, _, err := store.Put(ctx, "PMC1000008", changed, PutOptions{}); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	rec, err := store.Get(ctx, "PMC1000008")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ContentHash != ContentHash(original) {
		t.Error("conflict rejection must keep the original content hash")
	}
	if string(rec.RawContent) != string(original) {
		t.Error("conflict rejection must keep the original payload")
	}
}

func TestPutDistinctIDsForIdenticalContent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	raw := payloadJSON(t, "", "Shared", "Same bytes.")
	a, _, err := store.Put(ctx, "PMC1000004", raw, PutOptions{})
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := store.Put(ctx, "PMC1000005", raw, PutOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if a.ID == b.ID {
		t.Fatal("identical content under different external ids must keep distinct records")
	}
	for _, id := range []string{a.ID, b.ID} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("Get(%s): %v", id, err)
		}
	}
}

func TestGetNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.Get(context.Background(), "PMC9999999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// --- purge tests ---

func TestPurge(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	raw := payloadJSON(t, "PMC1000006", "A Study", "An abstract.")
	paper, _, err := store.Put(ctx, "PMC1000006", raw, PutOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Index(ctx, paper, stubExtractor{}); err != nil {
		t.Fatal(err)
	}

	if err := store.Purge(ctx, paper.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(ctx, paper.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after purge: err = %v, want ErrNotFound", err)
	}
	if _, err := store.Entry(ctx, paper.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Entry after purge: err = %v, want ErrNotFound", err)
	}
}

func TestPurgeUnknownPaper(t *testing.T) {
	store := testStore(t)

	err := store.Purge(context.Background(), "PMC9999999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
