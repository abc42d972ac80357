// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the corpus-engine pipeline:
// paper records, index entries with their processing ledger, generated
// artifacts, and per-stage configuration.
package types

import "time"

// PaperRecord holds one fetched paper's raw payload. Records are immutable
// once written; a re-fetch with identical content is a no-op and a re-fetch
// with changed content requires an explicit overwrite.
type PaperRecord struct {
	// ID is the stable identifier derived deterministically from the
	// external source identifier (e.g. "PMC9918763").
	ID string `json:"id" yaml:"id"`

	// ExternalID is the source identifier as supplied by the fetch
	// collaborator, before normalization.
	ExternalID string `json:"external_id" yaml:"external_id"`

	// ContentHash is the SHA-256 of RawContent, used to decide whether a
	// re-fetch changed anything.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	// RawContent is the opaque fetched payload (JSON with metadata fields
	// and optional JATS full text).
	RawContent []byte `json:"raw_content" yaml:"raw_content"`

	// FetchedAt is when the payload was stored.
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// PaperMetadata holds the structured fields extracted from a paper's raw
// payload by a metadata extractor.
type PaperMetadata struct {
	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// FirstAuthor is the first author's display name.
	FirstAuthor string `json:"first_author" yaml:"first_author"`

	// Journal is the publication venue.
	Journal string `json:"journal,omitempty" yaml:"journal,omitempty"`

	// Year is the publication year as it appears in the source record.
	Year string `json:"year,omitempty" yaml:"year,omitempty"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Collection is the source query tag the paper was fetched under
	// (e.g. "bim", "cem", "slr_bim", "slr_cem"). Used as the default
	// evidence-synthesis grouping.
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
}
