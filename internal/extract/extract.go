// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract maps raw fetched paper payloads to structured metadata.
// The fetch collaborator stores one JSON document per paper; PMCExtractor
// is the default extractor for that shape. The catalog treats extraction as
// a capability, so alternative payload formats only need a new extractor.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Error reports that extraction could not populate required fields. The
// metadata returned alongside it carries whatever was found.
type Error struct {
	// Missing lists the required field names that were absent.
	Missing []string

	// Cause is set when the payload itself could not be parsed.
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extracting metadata: %v", e.Cause)
	}
	return fmt.Sprintf("extracting metadata: missing required fields: %s",
		strings.Join(e.Missing, ", "))
}

func (e *Error) Unwrap() error { return e.Cause }

// payload is the fetched paper document shape: the summary fields the fetch
// collaborator captured plus the optional JATS full text.
type payload struct {
	PMCID       string `json:"pmcid"`
	FirstAuthor string `json:"first_author"`
	Title       string `json:"title"`
	Source      string `json:"source"`
	Year        string `json:"year"`
	Abstract    string `json:"abstract"`
	Type        string `json:"type"`
	FullText    string `json:"full_text"`
}

// PMCExtractor parses fetched PubMed Central payloads.
type PMCExtractor struct{}

// Extract maps a raw payload to metadata. Title and abstract are required;
// when either is absent the partial metadata is returned together with an
// *Error listing the gaps.
func (PMCExtractor) Extract(raw []byte) (types.PaperMetadata, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.PaperMetadata{}, &Error{Cause: err}
	}

	meta := types.PaperMetadata{
		Title:       strings.TrimSpace(p.Title),
		FirstAuthor: strings.TrimSpace(p.FirstAuthor),
		Journal:     strings.TrimSpace(p.Source),
		Year:        strings.TrimSpace(p.Year),
		Abstract:    strings.TrimSpace(p.Abstract),
		Collection:  strings.ToLower(strings.TrimSpace(p.Type)),
	}

	var missing []string
	if meta.Title == "" {
		missing = append(missing, "title")
	}
	if meta.Abstract == "" {
		missing = append(missing, "abstract")
	}
	if len(missing) > 0 {
		return meta, &Error{Missing: missing}
	}
	return meta, nil
}

// ExternalID returns the source identifier recorded in a raw payload, or
// fallback when the payload has none.
func ExternalID(raw []byte, fallback string) string {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fallback
	}
	if id := strings.TrimSpace(p.PMCID); id != "" {
		return id
	}
	return fallback
}

// FullText returns the JATS full-text XML embedded in a raw payload, empty
// when the fetch found none.
func FullText(raw []byte) string {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ""
	}
	return p.FullText
}
