// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"time"
)

// ArtifactRecord is one generated record in a derived store. Records are
// immutable once written; regeneration for the same (paper, stage, seq)
// replaces the prior record only under force mode.
type ArtifactRecord struct {
	// ID is derived deterministically from (paper key, stage, seq), so
	// the same logical output always maps to the same identifier.
	ID string `json:"id" yaml:"id"`

	// PaperID references the index entry the artifact was derived from.
	// For synthesis artifacts this is the batch anchor (the smallest
	// member id); the payload carries the full member set.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// Stage names the generator that produced the record.
	Stage string `json:"stage" yaml:"stage"`

	// Seq disambiguates multiple artifacts for the same paper and stage.
	// Stable across reruns for the same logical unit of output.
	Seq int `json:"seq" yaml:"seq"`

	// Payload is the structured prompt/label content.
	Payload json.RawMessage `json:"payload" yaml:"payload"`

	// GeneratedAt is when the record was committed.
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// QueryFields is the target extraction schema for one abstract sentence.
// Empty fields mean the sentence carried no value for that slot.
type QueryFields struct {
	Treatment string `json:"treatment,omitempty" yaml:"treatment,omitempty"`
	Cost      string `json:"cost,omitempty" yaml:"cost,omitempty"`
	QALY      string `json:"qaly,omitempty" yaml:"qaly,omitempty"`
}

// QueryPayload is the payload of one extraction-query artifact: a source
// text window paired with the schema values found in it.
type QueryPayload struct {
	// Sentence is the abstract sentence the query targets.
	Sentence string `json:"sentence" yaml:"sentence"`

	// SentenceIndex is the 1-based position of the sentence within the
	// abstract.
	SentenceIndex int `json:"sentence_index" yaml:"sentence_index"`

	// Fields holds the schema values extracted from the sentence.
	Fields QueryFields `json:"fields" yaml:"fields"`
}

// StudyRef identifies one constituent paper of a synthesis batch.
type StudyRef struct {
	PaperID     string `json:"paper_id" yaml:"paper_id"`
	Title       string `json:"title" yaml:"title"`
	FirstAuthor string `json:"first_author,omitempty" yaml:"first_author,omitempty"`
	Year        string `json:"year,omitempty" yaml:"year,omitempty"`
}

// SynthesisPayload is the payload of one evidence-synthesis artifact,
// referencing every paper in its batch.
type SynthesisPayload struct {
	// Question is the synthesis prompt posed over the batch.
	Question string `json:"question" yaml:"question"`

	// PaperIDs lists the constituent paper ids in sorted order.
	PaperIDs []string `json:"paper_ids" yaml:"paper_ids"`

	// Studies carries per-paper reference metadata.
	Studies []StudyRef `json:"studies" yaml:"studies"`
}

// LabelPayload is the payload of one labeling artifact: a text snippet and
// a candidate label set containing the true section plus distractors.
type LabelPayload struct {
	// Snippet is a paragraph drawn from the paper's full text.
	Snippet string `json:"snippet" yaml:"snippet"`

	// Choices is the shuffled candidate section-title set.
	Choices []string `json:"choices" yaml:"choices"`

	// Answer is the section the snippet actually belongs to.
	Answer string `json:"answer" yaml:"answer"`
}
