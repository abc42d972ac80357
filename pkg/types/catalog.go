// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// StageStatus is a paper's ledger state for one pipeline stage.
type StageStatus string

const (
	StatusPending StageStatus = "pending"
	StatusRunning StageStatus = "running"
	StatusDone    StageStatus = "done"
	StatusFailed  StageStatus = "failed"
)

// Stage names recorded in the ledger. Indexing tracks metadata extraction;
// the other three are the independent artifact-generation passes.
const (
	StageIndexing  = "indexing"
	StageQuery     = "query"
	StageSynthesis = "synthesis"
	StageLabel     = "label"
)

// GenerationStages lists the artifact-generation stages in run order.
func GenerationStages() []string {
	return []string{StageQuery, StageSynthesis, StageLabel}
}

// ValidStage reports whether name is a known generation stage.
func ValidStage(name string) bool {
	switch name {
	case StageQuery, StageSynthesis, StageLabel:
		return true
	}
	return false
}

// LedgerEntry records one stage's completion state for one paper. The
// ledger is the single source of truth for "has stage X already produced
// output for this paper".
type LedgerEntry struct {
	// Status is the stage state: pending, running, done, or failed.
	Status StageStatus `json:"status" yaml:"status"`

	// RunID identifies the pipeline run that last claimed this entry.
	RunID string `json:"run_id,omitempty" yaml:"run_id,omitempty"`

	// Detail carries the failure message for failed entries.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`

	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// IndexEntry is one paper's row in the index catalog: extracted metadata
// plus the per-stage processing ledger. An entry exists exactly when its
// PaperRecord exists.
type IndexEntry struct {
	// PaperID references the PaperRecord this entry was built from.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// Seq is the index-insertion sequence number, used to keep pending
	// scans in insertion order.
	Seq int64 `json:"seq" yaml:"seq"`

	// PaperMetadata is the extracted metadata, possibly partial when
	// indexing failed.
	PaperMetadata `yaml:",inline"`

	// AbstractHash is the SHA-256 of the abstract text, recorded for
	// change detection across re-fetches.
	AbstractHash string `json:"abstract_hash,omitempty" yaml:"abstract_hash,omitempty"`

	// IndexedAt is when the entry was last (re)indexed.
	IndexedAt time.Time `json:"indexed_at" yaml:"indexed_at"`

	// Ledger maps stage name to that stage's state for this paper.
	Ledger map[string]LedgerEntry `json:"ledger" yaml:"ledger"`
}

// Status returns the ledger status for stage, or StatusPending when the
// stage has no ledger row yet.
func (e *IndexEntry) Status(stage string) StageStatus {
	if l, ok := e.Ledger[stage]; ok {
		return l.Status
	}
	return StatusPending
}

// RunRecord summarizes one orchestrator invocation of a single stage.
type RunRecord struct {
	// ID is the run's UUID.
	ID string `json:"id" yaml:"id"`

	// Stage is the generation stage the run processed.
	Stage string `json:"stage" yaml:"stage"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	// Generated, Failed, and Skipped count per-entry outcomes.
	Generated int `json:"generated" yaml:"generated"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
}
