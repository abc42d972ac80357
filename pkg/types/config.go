// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// StoreConfig holds settings for the corpus database.
type StoreConfig struct {
	// DataDir is the base directory for pipeline data (contains index/).
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// IngestConfig holds settings for the ingest stage.
type IngestConfig struct {
	// InputDir is the directory of fetched paper payloads (*.json).
	InputDir string `json:"input_dir" yaml:"input_dir"`

	// Overwrite permits replacing a stored paper whose content changed.
	Overwrite bool `json:"overwrite" yaml:"overwrite"`
}

// QueryConfig holds settings for the extraction-query generator.
type QueryConfig struct {
	// MinSentenceChars drops abstract fragments at or below this length
	// (default 10).
	MinSentenceChars int `json:"min_sentence_chars" yaml:"min_sentence_chars"`
}

// SynthesisConfig holds settings for the evidence-synthesis generator.
type SynthesisConfig struct {
	// Question is the synthesis prompt posed over each batch. Empty uses
	// the built-in default.
	Question string `json:"question,omitempty" yaml:"question,omitempty"`

	// GroupsFile is an optional YAML file mapping group name to paper ids.
	// When empty, papers are partitioned by their collection tag.
	GroupsFile string `json:"groups_file,omitempty" yaml:"groups_file,omitempty"`
}

// LabelConfig holds settings for the labeling generator.
type LabelConfig struct {
	// SnippetsPerPaper is the number of snippet/label pairs emitted per
	// paper (default 2).
	SnippetsPerPaper int `json:"snippets_per_paper" yaml:"snippets_per_paper"`

	// ChoiceCount is the size of each candidate label set, true section
	// included (default 5).
	ChoiceCount int `json:"choice_count" yaml:"choice_count"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	// Workers bounds concurrent per-paper generation within a stage
	// (default 4).
	Workers int `json:"workers" yaml:"workers"`
}

// LoggingConfig holds structured-logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// Format is the output format: json or console.
	Format string `json:"format" yaml:"format"`

	// Output is the destination: stdout or stderr.
	Output string `json:"output" yaml:"output"`
}

// Config groups all stage configurations for the pipeline.
type Config struct {
	Store     StoreConfig     `json:"store" yaml:"store"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	Query     QueryConfig     `json:"query" yaml:"query"`
	Synthesis SynthesisConfig `json:"synthesis" yaml:"synthesis"`
	Label     LabelConfig     `json:"label" yaml:"label"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}
