// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package generate derives benchmark artifacts from indexed papers. The
// three generators form a closed set dispatched by stage name: extraction
// queries from abstract sentences, one evidence-synthesis query per paper
// batch, and section-labeling pairs from full text. Output ordering is
// deterministic for fixed inputs and configuration, so sequence indices are
// reproducible across reruns.
package generate

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Error reports that a generator's upstream preconditions were unmet, e.g.
// a required abstract or full text is absent.
type Error struct {
	Stage   string
	PaperID string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s generation for %s: %s", e.Stage, e.PaperID, e.Reason)
}

// Generator derives an ordered artifact sequence from one index entry and
// its paper record.
type Generator interface {
	// Stage names the ledger stage the generator serves.
	Stage() string

	// Generate returns the artifact sequence for one paper. A returned
	// error means no artifacts may be written and the ledger entry is
	// marked failed.
	Generate(entry *types.IndexEntry, paper *types.PaperRecord) ([]types.ArtifactRecord, error)
}

// BatchGenerator derives one artifact from a pre-grouped batch of entries.
type BatchGenerator interface {
	// Stage names the ledger stage the generator serves.
	Stage() string

	// GenerateBatch returns the artifacts for one batch.
	GenerateBatch(entries []*types.IndexEntry) ([]types.ArtifactRecord, error)
}

// artifactID derives the stable identifier for (paper key, stage, seq).
func artifactID(stage, paperKey string, seq int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", paperKey, stage, seq)))
	return fmt.Sprintf("%s-%x", stage, h[:8])
}

// ForStage constructs the generator for a per-paper stage.
func ForStage(stage string, cfg types.Config) (Generator, error) {
	switch stage {
	case types.StageQuery:
		return NewQueryGenerator(cfg.Query), nil
	case types.StageLabel:
		return NewLabelGenerator(cfg.Label), nil
	case types.StageSynthesis:
		return nil, fmt.Errorf("stage %q generates per batch, not per paper", stage)
	default:
		return nil, fmt.Errorf("unknown generation stage %q", stage)
	}
}

// SplitSentences splits abstract text into sentences on terminal
// punctuation followed by whitespace, and on blank lines. Fragments at or
// below minChars are dropped. The rule is fixed so sentence indices are
// stable across reruns.
func SplitSentences(text string, minChars int) []string {
	if minChars <= 0 {
		minChars = 10
	}

	var (
		sentences []string
		start     int
	)
	runes := []rune(text)

	flush := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if len(s) > minChars {
			sentences = append(sentences, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '?', '!':
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				flush(i + 1)
			}
		case '\n':
			if i+1 < len(runes) && runes[i+1] == '\n' {
				flush(i)
			}
		}
	}
	flush(len(runes))

	return sentences
}
