// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Field heuristics over abstract sentences. These are fixed: changing them
// changes artifact content, which is a generator version bump.
var (
	// costPattern matches the first monetary amount, e.g. "$500" or "$1,234.56".
	costPattern = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?`)

	// qalyPattern captures the number attached to a QALY mention,
	// e.g. "improved QALY by 0.2".
	qalyPattern = regexp.MustCompile(`(?i)QALYs?\s*(?:by|of|:)?\s*(\d+(?:\.\d+)?)`)

	// qalyLeadPattern captures the "0.2 QALYs" word order.
	qalyLeadPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*QALYs?`)

	// treatmentPattern captures a leading capitalized phrase of two or
	// more tokens, e.g. "Drug X" in "Drug X reduced cost…".
	treatmentPattern = regexp.MustCompile(`^([A-Z][\w-]*(?:\s+[A-Z0-9][\w-]*)+)`)
)

// QueryGenerator derives structured extraction queries from a paper's
// abstract: one record per sentence that carries at least one target-schema
// value (treatment, cost, QALY).
type QueryGenerator struct {
	minSentenceChars int
}

// NewQueryGenerator builds the extraction-query generator.
func NewQueryGenerator(cfg types.QueryConfig) *QueryGenerator {
	min := cfg.MinSentenceChars
	if min <= 0 {
		min = 10
	}
	return &QueryGenerator{minSentenceChars: min}
}

// Stage returns the ledger stage name.
func (g *QueryGenerator) Stage() string { return types.StageQuery }

// Generate splits the abstract into sentences and emits one artifact per
// sentence with a populated schema field. Sequence indices follow sentence
// order, so reruns over unchanged content reproduce identical records.
func (g *QueryGenerator) Generate(entry *types.IndexEntry, paper *types.PaperRecord) ([]types.ArtifactRecord, error) {
	if strings.TrimSpace(entry.Abstract) == "" {
		return nil, &Error{Stage: g.Stage(), PaperID: entry.PaperID, Reason: "abstract is empty"}
	}

	var artifacts []types.ArtifactRecord
	for i, sentence := range SplitSentences(entry.Abstract, g.minSentenceChars) {
		fields := extractFields(sentence)
		if fields == (types.QueryFields{}) {
			continue
		}

		payload, err := json.Marshal(types.QueryPayload{
			Sentence:      sentence,
			SentenceIndex: i + 1,
			Fields:        fields,
		})
		if err != nil {
			return nil, fmt.Errorf("marshaling query payload: %w", err)
		}

		seq := len(artifacts)
		artifacts = append(artifacts, types.ArtifactRecord{
			ID:      artifactID(g.Stage(), entry.PaperID, seq),
			PaperID: entry.PaperID,
			Stage:   g.Stage(),
			Seq:     seq,
			Payload: payload,
		})
	}

	return artifacts, nil
}

// extractFields applies the schema heuristics to one sentence.
func extractFields(sentence string) types.QueryFields {
	var f types.QueryFields

	if m := treatmentPattern.FindStringSubmatch(sentence); m != nil {
		f.Treatment = m[1]
	}
	if m := costPattern.FindString(sentence); m != "" {
		f.Cost = strings.ReplaceAll(m, " ", "")
	}
	if m := qalyPattern.FindStringSubmatch(sentence); m != nil {
		f.QALY = m[1]
	} else if m := qalyLeadPattern.FindStringSubmatch(sentence); m != nil {
		f.QALY = m[1]
	}

	return f
}
