// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// defaultQuestion is the synthesis prompt used when none is configured.
const defaultQuestion = "What interventions, costs, and health outcomes do these studies report, and how do their cost-effectiveness conclusions compare?"

// SynthesisGenerator derives one evidence-synthesis query per pre-grouped
// batch of papers. Grouping is supplied by the orchestrator; the generator
// only requires that every member carries an abstract.
type SynthesisGenerator struct {
	question string
}

// NewSynthesisGenerator builds the evidence-synthesis generator.
func NewSynthesisGenerator(cfg types.SynthesisConfig) *SynthesisGenerator {
	q := strings.TrimSpace(cfg.Question)
	if q == "" {
		q = defaultQuestion
	}
	return &SynthesisGenerator{question: q}
}

// Stage returns the ledger stage name.
func (g *SynthesisGenerator) Stage() string { return types.StageSynthesis }

// GenerateBatch emits exactly one artifact referencing every batch member.
// The record's paper id is the batch anchor (smallest member id) and its
// identifier derives from the sorted member set, so the same batch always
// yields the same artifact.
func (g *SynthesisGenerator) GenerateBatch(entries []*types.IndexEntry) ([]types.ArtifactRecord, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("synthesis batch is empty")
	}

	sorted := make([]*types.IndexEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PaperID < sorted[j].PaperID })

	ids := make([]string, 0, len(sorted))
	studies := make([]types.StudyRef, 0, len(sorted))
	for _, e := range sorted {
		if strings.TrimSpace(e.Abstract) == "" {
			return nil, &Error{Stage: g.Stage(), PaperID: e.PaperID, Reason: "abstract is empty"}
		}
		ids = append(ids, e.PaperID)
		studies = append(studies, types.StudyRef{
			PaperID:     e.PaperID,
			Title:       e.Title,
			FirstAuthor: e.FirstAuthor,
			Year:        e.Year,
		})
	}

	payload, err := json.Marshal(types.SynthesisPayload{
		Question: g.question,
		PaperIDs: ids,
		Studies:  studies,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling synthesis payload: %w", err)
	}

	anchor := ids[0]
	return []types.ArtifactRecord{{
		ID:      artifactID(g.Stage(), strings.Join(ids, ","), 0),
		PaperID: anchor,
		Stage:   g.Stage(),
		Seq:     0,
		Payload: payload,
	}}, nil
}
