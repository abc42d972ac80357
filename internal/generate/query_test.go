// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

func queryEntry(paperID, abstract string) *types.IndexEntry {
	return &types.IndexEntry{
		PaperID: paperID,
		PaperMetadata: types.PaperMetadata{
			Title:    "Study " + paperID,
			Abstract: abstract,
		},
	}
}

func decodeQueryPayload(t *testing.T, a types.ArtifactRecord) types.QueryPayload {
	t.Helper()
	var p types.QueryPayload
	require.NoError(t, json.Unmarshal(a.Payload, &p))
	return p
}

func TestQueryGenerator_ExtractsSchemaFields(t *testing.T) {
	gen := NewQueryGenerator(types.QueryConfig{})
	entry := queryEntry("PMC9918763",
		"Drug X reduced cost by $500 and improved QALY by 0.2.")

	artifacts, err := gen.Generate(entry, &types.PaperRecord{ID: entry.PaperID})
	require.NoError(t, err)
	require.Len(t, artifacts, 1)

	a := artifacts[0]
	assert.Equal(t, entry.PaperID, a.PaperID)
	assert.Equal(t, types.StageQuery, a.Stage)
	assert.Equal(t, 0, a.Seq)

	p := decodeQueryPayload(t, a)
	assert.Equal(t, 1, p.SentenceIndex)
	assert.Equal(t, "Drug X", p.Fields.Treatment)
	assert.Equal(t, "$500", p.Fields.Cost)
	assert.Equal(t, "0.2", p.Fields.QALY)
}

func TestQueryGenerator_SkipsSentencesWithoutFields(t *testing.T) {
	gen := NewQueryGenerator(types.QueryConfig{})
	entry := queryEntry("PMC9918764",
		"We conducted a retrospective cohort study across four hospitals. "+
			"Drug X reduced cost by $500 and improved QALY by 0.2. "+
			"Further research is needed to confirm these findings.")

	artifacts, err := gen.Generate(entry, &types.PaperRecord{ID: entry.PaperID})
	require.NoError(t, err)
	require.Len(t, artifacts, 1)

	p := decodeQueryPayload(t, artifacts[0])
	// The record keeps the sentence's position in the abstract even though
	// the other sentences produced nothing.
	assert.Equal(t, 2, p.SentenceIndex)
	assert.Equal(t, 0, artifacts[0].Seq)
}

func TestQueryGenerator_Deterministic(t *testing.T) {
	gen := NewQueryGenerator(types.QueryConfig{})
	entry := queryEntry("PMC9918765",
		"Drug X reduced cost by $500 and improved QALY by 0.2. "+
			"Therapy B lowered spending by $1,200 overall.")

	first, err := gen.Generate(entry, &types.PaperRecord{ID: entry.PaperID})
	require.NoError(t, err)
	second, err := gen.Generate(entry, &types.PaperRecord{ID: entry.PaperID})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.JSONEq(t, string(first[i].Payload), string(second[i].Payload))
	}
}

func TestQueryGenerator_EmptyAbstractFails(t *testing.T) {
	gen := NewQueryGenerator(types.QueryConfig{})
	entry := queryEntry("PMC9918766", "   ")

	_, err := gen.Generate(entry, &types.PaperRecord{ID: entry.PaperID})

	var genErr *Error
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, types.StageQuery, genErr.Stage)
	assert.Equal(t, "PMC9918766", genErr.PaperID)
}

func TestQueryGenerator_NoMatchingSentences(t *testing.T) {
	gen := NewQueryGenerator(types.QueryConfig{})
	entry := queryEntry("PMC9918767",
		"We describe the study protocol in detail. Enrollment began last spring.")

	artifacts, err := gen.Generate(entry, &types.PaperRecord{ID: entry.PaperID})
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestExtractFields(t *testing.T) {
	tests := []struct {
		name     string
		sentence string
		want     types.QueryFields
	}{
		{
			"all three fields",
			"Drug X reduced cost by $500 and improved QALY by 0.2.",
			types.QueryFields{Treatment: "Drug X", Cost: "$500", QALY: "0.2"},
		},
		{
			"cost with separators",
			"The intervention saved $1,234.56 per patient.",
			types.QueryFields{Cost: "$1,234.56"},
		},
		{
			"leading qaly word order",
			"Patients gained 0.35 QALYs on average.",
			types.QueryFields{QALY: "0.35"},
		},
		{
			"nothing extractable",
			"further details are given in the appendix.",
			types.QueryFields{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractFields(tt.sentence)
			assert.Equal(t, tt.want, got)
		})
	}
}
