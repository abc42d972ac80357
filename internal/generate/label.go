// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"math/rand"
	"strings"

	"github.com/pdiddy/corpus-engine/internal/extract"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// excludedSections filters section titles that make poor label candidates.
var excludedSections = []string{"supplementary", "reference"}

// LabelGenerator derives section-labeling pairs from a paper's JATS full
// text: each artifact pairs a paragraph snippet with a candidate set of
// section titles (the true one plus distractors). Snippet selection and
// choice shuffling use a PRNG seeded from the paper id, so output is
// identical across reruns of the same paper.
type LabelGenerator struct {
	snippetsPerPaper int
	choiceCount      int
}

// NewLabelGenerator builds the labeling generator.
func NewLabelGenerator(cfg types.LabelConfig) *LabelGenerator {
	snippets := cfg.SnippetsPerPaper
	if snippets <= 0 {
		snippets = 2
	}
	choices := cfg.ChoiceCount
	if choices <= 1 {
		choices = 5
	}
	return &LabelGenerator{snippetsPerPaper: snippets, choiceCount: choices}
}

// Stage returns the ledger stage name.
func (g *LabelGenerator) Stage() string { return types.StageLabel }

// Generate parses the paper's full text into (section, paragraph) pairs and
// emits up to snippetsPerPaper labeling artifacts. Papers without full text
// fail; papers with too few distinct sections for a candidate set produce
// an empty (but successful) artifact sequence.
func (g *LabelGenerator) Generate(entry *types.IndexEntry, paper *types.PaperRecord) ([]types.ArtifactRecord, error) {
	fullText := extract.FullText(paper.RawContent)
	if strings.TrimSpace(fullText) == "" {
		return nil, &Error{Stage: g.Stage(), PaperID: entry.PaperID, Reason: "full text is absent"}
	}

	titles, paragraphs, err := parseSections(fullText)
	if err != nil {
		return nil, &Error{Stage: g.Stage(), PaperID: entry.PaperID,
			Reason: fmt.Sprintf("parsing full text: %v", err)}
	}

	if len(titles) < g.choiceCount || len(paragraphs) == 0 {
		return []types.ArtifactRecord{}, nil
	}

	rng := rand.New(rand.NewSource(seedFor(entry.PaperID)))

	n := g.snippetsPerPaper
	if n > len(paragraphs) {
		n = len(paragraphs)
	}
	order := rng.Perm(len(paragraphs))[:n]

	var artifacts []types.ArtifactRecord
	for _, idx := range order {
		para := paragraphs[idx]

		var wrong []string
		for _, t := range titles {
			if t != para.section {
				wrong = append(wrong, t)
			}
		}
		if len(wrong) < g.choiceCount-1 {
			continue
		}

		choices := make([]string, 0, g.choiceCount)
		for _, wi := range rng.Perm(len(wrong))[:g.choiceCount-1] {
			choices = append(choices, wrong[wi])
		}
		choices = append(choices, para.section)
		rng.Shuffle(len(choices), func(i, j int) {
			choices[i], choices[j] = choices[j], choices[i]
		})

		payload, err := json.Marshal(types.LabelPayload{
			Snippet: para.text,
			Choices: choices,
			Answer:  para.section,
		})
		if err != nil {
			return nil, fmt.Errorf("marshaling label payload: %w", err)
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

type paragraph struct {
	text    string
	section string
}

// parseSections walks the JATS XML collecting section titles and the
// paragraphs under them, skipping supplementary and reference sections.
func parseSections(fullText string) ([]string, []paragraph, error) {
	decoder := xml.NewDecoder(strings.NewReader(fullText))
	decoder.Strict = false

	var (
		titles       []string
		seenTitles   = map[string]bool{}
		paragraphs   []paragraph
		currentTitle string
	)

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch strings.ToLower(se.Name.Local) {
		case "title":
			text := collectText(decoder)
			if text == "" || excludedSection(text) {
				currentTitle = ""
				continue
			}
			currentTitle = text
			if !seenTitles[text] {
				seenTitles[text] = true
				titles = append(titles, text)
			}
		case "p":
			text := collectText(decoder)
			if text != "" && currentTitle != "" {
				paragraphs = append(paragraphs, paragraph{text: text, section: currentTitle})
			}
		}
	}

	return titles, paragraphs, nil
}

// collectText reads the element's flattened character data up to its end tag.
func collectText(decoder *xml.Decoder) string {
	var (
		sb    strings.Builder
		depth = 1
	)
	for depth > 0 {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func excludedSection(title string) bool {
	lower := strings.ToLower(title)
	for _, ex := range excludedSections {
		if strings.Contains(lower, ex) {
			return true
		}
	}
	return false
}

// seedFor derives the deterministic PRNG seed for a paper.
func seedFor(paperID string) int64 {
	h := sha256.Sum256([]byte(paperID))
	return int64(binary.BigEndian.Uint64(h[:8]) & (1<<63 - 1))
}
