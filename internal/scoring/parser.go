// Package scoring turns judge model output into structured evaluation
// results: a strict parser for the judge's JSON verdict and an engine that
// applies the penalty table, percentage conversion, and grade banding.
package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caseval/caseval/internal/domain"
	llmerrors "github.com/caseval/caseval/internal/llm/errors"
)

// verdict is the judge's raw JSON output shape.
type verdict struct {
	DimensionScores map[string]float64 `json:"dimension_scores"`
	Findings        []struct {
		Severity    string `json:"severity"`
		Description string `json:"description"`
	} `json:"findings"`
	Rationale string `json:"rationale"`
}

// ParseVerdict decodes judge output into dimension scores and findings.
// The parser is strict: all five rubric dimensions must be present with
// values in [0, 4] and every finding must carry a known severity. Anything
// else returns ScoringParseError; scores are never defaulted or invented.
func ParseVerdict(raw string) ([]domain.DimensionScore, []domain.ErrorFinding, string, error) {
	jsonText := extractJSON(raw)
	if jsonText == "" {
		return nil, nil, "", parseErr("no JSON object found", raw)
	}

	var v verdict
	dec := json.NewDecoder(strings.NewReader(jsonText))
	if err := dec.Decode(&v); err != nil {
		return nil, nil, "", parseErr(fmt.Sprintf("invalid JSON: %v", err), raw)
	}

	if v.DimensionScores == nil {
		return nil, nil, "", parseErr("missing dimension_scores", raw)
	}

	dims := make([]domain.DimensionScore, 0, len(domain.RubricDimensions()))
	for _, name := range domain.RubricDimensions() {
		value, ok := v.DimensionScores[string(name)]
		if !ok {
			return nil, nil, "", parseErr(fmt.Sprintf("missing dimension %q", name), raw)
		}
		if value < 0 || value > domain.DimensionMax {
			return nil, nil, "", parseErr(
				fmt.Sprintf("dimension %q out of range: %v", name, value), raw)
		}
		dims = append(dims, domain.DimensionScore{Name: name, Value: value})
	}

	findings := make([]domain.ErrorFinding, 0, len(v.Findings))
	for i, f := range v.Findings {
		sev := domain.Severity(strings.ToLower(strings.TrimSpace(f.Severity)))
		if !sev.Valid() {
			return nil, nil, "", parseErr(
				fmt.Sprintf("finding %d has unknown severity %q", i, f.Severity), raw)
		}
		findings = append(findings, domain.ErrorFinding{
			Severity:    sev,
			Description: f.Description,
		})
	}

	return dims, findings, v.Rationale, nil
}

// extractJSON returns the outermost JSON object in raw, tolerating the
// markdown fences and prose some judges wrap around their verdict.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

const rawSnippetLimit = 200

func parseErr(reason, raw string) error {
	snippet := raw
	if len(snippet) > rawSnippetLimit {
		snippet = snippet[:rawSnippetLimit]
	}
	return &llmerrors.ScoringParseError{Reason: reason, Raw: snippet}
}
