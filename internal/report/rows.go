// Package report flattens case results into per-question rows and writes
// them to CSV and console sinks.
package report

import (
	"sort"
	"strings"

	"github.com/caseval/caseval/internal/domain"
)

// Row is the flat record for one (case, question) pair. Failed question
// slots still produce a row with the error column set, so a run over N
// questions always yields exactly N rows plus one row per failed case.
type Row struct {
	CaseID        string
	CaseTitle     string
	QuestionIndex int
	Question      string

	Provider  string
	Model     string
	Answer    string
	Reasoning string
	Truncated bool
	Unmasked  bool

	// Per-stage attribution: which provider/model served masking and
	// question generation, and which judge scored this row.
	MaskingAPI  string
	QuestionAPI string
	JudgeAPI    string

	DimensionScores map[domain.Dimension]float64
	RawTotal        float64
	PenalizedTotal  float64
	Percentage      float64
	Grade           string

	MinorFindings    string
	ModerateFindings string
	MajorFindings    string
	Rationale        string
	EvalReasoning    string

	PromptTokens     int64
	CompletionTokens int64

	// Err aggregates the stage failure for this row, empty on success.
	Err string
}

// Flatten converts case results into rows ordered by (case_id,
// question_index). A failed case contributes a single row carrying the
// case-level error so it is never silently absent from the output.
func Flatten(results []domain.CaseResult) []Row {
	var rows []Row
	for i := range results {
		rows = append(rows, flattenCase(&results[i])...)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CaseID != rows[j].CaseID {
			return rows[i].CaseID < rows[j].CaseID
		}
		return rows[i].QuestionIndex < rows[j].QuestionIndex
	})
	return rows
}

func flattenCase(result *domain.CaseResult) []Row {
	if result.State == domain.CaseFailed {
		return []Row{{
			CaseID:    result.CaseID,
			CaseTitle: result.Title,
			Err:       result.Err,
		}}
	}

	rows := make([]Row, 0, len(result.Questions))
	for i := range result.Questions {
		q := &result.Questions[i]
		row := Row{
			CaseID:        result.CaseID,
			CaseTitle:     result.Title,
			QuestionIndex: q.Question.Index,
			Question:      q.Question.Text,
			Provider:      q.Answer.Provider,
			Model:         q.Answer.Model,
			Answer:        q.Answer.Answer,
			Reasoning:     q.Answer.Reasoning,
			Truncated:     q.Answer.Truncated,
			Unmasked:      result.Masked.Unmasked,

			MaskingAPI:  result.MaskingAPI,
			QuestionAPI: result.QuestionAPI,
			JudgeAPI:    joinAPI(q.Evaluation.Provider, q.Evaluation.Model),

			RawTotal:       q.Evaluation.RawTotal,
			PenalizedTotal: q.Evaluation.PenalizedTotal,
			Percentage:     q.Evaluation.Percentage,
			Grade:          q.Evaluation.Grade,
			Rationale:      q.Evaluation.Rationale,
			EvalReasoning:  q.Evaluation.Reasoning,

			PromptTokens:     q.Answer.Usage.PromptTokens + q.Evaluation.Usage.PromptTokens,
			CompletionTokens: q.Answer.Usage.CompletionTokens + q.Evaluation.Usage.CompletionTokens,
		}

		if len(q.Evaluation.Dimensions) > 0 {
			row.DimensionScores = make(map[domain.Dimension]float64, len(q.Evaluation.Dimensions))
			for _, d := range q.Evaluation.Dimensions {
				row.DimensionScores[d.Name] = d.Value
			}
		}

		row.MinorFindings = joinFindings(q.Evaluation.Findings, domain.SeverityMinor)
		row.ModerateFindings = joinFindings(q.Evaluation.Findings, domain.SeverityModerate)
		row.MajorFindings = joinFindings(q.Evaluation.Findings, domain.SeverityMajor)

		switch {
		case q.Answer.Failed():
			row.Err = q.Answer.Err
		case q.Evaluation.Err != "":
			row.Err = q.Evaluation.Err
		}

		rows = append(rows, row)
	}
	return rows
}

func joinAPI(provider, model string) string {
	if provider == "" && model == "" {
		return ""
	}
	return provider + "/" + model
}

func joinFindings(findings []domain.ErrorFinding, sev domain.Severity) string {
	var parts []string
	for _, f := range findings {
		if f.Severity == sev {
			parts = append(parts, f.Description)
		}
	}
	return strings.Join(parts, "; ")
}
