package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/caseval/caseval/internal/domain"
)

// WriteCSV writes rows in their given order with a fixed header. Callers
// wanting deterministic output should pass rows from Flatten, which sorts
// by (case_id, question_index).
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	header := []string{
		"case_id", "case_title", "question_index", "question",
		"provider", "model", "answer", "reasoning", "truncated", "unmasked",
		"masking_api", "question_api", "judge_api",
	}
	for _, dim := range domain.RubricDimensions() {
		header = append(header, string(dim))
	}
	header = append(header,
		"raw_total", "penalized_total", "percentage", "grade",
		"minor_findings", "moderate_findings", "major_findings",
		"rationale", "eval_reasoning",
		"prompt_tokens", "completion_tokens", "error",
	)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i := range rows {
		if err := cw.Write(csvRecord(&rows[i])); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRecord(r *Row) []string {
	record := []string{
		r.CaseID,
		r.CaseTitle,
		strconv.Itoa(r.QuestionIndex),
		r.Question,
		r.Provider,
		r.Model,
		r.Answer,
		r.Reasoning,
		strconv.FormatBool(r.Truncated),
		strconv.FormatBool(r.Unmasked),
		r.MaskingAPI,
		r.QuestionAPI,
		r.JudgeAPI,
	}
	for _, dim := range domain.RubricDimensions() {
		record = append(record, formatScore(r.DimensionScores[dim]))
	}
	record = append(record,
		formatScore(r.RawTotal),
		formatScore(r.PenalizedTotal),
		formatScore(r.Percentage),
		r.Grade,
		r.MinorFindings,
		r.ModerateFindings,
		r.MajorFindings,
		r.Rationale,
		r.EvalReasoning,
		strconv.FormatInt(r.PromptTokens, 10),
		strconv.FormatInt(r.CompletionTokens, 10),
		r.Err,
	)
	return record
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
