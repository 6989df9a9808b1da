package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseval/caseval/internal/domain"
)

func doneCase(caseID string, questions int) domain.CaseResult {
	result := domain.CaseResult{
		CaseID:      caseID,
		Title:       "案件" + caseID,
		State:       domain.CaseDone,
		MaskingAPI:  "deepseek/deepseek-chat",
		QuestionAPI: "deepseek/deepseek-chat",
	}
	for i := 1; i <= questions; i++ {
		result.Questions = append(result.Questions, domain.QuestionResult{
			Question: domain.Question{CaseID: caseID, Index: i, Text: "问题"},
			Answer: domain.AnswerRecord{
				CaseID:        caseID,
				QuestionIndex: i,
				Provider:      "deepseek",
				Model:         "deepseek-reasoner",
				Answer:        "分析",
				Usage:         domain.TokenUsage{PromptTokens: 100, CompletionTokens: 50, Calls: 1},
			},
			Evaluation: domain.EvaluationResult{
				CaseID:        caseID,
				QuestionIndex: i,
				Provider:      "deepseek",
				Model:         "deepseek-chat",
				Dimensions: []domain.DimensionScore{
					{Name: domain.DimNormativeBasis, Value: 4},
					{Name: domain.DimSubsumption, Value: 3},
					{Name: domain.DimValueEmpathy, Value: 4},
					{Name: domain.DimFactCoverage, Value: 3},
					{Name: domain.DimRemedyConsistency, Value: 2},
				},
				RawTotal:       16,
				PenalizedTotal: 14.4,
				Percentage:     72,
				Grade:          "fair",
				Findings: []domain.ErrorFinding{
					{Severity: domain.SeverityMinor, Description: "引用不精确"},
					{Severity: domain.SeverityMajor, Description: "结论矛盾"},
				},
				Usage: domain.TokenUsage{PromptTokens: 80, CompletionTokens: 20, Calls: 1},
			},
		})
	}
	return result
}

func TestFlatten_OneRowPerQuestion(t *testing.T) {
	results := []domain.CaseResult{doneCase("case-002", 5), doneCase("case-001", 3)}
	rows := Flatten(results)

	require.Len(t, rows, 8)
	// Sorted by case then question regardless of input order.
	assert.Equal(t, "case-001", rows[0].CaseID)
	assert.Equal(t, 1, rows[0].QuestionIndex)
	assert.Equal(t, "case-001", rows[2].CaseID)
	assert.Equal(t, "case-002", rows[3].CaseID)
	assert.Equal(t, 5, rows[7].QuestionIndex)

	row := rows[0]
	assert.Equal(t, 4.0, row.DimensionScores[domain.DimNormativeBasis])
	assert.Equal(t, "引用不精确", row.MinorFindings)
	assert.Equal(t, "结论矛盾", row.MajorFindings)
	assert.Empty(t, row.ModerateFindings)
	assert.Equal(t, int64(180), row.PromptTokens)
	assert.Equal(t, int64(70), row.CompletionTokens)
	assert.Equal(t, "deepseek/deepseek-chat", row.MaskingAPI)
	assert.Equal(t, "deepseek/deepseek-chat", row.QuestionAPI)
	assert.Equal(t, "deepseek/deepseek-chat", row.JudgeAPI)
}

func TestFlatten_FailedCaseProducesErrorRow(t *testing.T) {
	results := []domain.CaseResult{
		doneCase("case-001", 2),
		{CaseID: "case-002", Title: "失败案件", State: domain.CaseFailed, Err: "question generation: timeout"},
	}
	rows := Flatten(results)

	require.Len(t, rows, 3)
	failedRow := rows[2]
	assert.Equal(t, "case-002", failedRow.CaseID)
	assert.Equal(t, 0, failedRow.QuestionIndex)
	assert.Equal(t, "question generation: timeout", failedRow.Err)
	assert.Empty(t, failedRow.Answer)
}

func TestFlatten_DegradedRowsCarryErrors(t *testing.T) {
	result := doneCase("case-001", 3)
	result.State = domain.CaseDegraded
	result.Questions[1].Answer.Answer = ""
	result.Questions[1].Answer.Err = "content filter"
	result.Questions[1].Evaluation = domain.EvaluationResult{
		CaseID: "case-001", QuestionIndex: 2, Err: "answer unavailable, evaluation skipped",
	}

	rows := Flatten([]domain.CaseResult{result})
	require.Len(t, rows, 3)
	assert.Empty(t, rows[0].Err)
	assert.Equal(t, "content filter", rows[1].Err)
	assert.Zero(t, rows[1].PenalizedTotal)
	assert.Empty(t, rows[2].Err)
}

func TestFlatten_UnmaskedFlagPropagates(t *testing.T) {
	result := doneCase("case-001", 2)
	result.Masked.Unmasked = true

	rows := Flatten([]domain.CaseResult{result})
	for _, row := range rows {
		assert.True(t, row.Unmasked)
	}
}

func TestWriteCSV(t *testing.T) {
	rows := Flatten([]domain.CaseResult{doneCase("case-001", 2)})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	header := records[0]
	assert.Equal(t, "case_id", header[0])
	assert.Contains(t, header, "normative_basis")
	assert.Contains(t, header, "remedy_consistency")
	assert.Contains(t, header, "penalized_total")
	assert.Contains(t, header, "judge_api")
	assert.Contains(t, header, "error")

	// Every record matches the header width.
	for _, record := range records[1:] {
		assert.Len(t, record, len(header))
	}
	assert.Equal(t, "case-001", records[1][0])
	assert.Equal(t, "14.40", records[1][indexOf(t, header, "penalized_total")])
	assert.Equal(t, "fair", records[1][indexOf(t, header, "grade")])
}

func indexOf(t *testing.T, header []string, name string) int {
	t.Helper()
	for i, h := range header {
		if h == name {
			return i
		}
	}
	t.Fatalf("column %q not in header", name)
	return -1
}

func TestWriteCostReport(t *testing.T) {
	result := doneCase("case-001", 2)
	// 2 questions at 100/50 tokens on deepseek-reasoner (4/16 CNY per 1M):
	// 200*4/1M + 100*16/1M = 0.0024 CNY.
	var buf bytes.Buffer
	require.NoError(t, WriteCostReport(&buf, []domain.CaseResult{result}, nil))

	out := buf.String()
	assert.Contains(t, out, "deepseek-reasoner")
	assert.Contains(t, out, "in=200")
	assert.Contains(t, out, "out=100")
	assert.Contains(t, out, "¥0.00")
}

func TestWriteCostReport_UnpricedModel(t *testing.T) {
	result := doneCase("case-001", 1)
	result.Questions[0].Answer.Model = "experimental-model-x"

	var buf bytes.Buffer
	require.NoError(t, WriteCostReport(&buf, []domain.CaseResult{result}, nil))

	line := ""
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "experimental-model-x") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Contains(t, line, "cost=-")
}

func TestWriteSummary(t *testing.T) {
	failed := domain.CaseResult{
		CaseID: "case-002", Title: "失败案件", State: domain.CaseFailed, Err: "timeout",
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, []domain.CaseResult{doneCase("case-001", 2), failed}))

	out := buf.String()
	assert.Contains(t, out, "case-001")
	assert.Contains(t, out, "case-002")
	assert.Contains(t, out, string(domain.CaseFailed))
	// Two scored questions at 72% each.
	assert.Contains(t, out, "72.0")
	assert.Contains(t, out, "cases=2 questions=2 errors=1")
}

func TestTruncateTitle(t *testing.T) {
	long := strings.Repeat("判", 50)
	got := truncateTitle(long)
	assert.Equal(t, strings.Repeat("判", 40)+"...", got)
	assert.Equal(t, "短标题", truncateTitle("短标题"))
}

func TestLookupPrice_LongestMatchWins(t *testing.T) {
	price, ok := lookupPrice(DefaultPrices, "deepseek-reasoner-2025")
	require.True(t, ok)
	assert.Equal(t, 4.0, price.InputCNY)

	price, ok = lookupPrice(DefaultPrices, "claude-sonnet-4-20250514")
	require.True(t, ok)
	assert.Equal(t, 108.0, price.InputCNY)

	_, ok = lookupPrice(DefaultPrices, "mystery-model")
	assert.False(t, ok)
}
