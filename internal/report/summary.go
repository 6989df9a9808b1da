package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/caseval/caseval/internal/domain"
)

// caseSummary aggregates the per-question rows of one case.
type caseSummary struct {
	caseID     string
	title      string
	questions  int
	errors     int
	sumPercent float64
	scored     int
	gradeCount map[string]int
}

// WriteSummary renders a per-case console table: question counts, error
// counts, and average percentage, followed by run totals.
func WriteSummary(w io.Writer, results []domain.CaseResult) error {
	table := newSummaryTable(w, []string{
		"case_id", "title", "state", "questions", "errors", "avg %", "tokens",
	})

	var totalQuestions, totalErrors int
	var sumPercent float64
	var scored int
	var totalTokens int64

	for i := range results {
		r := &results[i]
		s := summarize(r)
		totalQuestions += s.questions
		totalErrors += s.errors
		sumPercent += s.sumPercent
		scored += s.scored
		totalTokens += r.Usage.TotalTokens

		avg := "-"
		if s.scored > 0 {
			avg = fmt.Sprintf("%.1f", s.sumPercent/float64(s.scored))
		}
		_ = table.Append([]string{
			r.CaseID,
			truncateTitle(r.Title),
			string(r.State),
			fmt.Sprintf("%d", s.questions),
			fmt.Sprintf("%d", s.errors),
			avg,
			fmt.Sprintf("%d", r.Usage.TotalTokens),
		})
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("render summary table: %w", err)
	}

	runAvg := "-"
	if scored > 0 {
		runAvg = fmt.Sprintf("%.1f", sumPercent/float64(scored))
	}
	_, err := fmt.Fprintf(w, "\ncases=%d questions=%d errors=%d avg=%s tokens=%d\n",
		len(results), totalQuestions, totalErrors, runAvg, totalTokens)
	return err
}

func summarize(r *domain.CaseResult) caseSummary {
	s := caseSummary{
		caseID:     r.CaseID,
		title:      r.Title,
		gradeCount: make(map[string]int),
	}
	if r.State == domain.CaseFailed {
		s.errors = 1
		return s
	}
	for i := range r.Questions {
		q := &r.Questions[i]
		s.questions++
		if q.Failed() {
			s.errors++
			continue
		}
		s.sumPercent += q.Evaluation.Percentage
		s.scored++
		s.gradeCount[q.Evaluation.Grade]++
	}
	return s
}

const titleLimit = 40

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= titleLimit {
		return title
	}
	return string(runes[:titleLimit]) + "..."
}

func newSummaryTable(w io.Writer, headers []string) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
		}),
	)
}
