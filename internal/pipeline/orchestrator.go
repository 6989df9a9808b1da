package pipeline

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/caseval/caseval/internal/domain"
)

// DefaultQuestionWorkers bounds concurrent answer/score pairs per case.
const DefaultQuestionWorkers = 5

// Orchestrator drives one case through the full state machine: masking,
// question generation, concurrent answering and scoring, aggregation.
//
// A question-level failure degrades the case but never aborts it: every
// generated question produces exactly one result row, with failures
// recorded in the row's error fields. Only case-wide stages (validation,
// question generation) can fail the whole case.
type Orchestrator struct {
	stages          *Stages
	questionWorkers int
	logger          *slog.Logger
}

// NewOrchestrator creates the per-case driver. questionWorkers bounds the
// number of questions processed concurrently within one case.
func NewOrchestrator(stages *Stages, questionWorkers int) *Orchestrator {
	if questionWorkers <= 0 {
		questionWorkers = DefaultQuestionWorkers
	}
	return &Orchestrator{
		stages:          stages,
		questionWorkers: questionWorkers,
		logger:          slog.Default().With("component", "orchestrator"),
	}
}

// RunCase executes the pipeline for one case document. The returned
// result always has State set; question slots are ordered by index
// regardless of completion order.
func (o *Orchestrator) RunCase(ctx context.Context, doc domain.CaseDocument) domain.CaseResult {
	result := domain.CaseResult{
		CaseID: doc.CaseID,
		Title:  doc.Title,
		State:  domain.CasePending,
	}

	cfg := o.stages.Config()
	result.MaskingAPI = cfg.Masking.String()

	o.transition(&result, domain.CaseMasking)
	masked, maskUsage, err := o.stages.MaskCase(ctx, doc)
	result.Usage.Add(maskUsage)
	if err != nil {
		return o.fail(result, err)
	}
	result.Masked = masked

	o.transition(&result, domain.CaseQuestions)
	var questions []domain.Question
	if cfg.UseExistingQuestions {
		questions = o.stages.ExistingQuestions(doc)
	}
	if len(questions) > 0 {
		result.QuestionAPI = "existing"
		o.logger.Info("reusing existing questions",
			"case_id", doc.CaseID, "count", len(questions))
	} else {
		result.QuestionAPI = cfg.Questions.String()
		var qUsage domain.TokenUsage
		questions, qUsage, err = o.stages.GenerateQuestions(ctx, masked)
		result.Usage.Add(qUsage)
		if err != nil {
			return o.fail(result, err)
		}
	}

	o.transition(&result, domain.CaseAnswering)
	slots := make([]domain.QuestionResult, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.questionWorkers)
	for i, q := range questions {
		g.Go(func() error {
			answer := o.stages.AnswerQuestion(gctx, masked, q)
			evaluation := o.stages.ScoreAnswer(gctx, masked, q, answer)
			slots[i] = domain.QuestionResult{
				Question:   q,
				Answer:     answer,
				Evaluation: evaluation,
			}
			return nil
		})
	}
	// Workers record failures in their slot and never return an error.
	_ = g.Wait()

	o.transition(&result, domain.CaseAggregated)
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Question.Index < slots[j].Question.Index
	})
	result.Questions = slots

	failed := 0
	for i := range slots {
		result.Usage.Add(slots[i].Answer.Usage)
		result.Usage.Add(slots[i].Evaluation.Usage)
		if slots[i].Failed() {
			failed++
		}
	}

	switch {
	case failed == 0:
		result.State = domain.CaseDone
	default:
		result.State = domain.CaseDegraded
	}
	o.logger.Info("case finished",
		"case_id", doc.CaseID,
		"state", result.State,
		"questions", len(slots),
		"failed_questions", failed,
		"total_tokens", result.Usage.TotalTokens)
	return result
}

func (o *Orchestrator) transition(result *domain.CaseResult, next domain.CaseState) {
	o.logger.Debug("state transition",
		"case_id", result.CaseID, "from", result.State, "to", next)
	result.State = next
}

func (o *Orchestrator) fail(result domain.CaseResult, err error) domain.CaseResult {
	result.State = domain.CaseFailed
	result.Err = err.Error()
	o.logger.Error("case failed",
		"case_id", result.CaseID, "error", err)
	return result
}
