package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caseval/caseval/internal/domain"
	llmerrors "github.com/caseval/caseval/internal/llm/errors"
	"github.com/caseval/caseval/internal/llm/transport"
	"github.com/caseval/caseval/internal/scoring"
)

// ModelRef names the provider and model serving one stage.
type ModelRef struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}

// String renders the reference as provider/model for logs and reports.
func (m ModelRef) String() string {
	if m.Provider == "" && m.Model == "" {
		return ""
	}
	return m.Provider + "/" + m.Model
}

// StageConfig selects the model and generation parameters per stage.
// Masking, question generation, and scoring default to DeepSeek as in the
// original rubric; the answer stage runs whichever candidate model is
// under evaluation.
type StageConfig struct {
	Masking   ModelRef `json:"masking" yaml:"masking"`
	Questions ModelRef `json:"questions" yaml:"questions"`
	Answer    ModelRef `json:"answer" yaml:"answer"`
	Scoring   ModelRef `json:"scoring" yaml:"scoring"`

	NumQuestions int `json:"num_questions" yaml:"num_questions"`

	// UseExistingQuestions reuses questions carried by the case document
	// instead of generating fresh ones, when the document has any.
	UseExistingQuestions bool `json:"use_existing_questions" yaml:"use_existing_questions"`

	// RequestTimeout bounds each individual LLM call.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// Stage generation parameters. Masking runs cool to stay faithful to the
// source text; question generation runs warm for variety; scoring runs
// cold for determinism.
const (
	maskingMaxTokens   = 4000
	maskingTemperature = 0.3

	questionsMaxTokens   = 2000
	questionsTemperature = 0.7

	answerMaxTokens   = 4000
	answerTemperature = 0.7

	scoringMaxTokens   = 3000
	scoringTemperature = 0.2

	// DefaultNumQuestions is the per-case question count.
	DefaultNumQuestions = 5

	// DefaultRequestTimeout bounds one LLM call including streaming.
	DefaultRequestTimeout = 180 * time.Second
)

// LLMClient is the subset of the llm client the stages need.
type LLMClient interface {
	Complete(ctx context.Context, req *transport.Request) (*transport.Response, error)
	SupportsReasoningTrace(provider string) bool
}

// Stages executes the four pipeline stages against the LLM client.
type Stages struct {
	client LLMClient
	engine *scoring.Engine
	cfg    StageConfig
	logger *slog.Logger
}

// NewStages wires the stage executor. Zero-value config fields fall back
// to defaults.
func NewStages(client LLMClient, engine *scoring.Engine, cfg StageConfig) *Stages {
	if cfg.NumQuestions <= 0 {
		cfg.NumQuestions = DefaultNumQuestions
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Stages{
		client: client,
		engine: engine,
		cfg:    cfg,
		logger: slog.Default().With("component", "pipeline"),
	}
}

// Config returns the effective stage configuration.
func (s *Stages) Config() StageConfig { return s.cfg }

// MaskCase anonymizes a case document via the masking model. When the
// model call fails the original text is kept and flagged Unmasked so the
// run can proceed with degraded privacy rather than losing the case.
func (s *Stages) MaskCase(ctx context.Context, doc domain.CaseDocument) (domain.MaskedCase, domain.TokenUsage, error) {
	if err := doc.Validate(); err != nil {
		return domain.MaskedCase{}, domain.TokenUsage{}, err
	}

	var usage domain.TokenUsage

	text, textUsage, err := s.maskText(ctx, doc.Text)
	usage.Add(textUsage)
	if err != nil {
		s.logger.Warn("masking failed, proceeding unmasked",
			"case_id", doc.CaseID, "error", err)
		return domain.MaskedCase{
			CaseID:   doc.CaseID,
			Title:    doc.Title,
			Text:     doc.Text,
			Decision: doc.Decision,
			Unmasked: true,
		}, usage, nil
	}

	decision := doc.Decision
	if decision != "" {
		maskedDecision, decisionUsage, derr := s.maskText(ctx, decision)
		usage.Add(decisionUsage)
		if derr != nil {
			s.logger.Warn("decision masking failed, keeping original",
				"case_id", doc.CaseID, "error", derr)
		} else {
			decision = maskedDecision
		}
	}

	return domain.MaskedCase{
		CaseID:   doc.CaseID,
		Title:    doc.Title,
		Text:     text,
		Decision: decision,
	}, usage, nil
}

func (s *Stages) maskText(ctx context.Context, text string) (string, domain.TokenUsage, error) {
	resp, err := s.client.Complete(ctx, &transport.Request{
		Stage:        transport.StageMasking,
		Provider:     s.cfg.Masking.Provider,
		Model:        s.cfg.Masking.Model,
		SystemPrompt: maskingSystemPrompt,
		UserPrompt:   buildMaskingPrompt(text),
		MaxTokens:    maskingMaxTokens,
		Temperature:  maskingTemperature,
		AutoRecover:  true,
		Timeout:      s.cfg.RequestTimeout,
	})
	if err != nil {
		return "", domain.TokenUsage{}, err
	}
	return cleanMaskedText(resp.Content), resp.Usage.ToTokenUsage(), nil
}

// GenerateQuestions produces up to NumQuestions law-reasoning questions
// from the masked case. Fewer questions than requested is not an error;
// the orchestrator runs whatever was produced.
func (s *Stages) GenerateQuestions(ctx context.Context, masked domain.MaskedCase) ([]domain.Question, domain.TokenUsage, error) {
	resp, err := s.client.Complete(ctx, &transport.Request{
		Stage:        transport.StageQuestions,
		Provider:     s.cfg.Questions.Provider,
		Model:        s.cfg.Questions.Model,
		SystemPrompt: questionSystemPrompt,
		UserPrompt:   buildQuestionsPrompt(masked.Text, s.cfg.NumQuestions),
		MaxTokens:    questionsMaxTokens,
		Temperature:  questionsTemperature,
		AutoRecover:  true,
		Timeout:      s.cfg.RequestTimeout,
	})
	if err != nil {
		return nil, domain.TokenUsage{}, fmt.Errorf("question generation: %w", err)
	}

	questions := parseQuestions(masked.CaseID, resp.Content, s.cfg.NumQuestions)
	if len(questions) == 0 {
		return nil, resp.Usage.ToTokenUsage(), fmt.Errorf("question generation: %w",
			llmerrors.ErrUpstreamEmptyAnswer)
	}
	if len(questions) < s.cfg.NumQuestions {
		s.logger.Warn("fewer questions than requested",
			"case_id", masked.CaseID,
			"requested", s.cfg.NumQuestions,
			"produced", len(questions))
	}
	return questions, resp.Usage.ToTokenUsage(), nil
}

// ExistingQuestions converts pre-generated question texts into question
// records, skipping blanks and capping at NumQuestions. Returns nil when
// the document carries no usable questions.
func (s *Stages) ExistingQuestions(doc domain.CaseDocument) []domain.Question {
	var questions []domain.Question
	for _, text := range doc.Questions {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		questions = append(questions, domain.Question{
			CaseID: doc.CaseID,
			Index:  len(questions) + 1,
			Text:   text,
		})
		if len(questions) == s.cfg.NumQuestions {
			break
		}
	}
	return questions
}

// AnswerQuestion runs the candidate model on one question. Failures are
// recorded in the returned AnswerRecord rather than aborting the case;
// the answer is left empty and never substituted with placeholder text.
func (s *Stages) AnswerQuestion(ctx context.Context, masked domain.MaskedCase, q domain.Question) domain.AnswerRecord {
	record := domain.AnswerRecord{
		CaseID:        q.CaseID,
		QuestionIndex: q.Index,
		Provider:      s.cfg.Answer.Provider,
		Model:         s.cfg.Answer.Model,
	}

	resp, err := s.client.Complete(ctx, &transport.Request{
		Stage:        transport.StageAnswer,
		Provider:     s.cfg.Answer.Provider,
		Model:        s.cfg.Answer.Model,
		SystemPrompt: answerSystemPrompt,
		UserPrompt:   buildAnswerPrompt(masked.Text, q.Text),
		MaxTokens:    answerMaxTokens,
		Temperature:  answerTemperature,
		AutoRecover:  true,
		Timeout:      s.cfg.RequestTimeout,
	})
	if err != nil {
		record.Err = err.Error()
		var filterErr *llmerrors.ContentFilterError
		if errors.As(err, &filterErr) {
			s.logger.Warn("answer blocked by content filter",
				"case_id", q.CaseID, "question", q.Index)
		}
		return record
	}

	record.Answer = resp.Content
	record.Truncated = resp.Truncated
	record.Usage = resp.Usage.ToTokenUsage()
	if s.client.SupportsReasoningTrace(s.cfg.Answer.Provider) {
		record.Reasoning = resp.Reasoning
	}
	return record
}

// ScoreAnswer evaluates one answer against the judge decision. Judge
// output that fails strict parsing yields a result with ParseFailed set
// and zero scores; values are never guessed.
func (s *Stages) ScoreAnswer(ctx context.Context, masked domain.MaskedCase, q domain.Question, answer domain.AnswerRecord) domain.EvaluationResult {
	result := domain.EvaluationResult{
		CaseID:        q.CaseID,
		QuestionIndex: q.Index,
		Provider:      s.cfg.Scoring.Provider,
		Model:         s.cfg.Scoring.Model,
	}

	if answer.Failed() || answer.Answer == "" {
		result.Err = "answer unavailable, evaluation skipped"
		return result
	}

	resp, err := s.client.Complete(ctx, &transport.Request{
		Stage:        transport.StageScoring,
		Provider:     s.cfg.Scoring.Provider,
		Model:        s.cfg.Scoring.Model,
		SystemPrompt: scoringSystemPrompt,
		UserPrompt:   buildScoringPrompt(masked.Text, q.Text, answer.Answer, masked.Decision),
		MaxTokens:    scoringMaxTokens,
		Temperature:  scoringTemperature,
		AutoRecover:  true,
		Timeout:      s.cfg.RequestTimeout,
	})
	if err != nil {
		result.Err = err.Error()
		return result
	}
	result.Usage = resp.Usage.ToTokenUsage()
	if s.client.SupportsReasoningTrace(s.cfg.Scoring.Provider) {
		result.Reasoning = resp.Reasoning
	}

	dims, findings, rationale, err := scoring.ParseVerdict(resp.Content)
	if err != nil {
		result.ParseFailed = true
		result.Err = err.Error()
		s.logger.Warn("judge output unparseable",
			"case_id", q.CaseID, "question", q.Index, "error", err)
		return result
	}

	scored := s.engine.Score(q.CaseID, q.Index, dims, findings, rationale)
	scored.Provider = result.Provider
	scored.Model = result.Model
	scored.Usage = result.Usage
	scored.Reasoning = result.Reasoning
	return scored
}
