package scoring

import (
	"fmt"
	"sort"

	"github.com/caseval/caseval/internal/domain"
)

// PenaltyMode selects how finding penalties stack.
type PenaltyMode string

const (
	// PenaltyModeWorst applies only the single worst finding's penalty.
	PenaltyModeWorst PenaltyMode = "worst"

	// PenaltyModeCompound multiplies the complements of every finding's
	// penalty, so each additional finding reduces the score further.
	PenaltyModeCompound PenaltyMode = "compound"
)

// Default penalty fractions per severity tier.
const (
	PenaltyMinor    = 0.10
	PenaltyModerate = 0.30
	PenaltyMajor    = 0.50
)

// GradeThreshold maps a minimum percentage to a grade label. Thresholds
// are evaluated highest first; the last resort label applies below all.
type GradeThreshold struct {
	MinPercent float64 `json:"min_percent" yaml:"min_percent"`
	Label      string  `json:"label" yaml:"label"`
}

// EngineConfig controls penalties and grade banding.
type EngineConfig struct {
	PenaltyMode PenaltyMode                 `json:"penalty_mode" yaml:"penalty_mode"`
	Penalties   map[domain.Severity]float64 `json:"penalties" yaml:"penalties"`
	Grades      []GradeThreshold            `json:"grades" yaml:"grades"`

	// FallbackGrade labels scores below every threshold.
	FallbackGrade string `json:"fallback_grade" yaml:"fallback_grade"`
}

// DefaultEngineConfig returns the standard rubric configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PenaltyMode: PenaltyModeWorst,
		Penalties: map[domain.Severity]float64{
			domain.SeverityMinor:    PenaltyMinor,
			domain.SeverityModerate: PenaltyModerate,
			domain.SeverityMajor:    PenaltyMajor,
		},
		Grades: []GradeThreshold{
			{MinPercent: 90, Label: "excellent"},
			{MinPercent: 75, Label: "good"},
			{MinPercent: 60, Label: "fair"},
		},
		FallbackGrade: "poor",
	}
}

// maxRawTotal is the rubric ceiling: five dimensions at four points each.
const maxRawTotal = 5 * domain.DimensionMax

// Engine converts parsed verdicts into final evaluation results. Safe for
// concurrent use; all state is read-only after construction.
type Engine struct {
	cfg EngineConfig
}

// NewEngine validates the configuration and returns the engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	switch cfg.PenaltyMode {
	case PenaltyModeWorst, PenaltyModeCompound:
	case "":
		cfg.PenaltyMode = PenaltyModeWorst
	default:
		return nil, fmt.Errorf("unknown penalty mode %q", cfg.PenaltyMode)
	}
	if len(cfg.Penalties) == 0 {
		cfg.Penalties = DefaultEngineConfig().Penalties
	}
	for sev, p := range cfg.Penalties {
		if !sev.Valid() {
			return nil, fmt.Errorf("penalty for unknown severity %q", sev)
		}
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("penalty for %s out of [0,1]: %v", sev, p)
		}
	}
	if len(cfg.Grades) == 0 {
		def := DefaultEngineConfig()
		cfg.Grades = def.Grades
		cfg.FallbackGrade = def.FallbackGrade
	}
	if cfg.FallbackGrade == "" {
		cfg.FallbackGrade = "poor"
	}
	// Highest threshold first so banding is a single scan.
	sort.Slice(cfg.Grades, func(i, j int) bool {
		return cfg.Grades[i].MinPercent > cfg.Grades[j].MinPercent
	})
	return &Engine{cfg: cfg}, nil
}

// Score produces the final evaluation for one answer from parsed judge
// output. Deterministic: identical inputs always yield identical results.
func (e *Engine) Score(caseID string, questionIndex int, dims []domain.DimensionScore, findings []domain.ErrorFinding, rationale string) domain.EvaluationResult {
	raw := 0.0
	for _, d := range dims {
		raw += d.Value
	}

	penalized := raw * e.penaltyFactor(findings)
	if penalized < 0 {
		penalized = 0
	}

	percentage := penalized / maxRawTotal * 100

	return domain.EvaluationResult{
		CaseID:         caseID,
		QuestionIndex:  questionIndex,
		Dimensions:     dims,
		RawTotal:       raw,
		PenalizedTotal: penalized,
		Percentage:     percentage,
		Grade:          e.grade(percentage),
		Findings:       findings,
		Rationale:      rationale,
	}
}

// penaltyFactor returns the multiplier in [0,1] derived from findings.
func (e *Engine) penaltyFactor(findings []domain.ErrorFinding) float64 {
	if len(findings) == 0 {
		return 1
	}

	switch e.cfg.PenaltyMode {
	case PenaltyModeCompound:
		factor := 1.0
		for _, f := range findings {
			factor *= 1 - e.cfg.Penalties[f.Severity]
		}
		return factor
	default:
		worst := findings[0]
		for _, f := range findings[1:] {
			if f.Severity.Rank() > worst.Severity.Rank() {
				worst = f
			}
		}
		return 1 - e.cfg.Penalties[worst.Severity]
	}
}

// grade bands a percentage into its label.
func (e *Engine) grade(percentage float64) string {
	for _, g := range e.cfg.Grades {
		if percentage >= g.MinPercent {
			return g.Label
		}
	}
	return e.cfg.FallbackGrade
}
