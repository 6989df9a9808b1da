package domain

// Severity tiers a judge-flagged defect in an answer. Each tier carries a
// fixed penalty fraction applied by the scoring engine.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
)

// Rank orders severities for worst-finding selection; higher is worse.
// Unknown severities rank below minor so they can never drive a penalty.
func (s Severity) Rank() int {
	switch s {
	case SeverityMajor:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the three known tiers.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// ErrorFinding is one judge-flagged defect in an answer.
type ErrorFinding struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Dimension names one rubric axis. The rubric is fixed at five dimensions
// per evaluation; names follow the legal-reasoning rubric of the judge
// prompt.
type Dimension string

const (
	// DimNormativeBasis scores relevance of the cited statutory and
	// normative grounds.
	DimNormativeBasis Dimension = "normative_basis"

	// DimSubsumption scores alignment of the fact-to-norm subsumption chain.
	DimSubsumption Dimension = "subsumption_alignment"

	// DimValueEmpathy scores value balancing and empathy alignment with
	// the court's reasoning.
	DimValueEmpathy Dimension = "value_empathy"

	// DimFactCoverage scores coverage of the key facts and disputed issues.
	DimFactCoverage Dimension = "fact_coverage"

	// DimRemedyConsistency scores consistency of the conclusion and remedy
	// with the judge decision.
	DimRemedyConsistency Dimension = "remedy_consistency"
)

// RubricDimensions returns the five rubric axes in canonical order.
// Returns a fresh slice to prevent mutation.
func RubricDimensions() []Dimension {
	return []Dimension{
		DimNormativeBasis,
		DimSubsumption,
		DimValueEmpathy,
		DimFactCoverage,
		DimRemedyConsistency,
	}
}

// DimensionMax is the maximum value of a single dimension score.
const DimensionMax = 4.0

// DimensionScore holds a single rubric axis score in [0, DimensionMax].
type DimensionScore struct {
	Name  Dimension `json:"name"`
	Value float64   `json:"value"`
}

// EvaluationResult is the judge's verdict for one answer. Owned 1:1 by an
// AnswerRecord and immutable once written.
type EvaluationResult struct {
	CaseID        string `json:"case_id"`
	QuestionIndex int    `json:"question_index"`

	// Provider and Model name the judge that produced this verdict.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	Dimensions     []DimensionScore `json:"dimensions"`
	RawTotal       float64          `json:"raw_total"`
	PenalizedTotal float64          `json:"penalized_total"`
	Percentage     float64          `json:"percentage"`
	Grade          string           `json:"grade"`

	Findings  []ErrorFinding `json:"findings,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"` // judge chain-of-thought, when available

	// ParseFailed is set when the judge output could not be parsed into
	// the structured rubric; all score fields are zero in that case.
	// Scores are never invented for unparseable output.
	ParseFailed bool `json:"parse_failed,omitempty"`

	// Err holds the evaluation stage failure, empty on success.
	Err string `json:"error,omitempty"`

	Usage TokenUsage `json:"usage"`
}

// CaseState tracks a case through the pipeline state machine.
type CaseState string

const (
	CasePending    CaseState = "pending"
	CaseMasking    CaseState = "masking"
	CaseQuestions  CaseState = "question_generation"
	CaseAnswering  CaseState = "answering_and_scoring"
	CaseAggregated CaseState = "aggregating"

	// CaseDone means every question row completed without error.
	CaseDone CaseState = "done"

	// CaseDegraded means some but not all question rows errored; the case
	// still reports one row per question with errors marked explicitly.
	CaseDegraded CaseState = "degraded"

	// CaseFailed means a case-wide stage (document fetch, masking after
	// fallback, or question generation) failed and no question rows exist.
	CaseFailed CaseState = "failed"
)

// QuestionResult pairs an answer with its evaluation for one question slot.
type QuestionResult struct {
	Question   Question         `json:"question"`
	Answer     AnswerRecord     `json:"answer"`
	Evaluation EvaluationResult `json:"evaluation"`
}

// Failed reports whether either stage of this slot errored.
func (q *QuestionResult) Failed() bool {
	return q.Answer.Failed() || q.Evaluation.Err != ""
}

// CaseResult is the complete outcome of running one case through the
// four-stage pipeline. Questions are ordered by index regardless of
// completion order.
type CaseResult struct {
	CaseID string    `json:"case_id"`
	Title  string    `json:"title"`
	State  CaseState `json:"state"`

	Masked    MaskedCase       `json:"masked"`
	Questions []QuestionResult `json:"questions"`

	// MaskingAPI and QuestionAPI record which provider/model served the
	// case-wide stages. QuestionAPI is "existing" when pre-generated
	// questions were reused instead of a model call.
	MaskingAPI  string `json:"masking_api,omitempty"`
	QuestionAPI string `json:"question_api,omitempty"`

	// Err is set only when State is CaseFailed.
	Err string `json:"error,omitempty"`

	Usage TokenUsage `json:"usage"`
}
