// Package domain defines the core data model for legal-case evaluation:
// case documents, masked variants, generated questions, model answers, and
// judge evaluations. Types are plain data with no behavior beyond small
// invariant helpers so they can flow freely between pipeline stages and
// report sinks without package cycles.
package domain

import "errors"

// Case-level errors returned by document sources and the orchestrator.
var (
	// ErrCaseNotFound indicates the document source has no case for the ID.
	ErrCaseNotFound = errors.New("case not found")

	// ErrEmptyCaseText indicates a case document with no body text.
	ErrEmptyCaseText = errors.New("case has no text content")
)

// CaseDocument is one legal case as handed over by the document source.
// Immutable once loaded; identified uniquely by CaseID within a run.
type CaseDocument struct {
	CaseID   string `json:"case_id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Decision string `json:"decision"` // authoritative judge decision

	// Questions optionally carries pre-generated questions for this case.
	// Only used when question reuse is enabled for the run.
	Questions []string `json:"questions,omitempty"`
}

// Validate checks the minimal invariants a document must satisfy before
// it can enter the pipeline.
func (c *CaseDocument) Validate() error {
	if c.CaseID == "" {
		return ErrCaseNotFound
	}
	if c.Text == "" {
		return ErrEmptyCaseText
	}
	return nil
}

// MaskedCase is the output of the masking stage: the same case with
// identifying names, places, and dates replaced by placeholders.
// Monetary figures are preserved verbatim; the masking prompt requires it.
//
// Masked text is model-generated and therefore not deterministic across
// runs; it is never memoized.
type MaskedCase struct {
	CaseID   string `json:"case_id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Decision string `json:"decision"`

	// Unmasked is set when masking failed and the orchestrator fell back
	// to the original text. Rows produced from such a case carry the flag
	// so downstream consumers can exclude them from privacy-sensitive use.
	Unmasked bool `json:"unmasked,omitempty"`
}
