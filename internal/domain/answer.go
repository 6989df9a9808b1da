package domain

// FinishReason indicates why a provider stopped generating.
// Normalized across providers by the adapter layer.
type FinishReason string

const (
	// FinishStop indicates normal completion.
	FinishStop FinishReason = "stop"

	// FinishLength indicates the response was cut off by the token budget.
	FinishLength FinishReason = "length"

	// FinishContentFilter indicates the provider's safety filter blocked output.
	FinishContentFilter FinishReason = "content_filter"

	// FinishToolUse indicates the model attempted a tool call; the pipeline
	// never requests tools, so this is treated as an anomalous stop.
	FinishToolUse FinishReason = "tool_use"
)

// Question is one generated law-reasoning question for a case.
// Index is 1-based, unique, and contiguous within the case.
type Question struct {
	CaseID string `json:"case_id"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
}

// AnswerRecord is the outcome of the answer-generation stage for one
// (case, question, provider) tuple. Exactly one record exists per tuple
// per run: a failed generation yields a record with Err set and empty
// Answer, never a missing record.
type AnswerRecord struct {
	CaseID        string `json:"case_id"`
	QuestionIndex int    `json:"question_index"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`

	Answer    string `json:"answer"`
	Reasoning string `json:"reasoning,omitempty"` // chain-of-thought, when the provider exposes one

	// Truncated is set when the response finished with reason "length"
	// even after the one escalated max_tokens retry.
	Truncated bool `json:"truncated,omitempty"`

	// Err holds the stage failure, empty on success.
	Err string `json:"error,omitempty"`

	Usage TokenUsage `json:"usage"`
}

// Failed reports whether the answer stage errored for this record.
func (a *AnswerRecord) Failed() bool { return a.Err != "" }

// TokenUsage accumulates provider-reported token counts for cost accounting.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	Calls            int64 `json:"calls"`
}

// Add merges another usage sample into the receiver.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Calls += other.Calls
}
