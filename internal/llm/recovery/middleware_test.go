package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseval/caseval/internal/domain"
	"github.com/caseval/caseval/internal/llm/configuration"
	"github.com/caseval/caseval/internal/llm/transport"
)

func recoveryConfig() configuration.RecoveryConfig {
	return configuration.RecoveryConfig{Enabled: true, MaxTokensCeiling: 16000}
}

func TestTruncation_ResubmitsOnceWithDoubledBudget(t *testing.T) {
	mw := NewTruncationMiddleware(recoveryConfig())

	var budgets []int64
	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		budgets = append(budgets, req.MaxTokens)
		if len(budgets) == 1 {
			return &transport.Response{
				Content:      "partial",
				FinishReason: domain.FinishLength,
				Usage:        transport.NormalizedUsage{PromptTokens: 100, CompletionTokens: 2000, TotalTokens: 2100},
			}, nil
		}
		return &transport.Response{
			Content:      "complete answer",
			FinishReason: domain.FinishStop,
			Usage:        transport.NormalizedUsage{PromptTokens: 100, CompletionTokens: 3000, TotalTokens: 3100},
		}, nil
	}))

	resp, err := handler.Handle(context.Background(), &transport.Request{
		MaxTokens:   2000,
		AutoRecover: true,
	})
	require.NoError(t, err)

	// Exactly two upstream calls: original then doubled.
	assert.Equal(t, []int64{2000, 4000}, budgets)
	assert.Equal(t, "complete answer", resp.Content)
	assert.False(t, resp.Truncated)
	assert.Nil(t, resp.Truncation)
	// Usage accumulates across both calls.
	assert.Equal(t, int64(5200), resp.Usage.TotalTokens)
}

func TestTruncation_EscalationCappedAtCeiling(t *testing.T) {
	mw := NewTruncationMiddleware(recoveryConfig())

	var budgets []int64
	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		budgets = append(budgets, req.MaxTokens)
		return &transport.Response{Content: "x", FinishReason: domain.FinishLength}, nil
	}))

	resp, err := handler.Handle(context.Background(), &transport.Request{
		MaxTokens:   12000,
		AutoRecover: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{12000, 16000}, budgets)
	assert.True(t, resp.Truncated)
}

func TestTruncation_StillTruncatedAfterEscalation(t *testing.T) {
	mw := NewTruncationMiddleware(recoveryConfig())

	calls := 0
	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls++
		return &transport.Response{Content: "partial", FinishReason: domain.FinishLength}, nil
	}))

	resp, err := handler.Handle(context.Background(), &transport.Request{
		Provider:    "deepseek",
		MaxTokens:   1000,
		AutoRecover: true,
	})
	require.NoError(t, err)
	// Escalation happens at most once.
	assert.Equal(t, 2, calls)
	assert.True(t, resp.Truncated)
	assert.Equal(t, "partial", resp.Content)

	// The truncation metadata names the budget the content was cut at.
	require.NotNil(t, resp.Truncation)
	assert.Equal(t, "deepseek", resp.Truncation.Provider)
	assert.Equal(t, int64(2000), resp.Truncation.MaxTokens)
}

func TestTruncation_NoRecoveryWithoutAutoRecover(t *testing.T) {
	mw := NewTruncationMiddleware(recoveryConfig())

	calls := 0
	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls++
		return &transport.Response{Content: "partial", FinishReason: domain.FinishLength}, nil
	}))

	resp, err := handler.Handle(context.Background(), &transport.Request{MaxTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, resp.Truncated)
	require.NotNil(t, resp.Truncation)
	assert.Equal(t, int64(1000), resp.Truncation.MaxTokens)
}

func TestTruncation_FailedEscalationKeepsPartial(t *testing.T) {
	mw := NewTruncationMiddleware(recoveryConfig())

	calls := 0
	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls++
		if calls == 1 {
			return &transport.Response{Content: "partial", FinishReason: domain.FinishLength}, nil
		}
		return nil, context.DeadlineExceeded
	}))

	resp, err := handler.Handle(context.Background(), &transport.Request{
		MaxTokens:   1000,
		AutoRecover: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "partial", resp.Content)
	assert.True(t, resp.Truncated)
}

func TestTruncation_ContentFilterNeverResubmitted(t *testing.T) {
	mw := NewTruncationMiddleware(recoveryConfig())

	calls := 0
	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls++
		return &transport.Response{Content: "refusal text", FinishReason: domain.FinishContentFilter}, nil
	}))

	resp, err := handler.Handle(context.Background(), &transport.Request{
		MaxTokens:   1000,
		AutoRecover: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, resp.ContentFiltered)
	// Filtered responses surface empty content, never partial refusals.
	assert.Empty(t, resp.Content)
}

func TestTruncation_RequestNotMutated(t *testing.T) {
	mw := NewTruncationMiddleware(recoveryConfig())

	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{Content: "x", FinishReason: domain.FinishLength}, nil
	}))

	req := &transport.Request{MaxTokens: 2000, AutoRecover: true}
	_, err := handler.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), req.MaxTokens)
}

func TestPanicMiddleware_ConvertsPanicToError(t *testing.T) {
	mw := NewPanicMiddleware()

	handler := mw(transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		panic("adapter bug")
	}))

	resp, err := handler.Handle(context.Background(), &transport.Request{
		Stage:    transport.StageAnswer,
		Provider: "deepseek",
	})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "adapter bug")
}
