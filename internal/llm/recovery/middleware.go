// Package recovery implements the outermost resilience middleware: panic
// containment, one-shot truncation recovery, and content-filter
// normalization.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/caseval/caseval/internal/domain"
	"github.com/caseval/caseval/internal/llm/configuration"
	llmerrors "github.com/caseval/caseval/internal/llm/errors"
	"github.com/caseval/caseval/internal/llm/transport"
)

// NewPanicMiddleware converts panics from deeper layers into errors so a
// single misbehaving provider adapter cannot take down the whole batch.
func NewPanicMiddleware() transport.Middleware {
	logger := slog.Default().With("component", "recovery")
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (resp *transport.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic in request pipeline",
						"provider", req.Provider,
						"stage", req.Stage,
						"panic", r,
						"stack", string(debug.Stack()))
					resp = nil
					err = fmt.Errorf("panic during %s request to %s: %v", req.Stage, req.Provider, r)
				}
			}()
			return next.Handle(ctx, req)
		})
	}
}

// NewTruncationMiddleware resubmits length-limited responses once with a
// doubled token budget. The escalation happens at most once per call: if
// the second response is still length-limited it is returned with the
// Truncated flag set and the partial content intact.
//
// Content-filter refusals pass through with empty content and the
// ContentFiltered flag; they are never resubmitted.
func NewTruncationMiddleware(cfg configuration.RecoveryConfig) transport.Middleware {
	logger := slog.Default().With("component", "recovery")
	ceiling := cfg.MaxTokensCeiling
	if ceiling <= 0 {
		ceiling = configuration.DefaultMaxTokensCeiling
	}

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}

			if resp.FinishReason == domain.FinishContentFilter {
				resp.Content = ""
				resp.ContentFiltered = true
				return resp, nil
			}

			if resp.FinishReason != domain.FinishLength {
				return resp, nil
			}

			if !cfg.Enabled || !req.AutoRecover || req.MaxTokens >= ceiling {
				markTruncated(resp, req.Provider, req.MaxTokens)
				return resp, nil
			}

			escalated := req.Clone()
			escalated.MaxTokens = req.MaxTokens * 2
			if escalated.MaxTokens > ceiling {
				escalated.MaxTokens = ceiling
			}
			logger.Info("response truncated, retrying with larger budget",
				"provider", req.Provider,
				"stage", req.Stage,
				"max_tokens", req.MaxTokens,
				"escalated", escalated.MaxTokens)

			retryResp, retryErr := next.Handle(ctx, escalated)
			if retryErr != nil {
				// Keep the truncated original rather than losing content to
				// a failed escalation.
				logger.Warn("escalated retry failed, keeping truncated response",
					"provider", req.Provider,
					"error", retryErr)
				markTruncated(resp, req.Provider, req.MaxTokens)
				return resp, nil
			}

			retryResp.Usage.PromptTokens += resp.Usage.PromptTokens
			retryResp.Usage.CompletionTokens += resp.Usage.CompletionTokens
			retryResp.Usage.TotalTokens += resp.Usage.TotalTokens

			if retryResp.FinishReason == domain.FinishLength {
				// Escalation happens at most once; the partial content is
				// still returned to the caller with the flag set.
				markTruncated(retryResp, req.Provider, escalated.MaxTokens)
				logger.Warn("response still truncated after escalation",
					"provider", req.Provider,
					"max_tokens", escalated.MaxTokens)
			}
			return retryResp, nil
		})
	}
}

// markTruncated flags the response and attaches the truncation metadata
// so callers can report the budget the content was cut at.
func markTruncated(resp *transport.Response, provider string, maxTokens int64) {
	resp.Truncated = true
	resp.Truncation = &llmerrors.TruncationError{
		Provider:  provider,
		MaxTokens: maxTokens,
	}
}
