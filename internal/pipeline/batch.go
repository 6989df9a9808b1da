package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/caseval/caseval/internal/domain"
)

// DefaultCaseWorkers bounds concurrently running cases in a batch.
const DefaultCaseWorkers = 3

// Batch status values reported by Progress.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed" // every case failed
)

// Progress is a point-in-time snapshot of a running batch.
type Progress struct {
	RunID     string        `json:"run_id"`
	Status    string        `json:"status"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"` // cases finished in any terminal state
	Succeeded int           `json:"succeeded"`
	Degraded  int           `json:"degraded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"` // never started because the batch was quiesced
	Elapsed   time.Duration `json:"elapsed"`
	ETA       time.Duration `json:"eta"` // zero until at least one case finishes
	Done      bool          `json:"done"`
}

// BatchRunner runs many cases through the orchestrator with a bounded
// case-level worker pool. Each case independently fans out question work,
// giving the two-level concurrency of the pipeline.
type BatchRunner struct {
	orchestrator *Orchestrator
	caseWorkers  int
	logger       *slog.Logger
}

// NewBatchRunner creates the batch driver.
func NewBatchRunner(orchestrator *Orchestrator, caseWorkers int) *BatchRunner {
	if caseWorkers <= 0 {
		caseWorkers = DefaultCaseWorkers
	}
	return &BatchRunner{
		orchestrator: orchestrator,
		caseWorkers:  caseWorkers,
		logger:       slog.Default().With("component", "batch"),
	}
}

// BatchHandle tracks an in-flight batch. Progress may be polled from any
// goroutine while the batch runs; Wait blocks until completion.
type BatchHandle struct {
	runID   string
	total   int
	started time.Time

	completed atomic.Int64
	succeeded atomic.Int64
	degraded  atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	results  []domain.CaseResult
	done     chan struct{}
	quiesce  chan struct{}
	stopOnce sync.Once
}

// Start launches the batch and returns immediately with a handle. Results
// keep input order regardless of completion order.
func (r *BatchRunner) Start(ctx context.Context, docs []domain.CaseDocument) *BatchHandle {
	h := &BatchHandle{
		runID:   uuid.NewString(),
		total:   len(docs),
		started: time.Now(),
		results: make([]domain.CaseResult, len(docs)),
		done:    make(chan struct{}),
		quiesce: make(chan struct{}),
	}

	r.logger.Info("batch started",
		"run_id", h.runID,
		"cases", len(docs),
		"case_workers", r.caseWorkers)

	go func() {
		defer close(h.done)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.caseWorkers)
		for i, doc := range docs {
			g.Go(func() error {
				// A quiesced batch admits no new cases; in-flight cases
				// keep their contexts and drain naturally.
				select {
				case <-h.quiesce:
					h.skipped.Add(1)
					return nil
				default:
				}
				result := r.orchestrator.RunCase(gctx, doc)
				h.results[i] = result
				h.completed.Add(1)
				switch result.State {
				case domain.CaseDone:
					h.succeeded.Add(1)
				case domain.CaseDegraded:
					h.degraded.Add(1)
				case domain.CaseFailed:
					h.failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		r.logger.Info("batch finished",
			"run_id", h.runID,
			"cases", h.total,
			"degraded", h.degraded.Load(),
			"failed", h.failed.Load(),
			"skipped", h.skipped.Load(),
			"elapsed", time.Since(h.started))
	}()

	return h
}

// Run is the blocking convenience wrapper around Start and Wait.
func (r *BatchRunner) Run(ctx context.Context, docs []domain.CaseDocument) ([]domain.CaseResult, error) {
	return r.Start(ctx, docs).Wait(ctx)
}

// Wait blocks until the batch finishes or ctx is cancelled.
func (h *BatchHandle) Wait(ctx context.Context) ([]domain.CaseResult, error) {
	select {
	case <-h.done:
		return h.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunID returns the unique identifier of this batch run.
func (h *BatchHandle) RunID() string { return h.runID }

// Stop quiesces the batch: cases not yet started are skipped, while
// in-flight cases keep their request contexts and finish or error
// naturally. Wait still returns once the drain completes, with results
// for everything that finished. Safe to call more than once.
func (h *BatchHandle) Stop() {
	h.stopOnce.Do(func() { close(h.quiesce) })
}

// Progress returns a snapshot of batch state with a naive ETA projected
// from the average per-case duration so far.
func (h *BatchHandle) Progress() Progress {
	completed := int(h.completed.Load())
	elapsed := time.Since(h.started)

	p := Progress{
		RunID:     h.runID,
		Status:    StatusRunning,
		Total:     h.total,
		Completed: completed,
		Succeeded: int(h.succeeded.Load()),
		Degraded:  int(h.degraded.Load()),
		Failed:    int(h.failed.Load()),
		Skipped:   int(h.skipped.Load()),
		Elapsed:   elapsed,
	}

	select {
	case <-h.done:
		p.Done = true
		p.Status = StatusCompleted
		if p.Total > 0 && p.Failed == p.Total {
			p.Status = StatusFailed
		}
	default:
		if completed > 0 && completed < h.total {
			perCase := elapsed / time.Duration(completed)
			p.ETA = perCase * time.Duration(h.total-completed)
		}
	}
	return p
}
