package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/caseval/caseval/internal/config"
	"github.com/caseval/caseval/internal/llm"
	"github.com/caseval/caseval/internal/pipeline"
	"github.com/caseval/caseval/internal/report"
	"github.com/caseval/caseval/internal/scoring"
	"github.com/caseval/caseval/internal/shutdown"
)

var (
	runOutput          string
	runProvider        string
	runModel           string
	runQuestions       int
	runCaseWorkers     int
	runQuestionWorkers int
	runPenaltyMode     string
	runReuseQuestions  bool
	runProgressEvery   time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [cases.json]",
	Short: "Run the evaluation pipeline over a batch of cases",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "results.csv", "CSV output path")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "answer-stage provider override")
	runCmd.Flags().StringVar(&runModel, "model", "", "answer-stage model override")
	runCmd.Flags().IntVar(&runQuestions, "questions", 0, "questions per case (default from config)")
	runCmd.Flags().IntVar(&runCaseWorkers, "case-workers", 0, "concurrent cases (default from config)")
	runCmd.Flags().IntVar(&runQuestionWorkers, "question-workers", 0, "concurrent questions per case (default from config)")
	runCmd.Flags().StringVar(&runPenaltyMode, "penalty-mode", "", "penalty stacking: worst or compound")
	runCmd.Flags().BoolVar(&runReuseQuestions, "reuse-questions", false, "reuse questions carried by the case file instead of generating")
	runCmd.Flags().DurationVar(&runProgressEvery, "progress", 30*time.Second, "progress report interval (0 disables)")
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	docs, err := loadCases(args[0])
	if err != nil {
		return err
	}

	runner, client, cfg, err := buildRunner(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	// The batch runs on the base context so a shutdown signal quiesces it
	// (no new cases) without aborting in-flight calls; the signal context
	// only stops the progress reporter.
	coordinator := shutdown.NewCoordinator()
	signalCtx := coordinator.Notify(ctx)

	slog.Info("starting batch",
		"cases", len(docs),
		"answer_provider", cfg.Stages.Answer.Provider,
		"answer_model", cfg.Stages.Answer.Model)

	handle := runner.Start(ctx, docs)
	coordinator.Register(handle)

	if runProgressEvery > 0 {
		go reportProgress(signalCtx, handle)
	}

	// Wait drains in-flight cases even after a shutdown signal, so every
	// finished case still reaches the CSV and summary below.
	results, err := handle.Wait(ctx)
	if err != nil {
		return fmt.Errorf("batch aborted: %w", err)
	}

	rows := report.Flatten(results)
	out, err := os.Create(runOutput)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() { _ = out.Close() }()
	if err := report.WriteCSV(out, rows); err != nil {
		return err
	}
	slog.Info("results written", "path", runOutput, "rows", len(rows))

	if err := report.WriteSummary(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	return report.WriteCostReport(cmd.OutOrStdout(), results, nil)
}

// buildRunner assembles the full stack from configuration and flags.
func buildRunner(ctx context.Context) (*pipeline.BatchRunner, llm.Client, *config.Config, error) {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	applyOverrides(cfg)

	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := llm.NewClient(clientCfg)
	if err != nil {
		return nil, nil, nil, err
	}

	engine, err := scoring.NewEngine(cfg.Scoring)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}

	stages := pipeline.NewStages(client, engine, cfg.Stages)
	orchestrator := pipeline.NewOrchestrator(stages, cfg.Workers.Questions)
	runner := pipeline.NewBatchRunner(orchestrator, cfg.Workers.Cases)
	return runner, client, cfg, nil
}

func applyOverrides(cfg *config.Config) {
	if runProvider != "" {
		cfg.Stages.Answer.Provider = runProvider
	}
	if runModel != "" {
		cfg.Stages.Answer.Model = runModel
	}
	if runQuestions > 0 {
		cfg.Stages.NumQuestions = runQuestions
	}
	if runCaseWorkers > 0 {
		cfg.Workers.Cases = runCaseWorkers
	}
	if runQuestionWorkers > 0 {
		cfg.Workers.Questions = runQuestionWorkers
	}
	if runPenaltyMode != "" {
		cfg.Scoring.PenaltyMode = scoring.PenaltyMode(runPenaltyMode)
	}
	if runReuseQuestions {
		cfg.Stages.UseExistingQuestions = true
	}
}

func reportProgress(ctx context.Context, handle *pipeline.BatchHandle) {
	ticker := time.NewTicker(runProgressEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := handle.Progress()
			if p.Done {
				return
			}
			slog.Info("batch progress",
				"run_id", p.RunID,
				"status", p.Status,
				"completed", p.Completed,
				"total", p.Total,
				"succeeded", p.Succeeded,
				"degraded", p.Degraded,
				"failed", p.Failed,
				"elapsed", p.Elapsed.Round(time.Second),
				"eta", p.ETA.Round(time.Second))
		}
	}
}
