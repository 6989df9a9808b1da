package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caseval/caseval/internal/domain"
	"github.com/caseval/caseval/internal/report"
	"github.com/caseval/caseval/internal/shutdown"
)

var (
	caseID   string
	caseJSON bool
)

var caseCmd = &cobra.Command{
	Use:   "case [cases.json]",
	Short: "Run the pipeline for a single case",
	Args:  cobra.ExactArgs(1),
	RunE:  runSingleCase,
}

func init() {
	caseCmd.Flags().StringVar(&caseID, "id", "", "case_id to run (default: first case in file)")
	caseCmd.Flags().BoolVar(&caseJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(caseCmd)
}

func runSingleCase(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	docs, err := loadCases(args[0])
	if err != nil {
		return err
	}
	doc, err := selectCase(docs, caseID)
	if err != nil {
		return err
	}

	runner, client, _, err := buildRunner(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	// Signals quiesce via the coordinator; the case itself runs on the
	// base context so an in-flight call is never aborted mid-request.
	coordinator := shutdown.NewCoordinator()
	coordinator.Notify(ctx)

	handle := runner.Start(ctx, []domain.CaseDocument{doc})
	coordinator.Register(handle)
	results, err := handle.Wait(ctx)
	if err != nil {
		return fmt.Errorf("case run aborted: %w", err)
	}

	if caseJSON {
		data, err := json.MarshalIndent(results[0], "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	return report.WriteSummary(cmd.OutOrStdout(), results)
}

func selectCase(docs []domain.CaseDocument, id string) (domain.CaseDocument, error) {
	if id == "" {
		return docs[0], nil
	}
	for _, doc := range docs {
		if doc.CaseID == id {
			return doc, nil
		}
	}
	return domain.CaseDocument{}, fmt.Errorf("%w: %s", domain.ErrCaseNotFound, id)
}
