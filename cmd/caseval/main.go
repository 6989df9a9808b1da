// Command caseval runs legal-case evaluation pipelines: mask case
// documents, generate law-reasoning questions, answer them with a
// candidate model, and score the answers against the judge decision.
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
