package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caseval/caseval/internal/domain"
)

// loadCases reads the case documents file: a JSON array of objects with
// case_id, title, text, and decision fields.
func loadCases(path string) ([]domain.CaseDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cases file: %w", err)
	}

	var docs []domain.CaseDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse cases file %s: %w", path, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("cases file %s contains no cases", path)
	}

	seen := make(map[string]bool, len(docs))
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return nil, fmt.Errorf("case %d (%s): %w", i, docs[i].CaseID, err)
		}
		if seen[docs[i].CaseID] {
			return nil, fmt.Errorf("duplicate case_id %s", docs[i].CaseID)
		}
		seen[docs[i].CaseID] = true
	}
	return docs, nil
}
