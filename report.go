package main

import (
	"encoding/json"
	"fmt"
	"os"
)

type OutcomeKind string

const (
	OutcomeAdded               OutcomeKind = "added"
	OutcomeSkippedNoIdentifier OutcomeKind = "skipped_no_identifier"
	OutcomeRejected            OutcomeKind = "rejected"
)

// ItemOutcome is the per-card result of one submission pass.
type ItemOutcome struct {
	URL       string      `json:"url"`
	Grade     string      `json:"grade"`
	Quantity  int         `json:"quantity"`
	ProductID string      `json:"product_id,omitempty"`
	Kind      OutcomeKind `json:"outcome"`
	Status    int         `json:"status,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

// PipelineReport is the terminal artifact of one run. Counts are derived
// from the outcome list, never accumulated across calls.
type PipelineReport struct {
	Added           int           `json:"added"`
	Failed          int           `json:"failed"`
	Total           int           `json:"total"`
	SessionVerified bool          `json:"session_verified"`
	Outcomes        []ItemOutcome `json:"items"`
}

func NewPipelineReport(outcomes []ItemOutcome) *PipelineReport {
	report := &PipelineReport{
		Total:    len(outcomes),
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		if o.Kind == OutcomeAdded {
			report.Added++
		} else {
			report.Failed++
		}
	}
	return report
}

func (r *PipelineReport) Summary() string {
	return fmt.Sprintf(">>> Cart Summary: %d/%d added, %d failed.", r.Added, r.Total, r.Failed)
}

// WriteFile writes the machine-readable report.
func (r *PipelineReport) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
