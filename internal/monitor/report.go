package monitor

import (
	"errors"
	"fmt"

	"github.com/smukkama/home-monitor/internal/normalizer"
)

// ReportKind classifies a non-fatal problem found during a cycle.
type ReportKind string

const (
	ReportConfiguration    ReportKind = "configuration"
	ReportInputValidation  ReportKind = "input_validation"
	ReportStatePersistence ReportKind = "state_persistence"
	ReportDelivery         ReportKind = "delivery"
	ReportSource           ReportKind = "source"
)

// Report is a problem surfaced to the caller. None of them stop a cycle.
type Report struct {
	Kind     ReportKind
	DeviceID string
	Err      error
}

func (r Report) Error() string {
	if r.DeviceID != "" {
		return fmt.Sprintf("%s: %s: %v", r.Kind, r.DeviceID, r.Err)
	}
	return fmt.Sprintf("%s: %v", r.Kind, r.Err)
}

func (r Report) Unwrap() error { return r.Err }

// classifySourceProblem maps a reading source problem to a report.
func classifySourceProblem(err error) Report {
	var valErr *normalizer.ValidationError
	if errors.As(err, &valErr) {
		return Report{Kind: ReportInputValidation, DeviceID: valErr.DeviceID, Err: err}
	}
	var fetchErr *normalizer.FetchError
	if errors.As(err, &fetchErr) {
		return Report{Kind: ReportSource, DeviceID: fetchErr.DeviceID, Err: err}
	}
	return Report{Kind: ReportSource, Err: err}
}

// CountReports tallies reports by kind.
func CountReports(reports []Report) map[ReportKind]int {
	out := make(map[ReportKind]int)
	for _, r := range reports {
		out[r.Kind]++
	}
	return out
}
