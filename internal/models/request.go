package models

import "time"

// DiagnoseRequest is the investigation entry-point input: a free-text
// incident description plus optional structured hints that pre-bind
// classification context.
type DiagnoseRequest struct {
	Query   string            `json:"query"`
	Context *ExtractedContext `json:"context,omitempty"`
}

// DiagnosticReport bundles the full investigation record. This is the shape
// handed to the audit sink and returned by the diagnose API.
type DiagnosticReport struct {
	ReportID       string                    `json:"report_id"`
	Query          string                    `json:"query"`
	Classification IncidentClassification    `json:"classification"`
	Plan           DiagnosticPlan            `json:"plan"`
	Execution      *DiagnosticExecution      `json:"execution,omitempty"`
	Interpretation *DiagnosticInterpretation `json:"interpretation,omitempty"`
	StartedAt      time.Time                 `json:"started_at"`
	CompletedAt    time.Time                 `json:"completed_at"`
}
