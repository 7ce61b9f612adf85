package models

import "time"

// Evidence cites one fact by its index in the owning execution's ordered
// fact list. Hypotheses may only cite facts from their own execution.
type Evidence struct {
	FactIndex int    `json:"fact_index"`
	Primitive string `json:"primitive"`
	Detail    string `json:"detail,omitempty"`
}

// Hypothesis is a confidence-scored causal explanation backed by cited
// facts. Type is a stable key into the action table ("scaling_exhaustion",
// "change_induced_saturation", ...).
type Hypothesis struct {
	Type       string     `json:"type"`
	Cause      string     `json:"cause"`
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`
}

// RecommendedAction is advisory only; the engine never executes commands.
// Priority 1 is the most urgent.
type RecommendedAction struct {
	Action   string `json:"action"`
	Priority int    `json:"priority"`
	Command  string `json:"command,omitempty"`
}

// DiagnosticInterpretation is the top-level investigation output: literal
// findings, ranked hypotheses and prioritised actions. Produced once,
// immutable.
type DiagnosticInterpretation struct {
	ReportID        string              `json:"report_id"`
	IncidentClass   IncidentClass       `json:"incident_class"`
	KeyFindings     []string            `json:"key_findings"`
	Hypotheses      []Hypothesis        `json:"hypotheses"`
	Actions         []RecommendedAction `json:"recommended_actions"`
	Confidence      float64             `json:"confidence"`
	RequiresReview  bool                `json:"requires_human_review"`
	ExecutionStatus ExecutionStatus     `json:"execution_status"`
	CreatedAt       time.Time           `json:"created_at"`
}
