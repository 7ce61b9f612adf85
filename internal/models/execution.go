package models

import "time"

// ExecutionStatus summarises how a plan execution finished.
type ExecutionStatus string

const (
	// ExecutionComplete means every step produced usable facts.
	ExecutionComplete ExecutionStatus = "complete"
	// ExecutionDegraded means some steps failed or returned partial data but
	// the execution itself finished. Interpretation lowers confidence, it
	// does not discard results.
	ExecutionDegraded ExecutionStatus = "degraded"
	// ExecutionFailed means nothing succeeded or the execution aborted on a
	// provider-global failure.
	ExecutionFailed ExecutionStatus = "failed"
)

// StepResult records one plan step: the facts it produced plus execution
// metadata. Status is the worst status among the step's facts.
type StepResult struct {
	Primitive       string     `json:"primitive"`
	Facts           []Fact     `json:"facts"`
	Status          FactStatus `json:"status"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// DiagnosticExecution owns the ordered fact record of one plan run. Created
// by the executor, sealed at completion or abort, immutable afterwards and
// safe to share for interpretation or display.
type DiagnosticExecution struct {
	PlanID          string          `json:"plan_id"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     time.Time       `json:"completed_at"`
	DurationSeconds float64         `json:"duration_seconds"`
	Results         []StepResult    `json:"results"`
	Executed        int             `json:"primitives_executed"`
	Succeeded       int             `json:"primitives_succeeded"`
	Failed          int             `json:"primitives_failed"`
	Status          ExecutionStatus `json:"status"`
}

// Facts returns the flattened fact list in plan order. Evidence indexes
// refer to positions in this list.
func (e *DiagnosticExecution) Facts() []Fact {
	var facts []Fact
	for _, r := range e.Results {
		facts = append(facts, r.Facts...)
	}
	return facts
}

// FactAt returns the fact at flattened index i and whether the index is in
// range.
func (e *DiagnosticExecution) FactAt(i int) (Fact, bool) {
	if i < 0 {
		return Fact{}, false
	}
	for _, r := range e.Results {
		if i < len(r.Facts) {
			return r.Facts[i], true
		}
		i -= len(r.Facts)
	}
	return Fact{}, false
}
