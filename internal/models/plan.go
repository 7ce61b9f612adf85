package models

import "time"

// PlanStep binds one primitive name to the parameters it will run with.
type PlanStep struct {
	Primitive string         `json:"primitive"`
	Params    map[string]any `json:"params,omitempty"`
}

// DiagnosticPlan is an ordered probe sequence derived deterministically from
// a classification. Immutable once built; re-planning builds a new plan.
type DiagnosticPlan struct {
	PlanID           string         `json:"plan_id"`
	IncidentClass    IncidentClass  `json:"incident_class"`
	Steps            []PlanStep     `json:"steps"`
	Context          map[string]any `json:"context,omitempty"`
	EstimatedSeconds int            `json:"estimated_duration_seconds"`
	CreatedAt        time.Time      `json:"created_at"`
}

// PrimitiveNames returns the step names in plan order.
func (p *DiagnosticPlan) PrimitiveNames() []string {
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Primitive)
	}
	return names
}
