package models

import "time"

// ResourceRef identifies the resource a probe targets. Types are open
// strings ("rds", "ec2", "lambda", ...); the engine never branches on them,
// only primitive mapping tables do.
type ResourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r ResourceRef) String() string {
	return r.Type + "/" + r.ID
}

// IsZero reports whether the reference carries no identity.
func (r ResourceRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// FactStatus marks how complete an observation is.
type FactStatus string

const (
	FactOK      FactStatus = "ok"
	FactPartial FactStatus = "partial"
	FactFailed  FactStatus = "failed"
)

// Fact is an immutable structured observation produced by one primitive
// run. Facts are append-only within an execution.
type Fact struct {
	Primitive  string         `json:"primitive"`
	Resource   ResourceRef    `json:"resource"`
	Values     map[string]any `json:"values,omitempty"`
	Status     FactStatus     `json:"status"`
	Error      string         `json:"error,omitempty"`
	ObservedAt time.Time      `json:"observed_at"`
}

// Usable reports whether the fact may back findings or hypothesis evidence.
func (f Fact) Usable() bool {
	return f.Status == FactOK || f.Status == FactPartial
}

// FailedFact builds the standard failure observation for a primitive that
// could not produce data.
func FailedFact(primitive string, resource ResourceRef, err error) Fact {
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	return Fact{
		Primitive:  primitive,
		Resource:   resource,
		Status:     FactFailed,
		Error:      msg,
		ObservedAt: time.Now().UTC(),
	}
}
