package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/primitives"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// ErrEmptyPlan is returned when a plan carries no steps.
var ErrEmptyPlan = errors.New("diagnostic plan has no steps")

// errNotImplemented marks steps whose primitive is catalogued but has no
// runnable implementation.
var errNotImplemented = errors.New("primitive not implemented")

// defaultStepTimeout bounds a single primitive run.
const defaultStepTimeout = 10 * time.Second

// Executor runs diagnostic plans step by step, in plan order. One
// primitive's failure never stops the remaining steps; only provider
// authentication failures and parameter contract violations abort.
type Executor struct {
	registry    *primitives.Registry
	stepTimeout time.Duration
	logger      *slog.Logger
}

// NewExecutor builds an executor over the primitive registry.
func NewExecutor(registry *primitives.Registry, stepTimeout time.Duration, logger *slog.Logger) *Executor {
	if registry == nil {
		registry = primitives.NewRegistry()
	}
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, stepTimeout: stepTimeout, logger: logger}
}

// Execute runs every plan step against the provider and seals the execution
// record. onStep, when non-nil, receives each step result as it lands.
//
// Facts appear in plan order. Cancellation between steps stops issuing
// calls but returns the partial execution collected so far together with
// ctx.Err(). A provider authentication error aborts with a sealed failed
// execution and a wrapped error so callers can distinguish "could not run"
// from a degraded-but-finished investigation.
func (e *Executor) Execute(ctx context.Context, plan models.DiagnosticPlan, rp provider.ResourceProvider, onStep func(models.StepResult)) (models.DiagnosticExecution, error) {
	execution := models.DiagnosticExecution{
		PlanID:    plan.PlanID,
		StartedAt: time.Now().UTC(),
	}
	if len(plan.Steps) == 0 {
		seal(&execution, models.ExecutionFailed)
		return execution, ErrEmptyPlan
	}

	// Runtime context starts from the plan and grows as steps succeed, so
	// later primitives can see earlier results. The plan itself is never
	// mutated.
	runtime := make(map[string]any, len(plan.Context)+len(plan.Steps))
	for k, v := range plan.Context {
		runtime[k] = v
	}

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("execution cancelled, sealing partial record",
				slog.String("plan_id", plan.PlanID),
				slog.Int("steps_completed", len(execution.Results)))
			sealInterrupted(&execution)
			return execution, err
		}

		result, err := e.runStep(ctx, step, runtime, rp)
		execution.Results = append(execution.Results, result)
		execution.Executed++
		if result.Status == models.FactFailed {
			execution.Failed++
		} else {
			execution.Succeeded++
		}
		if onStep != nil {
			onStep(result)
		}

		if err != nil {
			seal(&execution, models.ExecutionFailed)
			if provider.IsAuthError(err) {
				return execution, fmt.Errorf("provider authentication failed: %w", err)
			}
			return execution, fmt.Errorf("primitive %s: %w", step.Primitive, err)
		}

		if len(result.Facts) > 0 && result.Facts[0].Usable() {
			runtime[step.Primitive+"_result"] = result.Facts[0].Values
		}
	}

	seal(&execution, statusOf(&execution))
	e.logger.Info("plan executed",
		slog.String("plan_id", plan.PlanID),
		slog.String("status", string(execution.Status)),
		slog.Int("succeeded", execution.Succeeded),
		slog.Int("failed", execution.Failed),
		slog.Float64("duration_seconds", execution.DurationSeconds))
	return execution, nil
}

// runStep executes one primitive under the step timeout. A non-nil error
// means the execution must abort; recoverable problems come back as failed
// facts instead.
func (e *Executor) runStep(ctx context.Context, step models.PlanStep, runtime map[string]any, rp provider.ResourceProvider) (models.StepResult, error) {
	params := make(primitives.Params, len(runtime)+len(step.Params))
	for k, v := range runtime {
		params[k] = v
	}
	for k, v := range step.Params {
		params[k] = v
	}
	ref := models.ResourceRef{
		Type: stringValue(params, "resource_type"),
		ID:   stringValue(params, "resource_id"),
	}

	started := time.Now()
	probe, ok := e.registry.Lookup(step.Primitive)
	if !ok {
		err := errNotImplemented
		if !e.registry.Known(step.Primitive) {
			err = fmt.Errorf("unknown primitive %q", step.Primitive)
		}
		e.logger.Debug("step has no runnable primitive",
			slog.String("primitive", step.Primitive),
			slog.Any("error", err))
		return stepResult(step.Primitive, []models.Fact{models.FailedFact(step.Primitive, ref, err)}, started), nil
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	facts, err := probe.Run(stepCtx, ref, params, rp)
	cancel()
	if err != nil {
		failed := []models.Fact{models.FailedFact(step.Primitive, ref, err)}
		return stepResult(step.Primitive, failed, started), err
	}
	if len(facts) == 0 {
		facts = []models.Fact{models.FailedFact(step.Primitive, ref, errors.New("primitive produced no facts"))}
	}
	return stepResult(step.Primitive, facts, started), nil
}

func stepResult(primitive string, facts []models.Fact, started time.Time) models.StepResult {
	return models.StepResult{
		Primitive:       primitive,
		Facts:           facts,
		Status:          worstStatus(facts),
		DurationSeconds: time.Since(started).Seconds(),
	}
}

// worstStatus is the step status: failed beats partial beats ok.
func worstStatus(facts []models.Fact) models.FactStatus {
	status := models.FactOK
	for _, f := range facts {
		switch f.Status {
		case models.FactFailed:
			return models.FactFailed
		case models.FactPartial:
			status = models.FactPartial
		}
	}
	return status
}

// statusOf derives the sealed status from the step record: complete only
// when every step came back ok, degraded when anything failed or was
// partial but usable results exist, failed when nothing usable remains.
func statusOf(execution *models.DiagnosticExecution) models.ExecutionStatus {
	partials := 0
	for _, r := range execution.Results {
		if r.Status == models.FactPartial {
			partials++
		}
	}
	switch {
	case execution.Failed == 0 && partials == 0:
		return models.ExecutionComplete
	case execution.Succeeded > 0:
		return models.ExecutionDegraded
	default:
		return models.ExecutionFailed
	}
}

// sealInterrupted closes an execution cut short by cancellation. The record
// keeps what was collected; it is degraded when anything usable landed.
func sealInterrupted(execution *models.DiagnosticExecution) {
	if execution.Succeeded > 0 {
		seal(execution, models.ExecutionDegraded)
		return
	}
	seal(execution, models.ExecutionFailed)
}

func seal(execution *models.DiagnosticExecution, status models.ExecutionStatus) {
	execution.CompletedAt = time.Now().UTC()
	execution.DurationSeconds = execution.CompletedAt.Sub(execution.StartedAt).Seconds()
	execution.Status = status
}

func stringValue(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}
