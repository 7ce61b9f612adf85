package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// Observer receives pipeline milestones as they happen, for streaming
// consumers. Any field may be nil.
type Observer struct {
	OnClassification func(models.IncidentClassification)
	OnPlan           func(models.DiagnosticPlan)
	OnStep           func(models.StepResult)
}

// Pipeline wires classifier, planner, executor and interpreter into the
// investigation flow: classify, plan, execute, interpret. One Pipeline
// serves concurrent investigations; it holds no per-request state.
type Pipeline struct {
	classifier  *Classifier
	planner     *Planner
	executor    *Executor
	interpreter *Interpreter
	provider    provider.ResourceProvider
	logger      *slog.Logger
}

// NewPipeline assembles the investigation pipeline over the given provider.
func NewPipeline(classifier *Classifier, planner *Planner, executor *Executor, interpreter *Interpreter, rp provider.ResourceProvider, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		classifier:  classifier,
		planner:     planner,
		executor:    executor,
		interpreter: interpreter,
		provider:    rp,
		logger:      logger,
	}
}

// Classify runs only the classification stage. The classify API endpoint
// uses this for cheap previews without touching the provider.
func (p *Pipeline) Classify(ctx context.Context, req models.DiagnoseRequest) models.IncidentClassification {
	return p.classifier.Classify(ctx, req.Query, req.Context)
}

// Investigate runs the full flow for one request and returns the report.
// Classification and interpretation never fail; planner errors (unknown
// class) and fatal execution errors (provider auth) return alongside the
// partial report assembled so far, so callers can still show what happened
// before the abort.
func (p *Pipeline) Investigate(ctx context.Context, req models.DiagnoseRequest) (models.DiagnosticReport, error) {
	return p.InvestigateObserved(ctx, req, nil)
}

// InvestigateObserved is Investigate with per-milestone callbacks.
func (p *Pipeline) InvestigateObserved(ctx context.Context, req models.DiagnoseRequest, obs *Observer) (models.DiagnosticReport, error) {
	report := models.DiagnosticReport{
		Query:     req.Query,
		StartedAt: time.Now().UTC(),
	}

	classification := p.classifier.Classify(ctx, req.Query, req.Context)
	report.Classification = classification
	if obs != nil && obs.OnClassification != nil {
		obs.OnClassification(classification)
	}
	p.logger.Info("incident classified",
		slog.String("class", string(classification.Primary)),
		slog.Float64("confidence", classification.Confidence),
		slog.String("source", string(classification.Source)))

	plan, err := p.planner.Plan(classification)
	if err != nil {
		report.CompletedAt = time.Now().UTC()
		return report, fmt.Errorf("plan investigation: %w", err)
	}
	report.Plan = plan
	if obs != nil && obs.OnPlan != nil {
		obs.OnPlan(plan)
	}

	var onStep func(models.StepResult)
	if obs != nil {
		onStep = obs.OnStep
	}
	execution, err := p.executor.Execute(ctx, plan, p.provider, onStep)
	report.Execution = &execution
	if err != nil {
		report.CompletedAt = time.Now().UTC()
		return report, fmt.Errorf("execute plan %s: %w", plan.PlanID, err)
	}

	interpretation := p.interpreter.Interpret(ctx, &execution, classification.Primary)
	report.Interpretation = &interpretation
	report.ReportID = interpretation.ReportID
	report.CompletedAt = time.Now().UTC()
	return report, nil
}
