// Package services fronts the engine for transport handlers: request
// validation, latency tracking, Prometheus outcomes and the audit trail live
// here so the engine itself stays side-effect free.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/faultlinehq/faultline-engine/internal/audit"
	"github.com/faultlinehq/faultline-engine/internal/engine"
	"github.com/faultlinehq/faultline-engine/internal/llm"
	"github.com/faultlinehq/faultline-engine/internal/metrics"
	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/utils"
)

var (
	// ErrInvalidRequest marks requests rejected before any work ran.
	ErrInvalidRequest = errors.New("invalid diagnose request")
	// ErrCouldNotRun marks investigations that aborted without a usable
	// report: provider auth failures, planner errors, missing wiring. Distinct
	// from degraded reports, which return normally.
	ErrCouldNotRun = errors.New("investigation could not run")
)

const maxQueryBytes = 4096

// DiagnosisService is the investigation entry point shared by the HTTP and
// WebSocket handlers.
type DiagnosisService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	trail     *audit.Sink
	modelTier llm.CostTier
	latencies *utils.LatencyTracker
}

// NewDiagnosisService constructs the service facade. A nil trail disables
// audit writes; modelTier annotates audit entries when a collaborator is
// configured.
func NewDiagnosisService(logger *slog.Logger, pipeline *engine.Pipeline, trail *audit.Sink, modelTier llm.CostTier) *DiagnosisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiagnosisService{
		logger:    logger,
		pipeline:  pipeline,
		trail:     trail,
		modelTier: modelTier,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Investigate runs one full investigation.
func (s *DiagnosisService) Investigate(ctx context.Context, req models.DiagnoseRequest) (models.DiagnosticReport, error) {
	return s.InvestigateObserved(ctx, req, nil)
}

// InvestigateObserved is Investigate with per-milestone callbacks for
// streaming consumers. The audit trail records milestones either way.
func (s *DiagnosisService) InvestigateObserved(ctx context.Context, req models.DiagnoseRequest, obs *engine.Observer) (models.DiagnosticReport, error) {
	if err := validateRequest(req); err != nil {
		return models.DiagnosticReport{}, err
	}
	if s.pipeline == nil {
		return models.DiagnosticReport{}, fmt.Errorf("%w: pipeline not configured", ErrCouldNotRun)
	}

	correlationID := uuid.NewString()
	received := audit.NewEvent(audit.EventReceived).
		WithCorrelationID(correlationID).
		WithMetadata("query", truncate(req.Query, 200))
	if req.Context != nil {
		received.WithResource(req.Context.ResourceID, req.Context.ResourceType)
	}
	s.record(received)

	start := time.Now()
	report, err := s.pipeline.InvestigateObserved(ctx, req, s.milestones(correlationID, obs))
	duration := time.Since(start)

	if err != nil {
		metrics.ObserveInvestigation(duration, metrics.OutcomeError)
		failed := audit.NewEvent(audit.EventFailed).
			WithCorrelationID(correlationID).
			WithError(err).
			WithDuration(duration)
		if report.Execution != nil {
			failed.WithMetadata("execution_status", string(report.Execution.Status))
		}
		s.record(failed)
		s.logger.Error("investigation could not run", slog.Any("error", err))
		return report, fmt.Errorf("%w: %w", ErrCouldNotRun, err)
	}

	s.recordOutcome(correlationID, report, duration)
	metrics.ObserveInvestigation(duration, outcomeLabel(report.Execution))

	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("investigation latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	return report, nil
}

// Classify runs only the classification stage. No audit entry is written:
// classification previews are repeatable and touch no provider.
func (s *DiagnosisService) Classify(ctx context.Context, req models.DiagnoseRequest) (models.IncidentClassification, error) {
	if err := validateRequest(req); err != nil {
		return models.IncidentClassification{}, err
	}
	if s.pipeline == nil {
		return models.IncidentClassification{}, fmt.Errorf("%w: pipeline not configured", ErrCouldNotRun)
	}
	return s.pipeline.Classify(ctx, req), nil
}

// LatencyP95 returns the current p95 investigation latency.
func (s *DiagnosisService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

// milestones chains the audit writes with the caller's observer.
func (s *DiagnosisService) milestones(correlationID string, obs *engine.Observer) *engine.Observer {
	return &engine.Observer{
		OnClassification: func(c models.IncidentClassification) {
			s.record(audit.NewEvent(audit.EventClassified).
				WithCorrelationID(correlationID).
				WithResult(string(c.Primary)).
				WithResource(c.Context.ResourceID, c.Context.ResourceType).
				WithMetadata("confidence", c.Confidence).
				WithMetadata("source", string(c.Source)))
			if obs != nil && obs.OnClassification != nil {
				obs.OnClassification(c)
			}
		},
		OnPlan: func(plan models.DiagnosticPlan) {
			s.record(audit.NewEvent(audit.EventPlanned).
				WithCorrelationID(correlationID).
				WithMetadata("plan_id", plan.PlanID).
				WithMetadata("steps", len(plan.Steps)))
			if obs != nil && obs.OnPlan != nil {
				obs.OnPlan(plan)
			}
		},
		OnStep: func(result models.StepResult) {
			if obs != nil && obs.OnStep != nil {
				obs.OnStep(result)
			}
		},
	}
}

func (s *DiagnosisService) recordOutcome(correlationID string, report models.DiagnosticReport, duration time.Duration) {
	if report.Execution != nil {
		s.record(audit.NewEvent(audit.EventExecuted).
			WithCorrelationID(correlationID).
			WithResult(string(report.Execution.Status)).
			WithResource(report.Classification.Context.ResourceID, report.Classification.Context.ResourceType).
			WithDuration(duration).
			WithMetadata("plan_id", report.Execution.PlanID).
			WithMetadata("executed", report.Execution.Executed).
			WithMetadata("succeeded", report.Execution.Succeeded).
			WithMetadata("failed", report.Execution.Failed))
	}
	if report.Interpretation != nil {
		interpreted := audit.NewEvent(audit.EventInterpreted).
			WithCorrelationID(correlationID).
			WithResult("ok").
			WithMetadata("report_id", report.Interpretation.ReportID).
			WithMetadata("hypotheses", len(report.Interpretation.Hypotheses)).
			WithMetadata("confidence", report.Interpretation.Confidence).
			WithMetadata("requires_review", report.Interpretation.RequiresReview)
		if s.modelTier != "" && report.Classification.Source == models.SourceModel {
			interpreted.WithMetadata("model_cost_tier", string(s.modelTier))
		}
		s.record(interpreted)
	}
}

func (s *DiagnosisService) record(event *audit.Event) {
	if s.trail == nil {
		return
	}
	s.trail.Record(event)
}

func validateRequest(req models.DiagnoseRequest) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return fmt.Errorf("%w: query must not be empty", ErrInvalidRequest)
	}
	if len(query) > maxQueryBytes {
		return fmt.Errorf("%w: query exceeds %d bytes", ErrInvalidRequest, maxQueryBytes)
	}
	if req.Context != nil && req.Context.WindowSeconds < 0 {
		return fmt.Errorf("%w: time window must not be negative", ErrInvalidRequest)
	}
	return nil
}

func outcomeLabel(execution *models.DiagnosticExecution) string {
	if execution == nil {
		return metrics.OutcomeError
	}
	switch execution.Status {
	case models.ExecutionComplete:
		return metrics.OutcomeComplete
	case models.ExecutionDegraded:
		return metrics.OutcomeDegraded
	default:
		return metrics.OutcomeFailed
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
