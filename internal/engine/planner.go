package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faultlinehq/faultline-engine/internal/models"
)

// ErrUnknownClass is returned when no diagnostic strategy exists for the
// primary incident class.
var ErrUnknownClass = errors.New("no diagnostic strategy for incident class")

// secondsPerStep is the planning estimate for one primitive execution.
const secondsPerStep = 3

// StrategyTable maps an incident class to the ordered primitive names that
// diagnose it.
type StrategyTable map[models.IncidentClass][]string

// DefaultStrategies returns the built-in strategy table. Order matters:
// primitives run in the sequence listed here.
func DefaultStrategies() StrategyTable {
	return StrategyTable{
		models.ClassResourceSaturation: {
			"analyze_utilization", "compare_baseline", "find_top_consumers",
			"check_scaling_behavior", "check_recent_changes",
		},
		models.ClassLoadSpike: {
			"analyze_utilization", "compare_baseline", "check_scaling_behavior",
			"find_top_consumers", "trace_dependencies",
		},
		models.ClassConfigurationDrift: {
			"check_recent_changes", "diff_configuration", "validate_configuration",
			"check_deployment_status",
		},
		models.ClassDependencyFailure: {
			"trace_dependencies", "check_connectivity", "check_dependency_health",
			"check_recent_changes", "evaluate_throttling",
		},
		models.ClassScalingFailure: {
			"check_scaling_behavior", "analyze_utilization", "check_scaling_limits",
			"check_recent_changes", "check_permissions",
		},
		models.ClassNetworkConnectivity: {
			"check_connectivity", "check_security_groups", "check_network_acls",
			"check_route_tables", "trace_dependencies",
		},
		models.ClassPermissionFailure: {
			"check_permissions", "check_resource_policy", "check_recent_changes",
			"validate_credentials",
		},
		models.ClassCostAnomaly: {
			"analyze_cost_trend", "compare_baseline", "find_top_consumers",
			"check_recent_changes", "analyze_utilization",
		},
		models.ClassDeploymentRegression: {
			"check_deployment_status", "compare_versions", "analyze_error_rate",
			"check_recent_changes", "analyze_utilization",
		},
		models.ClassAvailabilityLoss: {
			"check_resource_status", "check_health_checks", "trace_dependencies",
			"check_recent_changes", "analyze_error_rate",
		},
		models.ClassPerformanceDegradation: {
			"analyze_latency", "compare_baseline", "trace_dependencies",
			"analyze_query_performance", "check_recent_changes",
		},
		models.ClassDataInconsistency: {
			"check_replication_lag", "check_data_integrity", "check_recent_changes",
			"analyze_error_rate",
		},
	}
}

// Planner turns a classification into an ordered diagnostic plan by table
// lookup. Planning is deterministic: the same classification always yields
// the same steps.
type Planner struct {
	strategies StrategyTable
	logger     *slog.Logger
}

// NewPlanner builds a planner. A nil strategy table selects the built-in
// one.
func NewPlanner(strategies StrategyTable, logger *slog.Logger) *Planner {
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{strategies: strategies, logger: logger}
}

// Plan builds the diagnostic plan for a classification. The primary class
// strategy runs first; strategies for secondary classes are appended with
// duplicates removed, keeping each primitive at its first occurrence. An
// unknown primary class is an error; unknown secondary classes are skipped.
func (p *Planner) Plan(classification models.IncidentClassification) (models.DiagnosticPlan, error) {
	primary, ok := p.strategies[classification.Primary]
	if !ok {
		return models.DiagnosticPlan{}, fmt.Errorf("%w: %s", ErrUnknownClass, classification.Primary)
	}

	names := make([]string, 0, len(primary))
	seen := make(map[string]struct{}, len(primary))
	add := func(primitive string) {
		if _, dup := seen[primitive]; dup {
			return
		}
		seen[primitive] = struct{}{}
		names = append(names, primitive)
	}
	for _, primitive := range primary {
		add(primitive)
	}
	for _, class := range classification.Secondary {
		strategy, ok := p.strategies[class]
		if !ok {
			p.logger.Debug("no strategy for secondary class, skipping",
				slog.String("class", string(class)))
			continue
		}
		for _, primitive := range strategy {
			add(primitive)
		}
	}

	planContext := contextValues(classification.Context)
	steps := make([]models.PlanStep, len(names))
	for i, primitive := range names {
		params := make(map[string]any, len(planContext))
		for k, v := range planContext {
			params[k] = v
		}
		steps[i] = models.PlanStep{Primitive: primitive, Params: params}
	}

	plan := models.DiagnosticPlan{
		PlanID:           "plan-" + uuid.NewString()[:8],
		IncidentClass:    classification.Primary,
		Steps:            steps,
		Context:          planContext,
		EstimatedSeconds: len(steps) * secondsPerStep,
		CreatedAt:        time.Now().UTC(),
	}
	p.logger.Debug("diagnostic plan built",
		slog.String("plan_id", plan.PlanID),
		slog.String("class", string(plan.IncidentClass)),
		slog.Int("steps", len(plan.Steps)))
	return plan, nil
}

// contextValues converts the extracted context into the parameter map bound
// to every plan step. Zero-valued fields are omitted: binding stays total
// even when extraction found nothing, and missing resources surface at
// execution time rather than here.
func contextValues(ctx models.ExtractedContext) map[string]any {
	values := make(map[string]any, 5)
	if ctx.ResourceType != "" {
		values["resource_type"] = ctx.ResourceType
	}
	if ctx.ResourceID != "" {
		values["resource_id"] = ctx.ResourceID
	}
	if ctx.Metric != "" {
		values["metric"] = ctx.Metric
	}
	if ctx.Scope != "" {
		values["scope"] = ctx.Scope
	}
	if ctx.WindowSeconds > 0 {
		values["window_seconds"] = ctx.WindowSeconds
	}
	return values
}
