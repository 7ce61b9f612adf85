package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// failingDepsProvider serves static fixtures but cannot read the dependency
// graph, forcing exactly one probe family to fail.
type failingDepsProvider struct {
	*provider.StaticProvider
}

func (failingDepsProvider) Dependencies(context.Context, models.ResourceRef) ([]provider.Dependency, error) {
	return nil, errors.New("graph service unavailable")
}

// stallingMetricsProvider blocks metric reads until the step deadline
// fires.
type stallingMetricsProvider struct {
	*provider.StaticProvider
}

func (stallingMetricsProvider) MetricSeries(ctx context.Context, _ models.ResourceRef, _ string, _ provider.TimeWindow) ([]provider.MetricPoint, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testPlan(primitives ...string) models.DiagnosticPlan {
	ctxValues := map[string]any{
		"resource_type": "rds",
		"resource_id":   "orders-db",
		"metric":        "cpu",
		"scope":         "production",
	}
	steps := make([]models.PlanStep, len(primitives))
	for i, name := range primitives {
		params := make(map[string]any, len(ctxValues))
		for k, v := range ctxValues {
			params[k] = v
		}
		steps[i] = models.PlanStep{Primitive: name, Params: params}
	}
	return models.DiagnosticPlan{
		PlanID:        "plan-test0001",
		IncidentClass: models.ClassResourceSaturation,
		Steps:         steps,
		Context:       ctxValues,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestExecuteCompletePlan(t *testing.T) {
	executor := NewExecutor(nil, 0, testLogger())
	plan := testPlan("analyze_utilization", "compare_baseline", "check_recent_changes")

	execution, err := executor.Execute(context.Background(), plan, provider.NewStaticProvider(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if execution.Status != models.ExecutionComplete {
		t.Fatalf("status = %s, want complete", execution.Status)
	}
	if execution.Executed != 3 || execution.Succeeded != 3 || execution.Failed != 0 {
		t.Fatalf("counters = %d/%d/%d", execution.Executed, execution.Succeeded, execution.Failed)
	}
	if execution.PlanID != plan.PlanID {
		t.Fatalf("plan id = %q", execution.PlanID)
	}
	for i, result := range execution.Results {
		if result.Primitive != plan.Steps[i].Primitive {
			t.Fatalf("result %d = %s, want plan order %s", i, result.Primitive, plan.Steps[i].Primitive)
		}
	}
	if execution.CompletedAt.Before(execution.StartedAt) {
		t.Fatal("completed before started")
	}
}

func TestExecuteIsolatesStepFailure(t *testing.T) {
	executor := NewExecutor(nil, 0, testLogger())
	plan := testPlan("trace_dependencies", "analyze_utilization", "check_recent_changes")
	rp := failingDepsProvider{provider.NewStaticProvider()}

	execution, err := executor.Execute(context.Background(), plan, rp, nil)
	if err != nil {
		t.Fatalf("step failure must not abort: %v", err)
	}

	if execution.Status != models.ExecutionDegraded {
		t.Fatalf("status = %s, want degraded", execution.Status)
	}
	if execution.Executed != 3 {
		t.Fatalf("executed = %d, failure stopped the plan", execution.Executed)
	}
	if execution.Failed != 1 || execution.Succeeded != 2 {
		t.Fatalf("counters = %d succeeded / %d failed", execution.Succeeded, execution.Failed)
	}
	first := execution.Results[0]
	if first.Status != models.FactFailed {
		t.Fatalf("first step status = %s", first.Status)
	}
	if !strings.Contains(first.Facts[0].Error, "graph service unavailable") {
		t.Fatalf("failed fact error = %q", first.Facts[0].Error)
	}
}

func TestExecuteAbortsOnAuthError(t *testing.T) {
	executor := NewExecutor(nil, 0, testLogger())
	plan := testPlan("analyze_utilization", "check_recent_changes")
	rp := provider.NewStaticProvider()
	rp.Err = &provider.AuthError{Provider: "mock", Err: errors.New("token expired")}

	execution, err := executor.Execute(context.Background(), plan, rp, nil)
	if err == nil {
		t.Fatal("auth failure must abort with an error")
	}
	if !provider.IsAuthError(err) {
		t.Fatalf("err = %v, auth marker lost in wrapping", err)
	}
	if execution.Status != models.ExecutionFailed {
		t.Fatalf("status = %s, want failed", execution.Status)
	}
	if execution.Executed != 1 {
		t.Fatalf("executed = %d, abort must stop remaining steps", execution.Executed)
	}
}

func TestExecuteEmptyPlan(t *testing.T) {
	executor := NewExecutor(nil, 0, testLogger())

	execution, err := executor.Execute(context.Background(), models.DiagnosticPlan{PlanID: "plan-empty001"}, provider.NewStaticProvider(), nil)
	if !errors.Is(err, ErrEmptyPlan) {
		t.Fatalf("err = %v, want ErrEmptyPlan", err)
	}
	if execution.Status != models.ExecutionFailed {
		t.Fatalf("status = %s", execution.Status)
	}
}

func TestExecuteCatalogOnlyPrimitive(t *testing.T) {
	executor := NewExecutor(nil, 0, testLogger())
	plan := testPlan("validate_configuration", "analyze_utilization")

	execution, err := executor.Execute(context.Background(), plan, provider.NewStaticProvider(), nil)
	if err != nil {
		t.Fatalf("catalogued-but-unimplemented step must not abort: %v", err)
	}

	if execution.Status != models.ExecutionDegraded {
		t.Fatalf("status = %s", execution.Status)
	}
	first := execution.Results[0]
	if first.Status != models.FactFailed || !strings.Contains(first.Facts[0].Error, "not implemented") {
		t.Fatalf("first step = %s %q", first.Status, first.Facts[0].Error)
	}
	if execution.Results[1].Status != models.FactOK {
		t.Fatalf("second step status = %s", execution.Results[1].Status)
	}
}

func TestExecuteUnknownPrimitive(t *testing.T) {
	executor := NewExecutor(nil, 0, testLogger())
	plan := testPlan("reticulate_splines", "analyze_utilization")

	execution, err := executor.Execute(context.Background(), plan, provider.NewStaticProvider(), nil)
	if err != nil {
		t.Fatalf("unknown name must not abort: %v", err)
	}
	if !strings.Contains(execution.Results[0].Facts[0].Error, "unknown primitive") {
		t.Fatalf("error = %q", execution.Results[0].Facts[0].Error)
	}
	if execution.Succeeded != 1 {
		t.Fatalf("succeeded = %d", execution.Succeeded)
	}
}

func TestExecuteStepTimeout(t *testing.T) {
	executor := NewExecutor(nil, 20*time.Millisecond, testLogger())
	plan := testPlan("analyze_utilization", "check_recent_changes")
	rp := stallingMetricsProvider{provider.NewStaticProvider()}

	start := time.Now()
	execution, err := executor.Execute(context.Background(), plan, rp, nil)
	if err != nil {
		t.Fatalf("timeout must degrade, not abort: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("execution took %v, step timeout not enforced", elapsed)
	}

	if execution.Status != models.ExecutionDegraded {
		t.Fatalf("status = %s", execution.Status)
	}
	first := execution.Results[0]
	if first.Status != models.FactFailed || !strings.Contains(first.Facts[0].Error, "context deadline exceeded") {
		t.Fatalf("first step = %s %q", first.Status, first.Facts[0].Error)
	}
	if execution.Results[1].Status != models.FactOK {
		t.Fatalf("slow step blocked the next one: %s", execution.Results[1].Status)
	}
}

func TestExecuteCancellationKeepsPartialRecord(t *testing.T) {
	executor := NewExecutor(nil, 0, testLogger())
	plan := testPlan("analyze_utilization", "compare_baseline", "check_recent_changes")

	ctx, cancel := context.WithCancel(context.Background())
	steps := 0
	execution, err := executor.Execute(ctx, plan, provider.NewStaticProvider(), func(models.StepResult) {
		steps++
		if steps == 1 {
			cancel()
		}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(execution.Results) != 1 {
		t.Fatalf("results = %d, want the one step collected before cancel", len(execution.Results))
	}
	if execution.Status != models.ExecutionDegraded {
		t.Fatalf("status = %s, partial-with-usable-facts is degraded", execution.Status)
	}
	if execution.CompletedAt.IsZero() {
		t.Fatal("cancelled execution must still be sealed")
	}
}

func TestExecuteDoesNotMutatePlan(t *testing.T) {
	executor := NewExecutor(nil, 0, testLogger())
	plan := testPlan("analyze_utilization", "check_recent_changes")

	if _, err := executor.Execute(context.Background(), plan, provider.NewStaticProvider(), nil); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if _, ok := plan.Context["analyze_utilization_result"]; ok {
		t.Fatal("executor leaked runtime enrichment into the plan context")
	}
	for _, step := range plan.Steps {
		for key := range step.Params {
			if strings.HasSuffix(key, "_result") {
				t.Fatalf("step %s params gained %s", step.Primitive, key)
			}
		}
	}
}

func TestExecuteObserverSeesEveryStep(t *testing.T) {
	executor := NewExecutor(nil, 0, testLogger())
	plan := testPlan("analyze_utilization", "compare_baseline", "check_recent_changes")

	var observed []string
	_, err := executor.Execute(context.Background(), plan, provider.NewStaticProvider(), func(r models.StepResult) {
		observed = append(observed, r.Primitive)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(observed) != len(plan.Steps) {
		t.Fatalf("observer saw %d steps, want %d", len(observed), len(plan.Steps))
	}
	for i, name := range observed {
		if name != plan.Steps[i].Primitive {
			t.Fatalf("observer order %v", observed)
		}
	}
}

func TestExecutePartialFactDegrades(t *testing.T) {
	executor := NewExecutor(nil, 0, testLogger())
	// find_top_consumers reports partial when the scope has no consumers.
	plan := testPlan("find_top_consumers", "analyze_utilization")
	rp := provider.NewStaticProvider()
	rp.TopN = map[string][]provider.Consumer{"production/cpu": {}}

	execution, err := executor.Execute(context.Background(), plan, rp, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if execution.Results[0].Status != models.FactPartial {
		t.Fatalf("first step = %s, want partial", execution.Results[0].Status)
	}
	if execution.Status != models.ExecutionDegraded {
		t.Fatalf("status = %s, partial facts must degrade", execution.Status)
	}
	if execution.Succeeded != 2 {
		t.Fatalf("succeeded = %d, partial still counts as usable", execution.Succeeded)
	}
}
