package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/faultlinehq/faultline-engine/internal/llm"
	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

func newTestPipeline(rp provider.ResourceProvider, collaborator llm.Collaborator) *Pipeline {
	logger := testLogger()
	return NewPipeline(
		NewClassifier(collaborator, 0.6, logger),
		NewPlanner(nil, logger),
		NewExecutor(nil, 0, logger),
		NewInterpreter(collaborator, nil, 0, 0, logger),
		rp,
		logger,
	)
}

func TestPipelineSaturationScenario(t *testing.T) {
	pipeline := newTestPipeline(provider.NewStaticProvider(), llm.Disabled())

	report, err := pipeline.Investigate(context.Background(), models.DiagnoseRequest{
		Query: "Our RDS database orders-db has high CPU",
	})
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}

	if report.Classification.Primary != models.ClassResourceSaturation {
		t.Fatalf("primary = %s", report.Classification.Primary)
	}
	names := map[string]bool{}
	for _, name := range report.Plan.PrimitiveNames() {
		names[name] = true
	}
	for _, want := range []string{"analyze_utilization", "compare_baseline", "check_recent_changes"} {
		if !names[want] {
			t.Fatalf("plan %v missing %s", report.Plan.PrimitiveNames(), want)
		}
	}
	if report.Execution == nil || report.Execution.Status != models.ExecutionComplete {
		t.Fatalf("execution = %+v", report.Execution)
	}
	if report.Interpretation == nil || len(report.Interpretation.Hypotheses) == 0 {
		t.Fatalf("interpretation = %+v", report.Interpretation)
	}

	top := report.Interpretation.Hypotheses[0]
	if top.Type != HypothesisChangeInducedSaturation {
		t.Fatalf("top hypothesis = %s", top.Type)
	}
	if top.Confidence <= 0.7 {
		t.Fatalf("confidence = %v, want > 0.7", top.Confidence)
	}
	cited := map[string]bool{}
	for _, e := range top.Evidence {
		cited[e.Primitive] = true
	}
	if !cited["analyze_utilization"] || !cited["check_recent_changes"] {
		t.Fatalf("evidence %v must cite utilization and the recent change", top.Evidence)
	}
	if report.ReportID != report.Interpretation.ReportID {
		t.Fatalf("report id %q != interpretation id %q", report.ReportID, report.Interpretation.ReportID)
	}
}

func TestPipelineKeywordFallbackCompletes(t *testing.T) {
	pipeline := newTestPipeline(provider.NewStaticProvider(), llm.Disabled())

	report, err := pipeline.Investigate(context.Background(), models.DiagnoseRequest{
		Query: "payments-api getting connection refused from orders-db",
	})
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}

	if report.Classification.Primary != models.ClassDependencyFailure {
		t.Fatalf("primary = %s", report.Classification.Primary)
	}
	if report.Classification.Confidence != 0.5 || report.Classification.Source != models.SourceKeyword {
		t.Fatalf("classification = %+v", report.Classification)
	}
	// Two strategy steps are catalogued without implementations, so the
	// execution degrades but the investigation still finishes.
	if report.Execution.Status != models.ExecutionDegraded {
		t.Fatalf("execution status = %s", report.Execution.Status)
	}
	if report.Interpretation == nil {
		t.Fatal("degraded execution must still be interpreted")
	}
	if !report.Interpretation.RequiresReview {
		t.Fatal("degraded interpretation must require review")
	}
}

func TestPipelineAuthFailureIsFatal(t *testing.T) {
	rp := provider.NewStaticProvider()
	rp.Err = &provider.AuthError{Provider: "mock", Err: errors.New("token expired")}
	pipeline := newTestPipeline(rp, llm.Disabled())

	report, err := pipeline.Investigate(context.Background(), models.DiagnoseRequest{
		Query: "orders-db cpu pegged",
	})
	if err == nil {
		t.Fatal("auth failure must surface as an error")
	}
	if !provider.IsAuthError(err) {
		t.Fatalf("err = %v, want auth marker", err)
	}
	if report.Interpretation != nil {
		t.Fatal("fatal execution must not produce a partial interpretation")
	}
	if report.Execution == nil || report.Execution.Status != models.ExecutionFailed {
		t.Fatalf("execution = %+v", report.Execution)
	}
}

func TestPipelineUnknownClassIsFatal(t *testing.T) {
	logger := testLogger()
	pipeline := NewPipeline(
		NewClassifier(llm.Disabled(), 0.6, logger),
		NewPlanner(StrategyTable{}, logger),
		NewExecutor(nil, 0, logger),
		NewInterpreter(llm.Disabled(), nil, 0, 0, logger),
		provider.NewStaticProvider(),
		logger,
	)

	report, err := pipeline.Investigate(context.Background(), models.DiagnoseRequest{Query: "cpu pegged"})
	if !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("err = %v, want ErrUnknownClass", err)
	}
	if report.Execution != nil {
		t.Fatal("nothing should execute without a plan")
	}
}

func TestPipelineObserverMilestones(t *testing.T) {
	pipeline := newTestPipeline(provider.NewStaticProvider(), llm.Disabled())

	var classifications, plans, steps int
	obs := &Observer{
		OnClassification: func(models.IncidentClassification) { classifications++ },
		OnPlan:           func(models.DiagnosticPlan) { plans++ },
		OnStep:           func(models.StepResult) { steps++ },
	}
	report, err := pipeline.InvestigateObserved(context.Background(), models.DiagnoseRequest{
		Query: "Our RDS database orders-db has high CPU",
	}, obs)
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}

	if classifications != 1 || plans != 1 {
		t.Fatalf("observer saw %d classifications, %d plans", classifications, plans)
	}
	if steps != len(report.Plan.Steps) {
		t.Fatalf("observer saw %d steps, want %d", steps, len(report.Plan.Steps))
	}
}

func TestPipelineConfidenceBounds(t *testing.T) {
	pipeline := newTestPipeline(provider.NewStaticProvider(), llm.Disabled())

	queries := []string{
		"Our RDS database orders-db has high CPU",
		"bill doubled overnight",
		"permission denied writing to uploads bucket",
		"deploy made checkout slow",
		"replication lag on reports cluster",
		"unintelligible gibberish",
	}
	for _, query := range queries {
		report, err := pipeline.Investigate(context.Background(), models.DiagnoseRequest{Query: query})
		if err != nil {
			t.Fatalf("query %q: %v", query, err)
		}
		c := report.Classification.Confidence
		if c < 0 || c > 1 {
			t.Fatalf("query %q classification confidence %v", query, c)
		}
		for _, h := range report.Interpretation.Hypotheses {
			if h.Confidence < 0 || h.Confidence > 1 {
				t.Fatalf("query %q hypothesis %s confidence %v", query, h.Type, h.Confidence)
			}
			if len(h.Evidence) == 0 {
				t.Fatalf("query %q hypothesis %s cites nothing", query, h.Type)
			}
		}
	}
}
