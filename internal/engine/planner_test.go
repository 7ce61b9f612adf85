package engine

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/faultlinehq/faultline-engine/internal/models"
)

func saturationClassification() models.IncidentClassification {
	return models.IncidentClassification{
		Primary:    models.ClassResourceSaturation,
		Confidence: 0.9,
		Source:     models.SourceModel,
		Context: models.ExtractedContext{
			ResourceType:  "rds",
			ResourceID:    "orders-db",
			Metric:        "cpu",
			Scope:         "production",
			WindowSeconds: 3600,
		},
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	planner := NewPlanner(nil, testLogger())
	classification := saturationClassification()

	first, err := planner.Plan(classification)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	second, err := planner.Plan(classification)
	if err != nil {
		t.Fatalf("plan again: %v", err)
	}

	if !reflect.DeepEqual(first.Steps, second.Steps) {
		t.Fatalf("steps differ between identical classifications:\n%v\n%v", first.Steps, second.Steps)
	}
	if !reflect.DeepEqual(first.Context, second.Context) {
		t.Fatalf("context differs: %v vs %v", first.Context, second.Context)
	}
	if first.PlanID == second.PlanID {
		t.Fatalf("plan ids must be unique, both %q", first.PlanID)
	}
	if !strings.HasPrefix(first.PlanID, "plan-") {
		t.Fatalf("plan id %q missing prefix", first.PlanID)
	}
}

func TestPlanStrategyOrder(t *testing.T) {
	planner := NewPlanner(nil, testLogger())
	plan, err := planner.Plan(saturationClassification())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	want := []string{
		"analyze_utilization", "compare_baseline", "find_top_consumers",
		"check_scaling_behavior", "check_recent_changes",
	}
	if got := plan.PrimitiveNames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("primitive order = %v, want %v", got, want)
	}
	if plan.EstimatedSeconds != len(want)*secondsPerStep {
		t.Fatalf("estimated seconds = %d, want %d", plan.EstimatedSeconds, len(want)*secondsPerStep)
	}
	if plan.IncidentClass != models.ClassResourceSaturation {
		t.Fatalf("incident class = %s", plan.IncidentClass)
	}
}

func TestPlanSecondaryUnionDeduplicates(t *testing.T) {
	planner := NewPlanner(nil, testLogger())
	classification := saturationClassification()
	classification.Secondary = []models.IncidentClass{models.ClassLoadSpike}

	plan, err := planner.Plan(classification)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	seen := make(map[string]int)
	for _, name := range plan.PrimitiveNames() {
		seen[name]++
	}
	for name, count := range seen {
		if count > 1 {
			t.Fatalf("primitive %s appears %d times", name, count)
		}
	}
	// load_spike adds only trace_dependencies beyond the saturation strategy,
	// and it lands after all primary steps.
	names := plan.PrimitiveNames()
	if len(names) != 6 || names[5] != "trace_dependencies" {
		t.Fatalf("union order = %v", names)
	}
}

func TestPlanUnknownPrimaryClass(t *testing.T) {
	planner := NewPlanner(nil, testLogger())
	_, err := planner.Plan(models.IncidentClassification{Primary: models.IncidentClass("alien_invasion")})
	if !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("err = %v, want ErrUnknownClass", err)
	}
}

func TestPlanUnknownSecondarySkipped(t *testing.T) {
	planner := NewPlanner(nil, testLogger())
	classification := saturationClassification()
	classification.Secondary = []models.IncidentClass{models.IncidentClass("alien_invasion")}

	plan, err := planner.Plan(classification)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Steps) != 5 {
		t.Fatalf("unknown secondary changed the plan: %v", plan.PrimitiveNames())
	}
}

func TestPlanBindsContextToEveryStep(t *testing.T) {
	planner := NewPlanner(nil, testLogger())
	plan, err := planner.Plan(saturationClassification())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	for _, step := range plan.Steps {
		for _, key := range []string{"resource_type", "resource_id", "metric", "scope", "window_seconds"} {
			if _, ok := step.Params[key]; !ok {
				t.Fatalf("step %s missing param %s", step.Primitive, key)
			}
		}
	}
	if plan.Context["resource_id"] != "orders-db" {
		t.Fatalf("plan context resource_id = %v", plan.Context["resource_id"])
	}
}

func TestPlanEmptyContextStillBinds(t *testing.T) {
	planner := NewPlanner(nil, testLogger())
	plan, err := planner.Plan(models.IncidentClassification{Primary: models.ClassCostAnomaly})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Steps) == 0 {
		t.Fatal("empty context must still produce a plan")
	}
	for _, step := range plan.Steps {
		if step.Params == nil {
			t.Fatalf("step %s has nil params", step.Primitive)
		}
	}
}

func TestPlanStepParamsAreIndependent(t *testing.T) {
	planner := NewPlanner(nil, testLogger())
	plan, err := planner.Plan(saturationClassification())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	plan.Steps[0].Params["resource_id"] = "mutated"
	if plan.Steps[1].Params["resource_id"] == "mutated" {
		t.Fatal("step param maps share storage")
	}
	if plan.Context["resource_id"] == "mutated" {
		t.Fatal("plan context shares storage with step params")
	}
}

func TestDefaultStrategiesCoverAllClasses(t *testing.T) {
	strategies := DefaultStrategies()
	for _, class := range models.AllIncidentClasses() {
		steps, ok := strategies[class]
		if !ok {
			t.Fatalf("no strategy for %s", class)
		}
		if len(steps) < 4 {
			t.Fatalf("strategy for %s has only %d steps", class, len(steps))
		}
	}
}
