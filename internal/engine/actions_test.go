package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestActionTableBuiltins(t *testing.T) {
	table, err := NewActionTable("", false, testLogger())
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	defer table.Close()

	for _, hypothesisType := range []string{
		HypothesisChangeInducedSaturation, HypothesisOrganicSaturation,
		HypothesisScalingExhaustion, HypothesisDependencyDegradation,
		HypothesisNetworkPathFailure, HypothesisDeploymentRegression,
		HypothesisCostRunaway, HypothesisAccessDenied, HypothesisConfigDrift,
		HypothesisModelSuggested,
	} {
		actions := table.Lookup(hypothesisType)
		if len(actions) == 0 {
			t.Fatalf("no built-in actions for %s", hypothesisType)
		}
		if actions[0].Priority < 1 {
			t.Fatalf("%s first action priority = %d", hypothesisType, actions[0].Priority)
		}
	}
}

func TestActionTableMissingPackUsesBuiltins(t *testing.T) {
	table, err := NewActionTable(filepath.Join(t.TempDir(), "nope.yaml"), false, testLogger())
	if err != nil {
		t.Fatalf("missing pack must not error: %v", err)
	}
	defer table.Close()

	if len(table.Lookup(HypothesisCostRunaway)) != 2 {
		t.Fatal("built-ins not loaded")
	}
}

func TestActionTablePackOverridesPerType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.yaml")
	pack := `actions:
  scaling_exhaustion:
    - action: "Page the capacity team"
      priority: 1
      command: "pd trigger capacity"
`
	if err := os.WriteFile(path, []byte(pack), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}

	table, err := NewActionTable(path, false, testLogger())
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	defer table.Close()

	scaling := table.Lookup(HypothesisScalingExhaustion)
	if len(scaling) != 1 || scaling[0].Action != "Page the capacity team" {
		t.Fatalf("override not applied: %v", scaling)
	}
	if scaling[0].Command != "pd trigger capacity" {
		t.Fatalf("command = %q", scaling[0].Command)
	}
	// Types the pack does not name keep their built-ins.
	if len(table.Lookup(HypothesisCostRunaway)) != 2 {
		t.Fatal("unrelated type lost its built-ins")
	}
}

func TestActionTableMalformedPack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.yaml")
	if err := os.WriteFile(path, []byte("actions: [not, a, map"), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}

	if _, err := NewActionTable(path, false, testLogger()); err == nil {
		t.Fatal("malformed pack must fail at startup")
	}
}

func TestActionTableLookupReturnsCopy(t *testing.T) {
	table, err := NewActionTable("", false, testLogger())
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	defer table.Close()

	first := table.Lookup(HypothesisCostRunaway)
	first[0].Action = "mutated"

	second := table.Lookup(HypothesisCostRunaway)
	if second[0].Action == "mutated" {
		t.Fatal("lookup shares storage with the table")
	}
}

func TestActionTableUnknownType(t *testing.T) {
	table, err := NewActionTable("", false, testLogger())
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	defer table.Close()

	if actions := table.Lookup("tectonic_shift"); actions != nil {
		t.Fatalf("unknown type returned %v", actions)
	}
}
