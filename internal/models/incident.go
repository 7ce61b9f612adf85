package models

import (
	"fmt"
	"strings"
)

// IncidentClass enumerates the universal failure modes the engine reasons
// about. The set is fixed at compile time; planners and interpreters key
// their strategy tables on it.
type IncidentClass string

const (
	ClassResourceSaturation     IncidentClass = "resource_saturation"
	ClassLoadSpike              IncidentClass = "load_spike"
	ClassConfigurationDrift     IncidentClass = "configuration_drift"
	ClassDependencyFailure      IncidentClass = "dependency_failure"
	ClassScalingFailure         IncidentClass = "scaling_failure"
	ClassNetworkConnectivity    IncidentClass = "network_connectivity"
	ClassPermissionFailure      IncidentClass = "permission_failure"
	ClassCostAnomaly            IncidentClass = "cost_anomaly"
	ClassDeploymentRegression   IncidentClass = "deployment_regression"
	ClassAvailabilityLoss       IncidentClass = "availability_loss"
	ClassPerformanceDegradation IncidentClass = "performance_degradation"
	ClassDataInconsistency      IncidentClass = "data_inconsistency"
)

// AllIncidentClasses returns every class in declaration order.
func AllIncidentClasses() []IncidentClass {
	return []IncidentClass{
		ClassResourceSaturation,
		ClassLoadSpike,
		ClassConfigurationDrift,
		ClassDependencyFailure,
		ClassScalingFailure,
		ClassNetworkConnectivity,
		ClassPermissionFailure,
		ClassCostAnomaly,
		ClassDeploymentRegression,
		ClassAvailabilityLoss,
		ClassPerformanceDegradation,
		ClassDataInconsistency,
	}
}

// ParseIncidentClass validates an inbound class string. Case-insensitive so
// model responses using upper-case names still parse.
func ParseIncidentClass(s string) (IncidentClass, error) {
	candidate := IncidentClass(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range AllIncidentClasses() {
		if c == candidate {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown incident class %q", s)
}

// ClassificationSource records which path produced a classification.
type ClassificationSource string

const (
	SourceModel   ClassificationSource = "model"
	SourceKeyword ClassificationSource = "keyword"
)

// ExtractedContext carries resource hints pulled from the query or supplied
// by the caller. Zero values mean "not known"; planners bind what is present
// and leave the rest for primitives to reject gracefully.
type ExtractedContext struct {
	ResourceType  string `json:"resource_type,omitempty"`
	ResourceID    string `json:"resource_id,omitempty"`
	Metric        string `json:"metric,omitempty"`
	Scope         string `json:"scope,omitempty"`
	WindowSeconds int    `json:"time_window_seconds,omitempty"`
}

// IncidentClassification is produced once per investigation and never
// mutated afterwards.
type IncidentClassification struct {
	Primary    IncidentClass        `json:"primary_class"`
	Secondary  []IncidentClass      `json:"secondary_classes,omitempty"`
	Confidence float64              `json:"confidence"`
	Source     ClassificationSource `json:"source"`
	Context    ExtractedContext     `json:"context"`
}
