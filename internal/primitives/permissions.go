package primitives

import (
	"context"
	"strings"

	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// permissionsProbe scans the resource configuration for policy material and
// explicit denials. It cannot prove access works, only surface the keys an
// operator should look at.
type permissionsProbe struct{}

func (permissionsProbe) Name() string { return "check_permissions" }

func (permissionsProbe) Capabilities() []Capability {
	return []Capability{CapConfiguration}
}

func (p permissionsProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(p.Name(), ref, errMissingResource)), nil
	}

	config, err := rp.Configuration(ctx, ref)
	if err != nil {
		return failOrFatal(p.Name(), ref, err)
	}

	policyKeys := make([]string, 0, 4)
	deniedMarkers := make([]string, 0, 2)
	for key, value := range config {
		lk := strings.ToLower(key)
		if strings.Contains(lk, "policy") || strings.Contains(lk, "role") ||
			strings.Contains(lk, "permission") || strings.Contains(lk, "iam") ||
			strings.Contains(lk, "grant") {
			policyKeys = append(policyKeys, key)
		}
		lv := strings.ToLower(value)
		if strings.Contains(lv, "deny") || strings.Contains(lv, "denied") {
			deniedMarkers = append(deniedMarkers, key)
		}
	}

	values := map[string]any{
		"checked_keys":   len(config),
		"policy_keys":    policyKeys,
		"denied_markers": deniedMarkers,
		"has_denials":    len(deniedMarkers) > 0,
	}
	if len(policyKeys) == 0 {
		return facts(partialFact(p.Name(), ref, values, "no policy material in configuration")), nil
	}
	return facts(okFact(p.Name(), ref, values)), nil
}
