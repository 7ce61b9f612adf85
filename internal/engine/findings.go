package engine

import (
	"fmt"

	"github.com/faultlinehq/faultline-engine/internal/models"
)

// extractFindings transcribes usable facts into terse, literal finding
// lines. No inference happens here: findings restate what was observed,
// hypotheses explain it.
func extractFindings(facts []models.Fact) []string {
	var findings []string
	for _, fact := range facts {
		if !fact.Usable() {
			continue
		}
		if line := findingLine(fact); line != "" {
			findings = append(findings, line)
		}
	}
	return findings
}

func findingLine(fact models.Fact) string {
	v := fact.Values
	switch fact.Primitive {
	case "analyze_utilization":
		latest, ok := fnum(v, "latest")
		if !ok {
			return ""
		}
		avg, _ := fnum(v, "avg")
		max, _ := fnum(v, "max")
		return fmt.Sprintf("%s %s: latest %.1f, avg %.1f, max %.1f, trend %s",
			fact.Resource, fstr(v, "metric"), latest, avg, max, fstr(v, "trend"))

	case "compare_baseline":
		current, ok := fnum(v, "current_avg")
		if !ok {
			return ""
		}
		baseline, ok := fnum(v, "baseline_avg")
		if !ok {
			return fmt.Sprintf("%s %s: current avg %.1f, baseline unavailable",
				fact.Resource, fstr(v, "metric"), current)
		}
		line := fmt.Sprintf("%s %s: current avg %.1f vs baseline %.1f (%+.0f%%)",
			fact.Resource, fstr(v, "metric"), current, baseline, fnumOr(v, "deviation_percent", 0))
		if fbool(v, "is_anomaly") {
			line += ", anomalous"
		}
		return line

	case "analyze_error_rate":
		total, ok := fnum(v, "total_errors")
		if !ok {
			return ""
		}
		line := fmt.Sprintf("%s errors: %.0f total in window, trend %s",
			fact.Resource, total, fstr(v, "trend"))
		if fbool(v, "error_spike") {
			line += fmt.Sprintf(", spike detected (score %.1f)", fnumOr(v, "spike_score", 0))
		}
		return line

	case "check_recent_changes":
		if !fbool(v, "has_recent_changes") {
			return fmt.Sprintf("%s: no changes recorded in window", fact.Resource)
		}
		line := fmt.Sprintf("%s: %.0f modifications, %.0f deployments in window",
			fact.Resource, fnumOr(v, "modification_count", 0), fnumOr(v, "deployment_count", 0))
		if minutes, ok := fnum(v, "minutes_since_last_change"); ok {
			line += fmt.Sprintf(", last change %.0f minutes ago", minutes)
		}
		return line

	case "diff_configuration":
		if !fbool(v, "has_drift") {
			return fmt.Sprintf("%s: configuration matches change history", fact.Resource)
		}
		line := fmt.Sprintf("%s: %.0f configuration keys changed",
			fact.Resource, fnumOr(v, "changed_key_count", 0))
		if event := fstr(v, "change_event"); event != "" {
			line += " by " + event
		}
		return line

	case "check_deployment_status":
		if !fbool(v, "has_recent_deployment") {
			return fmt.Sprintf("%s: no recent deployments", fact.Resource)
		}
		line := fmt.Sprintf("%s: %.0f recent deployments",
			fact.Resource, fnumOr(v, "deployment_count", 0))
		if minutes, ok := fnum(v, "minutes_since_last_deploy"); ok {
			line += fmt.Sprintf(", last %.0f minutes ago", minutes)
		}
		return line

	case "trace_dependencies":
		count, ok := fnum(v, "dependency_count")
		if !ok {
			return ""
		}
		return fmt.Sprintf("%s: %.0f dependencies, %.0f unhealthy",
			fact.Resource, count, fnumOr(v, "unhealthy_count", 0))

	case "check_connectivity":
		checked, ok := fnum(v, "checked")
		if !ok {
			return ""
		}
		if fbool(v, "all_reachable") {
			return fmt.Sprintf("%s: all %.0f connectivity targets reachable", fact.Resource, checked)
		}
		return fmt.Sprintf("%s: %.0f of %.0f connectivity targets unreachable",
			fact.Resource, fnumOr(v, "unreachable", 0), checked)

	case "check_scaling_behavior":
		if !fbool(v, "scaling_enabled") {
			return fmt.Sprintf("%s: autoscaling disabled", fact.Resource)
		}
		line := fmt.Sprintf("%s: capacity %.0f in [%.0f, %.0f]",
			fact.Resource, fnumOr(v, "current_capacity", 0),
			fnumOr(v, "min_capacity", 0), fnumOr(v, "max_capacity", 0))
		if fbool(v, "at_max_capacity") {
			line += ", at max"
		}
		return line

	case "check_scaling_limits":
		if !fbool(v, "scaling_enabled") {
			return ""
		}
		if fbool(v, "limit_reached") {
			return fmt.Sprintf("%s: scaling headroom exhausted", fact.Resource)
		}
		return fmt.Sprintf("%s: scaling headroom %.0f units", fact.Resource, fnumOr(v, "headroom", 0))

	case "check_permissions":
		if fbool(v, "has_denials") {
			return fmt.Sprintf("%s: denial markers present in %.0f policy keys",
				fact.Resource, fnumOr(v, "policy_keys", 0))
		}
		return fmt.Sprintf("%s: no denial markers in configuration", fact.Resource)

	case "find_top_consumers":
		count, ok := fnum(v, "count")
		if !ok || count == 0 {
			return ""
		}
		line := fmt.Sprintf("top %s consumers in %s: %.0f reported",
			fstr(v, "metric"), fstr(v, "scope"), count)
		if top, ok := topConsumerLine(v); ok {
			line += ", leading " + top
		}
		return line

	case "analyze_cost_trend":
		total, ok := fnum(v, "total")
		if !ok {
			return ""
		}
		line := fmt.Sprintf("spend in %s: %.2f %s, trend %s",
			fstr(v, "scope"), total, fstr(v, "currency"), fstr(v, "trend"))
		if top := fstr(v, "top_service"); top != "" {
			line += fmt.Sprintf(", top service %s (%.2f)", top, fnumOr(v, "top_service_cost", 0))
		}
		return line
	}
	return ""
}

func topConsumerLine(v map[string]any) (string, bool) {
	consumers, ok := v["consumers"].([]map[string]any)
	if !ok || len(consumers) == 0 {
		return "", false
	}
	first := consumers[0]
	resource, _ := first["resource"].(string)
	if resource == "" {
		return "", false
	}
	value, _ := fnum(first, "value")
	return fmt.Sprintf("%s (%.1f %s)", resource, value, fstr(first, "unit")), true
}

// fnum reads a numeric fact value, tolerating the int types probes store.
func fnum(values map[string]any, key string) (float64, bool) {
	switch v := values[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func fnumOr(values map[string]any, key string, fallback float64) float64 {
	if v, ok := fnum(values, key); ok {
		return v
	}
	return fallback
}

func fbool(values map[string]any, key string) bool {
	v, _ := values[key].(bool)
	return v
}

func fstr(values map[string]any, key string) string {
	v, _ := values[key].(string)
	return v
}
