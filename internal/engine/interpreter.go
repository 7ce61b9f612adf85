package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/faultlinehq/faultline-engine/internal/llm"
	"github.com/faultlinehq/faultline-engine/internal/models"
)

const interpretSystemPrompt = "You are a cloud operations diagnostician. Respond with a single JSON object and nothing else."

const (
	defaultDegradedPenalty = 0.8
	defaultReviewThreshold = 0.6

	// saturationLatestThreshold marks a utilization reading as saturated.
	saturationLatestThreshold = 80.0
	// recentChangeMinutes is the window inside which a change earns the
	// timing confidence boost.
	recentChangeMinutes = 240.0
	// maxRuleConfidence caps heuristic confidence; certainty needs a human.
	maxRuleConfidence = 0.95
)

// Interpreter turns a sealed execution into findings, ranked hypotheses and
// recommended actions. Findings are literal transcriptions of usable facts;
// hypotheses come from rule heuristics plus an optional model pass whose
// proposals must cite facts or are discarded.
type Interpreter struct {
	collaborator    llm.Collaborator
	actions         *ActionTable
	degradedPenalty float64
	reviewThreshold float64
	logger          *slog.Logger
}

// NewInterpreter builds an interpreter. Nil arguments select the disabled
// collaborator, the built-in action table and default tuning.
func NewInterpreter(collaborator llm.Collaborator, actions *ActionTable, degradedPenalty, reviewThreshold float64, logger *slog.Logger) *Interpreter {
	if collaborator == nil {
		collaborator = llm.Disabled()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if actions == nil {
		actions = &ActionTable{entries: builtinActions(), logger: logger}
	}
	if degradedPenalty <= 0 || degradedPenalty > 1 {
		degradedPenalty = defaultDegradedPenalty
	}
	if reviewThreshold <= 0 || reviewThreshold > 1 {
		reviewThreshold = defaultReviewThreshold
	}
	return &Interpreter{
		collaborator:    collaborator,
		actions:         actions,
		degradedPenalty: degradedPenalty,
		reviewThreshold: reviewThreshold,
		logger:          logger,
	}
}

// Interpret reads the execution's facts and produces the investigation
// report. It never fails: with no usable facts the report simply carries no
// findings and flags itself for review. A degraded execution scales every
// hypothesis confidence down by the configured penalty.
func (i *Interpreter) Interpret(ctx context.Context, execution *models.DiagnosticExecution, incidentClass models.IncidentClass) models.DiagnosticInterpretation {
	facts := execution.Facts()
	interpretation := models.DiagnosticInterpretation{
		ReportID:        "report-" + uuid.NewString()[:8],
		IncidentClass:   incidentClass,
		KeyFindings:     extractFindings(facts),
		ExecutionStatus: execution.Status,
		CreatedAt:       time.Now().UTC(),
	}

	hypotheses := ruleHypotheses(facts)
	hypotheses = append(hypotheses, i.modelHypotheses(ctx, facts, incidentClass)...)

	if execution.Status == models.ExecutionDegraded {
		for idx := range hypotheses {
			hypotheses[idx].Confidence = clamp(hypotheses[idx].Confidence*i.degradedPenalty, 0, 1)
		}
	}
	rankHypotheses(hypotheses)

	interpretation.Hypotheses = hypotheses
	interpretation.Actions = i.buildActions(hypotheses)
	if len(hypotheses) > 0 {
		interpretation.Confidence = hypotheses[0].Confidence
	}
	interpretation.RequiresReview = execution.Status != models.ExecutionComplete ||
		interpretation.Confidence < i.reviewThreshold

	i.logger.Debug("execution interpreted",
		slog.String("report_id", interpretation.ReportID),
		slog.Int("findings", len(interpretation.KeyFindings)),
		slog.Int("hypotheses", len(hypotheses)),
		slog.Float64("confidence", interpretation.Confidence))
	return interpretation
}

// factRef pairs a fact with its index in the execution's flattened list, so
// evidence citations stay valid.
type factRef struct {
	index int
	fact  models.Fact
}

func firstUsable(facts []models.Fact, primitive string) (factRef, bool) {
	for idx, fact := range facts {
		if fact.Primitive == primitive && fact.Usable() {
			return factRef{index: idx, fact: fact}, true
		}
	}
	return factRef{}, false
}

func cite(ref factRef, detail string) models.Evidence {
	return models.Evidence{FactIndex: ref.index, Primitive: ref.fact.Primitive, Detail: detail}
}

// ruleHypotheses runs the deterministic heuristics over the fact list. Each
// hypothesis cites the facts that triggered it.
func ruleHypotheses(facts []models.Fact) []models.Hypothesis {
	var hypotheses []models.Hypothesis
	hypotheses = append(hypotheses, saturationHypotheses(facts)...)
	hypotheses = append(hypotheses, scalingHypothesis(facts)...)
	hypotheses = append(hypotheses, dependencyHypothesis(facts)...)
	hypotheses = append(hypotheses, connectivityHypothesis(facts)...)
	hypotheses = append(hypotheses, deploymentHypothesis(facts)...)
	hypotheses = append(hypotheses, costHypothesis(facts)...)
	hypotheses = append(hypotheses, permissionHypothesis(facts)...)
	hypotheses = append(hypotheses, driftHypothesis(facts)...)
	return hypotheses
}

// saturationHypotheses separates change-induced saturation from organic
// growth. Saturation is a utilization reading beyond the threshold or a
// baseline anomaly; a recent change within the boost window shifts blame to
// the change.
func saturationHypotheses(facts []models.Fact) []models.Hypothesis {
	var evidence []models.Evidence
	metric := "utilization"

	if util, ok := firstUsable(facts, "analyze_utilization"); ok {
		if latest, ok := fnum(util.fact.Values, "latest"); ok && latest >= saturationLatestThreshold {
			if m := fstr(util.fact.Values, "metric"); m != "" {
				metric = m
			}
			evidence = append(evidence, cite(util, fmt.Sprintf("latest %.1f, avg %.1f",
				latest, fnumOr(util.fact.Values, "avg", 0))))
		}
	}
	if base, ok := firstUsable(facts, "compare_baseline"); ok && fbool(base.fact.Values, "is_anomaly") {
		evidence = append(evidence, cite(base, fmt.Sprintf("current avg %.1f vs baseline %.1f",
			fnumOr(base.fact.Values, "current_avg", 0), fnumOr(base.fact.Values, "baseline_avg", 0))))
	}
	if len(evidence) == 0 {
		return nil
	}

	changes, hasChanges := firstUsable(facts, "check_recent_changes")
	if hasChanges && fbool(changes.fact.Values, "has_recent_changes") {
		confidence := 0.75
		detail := fmt.Sprintf("%.0f modifications, %.0f deployments in window",
			fnumOr(changes.fact.Values, "modification_count", 0),
			fnumOr(changes.fact.Values, "deployment_count", 0))
		if minutes, ok := fnum(changes.fact.Values, "minutes_since_last_change"); ok && minutes <= recentChangeMinutes {
			confidence += 0.1
			detail += fmt.Sprintf(", most recent %.0f minutes ago", minutes)
		}
		return []models.Hypothesis{{
			Type:       HypothesisChangeInducedSaturation,
			Cause:      fmt.Sprintf("recent change pushed %s beyond its normal range", metric),
			Confidence: capConfidence(confidence),
			Evidence:   append(evidence, cite(changes, detail)),
		}}
	}

	confidence := 0.5
	cause := fmt.Sprintf("%s is saturated; change history was not available to attribute it", metric)
	if hasChanges {
		confidence = 0.6
		cause = fmt.Sprintf("organic load growth is saturating %s with no correlated change", metric)
		evidence = append(evidence, cite(changes, "no changes recorded in window"))
	}
	return []models.Hypothesis{{
		Type:       HypothesisOrganicSaturation,
		Cause:      cause,
		Confidence: confidence,
		Evidence:   evidence,
	}}
}

func scalingHypothesis(facts []models.Fact) []models.Hypothesis {
	var evidence []models.Evidence
	if behavior, ok := firstUsable(facts, "check_scaling_behavior"); ok && fbool(behavior.fact.Values, "at_max_capacity") {
		evidence = append(evidence, cite(behavior, fmt.Sprintf("capacity %.0f at configured max %.0f",
			fnumOr(behavior.fact.Values, "current_capacity", 0),
			fnumOr(behavior.fact.Values, "max_capacity", 0))))
	}
	if limits, ok := firstUsable(facts, "check_scaling_limits"); ok && fbool(limits.fact.Values, "limit_reached") {
		evidence = append(evidence, cite(limits, "no scaling headroom left"))
	}
	if len(evidence) == 0 {
		return nil
	}
	return []models.Hypothesis{{
		Type:       HypothesisScalingExhaustion,
		Cause:      "autoscaling has reached its configured capacity ceiling",
		Confidence: 0.7,
		Evidence:   evidence,
	}}
}

func dependencyHypothesis(facts []models.Fact) []models.Hypothesis {
	deps, ok := firstUsable(facts, "trace_dependencies")
	if !ok || !fbool(deps.fact.Values, "has_dependency_issues") {
		return nil
	}
	unhealthy := fnumOr(deps.fact.Values, "unhealthy_count", 0)
	total := fnumOr(deps.fact.Values, "dependency_count", 0)
	return []models.Hypothesis{{
		Type:       HypothesisDependencyDegradation,
		Cause:      fmt.Sprintf("%.0f of %.0f dependencies report unhealthy", unhealthy, total),
		Confidence: 0.7,
		Evidence:   []models.Evidence{cite(deps, fmt.Sprintf("%.0f unhealthy dependencies", unhealthy))},
	}}
}

func connectivityHypothesis(facts []models.Fact) []models.Hypothesis {
	conn, ok := firstUsable(facts, "check_connectivity")
	if !ok || fnumOr(conn.fact.Values, "unreachable", 0) < 1 {
		return nil
	}
	unreachable := fnumOr(conn.fact.Values, "unreachable", 0)
	checked := fnumOr(conn.fact.Values, "checked", 0)
	return []models.Hypothesis{{
		Type:       HypothesisNetworkPathFailure,
		Cause:      fmt.Sprintf("%.0f of %.0f connectivity targets are unreachable", unreachable, checked),
		Confidence: 0.7,
		Evidence:   []models.Evidence{cite(conn, fmt.Sprintf("%.0f targets unreachable", unreachable))},
	}}
}

func deploymentHypothesis(facts []models.Fact) []models.Hypothesis {
	errRate, ok := firstUsable(facts, "analyze_error_rate")
	if !ok || !fbool(errRate.fact.Values, "error_spike") {
		return nil
	}
	deploy, ok := firstUsable(facts, "check_deployment_status")
	if !ok || !fbool(deploy.fact.Values, "has_recent_deployment") {
		return nil
	}
	confidence := 0.7
	detail := fmt.Sprintf("%.0f recent deployments", fnumOr(deploy.fact.Values, "deployment_count", 0))
	if minutes, ok := fnum(deploy.fact.Values, "minutes_since_last_deploy"); ok && minutes <= recentChangeMinutes {
		confidence += 0.1
		detail += fmt.Sprintf(", last %.0f minutes ago", minutes)
	}
	return []models.Hypothesis{{
		Type:       HypothesisDeploymentRegression,
		Cause:      "a recent deployment correlates with the error spike",
		Confidence: capConfidence(confidence),
		Evidence: []models.Evidence{
			cite(errRate, fmt.Sprintf("error spike score %.1f", fnumOr(errRate.fact.Values, "spike_score", 0))),
			cite(deploy, detail),
		},
	}}
}

func costHypothesis(facts []models.Fact) []models.Hypothesis {
	cost, ok := firstUsable(facts, "analyze_cost_trend")
	if !ok || fstr(cost.fact.Values, "trend") != "increasing" {
		return nil
	}
	cause := "spend is trending up across the scope"
	if top := fstr(cost.fact.Values, "top_service"); top != "" {
		cause = fmt.Sprintf("spend is trending up, led by %s", top)
	}
	return []models.Hypothesis{{
		Type:       HypothesisCostRunaway,
		Cause:      cause,
		Confidence: 0.6,
		Evidence: []models.Evidence{cite(cost, fmt.Sprintf("total %.2f %s, trend increasing",
			fnumOr(cost.fact.Values, "total", 0), fstr(cost.fact.Values, "currency")))},
	}}
}

func permissionHypothesis(facts []models.Fact) []models.Hypothesis {
	perm, ok := firstUsable(facts, "check_permissions")
	if !ok || !fbool(perm.fact.Values, "has_denials") {
		return nil
	}
	return []models.Hypothesis{{
		Type:       HypothesisAccessDenied,
		Cause:      "resource policy material carries explicit denial markers",
		Confidence: 0.7,
		Evidence: []models.Evidence{cite(perm, fmt.Sprintf("%.0f policy keys inspected",
			fnumOr(perm.fact.Values, "policy_keys", 0)))},
	}}
}

func driftHypothesis(facts []models.Fact) []models.Hypothesis {
	diff, ok := firstUsable(facts, "diff_configuration")
	if !ok || !fbool(diff.fact.Values, "has_drift") {
		return nil
	}
	cause := fmt.Sprintf("configuration drifted: %.0f keys changed", fnumOr(diff.fact.Values, "changed_key_count", 0))
	if event := fstr(diff.fact.Values, "change_event"); event != "" {
		cause += " by " + event
	}
	return []models.Hypothesis{{
		Type:       HypothesisConfigDrift,
		Cause:      cause,
		Confidence: 0.65,
		Evidence: []models.Evidence{cite(diff, fmt.Sprintf("%.0f changed keys",
			fnumOr(diff.fact.Values, "changed_key_count", 0)))},
	}}
}

// modelInterpretation mirrors the JSON object the interpret prompt demands.
type modelInterpretation struct {
	LikelyRootCauses []struct {
		Cause      string  `json:"cause"`
		Confidence float64 `json:"confidence"`
		Evidence   []int   `json:"evidence"`
	} `json:"likely_root_causes"`
}

// modelHypotheses asks the collaborator for additional candidate causes.
// The model sees only the collected facts. Proposals are clamped into [0,1]
// and must cite at least one usable fact index or they are discarded.
func (i *Interpreter) modelHypotheses(ctx context.Context, facts []models.Fact, incidentClass models.IncidentClass) []models.Hypothesis {
	if len(facts) == 0 {
		return nil
	}
	raw, err := i.collaborator.Generate(ctx, interpretPrompt(facts, incidentClass), interpretSystemPrompt, llm.ModeInterpret)
	if err != nil {
		if !errors.Is(err, llm.ErrDisabled) {
			i.logger.Debug("model interpretation unavailable", slog.Any("error", err))
		}
		return nil
	}

	var parsed modelInterpretation
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		i.logger.Debug("model interpretation malformed, discarding", slog.Any("error", err))
		return nil
	}

	var hypotheses []models.Hypothesis
	for _, candidate := range parsed.LikelyRootCauses {
		cause := strings.TrimSpace(candidate.Cause)
		if cause == "" {
			continue
		}
		var evidence []models.Evidence
		for _, idx := range candidate.Evidence {
			if idx < 0 || idx >= len(facts) || !facts[idx].Usable() {
				continue
			}
			evidence = append(evidence, models.Evidence{FactIndex: idx, Primitive: facts[idx].Primitive})
		}
		if len(evidence) == 0 {
			i.logger.Debug("model hypothesis cites no usable facts, discarding",
				slog.String("cause", cause))
			continue
		}
		hypotheses = append(hypotheses, models.Hypothesis{
			Type:       HypothesisModelSuggested,
			Cause:      cause,
			Confidence: clamp(candidate.Confidence, 0, 1),
			Evidence:   evidence,
		})
	}
	return hypotheses
}

func interpretPrompt(facts []models.Fact, incidentClass models.IncidentClass) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing diagnostic results for a %s incident.\n\nFACTS (numbered):\n", incidentClass)
	for idx, fact := range facts {
		if fact.Status == models.FactFailed {
			fmt.Fprintf(&b, "%d. [%s] failed: %s\n", idx, fact.Primitive, fact.Error)
			continue
		}
		payload, err := json.Marshal(fact.Values)
		if err != nil {
			payload = []byte("{}")
		}
		fmt.Fprintf(&b, "%d. [%s] %s: %s\n", idx, fact.Primitive, fact.Status, payload)
	}
	b.WriteString(`
Propose candidate root causes beyond what any single fact already states.

Rules:
- Never restate a fact as a cause.
- Cite the supporting fact indexes for every cause.
- If the facts are insufficient, return an empty list rather than invent.

Return JSON only:
{"likely_root_causes": [{"cause": "...", "confidence": 0.0, "evidence": [0]}]}
`)
	return b.String()
}

// rankHypotheses orders by confidence descending; ties go to the hypothesis
// citing the earliest fact, keeping the order reproducible.
func rankHypotheses(hypotheses []models.Hypothesis) {
	sort.SliceStable(hypotheses, func(a, b int) bool {
		if hypotheses[a].Confidence != hypotheses[b].Confidence {
			return hypotheses[a].Confidence > hypotheses[b].Confidence
		}
		return earliestEvidence(hypotheses[a]) < earliestEvidence(hypotheses[b])
	})
}

func earliestEvidence(h models.Hypothesis) int {
	earliest := math.MaxInt
	for _, e := range h.Evidence {
		if e.FactIndex < earliest {
			earliest = e.FactIndex
		}
	}
	return earliest
}

// buildActions unions the action table entries over the ranked hypotheses:
// higher-confidence hypotheses contribute first, each batch ordered by
// priority, duplicates dropped by action text.
func (i *Interpreter) buildActions(hypotheses []models.Hypothesis) []models.RecommendedAction {
	var actions []models.RecommendedAction
	seen := make(map[string]struct{})
	for _, h := range hypotheses {
		batch := i.actions.Lookup(h.Type)
		sort.SliceStable(batch, func(a, b int) bool { return batch[a].Priority < batch[b].Priority })
		for _, action := range batch {
			if _, dup := seen[action.Action]; dup {
				continue
			}
			seen[action.Action] = struct{}{}
			actions = append(actions, action)
		}
	}
	return actions
}

func capConfidence(v float64) float64 {
	if v > maxRuleConfidence {
		return maxRuleConfidence
	}
	return v
}
