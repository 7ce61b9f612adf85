package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/faultlinehq/faultline-engine/internal/llm"
	"github.com/faultlinehq/faultline-engine/internal/models"
)

const classifySystemPrompt = "You are an incident classification engine for cloud operations. Respond with a single JSON object and nothing else."

// fallbackConfidence is assigned when classification came from the keyword
// scan instead of the model, signalling degraded certainty downstream.
const fallbackConfidence = 0.5

// defaultModelConfidence fills in when the model omits its own estimate.
const defaultModelConfidence = 0.8

// Classifier maps a free-text incident description onto the fixed incident
// classes, model-first with a deterministic keyword fallback. It never
// fails: callers always receive a best-effort classification.
type Classifier struct {
	collaborator llm.Collaborator
	threshold    float64
	logger       *slog.Logger
}

// NewClassifier builds a classifier. A nil collaborator behaves like the
// disabled one: every query takes the keyword path.
func NewClassifier(collaborator llm.Collaborator, threshold float64, logger *slog.Logger) *Classifier {
	if collaborator == nil {
		collaborator = llm.Disabled()
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{collaborator: collaborator, threshold: threshold, logger: logger}
}

// Classify produces an IncidentClassification for the query. Hints supplied
// by the caller override anything extracted from the query text.
func (c *Classifier) Classify(ctx context.Context, query string, hints *models.ExtractedContext) models.IncidentClassification {
	classification, err := c.classifyWithModel(ctx, query)
	if err != nil {
		c.logger.Debug("model classification unavailable, using keyword fallback",
			slog.String("collaborator", c.collaborator.Name()),
			slog.Any("error", err))
		classification = classifyByKeywords(query)
	}

	applyHints(&classification.Context, hints)
	if classification.Context.Scope == "" {
		classification.Context.Scope = "production"
	}
	if classification.Context.WindowSeconds <= 0 {
		classification.Context.WindowSeconds = 3600
	}

	if classification.Confidence < c.threshold {
		c.logger.Info("classification confidence below threshold",
			slog.String("class", string(classification.Primary)),
			slog.Float64("confidence", classification.Confidence),
			slog.Float64("threshold", c.threshold))
	}
	return classification
}

// modelClassification mirrors the JSON object the prompt demands.
type modelClassification struct {
	PrimaryClass     string   `json:"primary_class"`
	SecondaryClasses []string `json:"secondary_classes"`
	Confidence       float64  `json:"confidence"`
	ResourceType     string   `json:"resource_type"`
	ResourceID       string   `json:"resource_id"`
	Metric           string   `json:"metric"`
	Scope            string   `json:"scope"`
}

func (c *Classifier) classifyWithModel(ctx context.Context, query string) (models.IncidentClassification, error) {
	raw, err := c.collaborator.Generate(ctx, classifyPrompt(query), classifySystemPrompt, llm.ModeClassify)
	if err != nil {
		return models.IncidentClassification{}, err
	}

	var parsed modelClassification
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return models.IncidentClassification{}, fmt.Errorf("parse model response: %w", err)
	}

	primary, err := models.ParseIncidentClass(parsed.PrimaryClass)
	if err != nil {
		return models.IncidentClassification{}, err
	}

	var secondary []models.IncidentClass
	for _, s := range parsed.SecondaryClasses {
		class, err := models.ParseIncidentClass(s)
		if err != nil || class == primary {
			continue
		}
		secondary = append(secondary, class)
	}

	confidence := parsed.Confidence
	if confidence == 0 {
		confidence = defaultModelConfidence
	}

	return models.IncidentClassification{
		Primary:    primary,
		Secondary:  secondary,
		Confidence: clamp(confidence, 0, 1),
		Source:     models.SourceModel,
		Context: models.ExtractedContext{
			ResourceType: strings.ToLower(parsed.ResourceType),
			ResourceID:   parsed.ResourceID,
			Metric:       strings.ToLower(parsed.Metric),
			Scope:        parsed.Scope,
		},
	}, nil
}

func classifyPrompt(query string) string {
	var b strings.Builder
	b.WriteString("Classify this cloud operations incident into one or more incident classes.\n\n")
	fmt.Fprintf(&b, "Query: %q\n\n", query)
	b.WriteString("Available incident classes:\n")
	for _, class := range models.AllIncidentClasses() {
		fmt.Fprintf(&b, "- %s: %s\n", class, classDescriptions[class])
	}
	b.WriteString(`
Extract:
- primary_class: most likely incident class
- secondary_classes: other possible classes, if any
- confidence: 0.0 to 1.0
- resource_type: type of resource (ec2, rds, lambda, dynamodb, ...)
- resource_id: specific resource identifier, if mentioned
- metric: specific metric (cpu, memory, latency, ...)
- scope: environment (production, staging, dev)

Return JSON only.
`)
	return b.String()
}

var classDescriptions = map[models.IncidentClass]string{
	models.ClassResourceSaturation:     "CPU, memory, disk or connections exhausted",
	models.ClassLoadSpike:              "sudden traffic or request increase",
	models.ClassConfigurationDrift:     "settings changed from baseline",
	models.ClassDependencyFailure:      "upstream or downstream service unavailable",
	models.ClassScalingFailure:         "auto-scaling not working",
	models.ClassNetworkConnectivity:    "network path broken",
	models.ClassPermissionFailure:      "IAM or RBAC denying access",
	models.ClassCostAnomaly:            "unexpected spend increase",
	models.ClassDeploymentRegression:   "new version causing issues",
	models.ClassAvailabilityLoss:       "service or resource down",
	models.ClassPerformanceDegradation: "slow but not saturated",
	models.ClassDataInconsistency:      "replication lag or corruption",
}

// keywordRule binds trigger phrases to one incident class. Rules are
// evaluated in declaration order: the first match becomes the primary class,
// later matches become secondaries. Specific phrases come before generic
// ones so "connection refused" lands on dependency_failure, not on the
// broader network rule.
type keywordRule struct {
	class models.IncidentClass
	terms []string
}

var keywordRules = []keywordRule{
	{models.ClassDependencyFailure, []string{"connection refused", "refused", "dependency", "upstream", "downstream"}},
	{models.ClassPermissionFailure, []string{"permission denied", "access denied", "permission", "unauthorized", "forbidden", "accessdenied"}},
	{models.ClassCostAnomaly, []string{"cost", "bill", "spend", "budget", "expensive"}},
	{models.ClassDataInconsistency, []string{"replication", "inconsistent", "stale data", "corrupt", "data loss"}},
	{models.ClassDeploymentRegression, []string{"deploy", "release", "rollback", "regression", "new version"}},
	{models.ClassConfigurationDrift, []string{"configuration", "config", "drift", "parameter group", "setting"}},
	{models.ClassScalingFailure, []string{"autoscal", "scaling", "scale out", "scale up", "capacity"}},
	{models.ClassResourceSaturation, []string{"cpu", "memory", "disk", "saturat", "out of connections", "exhaust"}},
	{models.ClassLoadSpike, []string{"spike", "surge", "traffic", "burst"}},
	{models.ClassNetworkConnectivity, []string{"timeout", "timing out", "unreachable", "network", "dns", "connectivity"}},
	{models.ClassAvailabilityLoss, []string{"down", "outage", "unavailable", "crash", "offline", "not responding"}},
	{models.ClassPerformanceDegradation, []string{"slow", "latency", "performance", "degrad", "response time"}},
}

// classifyByKeywords is the deterministic fallback: an ordered scan of the
// lowered query against the keyword table.
func classifyByKeywords(query string) models.IncidentClassification {
	lowered := strings.ToLower(query)

	var matched []models.IncidentClass
	for _, rule := range keywordRules {
		for _, term := range rule.terms {
			if strings.Contains(lowered, term) {
				matched = append(matched, rule.class)
				break
			}
		}
	}

	classification := models.IncidentClassification{
		Source:  models.SourceKeyword,
		Context: extractContext(lowered),
	}
	if len(matched) == 0 {
		classification.Primary = models.ClassPerformanceDegradation
		classification.Confidence = 0.3
		return classification
	}
	classification.Primary = matched[0]
	classification.Secondary = matched[1:]
	classification.Confidence = fallbackConfidence
	return classification
}

var resourceTypeHints = []struct {
	term         string
	resourceType string
}{
	{"rds", "rds"},
	{"postgres", "rds"},
	{"mysql", "rds"},
	{"database", "rds"},
	{"dynamodb", "dynamodb"},
	{"lambda", "lambda"},
	{"function", "lambda"},
	{"ec2", "ec2"},
	{"instance", "ec2"},
}

var metricHints = []string{"cpu", "memory", "disk", "connections", "errors", "throttles", "iops", "network"}

// resourceIDPattern matches identifier-looking tokens: instance ids and
// hyphenated names like orders-db.
var resourceIDPattern = regexp.MustCompile(`\b(?:i-[0-9a-f]{8,17}|[a-z][a-z0-9]*(?:-[a-z0-9]+)+)\b`)

// idStopList rejects hyphenated phrases that are vocabulary, not
// identifiers.
var idStopList = map[string]bool{
	"scale-out":      true,
	"scale-up":       true,
	"multi-az":       true,
	"read-only":      true,
	"auto-scaling":   true,
	"us-east-1":      true,
	"us-west-2":      true,
	"eu-west-1":      true,
	"x-ray":          true,
	"load-balancer":  true,
	"rate-limit":     true,
	"health-check":   true,
	"rollback-ready": true,
}

// extractContext pulls best-effort resource hints from the lowered query.
func extractContext(lowered string) models.ExtractedContext {
	ctx := models.ExtractedContext{}
	for _, hint := range resourceTypeHints {
		if strings.Contains(lowered, hint.term) {
			ctx.ResourceType = hint.resourceType
			break
		}
	}
	for _, metric := range metricHints {
		if strings.Contains(lowered, metric) {
			ctx.Metric = metric
			break
		}
	}
	for _, candidate := range resourceIDPattern.FindAllString(lowered, -1) {
		if !idStopList[candidate] {
			ctx.ResourceID = candidate
			break
		}
	}
	return ctx
}

// applyHints overlays caller-supplied context over extracted values. The
// caller knows its own resources; non-zero hint fields win.
func applyHints(ctx *models.ExtractedContext, hints *models.ExtractedContext) {
	if hints == nil {
		return
	}
	if hints.ResourceType != "" {
		ctx.ResourceType = strings.ToLower(hints.ResourceType)
	}
	if hints.ResourceID != "" {
		ctx.ResourceID = hints.ResourceID
	}
	if hints.Metric != "" {
		ctx.Metric = strings.ToLower(hints.Metric)
	}
	if hints.Scope != "" {
		ctx.Scope = hints.Scope
	}
	if hints.WindowSeconds > 0 {
		ctx.WindowSeconds = hints.WindowSeconds
	}
}

// extractJSON trims everything outside the outermost JSON object, tolerating
// models that wrap their answer in code fences or prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
