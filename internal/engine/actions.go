package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/faultlinehq/faultline-engine/internal/models"
)

// Hypothesis types produced by the rule heuristics. They key the action
// table; packs may override actions per type.
const (
	HypothesisChangeInducedSaturation = "change_induced_saturation"
	HypothesisOrganicSaturation       = "organic_saturation"
	HypothesisScalingExhaustion       = "scaling_exhaustion"
	HypothesisDependencyDegradation   = "dependency_degradation"
	HypothesisNetworkPathFailure      = "network_path_failure"
	HypothesisDeploymentRegression    = "deployment_regression"
	HypothesisCostRunaway             = "cost_runaway"
	HypothesisAccessDenied            = "access_denied"
	HypothesisConfigDrift             = "config_drift"
	HypothesisModelSuggested          = "model_suggested"
)

// ActionTable maps hypothesis types to recommended actions. Built-in
// entries cover every hypothesis type the rule heuristics emit; an optional
// YAML pack overrides entries per type and can be hot-reloaded.
type ActionTable struct {
	mu       sync.RWMutex
	entries  map[string][]models.RecommendedAction
	packPath string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// packAction is one action entry in a YAML pack.
type packAction struct {
	Action   string `yaml:"action"`
	Priority int    `yaml:"priority"`
	Command  string `yaml:"command"`
}

// actionPackFile is the YAML root structure.
type actionPackFile struct {
	Actions map[string][]packAction `yaml:"actions"`
}

// NewActionTable builds the table from built-ins plus the optional pack at
// packPath. An empty or missing pack path leaves the built-ins as-is. With
// watch set and a pack present, edits to the pack file are picked up
// without a restart; a reload that fails to parse keeps the previous
// entries.
func NewActionTable(packPath string, watch bool, logger *slog.Logger) (*ActionTable, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &ActionTable{entries: builtinActions(), packPath: packPath, logger: logger}
	if packPath == "" {
		return t, nil
	}

	if err := t.loadPack(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("action pack not found, using built-in table",
				slog.String("path", packPath))
			return t, nil
		}
		return nil, fmt.Errorf("load action pack: %w", err)
	}

	if watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("watch action pack: %w", err)
		}
		if err := watcher.Add(packPath); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch action pack: %w", err)
		}
		t.watcher = watcher
		go t.watchPack()
	}
	return t, nil
}

// Lookup returns the actions for a hypothesis type, lowest priority rank
// first. The returned slice is the caller's to keep.
func (t *ActionTable) Lookup(hypothesisType string) []models.RecommendedAction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	actions := t.entries[hypothesisType]
	if len(actions) == 0 {
		return nil
	}
	return append([]models.RecommendedAction(nil), actions...)
}

// Close stops the pack watcher, if any.
func (t *ActionTable) Close() error {
	if t.watcher == nil {
		return nil
	}
	return t.watcher.Close()
}

// loadPack reads the pack file and overlays its entries onto the built-in
// table. Types named by the pack are replaced wholesale; unnamed types keep
// their built-in actions.
func (t *ActionTable) loadPack() error {
	data, err := os.ReadFile(t.packPath)
	if err != nil {
		return err
	}
	var pack actionPackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return err
	}

	entries := builtinActions()
	for hypothesisType, actions := range pack.Actions {
		converted := make([]models.RecommendedAction, 0, len(actions))
		for _, a := range actions {
			if a.Action == "" {
				continue
			}
			converted = append(converted, models.RecommendedAction{
				Action:   a.Action,
				Priority: a.Priority,
				Command:  a.Command,
			})
		}
		entries[hypothesisType] = converted
	}

	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	t.logger.Info("action pack loaded",
		slog.String("path", t.packPath),
		slog.Int("overridden_types", len(pack.Actions)))
	return nil
}

func (t *ActionTable) watchPack() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := t.loadPack(); err != nil {
				t.logger.Warn("action pack reload failed, keeping previous entries",
					slog.String("path", t.packPath),
					slog.Any("error", err))
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.logger.Warn("action pack watcher error", slog.Any("error", err))
		}
	}
}

func builtinActions() map[string][]models.RecommendedAction {
	return map[string][]models.RecommendedAction{
		HypothesisChangeInducedSaturation: {
			{Action: "Review the most recent change and prepare a rollback", Priority: 1,
				Command: "aws cloudtrail lookup-events --max-results 5"},
			{Action: "Compare current utilization against the pre-change baseline", Priority: 2,
				Command: "aws cloudwatch get-metric-statistics --metric-name CPUUtilization --statistics Average"},
		},
		HypothesisOrganicSaturation: {
			{Action: "Scale the resource up or out to relieve pressure", Priority: 1,
				Command: "aws application-autoscaling describe-scaling-activities"},
			{Action: "Identify and throttle the top consumers on the resource", Priority: 2,
				Command: "aws pi get-resource-metrics --metric-queries file://top-consumers.json"},
		},
		HypothesisScalingExhaustion: {
			{Action: "Raise the maximum capacity on the scaling policy", Priority: 1,
				Command: "aws application-autoscaling register-scalable-target --max-capacity <new-max>"},
			{Action: "Request a quota increase for the resource family", Priority: 2,
				Command: "aws service-quotas request-service-quota-increase"},
		},
		HypothesisDependencyDegradation: {
			{Action: "Inspect error rate and health of the unhealthy dependency", Priority: 1,
				Command: "aws cloudwatch get-metric-statistics --metric-name Errors --statistics Sum"},
			{Action: "Fail over or route traffic around the degraded dependency", Priority: 2,
				Command: "aws route53 get-health-check-status --health-check-id <id>"},
		},
		HypothesisNetworkPathFailure: {
			{Action: "Verify security group and network ACL rules on the failing path", Priority: 1,
				Command: "aws ec2 describe-security-groups --group-ids <sg-id>"},
			{Action: "Run a reachability analysis between the endpoints", Priority: 2,
				Command: "aws ec2 create-network-insights-path --source <src> --destination <dst>"},
		},
		HypothesisDeploymentRegression: {
			{Action: "Roll back to the previous deployment", Priority: 1,
				Command: "aws deploy stop-deployment --deployment-id <id> --auto-rollback-enabled"},
			{Action: "Diff the regressed version against the last known good release", Priority: 2,
				Command: "git diff <last-good-tag>..HEAD"},
		},
		HypothesisCostRunaway: {
			{Action: "Inspect the top spending service for unplanned usage", Priority: 1,
				Command: "aws ce get-cost-and-usage --granularity DAILY --metrics UnblendedCost"},
			{Action: "Set or tighten a budget alert for the affected scope", Priority: 2,
				Command: "aws budgets describe-budgets --account-id <account>"},
		},
		HypothesisAccessDenied: {
			{Action: "Audit the denying policy statements and recent policy edits", Priority: 1,
				Command: "aws iam simulate-principal-policy --policy-source-arn <arn> --action-names <action>"},
			{Action: "Search access logs for the denied principal and operation", Priority: 2,
				Command: "aws cloudtrail lookup-events --lookup-attributes AttributeKey=EventName,AttributeValue=AccessDenied"},
		},
		HypothesisConfigDrift: {
			{Action: "Revert the drifted keys to their last known good values", Priority: 1,
				Command: "aws cloudtrail lookup-events --max-results 5"},
			{Action: "Re-run configuration validation against the baseline", Priority: 2,
				Command: "aws config get-compliance-details-by-resource --resource-type <type> --resource-id <id>"},
		},
		HypothesisModelSuggested: {
			{Action: "Validate the proposed cause against the cited facts before acting", Priority: 3},
		},
	}
}
