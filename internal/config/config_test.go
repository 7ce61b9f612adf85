package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddress != ":8080" || cfg.Server.MetricsAddress != ":9090" {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
	if cfg.Collaborator.Provider != "none" {
		t.Fatalf("collaborator provider = %q", cfg.Collaborator.Provider)
	}
	if cfg.Classifier.ConfidenceThreshold != 0.6 {
		t.Fatalf("classifier threshold = %v", cfg.Classifier.ConfidenceThreshold)
	}
	if cfg.Executor.StepTimeout != 10*time.Second {
		t.Fatalf("step timeout = %v", cfg.Executor.StepTimeout)
	}
	if cfg.Interpreter.DegradedPenalty != 0.8 || cfg.Interpreter.ReviewThreshold != 0.6 {
		t.Fatalf("interpreter defaults = %+v", cfg.Interpreter)
	}
	if cfg.Audit.Directory != "logs" || !cfg.Audit.Compress {
		t.Fatalf("audit defaults = %+v", cfg.Audit)
	}
	if cfg.Cache.Enabled || cfg.Cache.Backend != "memory" {
		t.Fatalf("cache defaults = %+v", cfg.Cache)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faultline.yaml")
	data := []byte(`
server:
  listen_address: ":9999"
telemetry:
  endpoint: "http://telemetry.internal:7070"
  timeout: 3s
collaborator:
  provider: "anthropic"
  model: "claude-3-5-haiku-20241022"
executor:
  step_timeout: 2s
interpreter:
  degraded_penalty: 0.7
logging:
  level: "debug"
  json: false
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddress != ":9999" {
		t.Fatalf("listen address = %q", cfg.Server.ListenAddress)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Server.MetricsAddress != ":9090" {
		t.Fatalf("metrics address = %q", cfg.Server.MetricsAddress)
	}
	if cfg.Telemetry.Endpoint != "http://telemetry.internal:7070" || cfg.Telemetry.Timeout != 3*time.Second {
		t.Fatalf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Collaborator.Provider != "anthropic" || cfg.Collaborator.Model != "claude-3-5-haiku-20241022" {
		t.Fatalf("collaborator = %+v", cfg.Collaborator)
	}
	if cfg.Executor.StepTimeout != 2*time.Second {
		t.Fatalf("step timeout = %v", cfg.Executor.StepTimeout)
	}
	if cfg.Interpreter.DegradedPenalty != 0.7 {
		t.Fatalf("degraded penalty = %v", cfg.Interpreter.DegradedPenalty)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.JSON {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faultline.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_address: \":9999\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FAULTLINE_SERVER_LISTEN", ":7777")
	t.Setenv("FAULTLINE_CLASSIFIER_THRESHOLD", "0.75")
	t.Setenv("FAULTLINE_EXECUTOR_STEP_TIMEOUT", "750ms")
	t.Setenv("FAULTLINE_CACHE_ENABLED", "true")
	t.Setenv("FAULTLINE_CACHE_BACKEND", "valkey")
	t.Setenv("FAULTLINE_LOG_FORMAT", "text")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddress != ":7777" {
		t.Fatalf("listen address = %q, env override lost", cfg.Server.ListenAddress)
	}
	if cfg.Classifier.ConfidenceThreshold != 0.75 {
		t.Fatalf("classifier threshold = %v", cfg.Classifier.ConfidenceThreshold)
	}
	if cfg.Executor.StepTimeout != 750*time.Millisecond {
		t.Fatalf("step timeout = %v", cfg.Executor.StepTimeout)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Backend != "valkey" {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Logging.JSON {
		t.Fatal("log format env override lost")
	}
}

func TestEnvConfigPathFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faultline.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_address: \":6666\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FAULTLINE_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddress != ":6666" {
		t.Fatalf("listen address = %q", cfg.Server.ListenAddress)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faultline.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestInvalidEnvValuesIgnored(t *testing.T) {
	t.Setenv("FAULTLINE_EXECUTOR_STEP_TIMEOUT", "not-a-duration")
	t.Setenv("FAULTLINE_CLASSIFIER_THRESHOLD", "not-a-float")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Executor.StepTimeout != 10*time.Second {
		t.Fatalf("step timeout = %v, want default kept", cfg.Executor.StepTimeout)
	}
	if cfg.Classifier.ConfidenceThreshold != 0.6 {
		t.Fatalf("threshold = %v, want default kept", cfg.Classifier.ConfidenceThreshold)
	}
}
