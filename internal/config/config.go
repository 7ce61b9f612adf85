package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the diagnosis engine.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Collaborator CollaboratorConfig `yaml:"collaborator"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Executor     ExecutorConfig     `yaml:"executor"`
	Interpreter  InterpreterConfig  `yaml:"interpreter"`
	Actions      ActionsConfig      `yaml:"actions"`
	Audit        AuditConfig        `yaml:"audit"`
	Cache        CacheConfig        `yaml:"cache"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	ListenAddress   string        `yaml:"listen_address"`
	MetricsAddress  string        `yaml:"metrics_address"`
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// TelemetryConfig configures access to the cloud telemetry backend
// (mock-cloud in local development).
type TelemetryConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	ServiceToken string        `yaml:"service_token"`
}

// CollaboratorConfig selects and configures the language model collaborator.
type CollaboratorConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ClassifierConfig tunes incident classification.
type ClassifierConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// ExecutorConfig tunes plan execution.
type ExecutorConfig struct {
	StepTimeout time.Duration `yaml:"step_timeout"`
}

// InterpreterConfig tunes result interpretation.
type InterpreterConfig struct {
	DegradedPenalty float64 `yaml:"degraded_penalty"`
	ReviewThreshold float64 `yaml:"review_threshold"`
}

// ActionsConfig controls action-pack loading for the interpreter.
type ActionsConfig struct {
	PackPath string `yaml:"pack_path"`
	Watch    bool   `yaml:"watch"`
}

// AuditConfig controls the JSONL audit trail.
type AuditConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// CacheConfig controls caching of closed-window telemetry reads.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Backend      string        `yaml:"backend"`
	Address      string        `yaml:"address"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	TTL          time.Duration `yaml:"ttl"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	TLS          bool          `yaml:"tls"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FAULTLINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddress:   ":8080",
			MetricsAddress:  ":9090",
			GracefulTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Endpoint: "http://localhost:7070",
			Timeout:  10 * time.Second,
		},
		Collaborator: CollaboratorConfig{
			Provider: "none",
			Timeout:  120 * time.Second,
		},
		Classifier: ClassifierConfig{ConfidenceThreshold: 0.6},
		Executor:   ExecutorConfig{StepTimeout: 10 * time.Second},
		Interpreter: InterpreterConfig{
			DegradedPenalty: 0.8,
			ReviewThreshold: 0.6,
		},
		Actions: ActionsConfig{},
		Audit: AuditConfig{
			Directory:  "logs",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Cache: CacheConfig{
			Enabled:      false,
			Backend:      "memory",
			Address:      "localhost:6379",
			TTL:          5 * time.Minute,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Logging: LoggingConfig{Level: "info", JSON: true},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FAULTLINE_SERVER_LISTEN"); v != "" {
		cfg.Server.ListenAddress = v
	}
	if v := os.Getenv("FAULTLINE_SERVER_METRICS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FAULTLINE_SERVER_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}
	if v := os.Getenv("FAULTLINE_TELEMETRY_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v := os.Getenv("FAULTLINE_TELEMETRY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Telemetry.Timeout = d
		}
	}
	if v := os.Getenv("FAULTLINE_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.ServiceToken = v
	}
	if v := os.Getenv("FAULTLINE_COLLABORATOR_PROVIDER"); v != "" {
		cfg.Collaborator.Provider = v
	}
	if v := os.Getenv("FAULTLINE_COLLABORATOR_MODEL"); v != "" {
		cfg.Collaborator.Model = v
	}
	if v := os.Getenv("FAULTLINE_COLLABORATOR_API_KEY"); v != "" {
		cfg.Collaborator.APIKey = v
	}
	if v := os.Getenv("FAULTLINE_COLLABORATOR_BASE_URL"); v != "" {
		cfg.Collaborator.BaseURL = v
	}
	if v := os.Getenv("FAULTLINE_COLLABORATOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Collaborator.Timeout = d
		}
	}
	if v := os.Getenv("FAULTLINE_CLASSIFIER_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Classifier.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("FAULTLINE_EXECUTOR_STEP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Executor.StepTimeout = d
		}
	}
	if v := os.Getenv("FAULTLINE_INTERPRETER_DEGRADED_PENALTY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Interpreter.DegradedPenalty = f
		}
	}
	if v := os.Getenv("FAULTLINE_INTERPRETER_REVIEW_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Interpreter.ReviewThreshold = f
		}
	}
	if v := os.Getenv("FAULTLINE_ACTIONS_PACK_PATH"); v != "" {
		cfg.Actions.PackPath = v
	}
	if v := os.Getenv("FAULTLINE_ACTIONS_WATCH"); v != "" {
		cfg.Actions.Watch = isTrue(v)
	}
	if v := os.Getenv("FAULTLINE_AUDIT_DIR"); v != "" {
		cfg.Audit.Directory = v
	}
	if v := os.Getenv("FAULTLINE_AUDIT_MAX_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audit.MaxSizeMB = n
		}
	}
	if v := os.Getenv("FAULTLINE_AUDIT_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audit.MaxBackups = n
		}
	}
	if v := os.Getenv("FAULTLINE_AUDIT_MAX_AGE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Audit.MaxAgeDays = n
		}
	}
	if v := os.Getenv("FAULTLINE_AUDIT_COMPRESS"); v != "" {
		cfg.Audit.Compress = isTrue(v)
	}
	if v := os.Getenv("FAULTLINE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = isTrue(v)
	}
	if v := os.Getenv("FAULTLINE_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("FAULTLINE_CACHE_ADDR"); v != "" {
		cfg.Cache.Address = v
	}
	if v := os.Getenv("FAULTLINE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("FAULTLINE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("FAULTLINE_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("FAULTLINE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("FAULTLINE_CACHE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DialTimeout = d
		}
	}
	if v := os.Getenv("FAULTLINE_CACHE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ReadTimeout = d
		}
	}
	if v := os.Getenv("FAULTLINE_CACHE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.WriteTimeout = d
		}
	}
	if v := os.Getenv("FAULTLINE_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
	if v := os.Getenv("FAULTLINE_CACHE_TLS"); v != "" {
		cfg.Cache.TLS = isTrue(v)
	}
	if v := os.Getenv("FAULTLINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FAULTLINE_LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
