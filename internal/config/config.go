// Package config provides configuration loading for remedyd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the remediation daemon.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Project      ProjectConfig      `koanf:"project"`
	Collectors   CollectorsConfig   `koanf:"collectors"`
	Policy       PolicyConfig       `koanf:"policy"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Learning     LearningConfig     `koanf:"learning"`
}

// ServerConfig configures the operator HTTP surface.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// TelemetryConfig configures OTel export. Tracing is disabled when the
// endpoint is empty; prometheus metrics are always registered.
type TelemetryConfig struct {
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	Insecure     bool   `koanf:"insecure"`
}

// ProjectConfig describes the managed target project.
type ProjectConfig struct {
	Root             string   `koanf:"root"`
	BuildCommand     []string `koanf:"build_command"`
	LogPath          string   `koanf:"log_path"`
	SamplePath       string   `koanf:"sample_path"`
	MetricPath       string   `koanf:"metric_path"`
	ResourceManifest string   `koanf:"resource_manifest"`
	BackupDir        string   `koanf:"backup_dir"`
	BaselineDir      string   `koanf:"baseline_dir"`
}

// CollectorsConfig bounds the gathering phase.
type CollectorsConfig struct {
	Timeout Duration `koanf:"timeout"` // per-collector
}

// PolicyConfig holds the decision policy knobs. The formula constants and
// risk cutoffs are asserted policy, not tuned truths, so all of them are
// overridable by file and environment.
type PolicyConfig struct {
	SeverityWeights  map[string]float64 `koanf:"severity_weights"`
	RiskAutoApplyMax float64            `koanf:"risk_auto_apply_max"`
	RiskAssistedMax  float64            `koanf:"risk_assisted_max"`
	ConfidenceFloor  float64            `koanf:"confidence_floor"`
	ProtectedScopes  []string           `koanf:"protected_scopes"`
	FixTableFile     string             `koanf:"fix_table_file"`
}

// OrchestratorConfig bounds the remediation loop.
type OrchestratorConfig struct {
	MaxIterations   int      `koanf:"max_iterations" json:"max_iterations"`
	IterationBudget Duration `koanf:"iteration_budget" json:"iteration_budget"`
	ApprovalTimeout Duration `koanf:"approval_timeout" json:"approval_timeout"`
	Concurrency     int      `koanf:"concurrency" json:"concurrency"`
}

// LearningConfig configures outcome persistence.
type LearningConfig struct {
	Path string `koanf:"path"`
}

// Default returns the built-in configuration. Values here match the policy
// defaults the pipeline was specified with; every one of them can be
// overridden by file or environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8710,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "remedyd",
		},
		Project: ProjectConfig{
			Root:             ".",
			LogPath:          "runtime.log",
			SamplePath:       "samples.jsonl",
			MetricPath:       "metrics.jsonl",
			ResourceManifest: "resources.yaml",
			BackupDir:        ".remedyd/backups",
			BaselineDir:      ".remedyd/baselines",
		},
		Collectors: CollectorsConfig{
			Timeout: Duration(2 * time.Minute),
		},
		Policy: PolicyConfig{
			SeverityWeights: map[string]float64{
				"critical": 10,
				"high":     7,
				"medium":   4,
				"low":      2,
			},
			RiskAutoApplyMax: 0.3,
			RiskAssistedMax:  0.7,
			ConfidenceFloor:  0.4,
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations:   10,
			IterationBudget: Duration(30 * time.Minute),
			ApprovalTimeout: Duration(15 * time.Minute),
			Concurrency:     2,
		},
		Learning: LearningConfig{
			Path: "remedyd-learning.jsonl",
		},
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Policy.ConfidenceFloor < 0 || c.Policy.ConfidenceFloor > 1 {
		return fmt.Errorf("policy.confidence_floor must be in [0,1], got %f", c.Policy.ConfidenceFloor)
	}
	if c.Policy.RiskAutoApplyMax <= 0 || c.Policy.RiskAutoApplyMax >= c.Policy.RiskAssistedMax {
		return fmt.Errorf("policy risk cutoffs must satisfy 0 < auto_apply_max < assisted_max, got %f, %f",
			c.Policy.RiskAutoApplyMax, c.Policy.RiskAssistedMax)
	}
	if c.Policy.RiskAssistedMax > 1 {
		return fmt.Errorf("policy.risk_assisted_max must be <= 1, got %f", c.Policy.RiskAssistedMax)
	}
	for _, sev := range []string{"critical", "high", "medium", "low"} {
		if w, ok := c.Policy.SeverityWeights[sev]; !ok || w <= 0 {
			return fmt.Errorf("policy.severity_weights.%s must be set and positive", sev)
		}
	}
	if c.Orchestrator.MaxIterations <= 0 {
		return fmt.Errorf("orchestrator.max_iterations must be positive, got %d", c.Orchestrator.MaxIterations)
	}
	if c.Orchestrator.IterationBudget.Duration() <= 0 {
		return fmt.Errorf("orchestrator.iteration_budget must be positive")
	}
	if c.Orchestrator.Concurrency <= 0 {
		return fmt.Errorf("orchestrator.concurrency must be positive, got %d", c.Orchestrator.Concurrency)
	}
	return nil
}
