package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentrelay.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("AGENTRELAY_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "AGENTRELAY_PORT")
	setDuration(&cfg.Server.RequestTimeout, "AGENTRELAY_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "AGENTRELAY_SHUTDOWN_TIMEOUT")
	setFloat64(&cfg.Server.RateLimitRPS, "AGENTRELAY_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "AGENTRELAY_RATE_LIMIT_BURST")
	setList(&cfg.Server.WSOrigins, "AGENTRELAY_WS_ORIGINS")
	setString(&cfg.Server.PublicURL, "AGENTRELAY_PUBLIC_URL")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "AGENTRELAY_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "AGENTRELAY_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "AGENTRELAY_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "AGENTRELAY_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "AGENTRELAY_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.Logging.Level, "AGENTRELAY_LOG_LEVEL")
	setString(&cfg.Logging.Service, "AGENTRELAY_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "AGENTRELAY_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "AGENTRELAY_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "AGENTRELAY_BREAKER_TIMEOUT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "AGENTRELAY_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "AGENTRELAY_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "AGENTRELAY_CACHE_L2_TTL")

	// Executor
	setString(&cfg.Executor.FailurePolicy, "AGENTRELAY_FAILURE_POLICY")
	setInt(&cfg.Executor.MaxParallel, "AGENTRELAY_MAX_PARALLEL")
	setDuration(&cfg.Executor.StepTimeout, "AGENTRELAY_STEP_TIMEOUT")
	setBool(&cfg.Executor.ResumeOnStartup, "AGENTRELAY_RESUME_ON_STARTUP")
	setString(&cfg.Executor.Store, "AGENTRELAY_STORE")

	// Catalog
	setString(&cfg.Catalog.PipelineDir, "AGENTRELAY_PIPELINE_DIR")
	setString(&cfg.Catalog.AgentsFile, "AGENTRELAY_AGENTS_FILE")

	// Planner
	setString(&cfg.Planner.Model, "AGENTRELAY_PLANNER_MODEL")
	setInt(&cfg.Planner.MaxTokens, "AGENTRELAY_PLANNER_MAX_TOKENS")

	// Telemetry
	setBool(&cfg.Telemetry.Enabled, "AGENTRELAY_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "AGENTRELAY_OTEL_INSECURE")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "AGENTRELAY_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "AGENTRELAY_IDEMPOTENCY_TTL")

	// MCP
	setBool(&cfg.MCP.Enabled, "AGENTRELAY_MCP_ENABLED")
	setString(&cfg.MCP.Path, "AGENTRELAY_MCP_PATH")
	setString(&cfg.MCP.APIKey, "AGENTRELAY_MCP_API_KEY")
	setString(&cfg.MCP.KeyFile, "AGENTRELAY_MCP_KEY_FILE")

	// A2A
	setBool(&cfg.A2A.Enabled, "AGENTRELAY_A2A_ENABLED")

	// Notifications
	setString(&cfg.Notifications.SlackWebhookURL, "AGENTRELAY_SLACK_WEBHOOK_URL")
	setString(&cfg.Notifications.DiscordWebhookURL, "AGENTRELAY_DISCORD_WEBHOOK_URL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Executor.Store {
	case StorePostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("executor.store must be %q or %q", StorePostgres, StoreMemory)
	}
	if cfg.Server.RateLimitRPS < 0 {
		return errors.New("server.rate_limit_rps must be >= 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Executor.MaxParallel < 1 {
		return errors.New("executor.max_parallel must be >= 1")
	}
	if cfg.Executor.FailurePolicy != FailurePolicyHalt && cfg.Executor.FailurePolicy != FailurePolicyContinue {
		return fmt.Errorf("executor.failure_policy must be %q or %q", FailurePolicyHalt, FailurePolicyContinue)
	}
	if cfg.MCP.Enabled && cfg.MCP.Path == "" {
		return errors.New("mcp.path is required when mcp is enabled")
	}
	for _, e := range cfg.Notifications.Events {
		if !strings.HasPrefix(e, "execution.") {
			return fmt.Errorf("notifications.events: unknown event %q", e)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setList splits a comma-separated value, dropping empty entries.
func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*dst = items
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
