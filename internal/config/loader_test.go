package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("expected max_conns 15, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Executor.FailurePolicy != FailurePolicyHalt {
		t.Errorf("expected failure policy halt, got %s", cfg.Executor.FailurePolicy)
	}
	if cfg.Executor.MaxParallel != 4 {
		t.Errorf("expected max_parallel 4, got %d", cfg.Executor.MaxParallel)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
postgres:
  max_conns: 20
logging:
  level: "debug"
executor:
  failure_policy: "continue"
  step_timeout: "30s"
catalog:
  pipeline_dir: "/etc/agentrelay/pipelines"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 20 {
		t.Errorf("expected max_conns 20, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Executor.FailurePolicy != FailurePolicyContinue {
		t.Errorf("expected failure policy continue, got %s", cfg.Executor.FailurePolicy)
	}
	if cfg.Executor.StepTimeout != 30*time.Second {
		t.Errorf("expected step timeout 30s, got %v", cfg.Executor.StepTimeout)
	}
	if cfg.Catalog.PipelineDir != "/etc/agentrelay/pipelines" {
		t.Errorf("expected pipeline dir, got %q", cfg.Catalog.PipelineDir)
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err == nil {
		t.Fatal("expected parse error for malformed YAML")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("AGENTRELAY_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("AGENTRELAY_PG_MAX_CONNS", "25")
	t.Setenv("AGENTRELAY_LOG_LEVEL", "warn")
	t.Setenv("AGENTRELAY_BREAKER_TIMEOUT", "1m")
	t.Setenv("AGENTRELAY_MAX_PARALLEL", "8")
	t.Setenv("AGENTRELAY_RESUME_ON_STARTUP", "false")
	t.Setenv("AGENTRELAY_CACHE_L1_SIZE_MB", "128")
	t.Setenv("AGENTRELAY_SLACK_WEBHOOK_URL", "https://hooks.slack.example/T1")
	t.Setenv("AGENTRELAY_WS_ORIGINS", "dash.example.com, ,*.internal.example")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Postgres.MaxConns != 25 {
		t.Errorf("expected max_conns 25, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Breaker.Timeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Executor.MaxParallel != 8 {
		t.Errorf("expected max_parallel 8, got %d", cfg.Executor.MaxParallel)
	}
	if cfg.Executor.ResumeOnStartup {
		t.Error("expected resume_on_startup false")
	}
	if cfg.Cache.L1MaxSizeMB != 128 {
		t.Errorf("expected l1 size 128, got %d", cfg.Cache.L1MaxSizeMB)
	}
	if cfg.Notifications.SlackWebhookURL != "https://hooks.slack.example/T1" {
		t.Errorf("expected slack webhook from env, got %q", cfg.Notifications.SlackWebhookURL)
	}
	if len(cfg.Server.WSOrigins) != 2 || cfg.Server.WSOrigins[1] != "*.internal.example" {
		t.Errorf("expected two ws origins, got %v", cfg.Server.WSOrigins)
	}
}

func TestEnvOverrideIgnoresMalformed(t *testing.T) {
	cfg := Defaults()

	t.Setenv("AGENTRELAY_MAX_PARALLEL", "lots")
	t.Setenv("AGENTRELAY_STEP_TIMEOUT", "soon")

	loadEnv(&cfg)

	if cfg.Executor.MaxParallel != 4 {
		t.Errorf("malformed int should keep default, got %d", cfg.Executor.MaxParallel)
	}
	if cfg.Executor.StepTimeout != 5*time.Minute {
		t.Errorf("malformed duration should keep default, got %v", cfg.Executor.StepTimeout)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "empty DSN",
			modify: func(c *Config) { c.Postgres.DSN = "" },
			errMsg: "postgres.dsn is required",
		},
		{
			name:   "zero max_conns",
			modify: func(c *Config) { c.Postgres.MaxConns = 0 },
			errMsg: "postgres.max_conns must be >= 1",
		},
		{
			name:   "unknown store",
			modify: func(c *Config) { c.Executor.Store = "redis" },
			errMsg: `executor.store must be "postgres" or "memory"`,
		},
		{
			name:   "negative rate limit",
			modify: func(c *Config) { c.Server.RateLimitRPS = -1 },
			errMsg: "server.rate_limit_rps must be >= 0",
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
		{
			name:   "zero max_parallel",
			modify: func(c *Config) { c.Executor.MaxParallel = 0 },
			errMsg: "executor.max_parallel must be >= 1",
		},
		{
			name:   "unknown failure policy",
			modify: func(c *Config) { c.Executor.FailurePolicy = "retry" },
			errMsg: `executor.failure_policy must be "halt" or "continue"`,
		},
		{
			name:   "mcp without path",
			modify: func(c *Config) { c.MCP.Path = "" },
			errMsg: "mcp.path is required when mcp is enabled",
		},
		{
			name:   "unknown notification event",
			modify: func(c *Config) { c.Notifications.Events = []string{"run.completed"} },
			errMsg: `notifications.events: unknown event "run.completed"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

// TestValidateMemoryStoreSkipsPostgres verifies that the in-memory store does
// not require a database DSN.
func TestValidateMemoryStoreSkipsPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Executor.Store = StoreMemory
	cfg.Postgres.DSN = ""
	if err := validate(&cfg); err != nil {
		t.Errorf("memory store should validate without DSN, got %v", err)
	}
}

func TestLoadFrom_FullHierarchy(t *testing.T) {
	// YAML sets port=9090, env overrides to 7070. Env must win.
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
server:
  port: "9090"
logging:
  level: "debug"
executor:
  max_parallel: 2
`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AGENTRELAY_PORT", "7070")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("env should win over yaml, got port %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("yaml should win over defaults, got level %s", cfg.Logging.Level)
	}
	if cfg.Executor.MaxParallel != 2 {
		t.Errorf("expected max_parallel 2, got %d", cfg.Executor.MaxParallel)
	}
}

func TestLoadFrom_ValidationError(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(yamlPath, []byte("executor:\n  failure_policy: \"sometimes\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(yamlPath); err == nil {
		t.Fatal("expected validation error")
	}
}
