package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.Limit != 200 {
		t.Fatalf("expected limit 200, got %d", cfg.Search.Limit)
	}
	if len(cfg.Search.Keywords) != 14 || cfg.Search.Keywords[0] != "data analytics" {
		t.Fatalf("expected default keyword list, got %v", cfg.Search.Keywords)
	}
	if cfg.Search.Timeout != 60*time.Second {
		t.Fatalf("expected 60s timeout, got %v", cfg.Search.Timeout)
	}
	if cfg.Artifact.Path != "/tmp/govcontracts_data.csv" {
		t.Fatalf("unexpected artifact path %q", cfg.Artifact.Path)
	}
	if got := cfg.Target().String(); got != "EPLAYGROUND.GOVCONTRACTS.RAW_CONTRACTS" {
		t.Fatalf("unexpected target %q", got)
	}
	if cfg.Notify.Provider != NotifyNone {
		t.Fatalf("expected no notifier, got %q", cfg.Notify.Provider)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
search:
  keywords: ["ETL", "data lake"]
  limit: 25
  timeout: 15s
  start_date: "2023-01-01"
artifact:
  path: /var/tmp/awards.csv
  gcs_bucket: bucket
  gcs_prefix: runs
warehouse:
  enabled: true
  profile: analytics
  connections_file: /etc/govcontracts/connections.toml
  database: ANALYTICS
  schema: PUBLIC
  table: AWARDS
  connect_timeout: 5s
notify:
  provider: PubSub
  project_id: proj
  topic: contract-runs
metrics:
  pushgateway_url: http://localhost:9091
server:
  port: 9090
  api_key: secret
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path, filepath.Join(dir, "none.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.APIKey != "secret" {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if len(cfg.Search.Keywords) != 2 || cfg.Search.Keywords[1] != "data lake" {
		t.Fatalf("expected keyword overrides, got %v", cfg.Search.Keywords)
	}
	if cfg.Search.Timeout != 15*time.Second || cfg.Warehouse.ConnectTimeout != 5*time.Second {
		t.Fatalf("expected durations to decode, got %v and %v", cfg.Search.Timeout, cfg.Warehouse.ConnectTimeout)
	}
	if cfg.Notify.Provider != NotifyPubSub {
		t.Fatalf("expected provider to be normalized, got %q", cfg.Notify.Provider)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}

	pcfg := cfg.PipelineConfig()
	if pcfg.Limit != 25 || pcfg.NotifyTopic != "contract-runs" {
		t.Fatalf("unexpected pipeline config %+v", pcfg)
	}
	dcfg := cfg.DeliveryConfig()
	if dcfg.Target.String() != "ANALYTICS.PUBLIC.AWARDS" || !dcfg.WarehouseEnabled {
		t.Fatalf("unexpected delivery config %+v", dcfg)
	}
	fcfg := cfg.FetcherConfig()
	if fcfg.StartDate != "2023-01-01" || fcfg.Timeout != 15*time.Second {
		t.Fatalf("unexpected fetcher config %+v", fcfg)
	}
}

func TestLoadReadsDotEnvAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("GOVCONTRACTS_SEARCH_LIMIT=42\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("GOVCONTRACTS_SEARCH_LIMIT") })
	t.Setenv("GOVCONTRACTS_WAREHOUSE_ENABLED", "false")

	cfg, err := Load("", envPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.Limit != 42 {
		t.Fatalf("expected limit from .env, got %d", cfg.Search.Limit)
	}
	if cfg.Warehouse.Enabled {
		t.Fatalf("expected warehouse disabled from environment")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid limit", func(c *Config) { c.Search.Limit = 0 }, "search.limit"},
		{"invalid timeout", func(c *Config) { c.Search.Timeout = 0 }, "search.timeout"},
		{"bad endpoint", func(c *Config) { c.Search.Endpoint = "ftp://example.com" }, "search.endpoint"},
		{"no keywords", func(c *Config) { c.Search.Keywords = nil }, "search.keywords"},
		{"blank keyword", func(c *Config) { c.Search.Keywords = []string{"ETL", " "} }, "search.keywords[1]"},
		{"bad start date", func(c *Config) { c.Search.StartDate = "01/01/2020" }, "search.start_date"},
		{"negative rate", func(c *Config) { c.Search.RequestsPerSecond = -1 }, "search.requests_per_second"},
		{"no award types", func(c *Config) { c.Search.AwardTypeCodes = nil }, "search.award_type_codes"},
		{"no artifact path", func(c *Config) { c.Artifact.Path = "" }, "artifact.path"},
		{"no profile", func(c *Config) { c.Warehouse.Profile = "" }, "warehouse.profile"},
		{"bad table", func(c *Config) { c.Warehouse.Table = "RAW;DROP" }, "table"},
		{"negative connect timeout", func(c *Config) { c.Warehouse.ConnectTimeout = -time.Second }, "warehouse.connect_timeout"},
		{"unknown notifier", func(c *Config) { c.Notify.Provider = "kafka" }, "notify.provider"},
		{"pubsub missing topic", func(c *Config) { c.Notify.Provider = NotifyPubSub; c.Notify.ProjectID = "p" }, "notify.topic"},
		{"sns missing arn", func(c *Config) { c.Notify.Provider = NotifySNS }, "notify.sns_topic_arn"},
		{"redis lock without ttl", func(c *Config) { c.Server.RedisAddr = "localhost:6379"; c.Server.LockTTL = 0 }, "server.lock_ttl"},
		{"push missing job", func(c *Config) { c.Metrics.PushgatewayURL = "http://pg:9091"; c.Metrics.JobName = "" }, "metrics.job_name"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Search.Keywords = append([]string(nil), base.Search.Keywords...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateSkipsWarehouseWhenDisabled(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Warehouse.Enabled = false
	cfg.Warehouse.Profile = ""
	cfg.Warehouse.Table = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
