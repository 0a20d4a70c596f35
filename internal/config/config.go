// Package config loads and validates loader configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/govcontracts-loader/internal/delivery"
	"github.com/JakeFAU/govcontracts-loader/internal/fetcher/usaspending"
	"github.com/JakeFAU/govcontracts-loader/internal/lock"
	"github.com/JakeFAU/govcontracts-loader/internal/pipeline"
	"github.com/JakeFAU/govcontracts-loader/internal/warehouse"
)

// EnvPrefix prefixes every environment override, e.g. GOVCONTRACTS_SEARCH_LIMIT.
const EnvPrefix = "GOVCONTRACTS"

// Notification providers.
const (
	NotifyNone   = "none"
	NotifyPubSub = "pubsub"
	NotifySNS    = "sns"
)

// Config captures all loader configuration knobs loaded via Viper.
type Config struct {
	Search    SearchConfig    `mapstructure:"search"`
	Artifact  ArtifactConfig  `mapstructure:"artifact"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SearchConfig controls the keyword sweep against the award search API.
type SearchConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Keywords       []string      `mapstructure:"keywords"`
	Limit          int           `mapstructure:"limit"`
	Timeout        time.Duration `mapstructure:"timeout"`
	StartDate      string        `mapstructure:"start_date"`
	AwardTypeCodes []string      `mapstructure:"award_type_codes"`
	UserAgent      string        `mapstructure:"user_agent"`
	// RequestsPerSecond paces queries; zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ArtifactConfig sets where the CSV is written and mirrored.
type ArtifactConfig struct {
	Path      string `mapstructure:"path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
	StageName string `mapstructure:"stage_name"`
}

// WarehouseConfig names the connection profile and destination table.
type WarehouseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Profile         string        `mapstructure:"profile"`
	ConnectionsFile string        `mapstructure:"connections_file"`
	Database        string        `mapstructure:"database"`
	Schema          string        `mapstructure:"schema"`
	Warehouse       string        `mapstructure:"warehouse"`
	Table           string        `mapstructure:"table"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// NotifyConfig selects where run summaries are published.
type NotifyConfig struct {
	Provider    string `mapstructure:"provider"`
	ProjectID   string `mapstructure:"project_id"`
	Topic       string `mapstructure:"topic"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
	Region      string `mapstructure:"region"`
}

// MetricsConfig configures the optional Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// ServerConfig controls the HTTP trigger server.
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	APIKey        string        `mapstructure:"api_key"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	LockKey       string        `mapstructure:"lock_key"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional .env file, the config file at path
// and the environment. envFiles default to ".env" and may be absent.
func Load(path string, envFiles ...string) (Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Notify.Provider = strings.ToLower(strings.TrimSpace(cfg.Notify.Provider))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.endpoint", usaspending.DefaultEndpoint)
	v.SetDefault("search.keywords", pipeline.DefaultKeywords)
	v.SetDefault("search.limit", pipeline.DefaultLimit)
	v.SetDefault("search.timeout", usaspending.DefaultTimeout)
	v.SetDefault("search.start_date", usaspending.DefaultStartDate)
	v.SetDefault("search.award_type_codes", usaspending.DefaultAwardTypeCodes)
	v.SetDefault("search.user_agent", "govcontracts-loader/1.0")
	v.SetDefault("search.requests_per_second", 2.0)
	v.SetDefault("artifact.path", "/tmp/govcontracts_data.csv")
	v.SetDefault("artifact.gcs_bucket", "")
	v.SetDefault("artifact.gcs_prefix", "govcontracts")
	v.SetDefault("artifact.stage_name", delivery.DefaultStageName)
	v.SetDefault("warehouse.enabled", true)
	v.SetDefault("warehouse.profile", "martydemo")
	v.SetDefault("warehouse.connections_file", "~/.govcontracts/connections.toml")
	v.SetDefault("warehouse.database", "EPLAYGROUND")
	v.SetDefault("warehouse.schema", "GOVCONTRACTS")
	v.SetDefault("warehouse.warehouse", "EPLAYGROUND_WH")
	v.SetDefault("warehouse.table", "RAW_CONTRACTS")
	v.SetDefault("warehouse.connect_timeout", 30*time.Second)
	v.SetDefault("notify.provider", NotifyNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.sns_topic_arn", "")
	v.SetDefault("notify.region", "us-east-1")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "govcontracts_loader")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.redis_addr", "")
	v.SetDefault("server.redis_password", "")
	v.SetDefault("server.lock_key", lock.DefaultKey)
	v.SetDefault("server.lock_ttl", lock.DefaultTTL)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Search.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Artifact.Path) == "" {
		return fmt.Errorf("artifact.path must be set")
	}
	if c.Warehouse.Enabled {
		if c.Warehouse.Profile == "" {
			return fmt.Errorf("warehouse.profile must be set when the warehouse is enabled")
		}
		if c.Warehouse.ConnectionsFile == "" {
			return fmt.Errorf("warehouse.connections_file must be set when the warehouse is enabled")
		}
		if err := c.Target().Validate(); err != nil {
			return err
		}
	}
	if c.Warehouse.ConnectTimeout < 0 {
		return fmt.Errorf("warehouse.connect_timeout must be >= 0")
	}
	switch c.Notify.Provider {
	case "", NotifyNone:
	case NotifyPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic must be set for pubsub")
		}
	case NotifySNS:
		if c.Notify.SNSTopicARN == "" {
			return fmt.Errorf("notify.sns_topic_arn must be set for sns")
		}
	default:
		return fmt.Errorf("notify.provider must be one of none, pubsub, sns; got %q", c.Notify.Provider)
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.JobName == "" {
		return fmt.Errorf("metrics.job_name must be set when metrics.pushgateway_url is set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RedisAddr != "" && c.Server.LockTTL <= 0 {
		return fmt.Errorf("server.lock_ttl must be > 0 when server.redis_addr is set")
	}
	return nil
}

func (s SearchConfig) validate() error {
	u, err := url.Parse(s.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("search.endpoint must be an http(s) URL")
	}
	if len(s.Keywords) == 0 {
		return fmt.Errorf("search.keywords must not be empty")
	}
	for i, k := range s.Keywords {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("search.keywords[%d] must not be blank", i)
		}
	}
	if s.Limit <= 0 {
		return fmt.Errorf("search.limit must be > 0")
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("search.timeout must be > 0")
	}
	if _, err := time.Parse("2006-01-02", s.StartDate); err != nil {
		return fmt.Errorf("search.start_date must be YYYY-MM-DD")
	}
	if s.RequestsPerSecond < 0 {
		return fmt.Errorf("search.requests_per_second must be >= 0")
	}
	if len(s.AwardTypeCodes) == 0 {
		return fmt.Errorf("search.award_type_codes must not be empty")
	}
	return nil
}

// Target returns the configured destination table.
func (c Config) Target() warehouse.Target {
	return warehouse.Target{
		Database:  c.Warehouse.Database,
		Schema:    c.Warehouse.Schema,
		Warehouse: c.Warehouse.Warehouse,
		Table:     c.Warehouse.Table,
	}
}

// FetcherConfig maps the search section onto the fetcher's options.
func (c Config) FetcherConfig() usaspending.Config {
	return usaspending.Config{
		Endpoint:          c.Search.Endpoint,
		UserAgent:         c.Search.UserAgent,
		Timeout:           c.Search.Timeout,
		StartDate:         c.Search.StartDate,
		AwardTypeCodes:    c.Search.AwardTypeCodes,
		RequestsPerSecond: c.Search.RequestsPerSecond,
	}
}

// PipelineConfig maps the search and notify sections onto the pipeline's options.
func (c Config) PipelineConfig() pipeline.Config {
	cfg := pipeline.Config{
		Keywords: c.Search.Keywords,
		Limit:    c.Search.Limit,
	}
	switch c.Notify.Provider {
	case NotifyPubSub:
		cfg.NotifyTopic = c.Notify.Topic
	case NotifySNS:
		cfg.NotifyTopic = "govcontracts run"
	}
	return cfg
}

// DeliveryConfig maps the warehouse and artifact sections onto delivery's options.
func (c Config) DeliveryConfig() delivery.Config {
	return delivery.Config{
		Target:           c.Target(),
		WarehouseEnabled: c.Warehouse.Enabled,
		ConnectTimeout:   c.Warehouse.ConnectTimeout,
		StageName:        c.Artifact.StageName,
	}
}
