// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Auth       AuthConfig      `mapstructure:"auth"`
	Logging    LoggingConfig   `mapstructure:"logging"`
	DB         DBConfig        `mapstructure:"db"`
	Redis      RedisConfig     `mapstructure:"redis"`
	PubSub     PubSubConfig    `mapstructure:"pubsub"`
	HTTP       HTTPConfig      `mapstructure:"http"`
	RateLimit  RateLimitConfig `mapstructure:"ratelimit"`
	AI         AIConfig        `mapstructure:"ai"`
	Search     SearchConfig    `mapstructure:"search"`
	Dedup      DedupConfig     `mapstructure:"dedup"`
	Thresholds ThresholdConfig `mapstructure:"thresholds"`
	Analyzer   AnalyzerConfig  `mapstructure:"analyzer"`
	Worker     WorkerConfig    `mapstructure:"worker"`
	Proposal   ProposalConfig  `mapstructure:"proposal"`
	Sources    []SourceConfig  `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// RedisConfig points the AI signal cache at Redis. An empty Addr keeps it in memory.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// PubSubConfig holds metadata for hot-lead notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// HTTPConfig configures outbound scraping and probing requests.
type HTTPConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// RateLimitConfig sets the per-host token bucket used by parsers.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// AIConfig lists providers in priority order and bounds the fallback chain.
type AIConfig struct {
	Providers []ProviderConfig `mapstructure:"providers"`
	Budget    time.Duration    `mapstructure:"budget"`
	Retries   int              `mapstructure:"retries"`
}

// ProviderConfig configures one AI backend.
type ProviderConfig struct {
	Name          string        `mapstructure:"name"`
	Kind          string        `mapstructure:"kind"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	BaseURL       string        `mapstructure:"base_url"`
	RatePerMinute float64       `mapstructure:"rate_per_minute"`
	Burst         int           `mapstructure:"burst"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// SearchConfig governs the search cycle.
type SearchConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	MaxLeads      int           `mapstructure:"max_leads"`
	FanOut        int           `mapstructure:"fan_out"`
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	CycleDeadline time.Duration `mapstructure:"cycle_deadline"`
}

// DedupConfig holds the fuzzy-match policy parameters.
type DedupConfig struct {
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	Window              time.Duration `mapstructure:"window"`
}

// ThresholdConfig holds the qualification status cut-offs.
type ThresholdConfig struct {
	Hot    int `mapstructure:"hot"`
	Reject int `mapstructure:"reject"`
}

// AnalyzerConfig controls website analysis.
type AnalyzerConfig struct {
	Weights        WeightConfig  `mapstructure:"weights"`
	CheckThreshold int           `mapstructure:"check_threshold"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// WeightConfig weights each analyzer check in the overall score.
type WeightConfig struct {
	TLS         float64 `mapstructure:"tls"`
	Performance float64 `mapstructure:"performance"`
	Mobile      float64 `mapstructure:"mobile"`
	SEO         float64 `mapstructure:"seo"`
}

// WorkerConfig sizes the qualification pipeline.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	QueueDepth  int `mapstructure:"queue_depth"`
	MaxAttempts int `mapstructure:"max_attempts"`
}

// ProposalConfig carries sender details rendered into proposals.
type ProposalConfig struct {
	SenderName     string `mapstructure:"sender_name"`
	SenderCompany  string `mapstructure:"sender_company"`
	SenderContacts string `mapstructure:"sender_contacts"`
}

// SourceConfig seeds a source into the store at startup.
type SourceConfig struct {
	ID       string            `mapstructure:"id"`
	Name     string            `mapstructure:"name"`
	Type     string            `mapstructure:"type"`
	Active   bool              `mapstructure:"active"`
	Keywords []string          `mapstructure:"keywords"`
	Params   map[string]string `mapstructure:"params"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADPIPE")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("redis.ttl", "720h")
	v.SetDefault("pubsub.topic_name", "hot-leads")
	v.SetDefault("http.user_agent", "leadpipe-bot/0.1")
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 2)
	v.SetDefault("ai.budget", "20s")
	v.SetDefault("ai.retries", 1)
	v.SetDefault("search.interval", "60m")
	v.SetDefault("search.max_leads", 50)
	v.SetDefault("search.fan_out", 4)
	v.SetDefault("search.source_timeout", "45s")
	v.SetDefault("search.cycle_deadline", "2m")
	v.SetDefault("dedup.similarity_threshold", 0.85)
	v.SetDefault("dedup.window", "72h")
	v.SetDefault("thresholds.hot", 60)
	v.SetDefault("thresholds.reject", 20)
	v.SetDefault("analyzer.weights.tls", 0.25)
	v.SetDefault("analyzer.weights.performance", 0.25)
	v.SetDefault("analyzer.weights.mobile", 0.25)
	v.SetDefault("analyzer.weights.seo", 0.25)
	v.SetDefault("analyzer.check_threshold", 70)
	v.SetDefault("analyzer.timeout", "20s")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queue_depth", 256)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("proposal.sender_name", "Your web developer")
}

// Validate enforces required global values. Per-provider and per-source
// problems are reported by ProviderConfig.Validate and SourceConfig.Validate
// so one bad entry does not stop the service.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Search.MaxLeads <= 0 {
		return fmt.Errorf("search.max_leads must be > 0")
	}
	if c.Search.FanOut <= 0 {
		return fmt.Errorf("search.fan_out must be > 0")
	}
	if c.Search.SourceTimeout <= 0 {
		return fmt.Errorf("search.source_timeout must be > 0")
	}
	if c.AI.Budget <= 0 {
		return fmt.Errorf("ai.budget must be > 0")
	}
	if c.Thresholds.Reject < 0 || c.Thresholds.Hot > 100 || c.Thresholds.Reject > c.Thresholds.Hot {
		return fmt.Errorf("thresholds must satisfy 0 <= reject <= hot <= 100")
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0, 1]")
	}
	w := c.Analyzer.Weights
	if w.TLS < 0 || w.Performance < 0 || w.Mobile < 0 || w.SEO < 0 {
		return fmt.Errorf("analyzer.weights must be non-negative")
	}
	if w.TLS+w.Performance+w.Mobile+w.SEO == 0 {
		return fmt.Errorf("analyzer.weights must not all be zero")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	return nil
}

var keyedProviders = map[string]bool{
	"gemini":     true,
	"anthropic":  true,
	"groq":       true,
	"openrouter": true,
	"openai":     true,
}

// Validate reports missing keys for an enabled provider.
func (p ProviderConfig) Validate() error {
	kind := strings.ToLower(p.Kind)
	switch {
	case kind == "":
		return errors.New("kind is required")
	case kind == "ollama":
		return nil
	case !keyedProviders[kind]:
		return fmt.Errorf("unknown provider kind %q", p.Kind)
	case p.APIKey == "":
		return fmt.Errorf("api_key is required for %s", kind)
	}
	return nil
}

// Validate reports missing keys for a seeded source.
func (s SourceConfig) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}
	return nil
}
