// Package config loads and validates regwatch configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	XRef       XRefConfig       `mapstructure:"xref"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Events     EventsConfig     `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN                     string `mapstructure:"dsn"`
	MaxConns                int32  `mapstructure:"max_conns"`
	MinConns                int32  `mapstructure:"min_conns"`
	ConnectTimeoutSeconds   int    `mapstructure:"connect_timeout_seconds"`
	StatementTimeoutSeconds int    `mapstructure:"statement_timeout_seconds"`
}

// HTTPConfig configures every outbound page and feed fetch.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// FeedConfig names one feed endpoint.
type FeedConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// SiteConfig describes one scraped listing page and its selector strategy.
type SiteConfig struct {
	Name           string   `mapstructure:"name"`
	BaseURL        string   `mapstructure:"base_url"`
	ListURL        string   `mapstructure:"list_url"`
	ItemSelectors  []string `mapstructure:"item_selectors"`
	TitleSelectors []string `mapstructure:"title_selectors"`
	LinkSelectors  []string `mapstructure:"link_selectors"`
	DateSelectors  []string `mapstructure:"date_selectors"`
}

// IngestConfig is the fixed source list handed to the ingestion coordinator.
type IngestConfig struct {
	Feeds        []FeedConfig `mapstructure:"feeds"`
	Sites        []SiteConfig `mapstructure:"sites"`
	RecencyDays  int          `mapstructure:"recency_days"`
	MaxTextChars int          `mapstructure:"max_text_chars"`
}

// ClassifierConfig points at an OpenAI-compatible inference endpoint.
type ClassifierConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float32 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// MatchingConfig holds backfill defaults.
type MatchingConfig struct {
	BackfillWindowDays int `mapstructure:"backfill_window_days"`
	BackfillPageSize   int `mapstructure:"backfill_page_size"`
	BackfillMaxPages   int `mapstructure:"backfill_max_pages"`
}

// XRefConfig bounds cross-reference lookups.
type XRefConfig struct {
	Limit int `mapstructure:"limit"`
}

// ArchiveConfig selects where extracted article text is archived.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	Prefix   string `mapstructure:"prefix"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
}

// EventsConfig selects where match events are published.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REGWATCH")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.connect_timeout_seconds", 5)
	v.SetDefault("database.statement_timeout_seconds", 30)
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.user_agent", "regwatch-bot/0.1")
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("http.rate_limit_rps", 1.0)
	v.SetDefault("http.rate_limit_burst", 2)
	v.SetDefault("ingest.recency_days", 7)
	v.SetDefault("ingest.max_text_chars", 12000)
	// Bound here so AutomaticEnv can supply them.
	v.SetDefault("classifier.api_key", "")
	v.SetDefault("classifier.base_url", "")
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.max_tokens", 600)
	v.SetDefault("classifier.temperature", 0.0)
	v.SetDefault("classifier.timeout_seconds", 60)
	v.SetDefault("matching.backfill_window_days", 90)
	v.SetDefault("matching.backfill_page_size", 100)
	v.SetDefault("matching.backfill_max_pages", 10)
	v.SetDefault("xref.limit", 25)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "updates")
	v.SetDefault("events.provider", "none")
	v.SetDefault("events.topic", "regwatch-matches")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Database.ConnectTimeoutSeconds <= 0 || c.Database.StatementTimeoutSeconds <= 0 {
		return fmt.Errorf("database connect and statement timeouts must be > 0")
	}
	if c.Ingest.RecencyDays <= 0 {
		return fmt.Errorf("ingest.recency_days must be > 0")
	}
	if c.Ingest.MaxTextChars <= 0 {
		return fmt.Errorf("ingest.max_text_chars must be > 0")
	}
	if err := validateSources(c.Ingest); err != nil {
		return err
	}
	if c.Classifier.MaxTokens <= 0 {
		return fmt.Errorf("classifier.max_tokens must be > 0")
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		return fmt.Errorf("classifier.timeout_seconds must be > 0")
	}
	if c.Matching.BackfillWindowDays <= 0 || c.Matching.BackfillPageSize <= 0 || c.Matching.BackfillMaxPages <= 0 {
		return fmt.Errorf("matching backfill window, page size and max pages must be > 0")
	}
	if c.XRef.Limit < 1 || c.XRef.Limit > 50 {
		return fmt.Errorf("xref.limit must be between 1 and 50")
	}
	switch c.Archive.Provider {
	case "", "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local provider")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	switch c.Events.Provider {
	case "", "none", "memory":
	case "pubsub":
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic are required for the pubsub provider")
		}
	default:
		return fmt.Errorf("unknown events.provider %q", c.Events.Provider)
	}
	return nil
}

func validateSources(in IngestConfig) error {
	seen := make(map[string]struct{}, len(in.Feeds)+len(in.Sites))
	checkName := func(name string) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("every feed and site needs a name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate source name %q", name)
		}
		seen[name] = struct{}{}
		return nil
	}
	for _, f := range in.Feeds {
		if err := checkName(f.Name); err != nil {
			return err
		}
		if !isAbsoluteURL(f.URL) {
			return fmt.Errorf("feed %q: url must be absolute", f.Name)
		}
	}
	for _, s := range in.Sites {
		if err := checkName(s.Name); err != nil {
			return err
		}
		if !isAbsoluteURL(s.ListURL) {
			return fmt.Errorf("site %q: list_url must be absolute", s.Name)
		}
		if len(s.ItemSelectors) == 0 {
			return fmt.Errorf("site %q: at least one item selector is required", s.Name)
		}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}

// HTTPTimeout converts http.timeout_seconds into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ClassifierTimeout converts classifier.timeout_seconds into a duration.
func (c Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.TimeoutSeconds) * time.Second
}

// DatabaseConnectTimeout bounds dialing Postgres.
func (c Config) DatabaseConnectTimeout() time.Duration {
	return time.Duration(c.Database.ConnectTimeoutSeconds) * time.Second
}

// DatabaseStatementTimeout bounds every Postgres statement.
func (c Config) DatabaseStatementTimeout() time.Duration {
	return time.Duration(c.Database.StatementTimeoutSeconds) * time.Second
}

// RecencyWindow is how far back site collectors accept items.
func (c Config) RecencyWindow() time.Duration {
	return time.Duration(c.Ingest.RecencyDays) * 24 * time.Hour
}
