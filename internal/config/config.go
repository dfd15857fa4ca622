// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	State    StateConfig    `mapstructure:"state"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig governs the frontier loop and the load-more expansion.
type CrawlerConfig struct {
	RootURL            string        `mapstructure:"root_url"`
	AllowedDomain      string        `mapstructure:"allowed_domain"`
	MaxDepth           int           `mapstructure:"max_depth"`
	SaveInterval       int           `mapstructure:"save_interval"`
	UserAgent          string        `mapstructure:"user_agent"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	FetchQPS           float64       `mapstructure:"fetch_qps"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	RefreshKnownSongs  bool          `mapstructure:"refresh_known_songs"`
	SongMarkerSelector string        `mapstructure:"song_marker_selector"`
	LoadMoreSelector   string        `mapstructure:"load_more_selector"`
	LoadMoreWait       time.Duration `mapstructure:"load_more_wait"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts    int           `mapstructure:"max_poll_attempts"`
}

// StateConfig sets the paths of the three checkpoint documents.
type StateConfig struct {
	Dir           string `mapstructure:"dir"`
	CrawlFile     string `mapstructure:"crawl_file"`
	SongPagesFile string `mapstructure:"song_pages_file"`
	MetadataFile  string `mapstructure:"metadata_file"`
}

// HeadlessConfig configures the browser session.
type HeadlessConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	NavTimeout time.Duration `mapstructure:"nav_timeout"`
}

// ServerConfig controls the status HTTP server; port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls the optional Postgres metadata mirror; empty DSN disables it.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGALGANA")
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
	v.SetDefault("crawler.root_url", "https://pagalgana.com")
	v.SetDefault("crawler.allowed_domain", "pagalgana.com")
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.save_interval", 20)
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("crawler.settle_delay", "3s")
	v.SetDefault("crawler.fetch_qps", 1.0)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.refresh_known_songs", false)
	v.SetDefault("crawler.song_marker_selector", "#audio-container")
	v.SetDefault("crawler.load_more_selector", `a.button[onclick*="loadMoreCategory"]`)
	v.SetDefault("crawler.load_more_wait", "15s")
	v.SetDefault("crawler.poll_interval", "2s")
	v.SetDefault("crawler.max_poll_attempts", 7)
	v.SetDefault("state.dir", ".")
	v.SetDefault("state.crawl_file", "crawl_state.json")
	v.SetDefault("state.song_pages_file", "pagalgana_song_pages.json")
	v.SetDefault("state.metadata_file", "pagalgana_song_metadata.json")
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.nav_timeout", "45s")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.Crawler.RootURL == "" {
		return fmt.Errorf("crawler.root_url must be set")
	}
	if c.Crawler.AllowedDomain == "" {
		return fmt.Errorf("crawler.allowed_domain must be set")
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Crawler.SaveInterval <= 0 {
		return fmt.Errorf("crawler.save_interval must be > 0")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.FetchQPS < 0 {
		return fmt.Errorf("crawler.fetch_qps must be >= 0")
	}
	if c.Crawler.SongMarkerSelector == "" {
		return fmt.Errorf("crawler.song_marker_selector must be set")
	}
	if c.Crawler.LoadMoreSelector == "" {
		return fmt.Errorf("crawler.load_more_selector must be set")
	}
	if c.Crawler.LoadMoreWait <= 0 {
		return fmt.Errorf("crawler.load_more_wait must be > 0")
	}
	if c.Crawler.PollInterval <= 0 {
		return fmt.Errorf("crawler.poll_interval must be > 0")
	}
	if c.Crawler.MaxPollAttempts <= 0 {
		return fmt.Errorf("crawler.max_poll_attempts must be > 0")
	}
	if c.State.CrawlFile == "" || c.State.SongPagesFile == "" || c.State.MetadataFile == "" {
		return fmt.Errorf("state file names must all be set")
	}
	if c.Headless.NavTimeout <= 0 {
		return fmt.Errorf("headless.nav_timeout must be > 0")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port or 0")
	}
	return nil
}
