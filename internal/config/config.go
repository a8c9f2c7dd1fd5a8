// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/autoplay-crawler/internal/browser"
	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
	"github.com/JakeFAU/autoplay-crawler/internal/enrich/youtube"
	"github.com/JakeFAU/autoplay-crawler/internal/storage/postgres"
)

// EnvPrefix namespaces every environment override, e.g. AUTOPLAY_CRAWL_ITERATIONS.
const EnvPrefix = "AUTOPLAY"

// LegacyAPIKeyEnv is consulted when no prefixed credential is configured.
const LegacyAPIKeyEnv = "YOUTUBE_API_KEY"

// Config captures all knobs loaded via Viper.
type Config struct {
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Browser BrowserConfig `mapstructure:"browser"`
	YouTube YouTubeConfig `mapstructure:"youtube"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlConfig governs one crawl session.
type CrawlConfig struct {
	StartURL    string        `mapstructure:"start_url"`
	Iterations  int           `mapstructure:"iterations"`
	OutputDir   string        `mapstructure:"output_dir"`
	Screenshots bool          `mapstructure:"screenshots"`
	Record      bool          `mapstructure:"record"`
	CSV         bool          `mapstructure:"csv"`
	SkipTimeout time.Duration `mapstructure:"skip_timeout"`
	MaxAdChecks int           `mapstructure:"max_ad_checks"`
}

// BrowserConfig configures the Chrome session and the recording encoder.
type BrowserConfig struct {
	ExecPath     string `mapstructure:"exec_path"`
	Headless     bool   `mapstructure:"headless"`
	WindowWidth  int    `mapstructure:"window_width"`
	WindowHeight int    `mapstructure:"window_height"`
	FFmpegPath   string `mapstructure:"ffmpeg_path"`
	RecordingFPS int    `mapstructure:"recording_fps"`
}

// YouTubeConfig configures catalog lookups.
type YouTubeConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	QPS      float64       `mapstructure:"qps"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StorageConfig sets the bucket and prefix for artifact uploads.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional Postgres mirror.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	SessionTable    string        `mapstructure:"session_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for record notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"url":             "crawl.start_url",
	"iterations":      "crawl.iterations",
	"output-dir":      "crawl.output_dir",
	"screenshots":     "crawl.screenshots",
	"record":          "crawl.record",
	"csv":             "crawl.csv",
	"headless":        "browser.headless",
	"youtube-api-key": "youtube.api_key",
	"listen":          "server.addr",
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags in flags that were set explicitly.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
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

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
		// --no-csv wins over the default but not over an explicit --csv.
		if f := flags.Lookup("no-csv"); f != nil && f.Changed {
			if csv := flags.Lookup("csv"); csv == nil || !csv.Changed {
				v.Set("crawl.csv", false)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.YouTube.APIKey == "" {
		cfg.YouTube.APIKey = strings.TrimSpace(os.Getenv(LegacyAPIKeyEnv))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.start_url", "")
	v.SetDefault("crawl.iterations", 100)
	v.SetDefault("crawl.output_dir", "output")
	v.SetDefault("crawl.screenshots", true)
	v.SetDefault("crawl.record", false)
	v.SetDefault("crawl.csv", true)
	v.SetDefault("crawl.skip_timeout", 5*time.Second)
	v.SetDefault("crawl.max_ad_checks", 0)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1024)
	v.SetDefault("browser.window_height", 768)
	v.SetDefault("browser.ffmpeg_path", "ffmpeg")
	v.SetDefault("browser.recording_fps", 10)
	v.SetDefault("youtube.api_key", "")
	v.SetDefault("youtube.endpoint", "")
	v.SetDefault("youtube.qps", 5.0)
	v.SetDefault("youtube.timeout", 10*time.Second)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "sessions")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", postgres.DefaultRecordTable)
	v.SetDefault("db.session_table", postgres.DefaultSessionTable)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits. The start URL is
// checked by the crawl command, since export does not need one.
func (c Config) Validate() error {
	if c.Crawl.Iterations < 0 {
		return fmt.Errorf("crawl.iterations must be >= 0")
	}
	if strings.TrimSpace(c.Crawl.OutputDir) == "" {
		return fmt.Errorf("crawl.output_dir is required")
	}
	if c.Crawl.SkipTimeout < 0 {
		return fmt.Errorf("crawl.skip_timeout must be >= 0")
	}
	if c.Crawl.MaxAdChecks < 0 {
		return fmt.Errorf("crawl.max_ad_checks must be >= 0")
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser window size must be > 0")
	}
	if c.Crawl.Record && c.Browser.RecordingFPS <= 0 {
		return fmt.Errorf("browser.recording_fps must be > 0 when recording is enabled")
	}
	if c.YouTube.QPS <= 0 {
		return fmt.Errorf("youtube.qps must be > 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// CrawlSettings projects the crawl section onto engine settings.
func (c Config) CrawlSettings() crawler.Settings {
	return crawler.Settings{
		StartURL:    c.Crawl.StartURL,
		Iterations:  c.Crawl.Iterations,
		Screenshots: c.Crawl.Screenshots,
		Record:      c.Crawl.Record,
		CSV:         c.Crawl.CSV,
		SkipTimeout: c.Crawl.SkipTimeout,
		MaxAdChecks: c.Crawl.MaxAdChecks,
	}
}

// BrowserSettings projects the browser section onto session settings.
func (c Config) BrowserSettings() browser.Config {
	return browser.Config{
		ExecPath:     c.Browser.ExecPath,
		Headless:     c.Browser.Headless,
		WindowWidth:  c.Browser.WindowWidth,
		WindowHeight: c.Browser.WindowHeight,
		FFmpegPath:   c.Browser.FFmpegPath,
		RecordingFPS: c.Browser.RecordingFPS,
	}
}

// EnricherSettings projects the youtube section onto enricher settings.
func (c Config) EnricherSettings() youtube.Config {
	return youtube.Config{
		APIKey:   c.YouTube.APIKey,
		Endpoint: c.YouTube.Endpoint,
		QPS:      c.YouTube.QPS,
		Timeout:  c.YouTube.Timeout,
	}
}

// PostgresSettings projects the db section onto pool settings.
func (c Config) PostgresSettings() postgres.Config {
	return postgres.Config{
		DSN:             c.DB.DSN,
		Table:           c.DB.Table,
		MaxConns:        c.DB.MaxConns,
		MinConns:        c.DB.MinConns,
		MaxConnLifetime: c.DB.MaxConnLifetime,
	}
}
