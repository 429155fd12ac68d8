// Package config loads the service configuration from the environment and an
// optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/FranksOps/tubebrief/internal/acquire"
	"github.com/FranksOps/tubebrief/internal/fingerprint"
	"github.com/FranksOps/tubebrief/internal/summarize"
	"github.com/FranksOps/tubebrief/pkg/proxy"
	"github.com/FranksOps/tubebrief/pkg/ratelimit"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey is returned when GEMINI_API_KEY is unset or blank.
	ErrMissingAPIKey = errors.New("config: GEMINI_API_KEY is required")
	// ErrInvalid wraps every other validation failure.
	ErrInvalid = errors.New("config: invalid value")
)

// DefaultEnvFile is read when present unless another file is named.
const DefaultEnvFile = ".env"

// Storage backends accepted by STORAGE_BACKEND. Empty disables run history.
const (
	StorageNone     = ""
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageJSON     = "json"
	StorageCSV      = "csv"
)

// Config is the flat, immutable view of every setting. Keys mirror the
// environment variable names.
type Config struct {
	Port int `mapstructure:"port"`

	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	GoogleProjectID string `mapstructure:"google_project_id"`
	GoogleRegion    string `mapstructure:"google_region"`

	SummarizerProvider   string        `mapstructure:"summarizer_provider"`
	SummarizerEndpoint   string        `mapstructure:"summarizer_endpoint"`
	SummarizerModel      string        `mapstructure:"summarizer_model"`
	GeminiBaseURL        string        `mapstructure:"gemini_base_url"`
	SummarizerTimeout    time.Duration `mapstructure:"summarizer_timeout"`
	SummarizerTLSProfile string        `mapstructure:"summarizer_tls_profile"`
	// SummarizerProxies is a comma-separated list of egress proxy URLs.
	SummarizerProxies   string `mapstructure:"summarizer_proxies"`
	SummarizerProxyFile string `mapstructure:"summarizer_proxy_file"`

	ScraperCommand   string        `mapstructure:"scraper_command"`
	ScraperTimeout   time.Duration `mapstructure:"scraper_timeout"`
	ScraperRPS       float64       `mapstructure:"scraper_rps"`
	ScraperJitter    float64       `mapstructure:"scraper_jitter"`
	ScraperStripHTML bool          `mapstructure:"scraper_strip_html"`

	StorageBackend string `mapstructure:"storage_backend"`
	StorageDSN     string `mapstructure:"storage_dsn"`

	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SetDefaults registers a default for every key. Viper only consults the
// environment for keys it knows about, so every key must appear here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)

	v.SetDefault("gemini_api_key", "")
	v.SetDefault("google_project_id", "")
	v.SetDefault("google_region", "")

	v.SetDefault("summarizer_provider", summarize.ProviderEndpoint)
	v.SetDefault("summarizer_endpoint", "https://gemini-api-endpoint.example.com/summarize")
	v.SetDefault("summarizer_model", summarize.DefaultGeminiModel)
	v.SetDefault("gemini_base_url", "")
	v.SetDefault("summarizer_timeout", 60*time.Second)
	v.SetDefault("summarizer_tls_profile", string(fingerprint.ProfileGo))
	v.SetDefault("summarizer_proxies", "")
	v.SetDefault("summarizer_proxy_file", "")

	v.SetDefault("scraper_command", "python ./scraper/youtube_scraper.py")
	v.SetDefault("scraper_timeout", time.Duration(0)) // request-bound only
	v.SetDefault("scraper_rps", 0.0)
	v.SetDefault("scraper_jitter", 0.0)
	v.SetDefault("scraper_strip_html", false)

	v.SetDefault("storage_backend", StorageNone)
	v.SetDefault("storage_dsn", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("shutdown_timeout", 10*time.Second)
}

// Options control where Load looks for settings.
type Options struct {
	// EnvFile is a dotenv file merged beneath the process environment.
	EnvFile string
	// RequireEnvFile makes a missing EnvFile an error instead of a no-op.
	RequireEnvFile bool
}

// Load builds a Config from defaults, the optional env file and the process
// environment (highest precedence), then validates it.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	if opts.EnvFile != "" {
		if _, err := os.Stat(opts.EnvFile); err == nil {
			v.SetConfigFile(opts.EnvFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", opts.EnvFile, err)
			}
		} else if opts.RequireEnvFile || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: env file %s: %w", opts.EnvFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports ErrMissingAPIKey or an error wrapping ErrInvalid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return ErrMissingAPIKey
	}

	if c.Port < 1 || c.Port > 65535 {
		return invalid("PORT", c.Port)
	}

	switch strings.ToLower(c.SummarizerProvider) {
	case summarize.ProviderEndpoint:
		u, err := url.Parse(c.SummarizerEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("SUMMARIZER_ENDPOINT", c.SummarizerEndpoint)
		}
	case summarize.ProviderGemini:
		if strings.TrimSpace(c.SummarizerModel) == "" {
			return invalid("SUMMARIZER_MODEL", c.SummarizerModel)
		}
	default:
		return invalid("SUMMARIZER_PROVIDER", c.SummarizerProvider)
	}

	if c.SummarizerTimeout < 0 {
		return invalid("SUMMARIZER_TIMEOUT", c.SummarizerTimeout)
	}
	profile, err := fingerprint.ParseProfile(c.SummarizerTLSProfile)
	if err != nil {
		return invalid("SUMMARIZER_TLS_PROFILE", c.SummarizerTLSProfile)
	}
	pool, err := c.ProxyPool()
	if err != nil {
		return err
	}
	if pool.Len() > 0 && profile != fingerprint.ProfileGo {
		return fmt.Errorf("%w: SUMMARIZER_PROXIES requires SUMMARIZER_TLS_PROFILE=go, got %q", ErrInvalid, profile)
	}

	if _, err := c.ScraperArgv(); err != nil {
		return err
	}
	if c.ScraperTimeout < 0 {
		return invalid("SCRAPER_TIMEOUT", c.ScraperTimeout)
	}
	if c.ScraperRPS < 0 {
		return invalid("SCRAPER_RPS", c.ScraperRPS)
	}
	if c.ScraperJitter < 0 || c.ScraperJitter > 1 {
		return invalid("SCRAPER_JITTER", c.ScraperJitter)
	}

	switch strings.ToLower(c.StorageBackend) {
	case StorageNone:
	case StorageSQLite, StoragePostgres, StorageJSON, StorageCSV:
		if strings.TrimSpace(c.StorageDSN) == "" {
			return fmt.Errorf("%w: STORAGE_DSN is required for backend %q", ErrInvalid, c.StorageBackend)
		}
	default:
		return invalid("STORAGE_BACKEND", c.StorageBackend)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return invalid("LOG_FORMAT", c.LogFormat)
	}

	if c.ShutdownTimeout < 0 {
		return invalid("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	}

	return nil
}

func invalid(key string, value any) error {
	return fmt.Errorf("%w: %s=%v", ErrInvalid, key, value)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ScraperArgv splits SCRAPER_COMMAND using shell quoting rules.
func (c *Config) ScraperArgv() ([]string, error) {
	argv, err := shellquote.Split(c.ScraperCommand)
	if err != nil {
		return nil, fmt.Errorf("%w: SCRAPER_COMMAND: %w", ErrInvalid, err)
	}
	if len(argv) == 0 {
		return nil, invalid("SCRAPER_COMMAND", c.ScraperCommand)
	}
	return argv, nil
}

// SlogLevel parses LOG_LEVEL.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, invalid("LOG_LEVEL", c.LogLevel)
	}
	return level, nil
}

// AcquireConfig maps the SCRAPER_* keys onto the runner configuration.
func (c *Config) AcquireConfig() (acquire.Config, error) {
	argv, err := c.ScraperArgv()
	if err != nil {
		return acquire.Config{}, err
	}
	return acquire.Config{
		Command:   argv,
		Timeout:   c.ScraperTimeout,
		Limiter:   ratelimit.NewLimiter(c.ScraperRPS, c.ScraperJitter),
		StripHTML: c.ScraperStripHTML,
	}, nil
}

// ProxyPool loads SUMMARIZER_PROXIES and SUMMARIZER_PROXY_FILE. The pool is
// empty when neither is set.
func (c *Config) ProxyPool() (*proxy.Pool, error) {
	pool := proxy.NewPool(proxy.Config{})
	if c.SummarizerProxies != "" {
		if err := pool.Add(strings.Split(c.SummarizerProxies, ",")...); err != nil {
			return nil, fmt.Errorf("%w: SUMMARIZER_PROXIES: %w", ErrInvalid, err)
		}
	}
	if c.SummarizerProxyFile != "" {
		if err := pool.LoadFile(c.SummarizerProxyFile); err != nil {
			return nil, fmt.Errorf("%w: SUMMARIZER_PROXY_FILE: %w", ErrInvalid, err)
		}
	}
	return pool, nil
}

// SummarizerConfig maps the summarizer keys and credentials.
func (c *Config) SummarizerConfig() (summarize.Config, error) {
	profile, err := fingerprint.ParseProfile(c.SummarizerTLSProfile)
	if err != nil {
		return summarize.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	pool, err := c.ProxyPool()
	if err != nil {
		return summarize.Config{}, err
	}
	return summarize.Config{
		Provider:   strings.ToLower(c.SummarizerProvider),
		Endpoint:   c.SummarizerEndpoint,
		APIKey:     c.GeminiAPIKey,
		ProjectID:  c.GoogleProjectID,
		Region:     c.GoogleRegion,
		Model:      c.SummarizerModel,
		BaseURL:    c.GeminiBaseURL,
		Timeout:    c.SummarizerTimeout,
		TLSProfile: profile,
		Proxies:    pool,
	}, nil
}
