package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/MimeLyc/clip-scraper/internal/filter"
	"github.com/MimeLyc/clip-scraper/pkg/icron"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

// Config holds all application configuration.
// Values come from the environment, after loading a .env file when present.
//
// Environment Variables:
// Twitch:
// - TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET: app credentials (required to run jobs)
// - TWITCH_AUTH_URL: OAuth base URL (default: https://id.twitch.tv/oauth2)
// - TWITCH_API_URL: Helix base URL (default: https://api.twitch.tv/helix)
// - TWITCH_REQUEST_TIMEOUT: per request timeout in seconds (default: 10)
//
// Scraping:
// - SCRAPE_GAMES: comma separated game categories (default: built-in list)
// - SCRAPE_SOURCE_DELAY_MS: pause between sources (default: 500)
// - SCRAPE_CHUNK_DELAY_MS: pause between batched lookups (default: 100)
// - SCRAPE_TARGET_LANGUAGE: language kept by the content filter (default: en)
// - SCRAPE_CRON: schedule for an automatic top clips job (default: disabled)
//
// Output and serving:
// - EXPORT_DIR: directory for CSV artifacts (default: clips_output)
// - HTTP_ADDR: listen address (default: :5000)
// - HTTP_ALLOWED_ORIGIN: CORS origin allowed to call the API (default: *)
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - LOG_FILE: write logs to this file instead of stdout (optional)
type Config struct {
	Twitch TwitchConfig `json:"twitch"`
	Scrape ScrapeConfig `json:"scrape"`
	Export ExportConfig `json:"export"`
	HTTP   HTTPConfig   `json:"http"`
	Log    LogConfig    `json:"log"`
}

type TwitchConfig struct {
	ClientID       string        `json:"-"`
	ClientSecret   string        `json:"-"`
	AuthURL        string        `json:"auth_url"`
	APIURL         string        `json:"api_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

type ScrapeConfig struct {
	Games          []string      `json:"games"`
	SourceDelay    time.Duration `json:"source_delay"`
	ChunkDelay     time.Duration `json:"chunk_delay"`
	TargetLanguage language.Tag  `json:"target_language"`
	CronExpr       string        `json:"cron_expr"`
}

type ExportConfig struct {
	Dir string `json:"dir"`
}

type HTTPConfig struct {
	Addr          string `json:"addr"`
	AllowedOrigin string `json:"allowed_origin"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithHTTPAddr(addr string) Option {
	return func(c *Config) {
		if addr != "" {
			c.HTTP.Addr = addr
		}
	}
}

func WithExportDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.Export.Dir = dir
		}
	}
}

// DotEnvFiles are loaded, in order, before reading the environment.
// Variables already set in the environment win.
var DotEnvFiles = []string{".env"}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	loadDotEnv()

	lang, err := language.Parse(getEnvString("SCRAPE_TARGET_LANGUAGE", "en"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCRAPE_TARGET_LANGUAGE: %w", err)
	}

	config := &Config{
		Twitch: TwitchConfig{
			ClientID:       strings.TrimSpace(os.Getenv("TWITCH_CLIENT_ID")),
			ClientSecret:   strings.TrimSpace(os.Getenv("TWITCH_CLIENT_SECRET")),
			AuthURL:        getEnvString("TWITCH_AUTH_URL", "https://id.twitch.tv/oauth2"),
			APIURL:         getEnvString("TWITCH_API_URL", "https://api.twitch.tv/helix"),
			RequestTimeout: time.Duration(getEnvInt("TWITCH_REQUEST_TIMEOUT", 10)) * time.Second,
		},
		Scrape: ScrapeConfig{
			Games:          getEnvList("SCRAPE_GAMES", DefaultGames()),
			SourceDelay:    time.Duration(getEnvInt("SCRAPE_SOURCE_DELAY_MS", 500)) * time.Millisecond,
			ChunkDelay:     time.Duration(getEnvInt("SCRAPE_CHUNK_DELAY_MS", 100)) * time.Millisecond,
			TargetLanguage: lang,
			CronExpr:       getEnvString("SCRAPE_CRON", ""),
		},
		Export: ExportConfig{
			Dir: getEnvString("EXPORT_DIR", "clips_output"),
		},
		HTTP: HTTPConfig{
			Addr:          getEnvString("HTTP_ADDR", ":5000"),
			AllowedOrigin: getEnvString("HTTP_ALLOWED_ORIGIN", "*"),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
			File:  getEnvString("LOG_FILE", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: api=%s games=%d language=%s cron=%q export=%s http=%s",
		config.Twitch.APIURL, len(config.Scrape.Games), config.Scrape.TargetLanguage,
		config.Scrape.CronExpr, config.Export.Dir, config.HTTP.Addr)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	var problems []error
	if c.Twitch.RequestTimeout <= 0 {
		problems = append(problems, fmt.Errorf("TWITCH_REQUEST_TIMEOUT must be positive"))
	}
	if c.Scrape.SourceDelay < 0 || c.Scrape.ChunkDelay < 0 {
		problems = append(problems, fmt.Errorf("scrape delays must not be negative"))
	}
	if len(c.Scrape.Games) == 0 {
		problems = append(problems, fmt.Errorf("SCRAPE_GAMES must name at least one game"))
	}
	if _, err := filter.RulesFor(c.Scrape.TargetLanguage); err != nil {
		problems = append(problems, fmt.Errorf("unsupported SCRAPE_TARGET_LANGUAGE: %w", err))
	}
	if c.Scrape.CronExpr != "" {
		if _, err := icron.Parse(c.Scrape.CronExpr); err != nil {
			problems = append(problems, fmt.Errorf("invalid SCRAPE_CRON: %w", err))
		}
	}
	if strings.TrimSpace(c.Export.Dir) == "" {
		problems = append(problems, fmt.Errorf("EXPORT_DIR must not be empty"))
	}
	return errors.Join(problems...)
}

func loadDotEnv() {
	for _, path := range DotEnvFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Warn("Failed to load %s: %v", path, err)
		}
	}
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn("Ignoring non-integer %s=%q", key, value)
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var ret []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}
