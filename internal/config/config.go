package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pricedrop/pricedrop-monitor/internal/validator"
)

// Page renderers understood by the scraper.
const (
	RendererHTTP       = "http"
	RendererChromedp   = "chromedp"
	RendererPlaywright = "playwright"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

type Config struct {
	ProjectID     string        `validate:"required"`
	Port          string        `validate:"required,numeric"`
	BatchSize     int           `validate:"min=1"`
	CheckInterval time.Duration `validate:"min=0"`

	ScrapeTimeout       time.Duration `validate:"gt=0"`
	ScrapeRenderer      string        `validate:"oneof=http chromedp playwright"`
	ScrapeRatePerHost   float64       `validate:"gt=0"`
	AllowedDomains      []string      `validate:"dive,hostname_rfc1123"`
	UserAgent           string        `validate:"required"`
	SelectorsConfigPath string

	MailgunDomain  string
	MailgunAPIKey  string `validate:"required_with=MailgunDomain"`
	MailgunSender  string `validate:"omitempty,email"`
	MailgunAPIBase string `validate:"omitempty,url"`

	DiscordRatePerSecond float64       `validate:"gt=0"`
	NotifyTimeout        time.Duration `validate:"gt=0"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

// MailgunEnabled reports whether email alerts can be sent.
func (c *Config) MailgunEnabled() bool {
	return c.MailgunDomain != "" && c.MailgunAPIKey != ""
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required but not set")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	batchSize, err := intEnv("BATCH_SIZE", 5)
	if err != nil {
		return nil, err
	}
	checkInterval, err := durationEnv("CHECK_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	scrapeTimeout, err := durationEnv("SCRAPE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	scrapeRate, err := floatEnv("SCRAPE_RATE_PER_HOST", 1.0)
	if err != nil {
		return nil, err
	}
	discordRate, err := floatEnv("DISCORD_RATE_PER_SECOND", 0.5)
	if err != nil {
		return nil, err
	}
	notifyTimeout, err := durationEnv("NOTIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:            projectID,
		Port:                 port,
		BatchSize:            batchSize,
		CheckInterval:        checkInterval,
		ScrapeTimeout:        scrapeTimeout,
		ScrapeRenderer:       strings.ToLower(stringEnv("SCRAPE_RENDERER", RendererHTTP)),
		ScrapeRatePerHost:    scrapeRate,
		AllowedDomains:       listEnv("ALLOWED_DOMAINS"),
		UserAgent:            stringEnv("USER_AGENT", defaultUserAgent),
		SelectorsConfigPath:  os.Getenv("SELECTORS_CONFIG_PATH"),
		MailgunDomain:        os.Getenv("MAILGUN_DOMAIN"),
		MailgunAPIKey:        os.Getenv("MAILGUN_API_KEY"),
		MailgunSender:        os.Getenv("MAILGUN_SENDER"),
		MailgunAPIBase:       os.Getenv("MAILGUN_API_BASE"),
		DiscordRatePerSecond: discordRate,
		NotifyTimeout:        notifyTimeout,
		LogLevel:             strings.ToLower(stringEnv("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(stringEnv("LOG_FORMAT", "text")),
	}

	if err := validator.New().ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.MailgunEnabled() {
		slog.Warn("MAILGUN_DOMAIN or MAILGUN_API_KEY not set, email alerts will be skipped")
	}
	return cfg, nil
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}
