package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/alttext/internal/dispatch"
	"github.com/lehigh-university-libraries/alttext/internal/ollama"
	"github.com/lehigh-university-libraries/alttext/internal/prompt"
	"github.com/lehigh-university-libraries/alttext/internal/providers"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// Config holds every tunable of the server and the CLI
type Config struct {
	Provider string       `yaml:"provider"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Gemini   GeminiConfig `yaml:"gemini"`
	Ollama   OllamaConfig `yaml:"ollama"`

	MaxChars    int      `yaml:"max_chars"`
	Style       string   `yaml:"style"`
	Temperature *float64 `yaml:"temperature"`

	Concurrency   int           `yaml:"concurrency"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
	RatePerMinute int           `yaml:"rate_per_minute"`

	CachePath    string `yaml:"cache_path"`
	ContentSniff bool   `yaml:"content_sniff"`

	// AllowImageURLs lets the web interface download images by URL.
	// Private and loopback destinations stay refused even when enabled.
	AllowImageURLs bool `yaml:"allow_image_urls"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	SessionLimit   int   `yaml:"session_limit"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built in configuration
func Default() *Config {
	return &Config{
		Provider:       providers.OpenAIName,
		Ollama:         OllamaConfig{URL: ollama.DefaultURL},
		MaxChars:       prompt.DefaultChars,
		Style:          string(prompt.StyleConcise),
		Concurrency:    dispatch.DefaultConcurrency,
		CallTimeout:    dispatch.DefaultCallTimeout,
		ContentSniff:   true,
		MaxUploadBytes: 10 * 1024 * 1024,
		SessionLimit:   100,
		LogLevel:       "info",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $ALTTEXT_CONFIG when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ALTTEXT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		slog.Debug("Loaded config file", "path", path)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Provider, "ALTTEXT_PROVIDER")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Gemini.Model, "GEMINI_MODEL")
	setString(&c.Ollama.URL, "OLLAMA_URL")
	setString(&c.Ollama.Model, "OLLAMA_MODEL")
	setString(&c.Style, "ALTTEXT_STYLE")
	setString(&c.CachePath, "ALTTEXT_CACHE_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v, ok := os.LookupEnv("ALTTEXT_MAX_CHARS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ALTTEXT_MAX_CHARS: %v", ErrInvalid, err)
		}
		c.MaxChars = n
	}
	if v, ok := os.LookupEnv("ALTTEXT_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ALTTEXT_CONCURRENCY: %v", ErrInvalid, err)
		}
		c.Concurrency = n
	}
	if v, ok := os.LookupEnv("ALTTEXT_RATE_PER_MINUTE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: ALTTEXT_RATE_PER_MINUTE: %v", ErrInvalid, err)
		}
		c.RatePerMinute = n
	}
	if v, ok := os.LookupEnv("ALTTEXT_CALL_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: ALTTEXT_CALL_TIMEOUT: %v", ErrInvalid, err)
		}
		c.CallTimeout = d
	}
	if v, ok := os.LookupEnv("ALTTEXT_CONTENT_SNIFF"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: ALTTEXT_CONTENT_SNIFF: %v", ErrInvalid, err)
		}
		c.ContentSniff = b
	}
	if v, ok := os.LookupEnv("ALTTEXT_ALLOW_IMAGE_URLS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: ALTTEXT_ALLOW_IMAGE_URLS: %v", ErrInvalid, err)
		}
		c.AllowImageURLs = b
	}
	if v, ok := os.LookupEnv("ALTTEXT_TEMPERATURE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: ALTTEXT_TEMPERATURE: %v", ErrInvalid, err)
		}
		c.Temperature = &f
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if !isProvider(c.Provider) {
		return fmt.Errorf("%w: %w: %s", ErrInvalid, providers.ErrUnknownProvider, c.Provider)
	}
	if c.MaxChars < 1 {
		return fmt.Errorf("%w: max_chars must be positive, got %d", ErrInvalid, c.MaxChars)
	}
	if _, err := prompt.ParseStyle(c.Style); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be within [0, 2], got %v", ErrInvalid, *c.Temperature)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalid, c.Concurrency)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("%w: call_timeout must not be negative", ErrInvalid)
	}
	if c.RatePerMinute < 0 {
		return fmt.Errorf("%w: rate_per_minute must not be negative", ErrInvalid)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalid)
	}
	return nil
}

func isProvider(name string) bool {
	return slices.Contains(providers.Names(), name)
}

// CallTimeoutOrDefault resolves an unset call timeout to the dispatcher
// default so HTTP clients and shutdown deadlines agree with it.
func (c *Config) CallTimeoutOrDefault() time.Duration {
	if c.CallTimeout == 0 {
		return dispatch.DefaultCallTimeout
	}
	return c.CallTimeout
}

// APIKey returns the configured credential for a provider
func (c *Config) APIKey(provider string) string {
	switch provider {
	case providers.OpenAIName:
		return c.OpenAI.APIKey
	case providers.GeminiName:
		return c.Gemini.APIKey
	default:
		return ""
	}
}

// ModelFor returns the configured model for a provider, or its default.
func (c *Config) ModelFor(provider string) string {
	var model string
	switch provider {
	case providers.OpenAIName:
		model = c.OpenAI.Model
	case providers.GeminiName:
		model = c.Gemini.Model
	case providers.OllamaName:
		model = c.Ollama.Model
	}
	if model == "" {
		model = providers.DefaultModel(provider)
	}
	return model
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
