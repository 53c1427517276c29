package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/alttext/internal/providers"
)

// clearEnv unsets every variable Load reads so the host environment does not
// leak into the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ALTTEXT_CONFIG", "ALTTEXT_PROVIDER", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
		"GEMINI_API_KEY", "GEMINI_MODEL", "OLLAMA_URL", "OLLAMA_MODEL", "ALTTEXT_STYLE",
		"ALTTEXT_CACHE_PATH", "LOG_LEVEL", "ALTTEXT_MAX_CHARS", "ALTTEXT_CONCURRENCY",
		"ALTTEXT_RATE_PER_MINUTE", "ALTTEXT_CALL_TIMEOUT", "ALTTEXT_CONTENT_SNIFF", "ALTTEXT_TEMPERATURE",
		"ALTTEXT_ALLOW_IMAGE_URLS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if cfg.Provider != providers.OpenAIName || cfg.MaxChars != 125 || cfg.Concurrency != 5 {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.AllowImageURLs {
		t.Error("Image URL fetching should default to off")
	}
	if !cfg.ContentSniff {
		t.Error("Content sniffing should default to on")
	}
	if cfg.ModelFor(providers.OpenAIName) != "gpt-5-mini" {
		t.Errorf("Unexpected default model %q", cfg.ModelFor(providers.OpenAIName))
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "alttext.yaml")
	data := []byte(`provider: ollama
ollama:
  url: http://gpu-box:11434
  model: llava:13b
max_chars: 90
concurrency: 2
call_timeout: 45s
content_sniff: false
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ALTTEXT_CONCURRENCY", "8")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}

	if cfg.Provider != providers.OllamaName {
		t.Errorf("Expected provider from file, got %q", cfg.Provider)
	}
	if cfg.ModelFor(providers.OllamaName) != "llava:13b" || cfg.Ollama.URL != "http://gpu-box:11434" {
		t.Errorf("Unexpected ollama config %+v", cfg.Ollama)
	}
	if cfg.MaxChars != 90 || cfg.CallTimeout != 45*time.Second || cfg.ContentSniff {
		t.Errorf("Unexpected file values %+v", cfg)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Expected env to override file concurrency, got %d", cfg.Concurrency)
	}
	if cfg.APIKey(providers.OpenAIName) != "sk-test" || cfg.APIKey(providers.OllamaName) != "" {
		t.Error("Unexpected API keys")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"zero concurrency":     {"ALTTEXT_CONCURRENCY": "0"},
		"not a number":         {"ALTTEXT_MAX_CHARS": "lots"},
		"unknown provider":     {"ALTTEXT_PROVIDER": "skynet"},
		"bad duration":         {"ALTTEXT_CALL_TIMEOUT": "soon"},
		"negative rate":        {"ALTTEXT_RATE_PER_MINUTE": "-1"},
		"unknown style":        {"ALTTEXT_STYLE": "haiku"},
		"high temperature":     {"ALTTEXT_TEMPERATURE": "3.5"},
		"bad content sniff":    {"ALTTEXT_CONTENT_SNIFF": "maybe"},
		"bad allow image urls": {"ALTTEXT_ALLOW_IMAGE_URLS": "sometimes"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestSlogLevel(t *testing.T) {
	for in, expected := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		cfg := &Config{LogLevel: in}
		if got := cfg.SlogLevel(); got != expected {
			t.Errorf("%q: expected %v, got %v", in, expected, got)
		}
	}
}

func TestCallTimeoutOrDefault(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "alttext.yaml")
	if err := os.WriteFile(path, []byte("call_timeout: 0s\nallow_image_urls: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if !cfg.AllowImageURLs {
		t.Error("Expected allow_image_urls from the file")
	}
	if got := cfg.CallTimeoutOrDefault(); got != 60*time.Second {
		t.Errorf("Expected an unset timeout to resolve to 60s, got %s", got)
	}

	cfg.CallTimeout = 15 * time.Second
	if got := cfg.CallTimeoutOrDefault(); got != 15*time.Second {
		t.Errorf("Expected 15s, got %s", got)
	}
}
