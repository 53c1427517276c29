package providers

import (
	"context"
	"errors"
)

var (
	// ErrUnknownProvider is returned when a provider name is not recognised
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingAPIKey is returned when a hosted provider has no credential
	ErrMissingAPIKey = errors.New("missing API key")
)

// Provider names
const (
	OpenAIName = "openai"
	GeminiName = "gemini"
	OllamaName = "ollama"
)

var defaultModels = map[string]string{
	OpenAIName: "gpt-5-mini",
	GeminiName: "gemini-1.5-flash",
	OllamaName: "llava",
}

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// Names lists the supported providers.
func Names() []string {
	return []string{OpenAIName, GeminiName, OllamaName}
}

// Image is the picture attached to a request, in both raw and inline form.
type Image struct {
	Data     []byte
	MIMEType string
	DataURI  string
}

// Config represents the configuration for a single LLM request
type Config struct {
	Model        string
	Temperature  *float64 // nil leaves the provider default
	SystemPrompt string
	Prompt       string
	Image        Image
}

// Provider defines the interface for an LLM provider
type Provider interface {
	// Name returns the provider name, e.g. "openai"
	Name() string

	// ExtractText sends the prompt and image and returns the text of the top
	// choice. A response without content yields "" and a nil error.
	ExtractText(ctx context.Context, config Config) (string, error)
}
