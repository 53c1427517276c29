package describer

import (
	"fmt"
	"net/http"

	"github.com/lehigh-university-libraries/alttext/internal/gemini"
	"github.com/lehigh-university-libraries/alttext/internal/ollama"
	"github.com/lehigh-university-libraries/alttext/internal/openai"
	"github.com/lehigh-university-libraries/alttext/internal/providers"
)

// BackendOptions carries what is needed to construct any provider
type BackendOptions struct {
	APIKey        string
	OpenAIBaseURL string
	OllamaURL     string

	HTTPClient *http.Client // if nil uses http.DefaultClient
}

// NewProvider selects a provider by name. An empty name selects OpenAI.
func NewProvider(name string, opts BackendOptions) (providers.Provider, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	switch name {
	case "", providers.OpenAIName:
		return openai.New(openai.Options{
			APIKey:     opts.APIKey,
			BaseURL:    opts.OpenAIBaseURL,
			HTTPClient: httpClient,
		})
	case providers.GeminiName:
		// A custom HTTP client would bypass the API key transport
		return gemini.New(opts.APIKey)
	case providers.OllamaName:
		return ollama.New(opts.OllamaURL, httpClient), nil
	default:
		return nil, fmt.Errorf("%w: %s", providers.ErrUnknownProvider, name)
	}
}
