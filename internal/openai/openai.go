package openai

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/lehigh-university-libraries/alttext/internal/providers"

	oai "github.com/sashabaranov/go-openai"
)

// Options configures the OpenAI provider
type Options struct {
	APIKey     string
	BaseURL    string       // optional, for OpenAI compatible endpoints
	HTTPClient *http.Client // optional
}

// OpenAI is a provider for OpenAI chat completions with image input
type OpenAI struct {
	client *oai.Client
}

var _ providers.Provider = &OpenAI{}

// New returns a new OpenAI provider
func New(opts Options) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", providers.ErrMissingAPIKey)
	}

	cfg := oai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	return &OpenAI{client: oai.NewClientWithConfig(cfg)}, nil
}

func (o *OpenAI) Name() string { return providers.OpenAIName }

// ExtractText sends the system prompt plus a user message holding the text
// prompt and the image as a data URI.
func (o *OpenAI) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	req := oai.ChatCompletionRequest{
		Model: config.Model,
		Messages: []oai.ChatCompletionMessage{
			{
				Role:    oai.ChatMessageRoleSystem,
				Content: config.SystemPrompt,
			},
			{
				Role: oai.ChatMessageRoleUser,
				MultiContent: []oai.ChatMessagePart{
					{
						Type: oai.ChatMessagePartTypeText,
						Text: config.Prompt,
					},
					{
						Type: oai.ChatMessagePartTypeImageURL,
						ImageURL: &oai.ChatMessageImageURL{
							URL:    config.Image.DataURI,
							Detail: oai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}
	if config.Temperature != nil {
		req.Temperature = float32(*config.Temperature)
		// go-openai omits a zero temperature, so send the closest non zero value
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}
