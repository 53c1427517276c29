package describer

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lehigh-university-libraries/alttext/internal/imaging"
	"github.com/lehigh-university-libraries/alttext/internal/models"
	"github.com/lehigh-university-libraries/alttext/internal/prompt"
	"github.com/lehigh-university-libraries/alttext/internal/providers"
)

// Options are the per batch parameters of a description request
type Options struct {
	MaxChars    int
	Style       prompt.Style
	Temperature *float64
}

// Requester turns one uploaded image into alt text using a single provider
// call.
type Requester struct {
	Provider providers.Provider
	Model    string
	Sniffer  *imaging.Sniffer
}

// New returns a Requester. An empty model selects the provider default and a
// nil sniffer selects one with content sniffing enabled.
func New(p providers.Provider, model string, sniffer *imaging.Sniffer) *Requester {
	if model == "" {
		model = providers.DefaultModel(p.Name())
	}
	if sniffer == nil {
		sniffer = imaging.NewSniffer(imaging.SnifferOptions{ContentSniff: true})
	}
	return &Requester{
		Provider: p,
		Model:    model,
		Sniffer:  sniffer,
	}
}

// Describe issues one provider call for img and returns its description cut
// to at most opts.MaxChars characters with trailing whitespace removed.
func (r *Requester) Describe(ctx context.Context, img models.UploadedImage, opts Options) (string, error) {
	if opts.MaxChars < 1 {
		return "", fmt.Errorf("max chars must be positive, got %d", opts.MaxChars)
	}

	mime := r.Sniffer.Sniff(img.Data, img.Name)
	pair := prompt.Build(opts.MaxChars, opts.Style)

	text, err := r.Provider.ExtractText(ctx, providers.Config{
		Model:        r.Model,
		Temperature:  opts.Temperature,
		SystemPrompt: pair.System,
		Prompt:       pair.User,
		Image: providers.Image{
			Data:     img.Data,
			MIMEType: mime,
			DataURI:  imaging.DataURI(img.Data, mime),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s request for %s failed: %w", r.Provider.Name(), img.Name, err)
	}

	return Truncate(text, opts.MaxChars), nil
}

// Truncate trims s, keeps its first maxChars characters and trims trailing
// whitespace again. It never splits a UTF-8 sequence.
func Truncate(s string, maxChars int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxChars {
		n := 0
		for i := range s {
			if n == maxChars {
				s = s[:i]
				break
			}
			n++
		}
	}
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
