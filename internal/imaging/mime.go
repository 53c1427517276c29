package imaging

import (
	"bytes"
	"image"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMIMEType is returned when no strategy recognises the input.
const DefaultMIMEType = "image/jpeg"

// Strategy guesses a media type from raw bytes and an optional filename.
// It returns false when it has no opinion.
type Strategy func(data []byte, name string) (string, bool)

// SnifferOptions configures a Sniffer
type SnifferOptions struct {
	// ContentSniff enables magic number detection. It is decided once when
	// the Sniffer is built, never per call.
	ContentSniff bool
}

// Sniffer determines the media type of an uploaded image by trying each
// strategy in order; the first one to answer wins.
type Sniffer struct {
	strategies []Strategy
}

// NewSniffer returns a Sniffer using content, decoded format and extension
// strategies in that order.
func NewSniffer(opts SnifferOptions) *Sniffer {
	var strategies []Strategy
	if opts.ContentSniff {
		strategies = append(strategies, ContentStrategy)
	}
	strategies = append(strategies, DecodedFormatStrategy, ExtensionStrategy)

	return &Sniffer{strategies: strategies}
}

// NewSnifferWith builds a Sniffer from an explicit strategy list.
func NewSnifferWith(strategies ...Strategy) *Sniffer {
	return &Sniffer{strategies: strategies}
}

// Sniff always returns a media type, falling back to DefaultMIMEType.
func (s *Sniffer) Sniff(data []byte, name string) string {
	for _, strategy := range s.strategies {
		if mime, ok := strategy(data, name); ok {
			return mime
		}
	}
	return DefaultMIMEType
}

// ContentStrategy inspects magic numbers. Only image types are accepted.
func ContentStrategy(data []byte, _ string) (string, bool) {
	if len(data) == 0 {
		return "", false
	}

	mt := mimetype.Detect(data)
	if mt == nil {
		return "", false
	}

	// Strip parameters such as "; charset=utf-8"
	mime, _, _ := strings.Cut(mt.String(), ";")
	if !strings.HasPrefix(mime, "image/") {
		return "", false
	}
	return mime, true
}

var formatTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

// DecodedFormatStrategy maps the format reported by the registered image
// decoders to a media type.
func DecodedFormatStrategy(data []byte, _ string) (string, bool) {
	if len(data) == 0 {
		return "", false
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", false
	}

	mime, ok := formatTypes[format]
	return mime, ok
}

var extensionTypes = map[string]string{
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// ExtensionStrategy matches the filename extension against a fixed table.
func ExtensionStrategy(_ []byte, name string) (string, bool) {
	if name == "" {
		return "", false
	}

	mime, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]
	return mime, ok
}
