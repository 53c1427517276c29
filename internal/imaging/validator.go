package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WEBP decoder
)

// MaxPixels bounds width*height of an image Validate will fully decode
const MaxPixels = 40_000_000

// Info describes a decodable image
type Info struct {
	Format string
	Width  int
	Height int
}

// Validate reports whether data decodes as a well formed image. Any decode
// failure, recognised format or not, yields false, as do images whose header
// declares more than MaxPixels.
func Validate(data []byte) (ok bool) {
	if len(data) == 0 {
		return false
	}

	// Some third party decoders panic on hostile input
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return false
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return false
	}

	_, _, err = image.Decode(bytes.NewReader(data))
	return err == nil
}

// Inspect returns the format and dimensions of data without decoding the
// pixel data.
func Inspect(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode image config: %w", err)
	}

	return Info{
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
