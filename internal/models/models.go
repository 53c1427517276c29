package models

import (
	"time"
	"unicode/utf8"
)

// Sentinel descriptions used in place of model output.
const (
	NotAnImage        = "(not an image)"
	DescriptionFailed = "(description failed)"
)

// UploadedImage is one file submitted as part of a batch
type UploadedImage struct {
	Name string
	Data []byte
}

// Result is the alt text generated for a single uploaded image
type Result struct {
	Name   string `json:"filename"`
	Text   string `json:"alt_text"`
	Chars  int    `json:"chars"`
	Cached bool   `json:"cached,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewResult builds a Result whose Chars is the character count of text.
func NewResult(name, text string) Result {
	return Result{
		Name:  name,
		Text:  text,
		Chars: utf8.RuneCountInString(text),
	}
}

// Failed reports whether the result carries a sentinel instead of a description.
func (r Result) Failed() bool {
	return r.Text == NotAnImage || r.Error != ""
}

// Session holds one batch submitted through the web interface
type Session struct {
	ID          string      `json:"id"`
	Provider    string      `json:"provider,omitempty"`
	Model       string      `json:"model,omitempty"`
	MaxChars    int         `json:"max_chars"`
	Style       string      `json:"style,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	Images      []ImageItem `json:"images"`
	Results     []Result    `json:"results"`
	CreatedAt   time.Time   `json:"created_at"`
	Duration    string      `json:"duration,omitempty"`
}

// ImageItem represents an uploaded image. ImageURL and Data are empty when
// the upload did not decode as an image.
type ImageItem struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	ImageURL    string `json:"image_url,omitempty"`
	MIMEType    string `json:"mime_type,omitempty"`
	ImageWidth  int    `json:"image_width,omitempty"`
	ImageHeight int    `json:"image_height,omitempty"`
	Size        int    `json:"size"`

	Data []byte `json:"-"`
}
