package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/alttext/internal/describer"
	"github.com/lehigh-university-libraries/alttext/internal/dispatch"
	"github.com/lehigh-university-libraries/alttext/internal/imaging"
	"github.com/lehigh-university-libraries/alttext/internal/models"
	"github.com/lehigh-university-libraries/alttext/internal/prompt"
	"github.com/lehigh-university-libraries/alttext/internal/providers"
)

// describeRequest holds the validated form fields of a batch upload
type describeRequest struct {
	provider string
	model    string
	apiKey   string
	opts     describer.Options
}

func (h *Handler) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes*maxFiles)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, "Unable to parse form", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("Unable to remove multipart temp files", "err", err)
		}
	}()

	req, err := h.parseDescribeRequest(r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	var urls []string
	for _, v := range r.MultipartForm.Value["image_url"] {
		// one or more URLs per field, whitespace separated
		urls = append(urls, strings.Fields(v)...)
	}
	if len(urls) > 0 && !h.cfg.AllowImageURLs {
		h.writeError(w, "Image URLs are disabled on this server", http.StatusBadRequest)
		return
	}
	if len(files)+len(urls) == 0 {
		h.writeError(w, "No files uploaded", http.StatusBadRequest)
		return
	}
	if len(files)+len(urls) > maxFiles {
		h.writeError(w, fmt.Sprintf("Too many files, at most %d per batch", maxFiles), http.StatusBadRequest)
		return
	}

	// Uploaded files first, then URLs, each in submission order
	uploads := make([]models.UploadedImage, 0, len(files)+len(urls))
	for _, fh := range files {
		img, err := h.readUpload(fh)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, img)
	}
	for _, u := range urls {
		img, err := h.fetcher.Fetch(r.Context(), u)
		if err != nil {
			slog.Error("Failed to fetch image URL", "url", u, "err", err)
			h.writeError(w, fmt.Sprintf("Unable to fetch image %s", u), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, img)
	}

	p, err := h.newProvider(req.provider, describer.BackendOptions{
		APIKey:        req.apiKey,
		OpenAIBaseURL: h.cfg.OpenAI.BaseURL,
		OllamaURL:     h.cfg.Ollama.URL,
		HTTPClient:    h.httpClient,
	})
	if err != nil {
		switch {
		case errors.Is(err, providers.ErrMissingAPIKey):
			h.writeError(w, fmt.Sprintf("An API key is required for provider %s", req.provider), http.StatusBadRequest)
		case errors.Is(err, providers.ErrUnknownProvider):
			h.writeError(w, fmt.Sprintf("Unknown provider %s", req.provider), http.StatusBadRequest)
		default:
			h.writeError(w, "Unable to create provider", http.StatusInternalServerError)
		}
		return
	}

	d := dispatch.New(describer.New(p, req.model, h.sniffer), dispatch.Options{
		Concurrency: h.cfg.Concurrency,
		CallTimeout: h.cfg.CallTimeoutOrDefault(),
		Limiter:     h.limiter,
		Cache:       h.cache,
		CacheScope:  []string{req.provider, req.model},
	})

	start := time.Now()
	results := d.Dispatch(r.Context(), uploads, req.opts)
	elapsed := time.Since(start)

	session := h.createSession(req, uploads, results, elapsed)
	h.sessionStore.Set(session.ID, session)

	failures := 0
	for _, res := range results {
		if res.Failed() {
			failures++
		}
	}
	slog.Info("Described batch",
		"session", session.ID,
		"provider", req.provider,
		"model", req.model,
		"images", len(uploads),
		"failed", failures,
		"duration", elapsed)

	h.writeJSON(w, session)
}

func (h *Handler) parseDescribeRequest(r *http.Request) (describeRequest, error) {
	var req describeRequest

	req.provider = r.FormValue("provider")
	if req.provider == "" {
		req.provider = h.cfg.Provider
	}

	req.model = r.FormValue("model")
	if req.model == "" {
		req.model = h.cfg.ModelFor(req.provider)
	}

	req.apiKey = r.FormValue("api_key")
	if req.apiKey == "" {
		req.apiKey = h.cfg.APIKey(req.provider)
	}

	maxChars := h.cfg.MaxChars
	if v := r.FormValue("max_chars"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("invalid max_chars %q", v)
		}
		maxChars = n
	}
	req.opts.MaxChars = prompt.ClampMaxChars(maxChars)

	styleName := r.FormValue("style")
	if styleName == "" {
		styleName = h.cfg.Style
	}
	style, err := prompt.ParseStyle(styleName)
	if err != nil {
		return req, err
	}
	req.opts.Style = style

	req.opts.Temperature = h.cfg.Temperature
	if v := r.FormValue("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 2 {
			return req, fmt.Errorf("invalid temperature %q", v)
		}
		req.opts.Temperature = &t
	}

	return req, nil
}

func (h *Handler) readUpload(fh *multipart.FileHeader) (models.UploadedImage, error) {
	if fh.Size > h.cfg.MaxUploadBytes {
		return models.UploadedImage{}, fmt.Errorf("file %s is too large", fh.Filename)
	}

	f, err := fh.Open()
	if err != nil {
		return models.UploadedImage{}, fmt.Errorf("unable to read file %s", fh.Filename)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.cfg.MaxUploadBytes+1))
	if err != nil {
		return models.UploadedImage{}, fmt.Errorf("unable to read file %s", fh.Filename)
	}
	if int64(len(data)) > h.cfg.MaxUploadBytes {
		return models.UploadedImage{}, fmt.Errorf("file %s is too large", fh.Filename)
	}

	return models.UploadedImage{Name: fh.Filename, Data: data}, nil
}

func (h *Handler) createSession(req describeRequest, images []models.UploadedImage, results []models.Result, elapsed time.Duration) *models.Session {
	id := uuid.NewString()

	items := make([]models.ImageItem, len(images))
	for i, img := range images {
		items[i] = models.ImageItem{
			Index: i,
			Name:  img.Name,
			Size:  len(img.Data),
		}

		// Only bytes that decode as a raster image are kept for previews,
		// typed by their decoded format rather than by name or content sniff
		if !imaging.Validate(img.Data) {
			continue
		}
		mime, ok := imaging.DecodedFormatStrategy(img.Data, "")
		if !ok {
			continue
		}
		items[i].ImageURL = fmt.Sprintf("/api/sessions/%s/images/%d", id, i)
		items[i].MIMEType = mime
		items[i].Data = img.Data
		if info, err := imaging.Inspect(img.Data); err == nil {
			items[i].ImageWidth = info.Width
			items[i].ImageHeight = info.Height
		}
	}

	return &models.Session{
		ID:          id,
		Provider:    req.provider,
		Model:       req.model,
		MaxChars:    req.opts.MaxChars,
		Style:       string(req.opts.Style),
		Temperature: req.opts.Temperature,
		Images:      items,
		Results:     results,
		CreatedAt:   time.Now(),
		Duration:    elapsed.Round(time.Millisecond).String(),
	}
}
