package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/alttext/internal/cache"
	"github.com/lehigh-university-libraries/alttext/internal/config"
	"github.com/lehigh-university-libraries/alttext/internal/describer"
	"github.com/lehigh-university-libraries/alttext/internal/dispatch"
	"github.com/lehigh-university-libraries/alttext/internal/images"
	"github.com/lehigh-university-libraries/alttext/internal/imaging"
	"github.com/lehigh-university-libraries/alttext/internal/models"
	"github.com/lehigh-university-libraries/alttext/internal/providers"
	"github.com/lehigh-university-libraries/alttext/internal/storage"
	"golang.org/x/time/rate"
)

// maxFiles bounds the number of images accepted in one batch
const maxFiles = 50

type Handler struct {
	cfg          *config.Config
	sessionStore *storage.SessionStore
	sniffer      *imaging.Sniffer
	fetcher      *images.Fetcher
	limiter      *rate.Limiter
	cache        dispatch.Cache
	httpClient   *http.Client

	newProvider func(name string, opts describer.BackendOptions) (providers.Provider, error)
}

// New returns a Handler. c may be nil to disable the description cache.
func New(cfg *config.Config, c *cache.Cache) *Handler {
	h := &Handler{
		cfg:          cfg,
		sessionStore: storage.New(cfg.SessionLimit),
		sniffer:      imaging.NewSniffer(imaging.SnifferOptions{ContentSniff: cfg.ContentSniff}),
		fetcher:      images.NewFetcher(images.FetcherOptions{MaxBytes: cfg.MaxUploadBytes}),
		limiter:      dispatch.NewLimiter(cfg.RatePerMinute),
		httpClient:   &http.Client{Timeout: cfg.CallTimeoutOrDefault() + 5*time.Second},
		newProvider:  describer.NewProvider,
	}
	if c != nil {
		h.cache = c
	}
	return h
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message, "status", code)
	http.Error(w, message, code)
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*models.Session, bool) {
	session, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}
