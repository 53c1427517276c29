package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lehigh-university-libraries/alttext/internal/export"
	"github.com/lehigh-university-libraries/alttext/internal/models"
)

// sessionSummary is the list view of a session, without results
type sessionSummary struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Images    int       `json:"images"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessionStore.GetAll()

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, sessionSummary{
			ID:        s.ID,
			Provider:  s.Provider,
			Model:     s.Model,
			Images:    len(s.Results),
			CreatedAt: s.CreatedAt,
		})
	}

	h.writeJSON(w, summaries)
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		session, ok := h.getSessionOrError(w, sessionID)
		if !ok {
			return
		}
		h.writeJSON(w, session)
	case http.MethodDelete:
		if !h.sessionStore.Delete(sessionID) {
			h.writeError(w, "Session not found", http.StatusNotFound)
			return
		}
		slog.Info("Deleted session", "session", sessionID)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	h.handleExport(w, r, export.FormatCSV)
}

func (h *Handler) HandleExportParquet(w http.ResponseWriter, r *http.Request) {
	h.handleExport(w, r, export.FormatParquet)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, format export.Format) {
	session, ok := h.getSessionOrError(w, r.PathValue("id"))
	if !ok {
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format == export.FormatParquet {
		contentType = "application/vnd.apache.parquet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="alt_text.%s"`, format))

	if err := export.Write(w, format, session.Results); err != nil {
		// Headers are already sent, so only log
		slog.Error("Unable to export session", "session", session.ID, "format", format, "err", err)
	}
}

func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r.PathValue("id"))
	if !ok {
		return
	}

	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil || idx < 0 || idx >= len(session.Images) {
		h.writeError(w, "Image not found", http.StatusNotFound)
		return
	}

	item := session.Images[idx]
	if len(item.Data) == 0 {
		h.writeError(w, "No preview for this upload", http.StatusNotFound)
		return
	}

	h.serveImage(w, item)
}

func (h *Handler) serveImage(w http.ResponseWriter, item models.ImageItem) {
	w.Header().Set("Content-Type", item.MIMEType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := w.Write(item.Data); err != nil {
		slog.Error("Unable to write image", "name", item.Name, "err", err)
	}
}
