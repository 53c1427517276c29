package handlers

import "net/http"

// Routes registers every endpoint of the web interface
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/describe", h.HandleDescribe)
	mux.HandleFunc("GET /api/sessions", h.HandleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleSessionDetail)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleSessionDetail)
	mux.HandleFunc("GET /api/sessions/{id}/export.csv", h.HandleExportCSV)
	mux.HandleFunc("GET /api/sessions/{id}/export.parquet", h.HandleExportParquet)
	mux.HandleFunc("GET /api/sessions/{id}/images/{idx}", h.HandleImage)
	mux.HandleFunc("GET /healthcheck", h.HandleHealthcheck)
	mux.HandleFunc("GET /", h.HandleStatic)
	return mux
}
