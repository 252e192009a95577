package handlers

import (
	"embed"
	"net/http"

	"github.com/ternarybob/arbor"
)

//go:embed assets/index.html
var uiAssets embed.FS

// UIHandler serves the embedded dashboard page
type UIHandler struct {
	logger arbor.ILogger
}

func NewUIHandler(logger arbor.ILogger) *UIHandler {
	return &UIHandler{logger: logger}
}

// IndexHandler serves the dashboard: GET /
func (h *UIHandler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	page, err := uiAssets.ReadFile("assets/index.html")
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read embedded dashboard")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}
