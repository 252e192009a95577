package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all application routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Dashboard
	mux.HandleFunc("/", s.app.UIHandler.IndexHandler)

	// WebSocket status stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - service
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// API routes - scrape jobs
	mux.HandleFunc("/api/scrape", s.app.JobHandler.StartScrapeHandler) // POST - start a scrape
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)      // GET - list jobs
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)                    // GET/DELETE /{id}, GET /{id}/results

	// API routes - dataset downloads
	mux.HandleFunc("/api/download/", s.app.JobHandler.DownloadHandler)

	return mux
}

// handleJobRoutes routes /api/jobs/{id} requests
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if len(path) <= len("/api/jobs/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	// GET /api/jobs/{id}/results
	if r.Method == "GET" && strings.HasSuffix(path, "/results") {
		s.app.JobHandler.GetJobResultsHandler(w, r)
		return
	}

	switch r.Method {
	case "GET":
		s.app.JobHandler.GetJobHandler(w, r)
	case "DELETE":
		s.app.JobHandler.DeleteJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
