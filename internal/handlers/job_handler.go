package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/interfaces"
	"github.com/ternarybob/subhasta/internal/jobs"
	"github.com/ternarybob/subhasta/internal/models"
)

// ScrapeRequest is the POST /api/scrape payload
type ScrapeRequest struct {
	Source  string                 `json:"source" validate:"required,oneof=classic_valuer classic_com"`
	Options map[string]interface{} `json:"options"`
}

// JobHandler serves the scrape job API
type JobHandler struct {
	runner   *jobs.Runner
	registry *jobs.Registry
	results  interfaces.ResultStore
	datasets interfaces.DatasetStore
	validate *validator.Validate
	logger   arbor.ILogger
}

func NewJobHandler(runner *jobs.Runner, registry *jobs.Registry, results interfaces.ResultStore, datasets interfaces.DatasetStore, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		runner:   runner,
		registry: registry,
		results:  results,
		datasets: datasets,
		validate: validator.New(),
		logger:   logger,
	}
}

// StartScrapeHandler starts a scrape job: POST /api/scrape
func (h *JobHandler) StartScrapeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request: source must be one of classic_valuer, classic_com")
		return
	}

	job, err := h.runner.Submit(models.SourceType(req.Source), req.Options)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSource) {
			WriteError(w, http.StatusBadRequest, "Unknown source: "+req.Source)
			return
		}
		h.logger.Error().Err(err).Str("source", req.Source).Msg("Failed to submit job")
		WriteError(w, http.StatusInternalServerError, "Failed to start scrape job")
		return
	}

	h.logger.Info().
		Str("job_id", job.ID).
		Str("source", req.Source).
		Msg("Scrape job started")

	WriteJSON(w, http.StatusAccepted, job)
}

// ListJobsHandler lists all jobs: GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	list := h.registry.List()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// GetJobHandler returns one job: GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID required")
		return
	}

	job, err := h.registry.Get(jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Job not found: "+jobID)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// DeleteJobHandler removes a job and its stored results: DELETE /api/jobs/{id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID required")
		return
	}

	if err := h.registry.Delete(jobID); err != nil {
		WriteError(w, http.StatusNotFound, "Job not found: "+jobID)
		return
	}

	if err := h.results.DeleteResults(r.Context(), jobID); err != nil {
		h.logger.Warn().Str("job_id", jobID).Err(err).Msg("Failed to delete stored results")
	}

	WriteSuccess(w, "Job deleted")
}

// GetJobResultsHandler returns the full record set of a completed job:
// GET /api/jobs/{id}/results
func (h *JobHandler) GetJobResultsHandler(w http.ResponseWriter, r *http.Request) {
	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID required")
		return
	}

	job, err := h.registry.Get(jobID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Job not found: "+jobID)
		return
	}

	if err := job.EnsureCompleted(); err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	set, err := h.results.GetResults(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// completed with results released; fall back to the job preview
			set = &models.ResultSet{JobID: jobID, Source: job.Source, Records: job.Preview}
		} else {
			h.logger.Error().Str("job_id", jobID).Err(err).Msg("Failed to load results")
			WriteError(w, http.StatusInternalServerError, "Failed to load job results")
			return
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":        jobID,
		"source":        set.Source,
		"total_records": len(set.Records),
		"records":       set.Records,
		"csv_file":      job.OutputFile,
	})
}

// DownloadHandler streams a dataset CSV: GET /api/download/{file}
func (h *JobHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/download/")
	filePath, err := h.datasets.Path(name)
	if err != nil {
		WriteError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(filePath)+`"`)
	http.ServeFile(w, r, filePath)
}

// extractJobID pulls the job ID out of /api/jobs/{id} and
// /api/jobs/{id}/results paths
func extractJobID(urlPath string) string {
	suffix := strings.TrimPrefix(urlPath, "/api/jobs/")
	if suffix == urlPath {
		return ""
	}
	suffix = strings.TrimSuffix(suffix, "/results")
	return strings.Trim(suffix, "/")
}
