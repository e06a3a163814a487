package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"meeting-protocol-service/internal/app"
	"meeting-protocol-service/internal/export"
	"meeting-protocol-service/internal/models"
	"meeting-protocol-service/internal/service/jobs"
	"meeting-protocol-service/internal/service/summarize"
)

// multipartMemory is the part of an upload kept in memory before the
// multipart reader spills to disk.
const multipartMemory = 32 << 20

type handlers struct {
	app       *app.Application
	jobs      *jobs.Service
	maxUpload int64
}

type processResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

type summarizeRequest struct {
	Model       string `json:"model"`
	OllamaURL   string `json:"ollama_url"`
	OllamaModel string `json:"ollama_model"`
}

type summarizeResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Microservice is running"})
}

func (h *handlers) readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Ready(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *handlers) process(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		// Room for the multipart framing and the form fields.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No audio_file part")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio_file part")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}

	jobID, err := h.jobs.Submit(r.Context(), file, header.Filename, r.FormValue("model_size"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, processResponse{Status: "processing_started", JobID: jobID})
	case errors.Is(err, jobs.ErrInvalidModelSize):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid model_size %q", r.FormValue("model_size")))
	case errors.Is(err, jobs.ErrEmptyUpload):
		writeError(w, http.StatusBadRequest, "No selected file")
	case errors.Is(err, jobs.ErrUploadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large")
	case errors.Is(err, jobs.ErrQueueFull):
		writeJobError(w, http.StatusServiceUnavailable, jobID, "error", "Processing queue is full, try again later")
	default:
		log.Error().Err(err).Msg("Failed to start processing")
		writeError(w, http.StatusInternalServerError, "Failed to start processing: "+err.Error())
	}
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.jobs.Status(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		h.lookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) results(w http.ResponseWriter, r *http.Request) {
	res, ok := h.result(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported export format")
		return
	}
	res, ok := h.result(w, r)
	if !ok {
		return
	}

	doc, err := export.Render(res, format)
	if err != nil {
		log.Error().Err(err).Str("jobId", res.JobID).Msg("Export failed")
		writeError(w, http.StatusInternalServerError, "Export failed")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": format.Filename(res.JobID)}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// result loads a completed job's result and answers the error cases itself.
func (h *handlers) result(w http.ResponseWriter, r *http.Request) (models.JobResult, bool) {
	jobID := chi.URLParam(r, "jobId")
	res, err := h.jobs.Result(r.Context(), jobID)
	switch {
	case err == nil:
		return res, true
	case errors.Is(err, jobs.ErrNotCompleted):
		st, _ := h.jobs.Status(r.Context(), jobID)
		writeJobError(w, http.StatusConflict, jobID, string(st.Status), "Job not completed")
	case errors.Is(err, jobs.ErrResultUnavailable):
		writeJobError(w, http.StatusInternalServerError, jobID, "error", "Results not available")
	default:
		h.lookupError(w, err)
	}
	return models.JobResult{}, false
}

func (h *handlers) summarize(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "Request must be JSON")
		return
	}
	var req summarizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Request must be JSON")
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "Model identifier must be provided")
		return
	}

	opts := summarize.Options{URL: req.OllamaURL, Model: req.OllamaModel}
	summary, err := h.jobs.Summarize(r.Context(), jobID, req.Model, opts)
	if err == nil {
		writeJSON(w, http.StatusOK, summarizeResponse{JobID: jobID, Status: "summary_completed", Summary: summary})
		return
	}

	var cfgErr *models.ConfigurationError
	var sumErr *models.SummarizationError
	switch {
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, jobs.ErrNotCompleted):
		writeError(w, http.StatusNotFound, "Job not completed or found")
	case errors.Is(err, jobs.ErrResultUnavailable):
		writeError(w, http.StatusInternalServerError, "Protocol data not available")
	case errors.As(err, &cfgErr):
		writeJobError(w, http.StatusBadRequest, jobID, "error", cfgErr.Error())
	case errors.As(err, &sumErr):
		writeJobError(w, http.StatusBadGateway, jobID, "error", "Summary generation failed: "+sumErr.Error())
	default:
		log.Error().Err(err).Str("jobId", jobID).Msg("Summarize failed")
		writeJobError(w, http.StatusInternalServerError, jobID, "error", "Summary generation failed: "+err.Error())
	}
}

func (h *handlers) lookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job ID not found")
		return
	}
	log.Error().Err(err).Msg("Job lookup failed")
	writeError(w, http.StatusInternalServerError, "Internal error")
}
