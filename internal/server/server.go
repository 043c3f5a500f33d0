package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kiesman99/dezoom/internal/api"
	"github.com/kiesman99/dezoom/internal/logging"
)

// Checker reports whether images can be composited at all.
type Checker interface {
	Check(ctx context.Context) error
}

// Server implements the ServerInterface from the generated API
type Server struct {
	startTime time.Time
	version   string
	jobs      *JobManager
	checker   Checker
}

var _ api.ServerInterface = (*Server)(nil)

// NewServer creates a new server instance. checker may be nil.
func NewServer(version string, jobs *JobManager, checker Checker) *Server {
	return &Server{
		startTime: time.Now(),
		version:   version,
		jobs:      jobs,
		checker:   checker,
	}
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}
	status := http.StatusOK
	if s.checker != nil {
		if err := s.checker.Check(r.Context()); err != nil {
			msg := err.Error()
			response.Status = api.Unhealthy
			response.Compositor = &msg
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, response)
}

// CreateJob queues a dezoomify job
func (s *Server) CreateJob(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	var req api.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", requestID)
		return
	}

	job, err := s.jobs.Submit(req)
	if err != nil {
		s.handleJobError(w, err, requestID)
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+job.Id)
	writeJSON(w, http.StatusAccepted, job)
}

// GetJob reports the state of a job
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request, id api.JobId) {
	job, err := s.jobs.Get(id)
	if err != nil {
		s.handleJobError(w, err, middleware.GetReqID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob stops a queued or running job
func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request, id api.JobId) {
	job, err := s.jobs.Cancel(id)
	if err != nil {
		s.handleJobError(w, err, middleware.GetReqID(r.Context()))
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// GetJobImage returns the image of a completed job
func (s *Server) GetJobImage(w http.ResponseWriter, r *http.Request, id api.JobId) {
	data, err := s.jobs.Image(id)
	if err != nil {
		s.handleJobError(w, err, middleware.GetReqID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.jpg"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Logger().Warn("error writing image", "job", id, "err", err)
	}
}

func (s *Server) handleJobError(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		s.writeErrorResponse(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), requestID)
	case errors.Is(err, ErrJobNotFound):
		s.writeErrorResponse(w, http.StatusNotFound, "JOB_NOT_FOUND", err.Error(), requestID)
	case errors.Is(err, ErrImageNotReady):
		s.writeErrorResponse(w, http.StatusConflict, "IMAGE_NOT_READY", err.Error(), requestID)
	case errors.Is(err, ErrImageExpired):
		s.writeErrorResponse(w, http.StatusGone, "IMAGE_EXPIRED", err.Error(), requestID)
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrStopped):
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), requestID)
	default:
		logging.Logger().Error("request failed", "request_id", requestID, "err", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", requestID)
	}
}

// handleParamError reports path parameters the generated wrappers could not bind
func (s *Server) handleParamError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_PARAMETER", err.Error(),
		middleware.GetReqID(r.Context()))
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message, requestID string) {
	response := api.ErrorResponse{
		Error:   errorCode,
		Message: message,
	}
	if requestID != "" {
		response.RequestId = &requestID
	}
	writeJSON(w, statusCode, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger().Warn("error encoding response", "err", err)
	}
}
