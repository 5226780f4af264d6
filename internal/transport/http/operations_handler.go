package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "tabtweak/internal/errors"
	"tabtweak/internal/infrastructure"
	"tabtweak/internal/middleware"
	"tabtweak/internal/operations"
)

// OperationsHandler handles operation and job requests
type OperationsHandler struct {
	service      OperationServiceInterface
	validation   *middleware.ValidationMiddleware
	query        *middleware.QueryParamValidator
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// JobResponse is a job with polling hints
type JobResponse struct {
	*operations.Job
	Duration   string `json:"duration,omitempty"`
	IsComplete bool   `json:"is_complete"`
	PollAfter  string `json:"poll_after,omitempty"`
}

// NewOperationsHandler creates a new operations handler
func NewOperationsHandler(service OperationServiceInterface, validation *middleware.ValidationMiddleware, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *OperationsHandler {
	return &OperationsHandler{
		service:      service,
		validation:   validation,
		query:        middleware.NewQueryParamValidator(errorHandler),
		errorHandler: errorHandler,
		logger:       infrastructure.WithComponent(logger, "operations_handler"),
	}
}

// Routes returns the operation routes
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.With(h.validation.LimitBody).Post("/", h.StartOperation)
	r.With(h.validation.LimitBody).Post("/run", h.RunOperation)
	r.Get("/steps", h.ListSteps)
	r.Get("/metrics", h.GetMetrics)

	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJob)
	r.Post("/jobs/{id}/cancel", h.CancelJob)

	r.Get("/{id}", h.GetOperation)
	return r
}

// StartOperation handles POST /api/operations. The operation is queued and
// its job is returned with 202 Accepted.
func (h *OperationsHandler) StartOperation(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("tabtweak/http").Start(r.Context(), "operations_handler.start",
		trace.WithAttributes(attribute.String("request_id", chimiddleware.GetReqID(r.Context()))))
	defer span.End()

	var req operations.OperationRequest
	if err := h.validation.Decode(r, &req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		h.errorHandler.HandleError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("dataset", req.Dataset))

	job, err := h.service.StartOperation(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		h.errorHandler.HandleError(w, r, apierrors.ErrServiceUnavailable.With("Operation could not be queued", err.Error()))
		return
	}

	h.logger.InfoContext(ctx, "operation queued",
		slog.String("job_id", job.ID),
		slog.String("operation_id", job.OperationID),
		slog.String("dataset", req.Dataset))

	w.Header().Set("Location", "/api/operations/jobs/"+job.ID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, jobResponse(job))
}

// RunOperation handles POST /api/operations/run and waits for the outcome
func (h *OperationsHandler) RunOperation(w http.ResponseWriter, r *http.Request) {
	var req operations.OperationRequest
	if err := h.validation.Decode(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp, err := h.service.ExecuteOperation(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// ListSteps handles GET /api/operations/steps
func (h *OperationsHandler) ListSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.service.Steps()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"steps": steps})
}

// GetMetrics handles GET /api/operations/metrics
func (h *OperationsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.GetOperationMetrics(r.Context()))
}

// GetOperation handles GET /api/operations/{id} and returns the latest
// broadcast snapshot
func (h *OperationsHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.GetSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, snapshot)
}

// ListJobs handles GET /api/operations/jobs?status=&dataset=&limit=
func (h *OperationsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status, ok := h.query.ValidateEnum(w, r, "status", []string{
		string(operations.JobStatusPending),
		string(operations.JobStatusRunning),
		string(operations.JobStatusCompleted),
		string(operations.JobStatusFailed),
		string(operations.JobStatusCancelled),
	}, "")
	if !ok {
		return
	}
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, 500, 50)
	if !ok {
		return
	}

	jobs, err := h.service.ListJobs(r.Context(), operations.JobFilter{
		Status:  operations.JobStatus(status),
		Dataset: r.URL.Query().Get("dataset"),
		Limit:   limit,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobResponse(job))
	}
	render.JSON(w, r, map[string]interface{}{
		"jobs":  out,
		"count": len(out),
	})
}

// GetJob handles GET /api/operations/jobs/{id}
func (h *OperationsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, jobResponse(job))
}

// CancelJob handles POST /api/operations/jobs/{id}/cancel
func (h *OperationsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.CancelJob(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"job_id": id,
		"status": "cancelling",
	})
}

// handleError maps operation errors onto API errors before the shared
// problem details handler renders them
func (h *OperationsHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var opErr *operations.OperationError
	if errors.As(err, &opErr) {
		switch opErr.Type {
		case operations.ErrorTypeNotFound:
			err = apierrors.ErrOperationNotFound.With(opErr.Message, nil)
		case operations.ErrorTypeValidation:
			err = apierrors.NewWithDetails(http.StatusConflict, "INVALID_STATE", opErr.Message, opErr.Step)
		case operations.ErrorTypeTimeout:
			err = apierrors.New(http.StatusGatewayTimeout, "TIMEOUT", opErr.Error())
		}
	}
	h.errorHandler.HandleError(w, r, err)
}

func jobResponse(job *operations.Job) JobResponse {
	resp := JobResponse{Job: job, IsComplete: job.Status.Terminal()}
	if job.StartedAt != nil && job.CompletedAt != nil {
		resp.Duration = job.CompletedAt.Sub(*job.StartedAt).Round(time.Millisecond).String()
	}
	if !resp.IsComplete {
		resp.PollAfter = "2s"
	}
	return resp
}
