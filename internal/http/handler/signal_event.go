package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"basegraph.co/distributor/internal/http/dto"
	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/service"
)

// JobService is the part of service.JobRunner the handler needs.
type JobService interface {
	Accept(ctx context.Context, req model.JobRequest) model.JobResult
	Status(ctx context.Context, jobID string) (service.JobStatus, bool, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, job model.JobRequest) error
}

type SignalEventHandler struct {
	jobs     JobService
	queue    JobQueue
	basePath string
}

// NewSignalEventHandler builds Location headers under basePath, e.g. "/api/signal-events".
func NewSignalEventHandler(jobs JobService, queue JobQueue, basePath string) *SignalEventHandler {
	return &SignalEventHandler{
		jobs:     jobs,
		queue:    queue,
		basePath: basePath,
	}
}

func (h *SignalEventHandler) ProcessAsync(c *gin.Context) {
	h.submit(c, model.JobKindProcess, uuid.NewString())
}

func (h *SignalEventHandler) RetryAsync(c *gin.Context) {
	h.submit(c, model.JobKindRetry, "retry-"+uuid.NewString())
}

func (h *SignalEventHandler) submit(c *gin.Context, kind model.JobKind, jobID string) {
	ctx := c.Request.Context()

	var query dto.JobDateQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required"})
		return
	}
	date, err := model.ParseDate(query.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	req := model.JobRequest{Kind: kind, JobID: jobID, Date: date, Attempt: 1}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		req.TraceID = spanCtx.TraceID().String()
	}

	accepted := h.jobs.Accept(ctx, req)
	if err := h.queue.Enqueue(ctx, req); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue job", "error", err, "job_id", jobID, "kind", kind)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}

	slog.InfoContext(ctx, "job accepted", "job_id", jobID, "kind", kind, "date", query.Date)
	c.Header("Location", h.basePath+"/jobs/"+jobID)
	c.JSON(http.StatusAccepted, dto.JobFromResult(accepted))
}

func (h *SignalEventHandler) JobStatus(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("jobId")

	status, found, err := h.jobs.Status(ctx, jobID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load job status", "error", err, "job_id", jobID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job status"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, dto.JobFromStatus(status))
}
