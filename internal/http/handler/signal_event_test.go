package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.co/distributor/internal/http/handler"
	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/service"
)

var _ = Describe("SignalEventHandler", func() {
	var (
		router *gin.Engine
		jobs   *mockJobService
		queue  *mockJobQueue
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		jobs = &mockJobService{}
		queue = &mockJobQueue{}
		h := handler.NewSignalEventHandler(jobs, queue, "/api/signal-events")
		router.POST("/api/signal-events/process-async", h.ProcessAsync)
		router.POST("/api/signal-events/retry-async", h.RetryAsync)
		router.GET("/api/signal-events/jobs/:jobId", h.JobStatus)
	})

	post := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("ProcessAsync", func() {
		It("accepts the job and points at its status", func() {
			w := post("/api/signal-events/process-async?date=2025-01-01")

			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(queue.jobs).To(HaveLen(1))
			job := queue.jobs[0]
			Expect(job.Kind).To(Equal(model.JobKindProcess))
			Expect(model.FormatDate(job.Date)).To(Equal("2025-01-01"))
			Expect(job.JobID).NotTo(BeEmpty())
			Expect(jobs.accepted).To(HaveLen(1))
			Expect(w.Header().Get("Location")).To(Equal("/api/signal-events/jobs/" + job.JobID))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["job_id"]).To(Equal(job.JobID))
			Expect(resp["message"]).To(Equal("Job accepted with id " + job.JobID))
		})

		It("returns 400 without a date", func() {
			w := post("/api/signal-events/process-async")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(queue.jobs).To(BeEmpty())
		})

		It("returns 400 on a malformed date", func() {
			w := post("/api/signal-events/process-async?date=01-01-2025")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(queue.jobs).To(BeEmpty())
		})

		It("returns 500 when the job cannot be queued", func() {
			queue.enqueueFn = func(ctx context.Context, job model.JobRequest) error {
				return errors.New("redis down")
			}
			w := post("/api/signal-events/process-async?date=2025-01-01")
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("RetryAsync", func() {
		It("queues a retry job with a retry- id", func() {
			w := post("/api/signal-events/retry-async?date=2025-01-01")

			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(queue.jobs).To(HaveLen(1))
			Expect(queue.jobs[0].Kind).To(Equal(model.JobKindRetry))
			Expect(strings.HasPrefix(queue.jobs[0].JobID, "retry-")).To(BeTrue())
		})
	})

	Describe("JobStatus", func() {
		get := func(id string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, "/api/signal-events/jobs/"+id, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		It("returns the stored result", func() {
			jobs.statusFn = func(_ context.Context, jobID string) (service.JobStatus, bool, error) {
				r := model.NewJobResult(4, 1, 5, "Processing complete for 2025-01-01")
				r.JobID = jobID
				return service.JobStatus{Result: r}, true, nil
			}

			w := get("job-1")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["job_id"]).To(Equal("job-1"))
			Expect(resp["success_count"]).To(BeNumerically("==", 4))
			Expect(resp["total_count"]).To(BeNumerically("==", 5))
			Expect(resp).NotTo(HaveKey("progress"))
		})

		It("includes live progress", func() {
			jobs.statusFn = func(_ context.Context, jobID string) (service.JobStatus, bool, error) {
				return service.JobStatus{
					Result:   model.JobResult{JobID: jobID},
					Progress: &service.ProgressSnapshot{JobID: jobID, TotalBatches: 3, CompletedBatches: 1},
				}, true, nil
			}

			w := get("job-2")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp).To(HaveKey("progress"))
			progress := resp["progress"].(map[string]any)
			Expect(progress["completed_batches"]).To(BeNumerically("==", 1))
			Expect(progress["total_batches"]).To(BeNumerically("==", 3))
		})

		It("returns 404 for unknown jobs", func() {
			Expect(get("missing").Code).To(Equal(http.StatusNotFound))
		})

		It("returns 500 when the store fails", func() {
			jobs.statusFn = func(_ context.Context, _ string) (service.JobStatus, bool, error) {
				return service.JobStatus{}, false, errors.New("boom")
			}
			Expect(get("job-3").Code).To(Equal(http.StatusInternalServerError))
		})
	})
})

var _ = Describe("HealthHandler", func() {
	It("reports 503 when the database is unreachable", func() {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.GET("/health", handler.NewHealthHandler(&mockPinger{err: errors.New("down")}).Health)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("reports ok", func() {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.GET("/health", handler.NewHealthHandler(&mockPinger{}).Health)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(w.Code).To(Equal(http.StatusOK))
	})
})
