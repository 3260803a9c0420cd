package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.co/distributor/internal/jobstatus"
	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/service"
)

type stubProcessing struct {
	got    *time.Time
	result model.JobResult
}

func (s *stubProcessing) ProcessEventsForDate(ctx context.Context, jobID string, date *time.Time) model.JobResult {
	s.got = date
	return s.result
}

type stubRetry struct {
	calls  int
	result model.JobResult
}

func (s *stubRetry) RetryFailedEvents(ctx context.Context, jobID string, date *time.Time) model.JobResult {
	s.calls++
	return s.result
}

type failingStatusStore struct{}

func (failingStatusStore) Record(ctx context.Context, jobID string, result model.JobResult) error {
	return errors.New("redis down")
}

func (failingStatusStore) Find(ctx context.Context, jobID string) (model.JobResult, bool, error) {
	return model.JobResult{}, false, errors.New("redis down")
}

var _ = Describe("JobRunner", func() {
	var (
		ctx        context.Context
		processing *stubProcessing
		retry      *stubRetry
		statuses   *jobstatus.MemoryStore
		tracker    *service.ProgressTracker
		runner     *service.JobRunner
		req        model.JobRequest
	)

	BeforeEach(func() {
		ctx = context.Background()
		processing = &stubProcessing{result: model.NewJobResult(3, 1, 4, "Processing complete for 2025-01-01")}
		retry = &stubRetry{result: model.NewJobResult(1, 0, 1, "Retry complete for 2025-01-01")}
		statuses = jobstatus.NewMemoryStore()
		tracker = service.NewProgressTracker()
		runner = service.NewJobRunner(processing, retry, statuses, tracker)
		req = model.JobRequest{Kind: model.JobKindProcess, JobID: "job-1", Date: day("2025-01-01")}
	})

	It("records an accepted placeholder", func() {
		accepted := runner.Accept(ctx, req)
		Expect(accepted.JobID).To(Equal("job-1"))
		Expect(accepted.Message).To(Equal("Job accepted with id job-1"))

		stored, found, err := statuses.Find(ctx, "job-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(stored.Message).To(Equal(accepted.Message))
	})

	It("runs processing jobs and overwrites the placeholder", func() {
		runner.Accept(ctx, req)

		result, err := runner.Run(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.JobID).To(Equal("job-1"))
		Expect(processing.got).NotTo(BeNil())
		Expect(processing.got.Equal(day("2025-01-01"))).To(BeTrue())

		status, found, err := runner.Status(ctx, "job-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(status.Result.SuccessCount).To(Equal(3))
		Expect(status.Result.Message).To(Equal("Processing complete for 2025-01-01"))
		Expect(status.Progress).To(BeNil())
	})

	It("routes retry jobs to the retry service", func() {
		req.Kind = model.JobKindRetry
		result, err := runner.Run(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(retry.calls).To(Equal(1))
		Expect(result.Message).To(Equal("Retry complete for 2025-01-01"))
	})

	It("rejects unknown kinds", func() {
		req.Kind = "export"
		_, err := runner.Run(ctx, req)
		Expect(err).To(MatchError(service.ErrUnknownJobKind))
	})

	It("reports unknown jobs as missing", func() {
		_, found, err := runner.Status(ctx, "missing")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("includes live progress while batches are running", func() {
		p := tracker.Start(ctx, "job-live", 3)
		tracker.OnBatchCompletion(ctx, p, 1, 10, model.BatchResult{SuccessCount: 9, FailureCount: 1})

		status, found, err := runner.Status(ctx, "job-live")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(status.Progress).NotTo(BeNil())
		Expect(status.Progress.CompletedBatches).To(Equal(int64(1)))
		Expect(status.Progress.SuccessCount).To(Equal(int64(9)))
		Expect(status.Result.JobID).To(Equal("job-live"))
	})

	It("still returns the result when the status store fails", func() {
		runner = service.NewJobRunner(processing, retry, failingStatusStore{}, tracker)
		result, err := runner.Run(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.SuccessCount).To(Equal(3))

		_, _, err = runner.Status(ctx, "job-1")
		Expect(err).To(HaveOccurred())
	})
})
