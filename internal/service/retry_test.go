package service_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/service"
)

var _ = Describe("RetryService", func() {
	var (
		ctx       context.Context
		db        *memoryDB
		submitter *recordingSubmitter
		retry     service.RetryService
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newMemoryDB()
		submitter = &recordingSubmitter{}
		retry = service.NewRetryService(db, db, submitter, nil, 2, 1)
	})

	It("requires a date", func() {
		res := retry.RetryFailedEvents(ctx, "retry-1", nil)
		Expect(res.Message).To(Equal("Date is required"))
	})

	It("reports when nothing failed", func() {
		db.addAudit(1, "PASS", *at("2025-01-02", 9))

		res := retry.RetryFailedEvents(ctx, "retry-1", ptr(day("2025-01-02")))

		Expect(res.Message).To(Equal("No failed events to retry for 2025-01-02"))
		Expect(submitter.batches).To(BeEmpty())
	})

	It("re-sends events whose latest audit on the date failed, oldest first", func() {
		db.addEvent(event(1, 1, at("2025-01-02", 9), model.EventStatusOverlimit, 300))
		db.addEvent(event(2, 2, at("2025-01-02", 8), model.EventStatusOverlimit, 300))
		db.addEvent(event(3, 3, at("2025-01-02", 7), model.EventStatusOverlimit, 300))
		db.addAudit(1, "FAIL_TRANSIENT", *at("2025-01-02", 10))
		db.addAudit(2, "TIMEOUT", *at("2025-01-02", 10))
		db.addAudit(3, "FAIL", *at("2025-01-02", 10))
		db.addAudit(3, "PASS", *at("2025-01-02", 11))

		res := retry.RetryFailedEvents(ctx, "retry-1", ptr(day("2025-01-02")))

		Expect(res.Message).To(Equal("Retry complete for 2025-01-02"))
		Expect(res.TotalCount).To(Equal(int64(2)))
		Expect(res.SuccessCount).To(Equal(2))
		Expect(submitter.batches).To(HaveLen(1))
		Expect(ids(submitter.batches[0])).To(Equal([]int64{2, 1}))
	})

	It("counts failed ids without a matching event as failures", func() {
		db.addEvent(event(1, 1, at("2025-01-02", 9), model.EventStatusOverlimit, 300))
		db.addAudit(1, "FAIL", *at("2025-01-02", 10))
		db.addAudit(404, "FAIL", *at("2025-01-02", 10))

		res := retry.RetryFailedEvents(ctx, "retry-1", ptr(day("2025-01-02")))

		Expect(res.Message).To(Equal("Retry complete for 2025-01-02 | missing=1"))
		Expect(res.TotalCount).To(Equal(int64(2)))
		Expect(res.SuccessCount).To(Equal(1))
		Expect(res.FailureCount).To(Equal(1))
	})

	It("reports when no failed id matches an event", func() {
		db.addAudit(404, "FAIL", *at("2025-01-02", 10))

		res := retry.RetryFailedEvents(ctx, "", ptr(day("2025-01-02")))

		Expect(res.Message).To(Equal("Failed audit entries found but no matching signal events for 2025-01-02"))
		Expect(res.FailureCount).To(Equal(1))
		Expect(res.JobID).To(HavePrefix("retry-"))
	})
})
