package jobstatus_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.co/distributor/internal/jobstatus"
	"basegraph.co/distributor/internal/model"
)

func storeBehaves(newStore func() jobstatus.Store) {
	var (
		ctx   context.Context
		store jobstatus.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
	})

	It("reports unknown jobs as missing", func() {
		_, found, err := store.Find(ctx, "nope")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("returns the last recorded result", func() {
		accepted := model.JobResult{JobID: "job-1", Message: "Job accepted with id job-1", Timestamp: time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)}
		done := model.JobResult{
			JobID:        "job-1",
			SuccessCount: 7,
			FailureCount: 1,
			TotalCount:   8,
			Message:      "Processing complete for 2025-01-01",
			Timestamp:    time.Date(2025, 1, 1, 2, 5, 0, 0, time.UTC),
		}
		Expect(store.Record(ctx, "job-1", accepted)).To(Succeed())
		Expect(store.Record(ctx, "job-1", done)).To(Succeed())

		got, found, err := store.Find(ctx, "job-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(got.SuccessCount).To(Equal(7))
		Expect(got.FailureCount).To(Equal(1))
		Expect(got.TotalCount).To(Equal(int64(8)))
		Expect(got.Message).To(Equal("Processing complete for 2025-01-01"))
		Expect(got.Timestamp.Equal(done.Timestamp)).To(BeTrue())
	})
}

var _ = Describe("MemoryStore", func() {
	storeBehaves(func() jobstatus.Store { return jobstatus.NewMemoryStore() })
})

var _ = Describe("RedisStore", func() {
	BeforeEach(func() {
		if server == nil {
			Skip("redis unavailable")
		}
		Expect(server.Flush(context.Background())).To(Succeed())
	})

	storeBehaves(func() jobstatus.Store { return jobstatus.NewRedisStore(server.Client, time.Hour) })

	It("expires results after the ttl", func() {
		ctx := context.Background()
		store := jobstatus.NewRedisStore(server.Client, time.Hour)
		Expect(store.Record(ctx, "job-ttl", model.JobResult{JobID: "job-ttl"})).To(Succeed())

		ttl, err := server.Client.TTL(ctx, "distributor:job-status:job-ttl").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(ttl).To(BeNumerically(">", 59*time.Minute))
		Expect(ttl).To(BeNumerically("<=", time.Hour))
	})
})
