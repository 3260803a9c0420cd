package delivery_test

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.co/distributor/internal/delivery"
	"basegraph.co/distributor/internal/model"
)

var _ = Describe("BatchSender", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	events := func(n int) []model.SignalEvent {
		out := make([]model.SignalEvent, n)
		for i := range out {
			out[i] = model.SignalEvent{UabsEventID: int64(i + 1), AgreementID: 1}
		}
		return out
	}

	It("returns zero counts for an empty batch", func() {
		sender := &mockSender{}
		res := delivery.NewBatchSender(sender, 4).SubmitBatch(ctx, nil)

		Expect(res.Total()).To(BeZero())
		Expect(sender.sent).To(BeEmpty())
	})

	It("counts every event exactly once", func() {
		sender := &mockSender{
			sendFn: func(ctx context.Context, e model.SignalEvent) delivery.Outcome {
				if e.UabsEventID%3 == 0 {
					return delivery.OutcomeFailTransient
				}
				return delivery.OutcomePass
			},
		}

		res := delivery.NewBatchSender(sender, 5).SubmitBatch(ctx, events(10))

		Expect(res.SuccessCount).To(Equal(7))
		Expect(res.FailureCount).To(Equal(3))
		Expect(sender.sent).To(ConsistOf(int64(1), int64(2), int64(3), int64(4), int64(5), int64(6), int64(7), int64(8), int64(9), int64(10)))
	})

	It("never runs more sends at once than the rate limit", func() {
		var inFlight, peak atomic.Int32
		sender := &mockSender{
			sendFn: func(ctx context.Context, e model.SignalEvent) delivery.Outcome {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return delivery.OutcomePass
			},
		}

		res := delivery.NewBatchSender(sender, 3).SubmitBatch(ctx, events(20))

		Expect(res.SuccessCount).To(Equal(20))
		Expect(peak.Load()).To(BeNumerically("<=", 3))
	})

	It("treats a non-positive rate limit as one", func() {
		var inFlight, peak atomic.Int32
		sender := &mockSender{
			sendFn: func(ctx context.Context, e model.SignalEvent) delivery.Outcome {
				n := inFlight.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return delivery.OutcomePass
			},
		}

		delivery.NewBatchSender(sender, 0).SubmitBatch(ctx, events(5))

		Expect(peak.Load()).To(Equal(int32(1)))
	})

	It("counts a panicking send as a failure", func() {
		sender := &mockSender{
			sendFn: func(ctx context.Context, e model.SignalEvent) delivery.Outcome {
				if e.UabsEventID == 2 {
					panic("boom")
				}
				return delivery.OutcomePass
			},
		}

		res := delivery.NewBatchSender(sender, 2).SubmitBatch(ctx, events(3))

		Expect(res.SuccessCount).To(Equal(2))
		Expect(res.FailureCount).To(Equal(1))
	})
})
