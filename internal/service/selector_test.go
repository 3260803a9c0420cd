package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/service"
)

var _ = Describe("DispatchSelector", func() {
	var (
		ctx      context.Context
		db       *memoryDB
		selector service.DispatchSelector
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newMemoryDB()
		selector = service.NewDispatchSelector(db, db, db, db, service.SelectorConfig{
			BalanceThreshold:  250,
			DaysOpenThreshold: 5,
			ConsumerID:        1,
		})
	})

	openSignal := func(id int64, start string) {
		db.addSignal(model.Signal{SignalID: id, AgreementID: 1000 + id, StartDate: ptr(day(start))})
	}

	selectOn := func(date string) []int64 {
		selected, err := selector.SelectEventsToSend(ctx, day(date))
		Expect(err).NotTo(HaveOccurred())
		return ids(selected)
	}

	Context("with a signal that breaches on day two", func() {
		BeforeEach(func() {
			openSignal(1, "2025-01-01")
			db.addEvent(event(1, 1, at("2025-01-01", 9), model.EventStatusOverlimit, 10))
			db.addEvent(event(2, 1, at("2025-01-02", 9), model.EventStatusFinancialUpdate, 250))
			db.addEvent(event(4, 1, at("2025-01-04", 9), model.EventStatusFinancialUpdate, 20))
		})

		It("sends nothing on day one below the threshold", func() {
			Expect(selectOn("2025-01-01")).To(BeEmpty())
		})

		It("sends the earliest overlimit event when the threshold is met", func() {
			Expect(selectOn("2025-01-02")).To(Equal([]int64{1}))
		})

		It("forwards later events once the initial notification succeeded", func() {
			db.addAudit(1, "PASS", *at("2025-01-02", 10))

			Expect(selectOn("2025-01-04")).To(Equal([]int64{4}))
		})

		It("treats an existing initial mapping as sent even without an audit", func() {
			_, _ = db.SaveIfAbsent(ctx, 1, "hub-1")

			Expect(selectOn("2025-01-04")).To(Equal([]int64{4}))
		})

		It("holds follow-ups below the threshold while the initial notification is unsent", func() {
			db.addAudit(1, "FAIL_TRANSIENT", *at("2025-01-02", 10))

			Expect(selectOn("2025-01-04")).To(BeEmpty())
		})

		It("returns the same selection when called twice", func() {
			first := selectOn("2025-01-02")
			Expect(selectOn("2025-01-02")).To(Equal(first))
		})
	})

	It("forwards every day's event after the initial was sent, whatever the balance", func() {
		openSignal(1, "2025-01-01")
		db.addEvent(event(1, 1, at("2025-01-01", 9), model.EventStatusOverlimit, 400))
		db.addAudit(1, "success", *at("2025-01-01", 10))

		balances := []int64{5, 0, 300, 249}
		for i, balance := range balances {
			id := int64(10 + i)
			date := day("2025-01-02").AddDate(0, 0, i)
			db.addEvent(event(id, 1, ptr(date.Add(8*time.Hour)), model.EventStatusFinancialUpdate, balance))

			Expect(selectOn(model.FormatDate(date))).To(Equal([]int64{id}), "balance %d", balance)
		}
	})

	It("forwards the latest of several events on the same day", func() {
		openSignal(1, "2025-01-01")
		db.addEvent(event(1, 1, at("2025-01-01", 9), model.EventStatusOverlimit, 400))
		_, _ = db.SaveIfAbsent(ctx, 1, "hub-1")
		db.addEvent(event(21, 1, at("2025-01-03", 8), model.EventStatusFinancialUpdate, 10))
		db.addEvent(event(20, 1, at("2025-01-03", 15), model.EventStatusFinancialUpdate, 20))
		db.addEvent(event(22, 1, at("2025-01-03", 15), model.EventStatusFinancialUpdate, 30))

		Expect(selectOn("2025-01-03")).To(Equal([]int64{22}))
	})

	It("never dispatches a signal that closes before breaching", func() {
		end := day("2025-01-03")
		db.addSignal(model.Signal{SignalID: 2, AgreementID: 1002, StartDate: ptr(day("2025-01-01")), EndDate: &end})
		db.addEvent(event(1, 2, at("2025-01-01", 9), model.EventStatusOverlimit, 10))
		db.addEvent(event(2, 2, at("2025-01-02", 9), model.EventStatusFinancialUpdate, 100))
		db.addEvent(event(3, 2, at("2025-01-03", 9), model.EventStatusOutOfOverlimit, 0))

		for d := day("2025-01-01"); !d.After(day("2025-01-15")); d = d.AddDate(0, 0, 1) {
			Expect(selectOn(model.FormatDate(d))).To(BeEmpty(), "date %s", model.FormatDate(d))
		}
	})

	It("skips a same-day closure event even when the balance breached earlier", func() {
		openSignal(1, "2025-01-01")
		db.addEvent(event(1, 1, at("2025-01-01", 9), model.EventStatusOverlimit, 10))
		db.addEvent(event(2, 1, at("2025-01-02", 9), model.EventStatusOutOfOverlimit, 0))

		Expect(selectOn("2025-01-02")).To(BeEmpty())
	})

	It("dispatches a breach on the day the signal is closed", func() {
		end := day("2025-01-02")
		db.addSignal(model.Signal{SignalID: 1, AgreementID: 1001, StartDate: ptr(day("2025-01-01")), EndDate: &end})
		db.addEvent(event(1, 1, at("2025-01-01", 9), model.EventStatusOverlimit, 10))
		db.addEvent(event(2, 1, at("2025-01-02", 9), model.EventStatusFinancialUpdate, 300))

		Expect(selectOn("2025-01-02")).To(Equal([]int64{1}))
	})

	It("escalates a quiet signal exactly once after it has been open too long", func() {
		openSignal(3, "2025-01-01")
		db.addEvent(event(30, 3, at("2025-01-01", 9), model.EventStatusOverlimit, 10))

		var dispatchDays []string
		for d := day("2025-01-01"); !d.After(day("2025-01-12")); d = d.AddDate(0, 0, 1) {
			selected := selectOn(model.FormatDate(d))
			if len(selected) > 0 {
				Expect(selected).To(Equal([]int64{30}))
				dispatchDays = append(dispatchDays, model.FormatDate(d))
				db.addAudit(30, "PASS", d.Add(3*time.Hour))
			}
		}

		Expect(dispatchDays).To(Equal([]string{"2025-01-06"}))
	})

	It("does not escalate an overdue signal that is already closed", func() {
		end := day("2025-01-04")
		db.addSignal(model.Signal{SignalID: 4, AgreementID: 1004, StartDate: ptr(day("2025-01-01")), EndDate: &end})
		db.addEvent(event(40, 4, at("2025-01-01", 9), model.EventStatusOverlimit, 10))

		Expect(selectOn("2025-01-08")).To(BeEmpty())
	})

	It("orders signals with events today before overdue ones", func() {
		openSignal(5, "2025-01-01")
		openSignal(6, "2025-01-08")
		db.addEvent(event(50, 5, at("2025-01-01", 9), model.EventStatusOverlimit, 10))
		db.addEvent(event(60, 6, at("2025-01-08", 9), model.EventStatusOverlimit, 500))

		Expect(selectOn("2025-01-08")).To(Equal([]int64{60, 50}))
	})

	It("ignores events without a signal, unknown signals and signals starting later", func() {
		openSignal(7, "2025-02-01")
		orphan := event(70, 0, at("2025-01-10", 9), model.EventStatusOverlimit, 900)
		orphan.SignalID = nil
		db.addEvent(orphan)
		db.addEvent(event(71, 99, at("2025-01-10", 9), model.EventStatusOverlimit, 900))
		db.addEvent(event(72, 7, at("2025-01-10", 9), model.EventStatusOverlimit, 900))

		Expect(selectOn("2025-01-10")).To(BeEmpty())
	})

	It("ignores signals that never produced an overlimit event", func() {
		openSignal(8, "2025-01-01")
		db.addEvent(event(80, 8, at("2025-01-02", 9), model.EventStatusFinancialUpdate, 900))

		Expect(selectOn("2025-01-02")).To(BeEmpty())
	})

	It("returns storage errors", func() {
		db.failWith = errors.New("connection reset")

		_, err := selector.SelectEventsToSend(ctx, day("2025-01-02"))
		Expect(err).To(MatchError(ContainSubstring("connection reset")))
	})
})
