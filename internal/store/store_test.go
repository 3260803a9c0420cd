package store_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/store"
)

func day(s string) time.Time {
	t, err := model.ParseDate(s)
	Expect(err).NotTo(HaveOccurred())
	return t
}

func insertSignal(ctx context.Context, signalID, agreementID int64, start string, end *string) {
	_, err := testDB.Pool.Exec(ctx, `
		INSERT INTO signal (signal_id, agreement_id, signal_start_date, signal_end_date)
		VALUES ($1, $2, $3::date, $4::date)`, signalID, agreementID, start, end)
	Expect(err).NotTo(HaveOccurred())
}

func insertEvent(ctx context.Context, eventID, signalID int64, at time.Time, status string, balance int64, bookDate string) {
	_, err := testDB.Pool.Exec(ctx, `
		INSERT INTO signal_events (uabs_event_id, signal_id, agreement_id, event_record_date_time,
			event_type, event_status, unauthorized_debit_balance, book_date)
		VALUES ($1, $2, $3, $4, 'CONTRACT_UPDATE', $5, $6, $7::date)`,
		eventID, signalID, signalID*10, at, status, balance, bookDate)
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Postgres stores", func() {
	var (
		ctx    context.Context
		stores *store.Stores
	)

	BeforeEach(func() {
		ctx = context.Background()
		Expect(testDB.Truncate(ctx)).To(Succeed())
		stores = store.NewStores(testDB.Pool)
	})

	Describe("SignalEventStore", func() {
		BeforeEach(func() {
			insertSignal(ctx, 1, 10, "2025-01-01", nil)
			insertEvent(ctx, 100, 1, day("2025-01-01").Add(9*time.Hour), model.EventStatusOverlimit, 10, "2025-01-01")
			insertEvent(ctx, 101, 1, day("2025-01-02").Add(9*time.Hour), model.EventStatusFinancialUpdate, 250, "2025-01-02")
			insertEvent(ctx, 102, 1, day("2025-01-02").Add(9*time.Hour), model.EventStatusFinancialUpdate, 100, "2024-12-28")
			insertEvent(ctx, 103, 1, day("2025-01-02").Add(10*time.Hour), model.EventStatusFinancialUpdate, 5, "2025-01-02")
		})

		It("lists only the events recorded on the date", func() {
			events, err := stores.SignalEvents().ListOnDate(ctx, day("2025-01-02"))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(3))
			Expect(events[0].UabsEventID).To(Equal(int64(101)))
			Expect(*events[0].SignalID).To(Equal(int64(1)))

			n, err := stores.SignalEvents().CountOnDate(ctx, day("2025-01-02"))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(3)))
		})

		It("finds the earliest overlimit event", func() {
			e, err := stores.SignalEvents().EarliestOverlimit(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.UabsEventID).To(Equal(int64(100)))

			_, err = stores.SignalEvents().EarliestOverlimit(ctx, 99)
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("finds the previous event breaking time ties by higher id", func() {
			prev, err := stores.SignalEvents().Previous(ctx, 1, day("2025-01-02").Add(10*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(prev.UabsEventID).To(Equal(int64(102)))

			_, err = stores.SignalEvents().Previous(ctx, 1, day("2025-01-01").Add(9*time.Hour))
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("pages eligible events by balance or book date lookback", func() {
			f := store.EligibilityFilter{MinBalance: 250, BookDateLookbackDays: 5}
			// 101 has balance 250 which is not strictly above; 102 is booked five days back.
			events, err := stores.SignalEvents().ListEligiblePage(ctx, day("2025-01-02"), f, 0, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].UabsEventID).To(Equal(int64(102)))

			n, err := stores.SignalEvents().CountEligible(ctx, day("2025-01-02"), f)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
		})

		It("loads events by ids", func() {
			events, err := stores.SignalEvents().ListByIDs(ctx, []int64{103, 100, 999})
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0].UabsEventID).To(Equal(int64(100)))
		})
	})

	Describe("SignalStore", func() {
		It("filters by start date and finds the open signal of an agreement", func() {
			end := "2025-01-05"
			insertSignal(ctx, 1, 10, "2025-01-01", &end)
			insertSignal(ctx, 2, 10, "2025-01-06", nil)
			insertSignal(ctx, 3, 30, "2025-02-01", nil)

			started, err := stores.Signals().ListStartedOnOrBefore(ctx, day("2025-01-06"))
			Expect(err).NotTo(HaveOccurred())
			Expect(started).To(HaveLen(2))
			Expect(started[0].EndDate).NotTo(BeNil())

			open, err := stores.Signals().GetOpenByAgreementID(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(open.SignalID).To(Equal(int64(2)))

			_, err = stores.Signals().GetByID(ctx, 42)
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("AuditStore", func() {
		sid := int64(1)
		event := model.SignalEvent{UabsEventID: 100, SignalID: &sid, AgreementID: 10}

		It("reports the latest status and treats missing audits as not found", func() {
			_, found, err := stores.Audits().LatestStatus(ctx, 100, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())

			at := day("2025-01-02").Add(8 * time.Hour)
			fail := model.NewAuditRecord(event, 1, "FAIL_TRANSIENT", "503", "boom", at)
			pass := model.NewAuditRecord(event, 1, "PASS", "200", "ceh_event_id=7", at)
			Expect(stores.Audits().Append(ctx, &fail)).To(Succeed())
			Expect(stores.Audits().Append(ctx, &pass)).To(Succeed())

			status, found, err := stores.Audits().LatestStatus(ctx, 100, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(status).To(Equal("PASS"))

			ok, err := stores.Audits().IsEventSuccessful(ctx, 100, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = stores.Audits().IsEventSuccessful(ctx, 100, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("lists events whose latest audit on the date failed", func() {
			other := model.SignalEvent{UabsEventID: 200, SignalID: &sid, AgreementID: 10}
			at := day("2025-01-02").Add(8 * time.Hour)

			recs := []model.AuditRecord{
				model.NewAuditRecord(event, 1, "FAIL", "500", "x", at),
				model.NewAuditRecord(event, 1, "SUCCESS", "200", "x", at.Add(time.Minute)),
				model.NewAuditRecord(other, 1, "PASS", "200", "x", at),
				model.NewAuditRecord(other, 1, "TIMEOUT", "N/A", "x", at.Add(time.Minute)),
				model.NewAuditRecord(other, 1, "FAIL", "N/A", "x", day("2025-01-03")),
			}
			for i := range recs {
				Expect(stores.Audits().Append(ctx, &recs[i])).To(Succeed())
			}

			ids, err := stores.Audits().FailedEventIDsForDate(ctx, day("2025-01-02"), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]int64{200}))
		})
	})

	Describe("InitialMappingStore", func() {
		It("keeps exactly one mapping under concurrent first deliveries", func() {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				created int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(n int) {
					defer GinkgoRecover()
					defer wg.Done()
					ok, err := stores.InitialMappings().SaveIfAbsent(ctx, 5, "hub-"+string(rune('a'+n)))
					Expect(err).NotTo(HaveOccurred())
					if ok {
						mu.Lock()
						created++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()
			Expect(created).To(Equal(1))

			m, err := stores.InitialMappings().GetBySignalID(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.HubEventID).To(HavePrefix("hub-"))
		})
	})

	Describe("AccountBalanceStore", func() {
		It("returns the BC number of an agreement", func() {
			_, err := testDB.Pool.Exec(ctx, `
				INSERT INTO account_balance (agreement_id, bc_number, iban, currency_code)
				VALUES (10, 555, 'NL00BANK0123456789', 'EUR')`)
			Expect(err).NotTo(HaveOccurred())

			b, err := stores.AccountBalances().GetByAgreementID(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(*b.BCNumber).To(Equal(int64(555)))
			Expect(b.IBAN).To(Equal("NL00BANK0123456789"))

			_, err = stores.AccountBalances().GetByAgreementID(ctx, 11)
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})
})
