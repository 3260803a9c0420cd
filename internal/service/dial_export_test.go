package service_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/service"
)

var _ = Describe("DialExportService", func() {
	var (
		ctx      context.Context
		db       *memoryDB
		uploader *mockUploader
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newMemoryDB()
		uploader = &mockUploader{}
	})

	It("uploads a CSV of the day's events", func() {
		db.addSignal(model.Signal{SignalID: 1, AgreementID: 1001, StartDate: ptr(day("2025-01-01"))})
		db.balances[1001] = model.AccountBalance{AgreementID: 1001, BCNumber: ptr(int64(77)), IBAN: "NL01BANK0123456789", CurrencyCode: "EUR"}
		e := event(1, 1, at("2025-01-02", 9), model.EventStatusFinancialUpdate, 300)
		e.GRV = ptr(int16(3))
		e.ProductID = ptr(int16(12))
		e.BookDate = ptr(day("2025-01-02"))
		db.addEvent(e)
		db.addEvent(event(2, 5, at("2025-01-02", 10), model.EventStatusOverlimit, 10))

		export := service.NewDialExportService(db, db, db, uploader, service.DialExportConfig{Folder: "dial"})
		name, err := export.Export(ctx, day("2025-01-02"))

		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("dial-signal-data-2025-01-02.csv"))
		Expect(uploader.folder).To(Equal("dial"))
		Expect(strings.Split(strings.TrimSpace(string(uploader.content)), "\n")).To(Equal([]string{
			"AccountNumber,IBAN,CustomerId,GRV,ProductId,CurrencyCode,SignalStartDate,SignalEndDate,SignalType,DebitAmount,BookDate",
			"1001,NL01BANK0123456789,77,3,12,EUR,2025-01-01,,OVERLIMIT_SIGNAL,300,2025-01-02",
			"1005,,,,,,2025-01-02,,OVERLIMIT_SIGNAL,10,",
		}))
	})

	It("uses the configured prefix", func() {
		export := service.NewDialExportService(db, db, db, uploader, service.DialExportConfig{Prefix: "dial-x"})

		name, err := export.Export(ctx, day("2025-01-02"))

		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("dial-x-2025-01-02.csv"))
	})

	It("returns upload errors", func() {
		uploader.err = errors.New("access denied")
		export := service.NewDialExportService(db, db, db, uploader, service.DialExportConfig{})

		_, err := export.Export(ctx, day("2025-01-02"))

		Expect(err).To(MatchError(ContainSubstring("access denied")))
	})
})
