package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/segmentio/kafka-go"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/report"
)

type mockUploader struct {
	folder, name string
	content      []byte
	err          error
}

func (m *mockUploader) Upload(ctx context.Context, folder, name string, content []byte) error {
	m.folder, m.name, m.content = folder, name, content
	return m.err
}

type mockWriter struct {
	msgs []kafka.Message
	err  error
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.msgs = append(m.msgs, msgs...)
	return m.err
}

func (m *mockWriter) Close() error { return nil }

type failingSink struct{ err error }

func (f failingSink) Publish(ctx context.Context, r model.DeliveryReport) error { return f.err }

var _ = Describe("report sinks", func() {
	var (
		ctx context.Context
		rep model.DeliveryReport
	)

	BeforeEach(func() {
		ctx = context.Background()
		rep = model.NewDeliveryReport(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), 10, 8, 2)
	})

	It("names report files by date and upload time", func() {
		at := time.Date(2025, 1, 3, 2, 15, 9, 123, time.UTC)
		Expect(report.FileName(rep.Date, at)).To(Equal("ceh-report-2025-01-02-2025-01-03T02-15-09.txt"))
	})

	It("uploads the report text to the configured folder", func() {
		up := &mockUploader{}

		Expect(report.NewFileSink(up, "reports").Publish(ctx, rep)).To(Succeed())

		Expect(up.folder).To(Equal("reports"))
		Expect(up.name).To(HavePrefix("ceh-report-2025-01-02-"))
		Expect(string(up.content)).To(Equal(rep.Content))
	})

	It("publishes a keyed JSON message to Kafka", func() {
		w := &mockWriter{}

		Expect(report.NewKafkaSink(w).Publish(ctx, rep)).To(Succeed())

		Expect(w.msgs).To(HaveLen(1))
		Expect(string(w.msgs[0].Key)).To(Equal("2025-01-02"))
		var body map[string]any
		Expect(json.Unmarshal(w.msgs[0].Value, &body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("success_events", BeNumerically("==", 8)))
		Expect(body).To(HaveKeyWithValue("failed_events", BeNumerically("==", 2)))
	})

	It("tries every sink and joins their errors", func() {
		up := &mockUploader{}
		multi := report.Multi{failingSink{err: errors.New("kafka down")}, report.NewFileSink(up, "")}

		err := multi.Publish(ctx, rep)

		Expect(err).To(MatchError(ContainSubstring("kafka down")))
		Expect(up.name).NotTo(BeEmpty())
	})
})
