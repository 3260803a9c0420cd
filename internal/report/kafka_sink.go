package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"basegraph.co/distributor/core/config"
	"basegraph.co/distributor/internal/model"
)

// MessageWriter is the part of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink announces finished reports on a topic, keyed by processing date.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.ReportTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

type reportMessage struct {
	Date          string    `json:"date"`
	TotalEvents   int64     `json:"total_events"`
	SuccessEvents int64     `json:"success_events"`
	FailedEvents  int64     `json:"failed_events"`
	Content       string    `json:"content"`
	PublishedAt   time.Time `json:"published_at"`
}

func (s *KafkaSink) Publish(ctx context.Context, report model.DeliveryReport) error {
	date := model.FormatDate(report.Date)
	value, err := json.Marshal(reportMessage{
		Date:          date,
		TotalEvents:   report.TotalEvents,
		SuccessEvents: report.SuccessEvents,
		FailedEvents:  report.FailedEvents,
		Content:       report.Content,
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding report message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(date),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing report message: %w", err)
	}

	slog.InfoContext(ctx, "delivery report announced", "date", date)
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
