package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"basegraph.co/distributor/internal/model"
)

// Uploader is the storage a FileSink writes to.
type Uploader interface {
	Upload(ctx context.Context, folder, name string, content []byte) error
}

// FileSink stores each report as ceh-report-<date>-<timestamp>.txt.
type FileSink struct {
	files  Uploader
	folder string
	now    func() time.Time
}

func NewFileSink(files Uploader, folder string) *FileSink {
	return &FileSink{files: files, folder: folder, now: func() time.Time { return time.Now().UTC() }}
}

func (s *FileSink) Publish(ctx context.Context, report model.DeliveryReport) error {
	name := FileName(report.Date, s.now())
	if err := s.files.Upload(ctx, s.folder, name, []byte(report.Content)); err != nil {
		return fmt.Errorf("uploading report %s: %w", name, err)
	}
	slog.InfoContext(ctx, "delivery report uploaded", "file", name, "folder", s.folder)
	return nil
}

// FileName builds the report object name; the timestamp has second precision and no colons.
func FileName(date, at time.Time) string {
	return fmt.Sprintf("ceh-report-%s-%s.txt", model.FormatDate(date), at.Format("2006-01-02T15-04-05"))
}
