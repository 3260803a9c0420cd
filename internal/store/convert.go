package store

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"basegraph.co/distributor/internal/model"
)

// dayRange returns the half-open [start, end) timestamps covering date in UTC.
func dayRange(date time.Time) (time.Time, time.Time) {
	start := model.Date(date)
	return start, start.AddDate(0, 0, 1)
}

func toPgDate(t time.Time) pgtype.Date {
	return pgtype.Date{Time: model.Date(t), Valid: true}
}

func fromPgDate(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	t := model.Date(d.Time)
	return &t
}

func fromPgTimestamptz(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}

func fromPgInt8(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func fromPgInt2(v pgtype.Int2) *int16 {
	if !v.Valid {
		return nil
	}
	n := v.Int16
	return &n
}

func toPgInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}
