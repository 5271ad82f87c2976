package db

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5/pgtype"
)

// Conversions between calendar values and the pgx DATE/TIME types. Dates are
// anchored at UTC midnight so no timezone offset can move the day.

func Date(d civil.Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func NullDate(d *civil.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return Date(*d)
}

func Clock(t civil.Time) pgtype.Time {
	us := int64(t.Hour)*3600e6 + int64(t.Minute)*60e6 + int64(t.Second)*1e6 + int64(t.Nanosecond)/1e3
	return pgtype.Time{Microseconds: us, Valid: true}
}

func NullClock(t *civil.Time) pgtype.Time {
	if t == nil {
		return pgtype.Time{}
	}
	return Clock(*t)
}

// CivilDate converts a scanned DATE. An invalid (NULL) value yields nil.
func CivilDate(d pgtype.Date) *civil.Date {
	if !d.Valid {
		return nil
	}
	cd := civil.Date{Year: d.Time.Year(), Month: d.Time.Month(), Day: d.Time.Day()}
	return &cd
}

// CivilTime converts a scanned TIME. An invalid (NULL) value yields nil.
func CivilTime(t pgtype.Time) *civil.Time {
	if !t.Valid {
		return nil
	}
	us := t.Microseconds
	ct := civil.Time{
		Hour:       int(us / 3600e6),
		Minute:     int(us % 3600e6 / 60e6),
		Second:     int(us % 60e6 / 1e6),
		Nanosecond: int(us%1e6) * 1000,
	}
	return &ct
}
