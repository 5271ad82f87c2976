package scheduling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Field is an optional request value. Set is false when the key was absent
// from the payload; Null is true when it was present as JSON null.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Of returns a set, non-null field holding v.
func Of[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Null returns a set field holding JSON null.
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set || f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// present reports whether the field carries a value.
func (f Field[T]) present() bool { return f.Set && !f.Null }

// Proposal is a create or update request. Dates and times are kept as the
// raw strings sent by the client and parsed during admission.
type Proposal struct {
	Patient             Field[int64]    `json:"patient"`
	Provider            Field[int64]    `json:"provider"`
	Location            Field[int64]    `json:"location"`
	Office              Field[string]   `json:"office"`
	AppointmentType     Field[string]   `json:"appointment_type"`
	Status              Field[string]   `json:"status"`
	Room                Field[string]   `json:"room"`
	IntakeStatus        Field[string]   `json:"intake_status"`
	Notes               Field[string]   `json:"notes"`
	ChiefComplaint      Field[string]   `json:"chief_complaint"`
	ColorCode           Field[string]   `json:"color_code"`
	Date                Field[string]   `json:"date"`
	StartTime           Field[string]   `json:"start_time"`
	EndTime             Field[string]   `json:"end_time"`
	Duration            Field[int]      `json:"duration"`
	IsRecurring         Field[bool]     `json:"is_recurring"`
	RepeatDays          Field[[]string] `json:"repeat_days"`
	RepeatIntervalWeeks Field[int]      `json:"repeat_interval_weeks"`
	RepeatEndDate       Field[string]   `json:"repeat_end_date"`
	RepeatOccurrences   Field[int]      `json:"repeat_occurrences"`
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseLocalDate parses a calendar date. A plain YYYY-MM-DD value is taken
// as is. An RFC 3339 timestamp is converted into loc before its date is
// taken, and a timestamp without offset is read as wall time in loc.
func ParseLocalDate(raw string, loc *time.Location) (civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if loc == nil {
		loc = time.Local
	}
	if d, err := civil.ParseDate(raw); err == nil {
		return d, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return civil.DateOf(t.In(loc)), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("invalid date %q", raw)
}

// ParseClock parses a time of day in HH:MM or HH:MM:SS form. Seconds are
// dropped so every stored time falls on a whole minute.
func ParseClock(raw string) (civil.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05", "15:04:05.999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return civil.Time{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return civil.Time{}, fmt.Errorf("invalid time %q", raw)
}
