package scheduling

import (
	"time"

	"cloud.google.com/go/civil"
)

// Appointment statuses.
const (
	StatusPending   = "pending"
	StatusArrived   = "arrived"
	StatusInRoom    = "in_room"
	StatusNoShow    = "no_show"
	StatusCancelled = "cancelled"
	StatusInLobby   = "in_lobby"
	StatusSeen      = "seen"
	StatusTentative = "tentative"
)

// Intake statuses.
const (
	IntakeNotSubmitted = "not_submitted"
	IntakeSubmitted    = "submitted"
)

const (
	// MaxRoomLength is the longest accepted room label.
	MaxRoomLength = 6
	// DefaultDuration is used when neither the request nor the catalog
	// supplies a duration.
	DefaultDuration = 30
	// MaxDuration is the longest explicit duration accepted, one day.
	MaxDuration = 24 * 60
	// DefaultColor is the display color of appointments whose type has no
	// catalog entry.
	DefaultColor = "#FF6B6B"
	// BlockColor is forced onto every block-reason appointment.
	BlockColor = "#737373"
)

var validStatuses = map[string]bool{
	StatusPending:   true,
	StatusArrived:   true,
	StatusInRoom:    true,
	StatusNoShow:    true,
	StatusCancelled: true,
	StatusInLobby:   true,
	StatusSeen:      true,
	StatusTentative: true,
}

var validIntakeStatuses = map[string]bool{
	IntakeNotSubmitted: true,
	IntakeSubmitted:    true,
}

// Weekdays lists the weekday codes in calendar order starting Monday.
var Weekdays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// WeekdayCode returns the weekday code ("mon".."sun") of d.
func WeekdayCode(d civil.Date) string {
	return weekdayCodes[d.In(time.UTC).Weekday()]
}

// IsWeekdayCode reports whether code is one of Weekdays.
func IsWeekdayCode(code string) bool {
	for _, w := range Weekdays {
		if w == code {
			return true
		}
	}
	return false
}

// Appointment is a persisted booking or provider time block. A record with
// no patient is a block.
type Appointment struct {
	ID                  int64       `json:"id"`
	PatientID           *int64      `json:"patient"`
	ProviderID          int64       `json:"provider"`
	LocationID          int64       `json:"location"`
	Office              string      `json:"office"`
	AppointmentType     string      `json:"appointment_type"`
	IsBlock             bool        `json:"is_block"`
	Status              string      `json:"status"`
	Room                string      `json:"room"`
	IntakeStatus        string      `json:"intake_status"`
	Notes               string      `json:"notes"`
	ChiefComplaint      string      `json:"chief_complaint"`
	ColorCode           string      `json:"color_code"`
	Date                civil.Date  `json:"date"`
	StartTime           *civil.Time `json:"start_time"`
	EndTime             *civil.Time `json:"end_time"`
	Duration            int         `json:"duration"`
	IsRecurring         bool        `json:"is_recurring"`
	RepeatDays          []string    `json:"repeat_days"`
	RepeatIntervalWeeks int         `json:"repeat_interval_weeks"`
	RepeatEndDate       *civil.Date `json:"repeat_end_date"`
	RepeatOccurrences   *int        `json:"repeat_occurrences"`
	OverlapAllowed      bool        `json:"overlap_allowed"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`

	// Display fields filled by reads.
	PatientName  *string `json:"patient_name,omitempty"`
	ProviderName string  `json:"provider_name,omitempty"`
}

// Clone returns a deep copy of a.
func (a *Appointment) Clone() *Appointment {
	c := *a
	if a.PatientID != nil {
		v := *a.PatientID
		c.PatientID = &v
	}
	if a.StartTime != nil {
		v := *a.StartTime
		c.StartTime = &v
	}
	if a.EndTime != nil {
		v := *a.EndTime
		c.EndTime = &v
	}
	if a.RepeatEndDate != nil {
		v := *a.RepeatEndDate
		c.RepeatEndDate = &v
	}
	if a.RepeatOccurrences != nil {
		v := *a.RepeatOccurrences
		c.RepeatOccurrences = &v
	}
	if a.RepeatDays != nil {
		c.RepeatDays = append([]string(nil), a.RepeatDays...)
	}
	if a.PatientName != nil {
		v := *a.PatientName
		c.PatientName = &v
	}
	return &c
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and
// [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd civil.Time) bool {
	return seconds(aStart) < seconds(bEnd) && seconds(aEnd) > seconds(bStart)
}

// Minutes returns the minute of the day of t, ignoring seconds.
func Minutes(t civil.Time) int {
	return t.Hour*60 + t.Minute
}

// seconds returns the second of the day of t.
func seconds(t civil.Time) int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// AddMinutes returns t plus n minutes and false when the result leaves the
// day.
func AddMinutes(t civil.Time, n int) (civil.Time, bool) {
	total := seconds(t) + n*60
	if total < 0 || total >= 24*3600 {
		return civil.Time{}, false
	}
	return civil.Time{Hour: total / 3600, Minute: total % 3600 / 60, Second: total % 60}, true
}

// Filter selects appointments for List. Zero values do not filter.
type Filter struct {
	ProviderID *int64
	PatientID  *int64
	LocationID *int64
	Office     string
	DateFrom   *civil.Date
	DateTo     *civil.Date
	IsBlock    *bool
	Search     string
}

// OverlapQuery describes the window searched for conflicting bookings.
type OverlapQuery struct {
	ProviderID int64
	LocationID int64
	Date       civil.Date
	Start      civil.Time
	End        civil.Time
	ExcludeID  int64
}
