package scheduling

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
)

var hexColorRE = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// LocationRef identifies a location by id and slug.
type LocationRef struct {
	ID   int64
	Slug string
	Name string
}

// DayHours are the opening hours of a location on one weekday.
type DayHours struct {
	Open  bool
	Start civil.Time
	End   civil.Time
}

// LocationDirectory resolves locations and their opening hours. Get and
// GetBySlug return nil without error when the location does not exist.
type LocationDirectory interface {
	Get(ctx context.Context, id int64) (*LocationRef, error)
	GetBySlug(ctx context.Context, slug string) (*LocationRef, error)
	Hours(ctx context.Context, id int64, weekday string) (DayHours, error)
}

// SettingsProvider exposes the appointment type catalog.
type SettingsProvider interface {
	FindType(name string) (AppointmentType, bool)
	Classify(name string) Kind
}

// OverlapFinder queries existing bookings that intersect a window.
type OverlapFinder interface {
	FindOverlapping(ctx context.Context, q OverlapQuery) ([]*Appointment, error)
}

// Engine validates and normalizes appointment writes.
type Engine struct {
	locations LocationDirectory
	settings  SettingsProvider
	store     OverlapFinder
	loc       *time.Location
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEngine creates an Engine. Dates are interpreted in loc.
func NewEngine(locations LocationDirectory, settings SettingsProvider, store OverlapFinder, loc *time.Location, logger zerolog.Logger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		locations: locations,
		settings:  settings,
		store:     store,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
	}
}

// Today returns the current calendar date in the clinic timezone.
func (e *Engine) Today() civil.Date {
	return civil.DateOf(e.now().In(e.loc))
}

// ValidateAndNormalize admits a proposal. existing is nil for a create. On
// update the proposal is merged over existing, and omitted fields keep
// their stored values. It returns the full record to persist, a
// *RejectionError when rules are broken, or a *StorageError.
func (e *Engine) ValidateAndNormalize(ctx context.Context, p Proposal, existing *Appointment, allowOverlap bool) (*Appointment, error) {
	creating := existing == nil
	var a *Appointment
	if creating {
		a = &Appointment{
			Status:              StatusPending,
			IntakeStatus:        IntakeNotSubmitted,
			RepeatIntervalWeeks: 1,
			Date:                e.Today(),
		}
	} else {
		a = existing.Clone()
	}

	var vs []Violation
	add := func(code, message string, fields ...string) {
		vs = append(vs, Violation{Code: code, Fields: fields, Message: message})
	}

	e.applyFields(&p, a, add)

	timesParsed := e.applyTimes(&p, a, add)

	if err := e.resolveLocation(ctx, &p, a, creating, add); err != nil {
		return nil, err
	}
	if a.ProviderID == 0 {
		add(CodeProviderRequired, "Provider is required.", "provider")
	}

	// Time ordering.
	rangeOK := timesParsed
	if a.StartTime != nil && a.EndTime != nil && seconds(*a.EndTime) <= seconds(*a.StartTime) {
		add(CodeInvalidTimeRange, "End time must be after start time.", "start_time", "end_time")
		rangeOK = false
	}
	if p.Duration.present() && (p.Duration.Value < 1 || p.Duration.Value > MaxDuration) {
		add(CodeInvalidDuration, fmt.Sprintf("Duration must be between 1 and %d minutes.", MaxDuration), "duration")
		rangeOK = false
	}

	// Patient requirement.
	a.AppointmentType = strings.TrimSpace(a.AppointmentType)
	isBlockReason := e.settings.Classify(a.AppointmentType) == KindBlockReason
	if a.PatientID == nil && !isBlockReason {
		add(CodePatientRequired, "Patient is required unless the appointment type is a block reason.", "patient")
	}

	// Type defaults. The end time is derived here so the overlap check sees
	// the final window.
	e.enrich(&p, a, creating, isBlockReason)
	if rangeOK && a.StartTime != nil && a.EndTime == nil {
		end, ok := AddMinutes(*a.StartTime, a.Duration)
		if !ok {
			add(CodeInvalidTimeRange, "Appointment must end on the day it starts.", "start_time", "duration")
			rangeOK = false
		} else {
			a.EndTime = &end
		}
	}
	if rangeOK && a.StartTime != nil && a.EndTime != nil {
		a.Duration = (seconds(*a.EndTime) - seconds(*a.StartTime)) / 60
	}

	// Overlap.
	if !allowOverlap && rangeOK && a.StartTime != nil && a.EndTime != nil && a.ProviderID != 0 && a.LocationID != 0 {
		matches, err := e.store.FindOverlapping(ctx, OverlapQuery{
			ProviderID: a.ProviderID,
			LocationID: a.LocationID,
			Date:       a.Date,
			Start:      *a.StartTime,
			End:        *a.EndTime,
			ExcludeID:  a.ID,
		})
		if err != nil {
			return nil, storageErr("find overlapping appointments", err)
		}
		if len(matches) > 0 {
			vs = append(vs, overlapViolation(matches[0], a.Office))
		}
	}

	e.validateRecurrence(a, add)

	// Status side effects.
	if a.Status != StatusInRoom {
		a.Room = ""
	}
	if len(a.Room) > MaxRoomLength {
		add(CodeInvalidRoom, fmt.Sprintf("Room must be at most %d characters.", MaxRoomLength), "room")
	}
	if !validStatuses[a.Status] {
		add(CodeInvalidStatus, fmt.Sprintf("%q is not a valid status.", a.Status), "status")
	}
	if !validIntakeStatuses[a.IntakeStatus] {
		add(CodeInvalidIntakeStatus, fmt.Sprintf("%q is not a valid intake status.", a.IntakeStatus), "intake_status")
	}

	a.IsBlock = a.PatientID == nil
	a.OverlapAllowed = allowOverlap

	if len(vs) > 0 {
		return nil, newRejection(vs)
	}

	e.checkHours(ctx, a)
	return a, nil
}

func overlapViolation(conflict *Appointment, office string) Violation {
	if conflict.Office != "" {
		office = conflict.Office
	}
	return Violation{
		Code:           CodeTimeOverlap,
		Fields:         []string{"start_time", "end_time"},
		Message:        fmt.Sprintf("This time overlaps with another appointment or block time at %s.", office),
		ConflictID:     conflict.ID,
		ConflictOffice: office,
	}
}

type addFunc func(code, message string, fields ...string)

// applyFields merges the scalar fields of p into a.
func (e *Engine) applyFields(p *Proposal, a *Appointment, add addFunc) {
	if p.Patient.Set {
		if p.Patient.Null || p.Patient.Value == 0 {
			a.PatientID = nil
		} else {
			v := p.Patient.Value
			a.PatientID = &v
		}
	}
	if p.Provider.present() {
		a.ProviderID = p.Provider.Value
	}
	if p.AppointmentType.Set {
		a.AppointmentType = p.AppointmentType.Value
	}
	if p.Status.Set {
		a.Status = p.Status.Value
		if p.Status.Null || a.Status == "" {
			a.Status = StatusPending
		}
	}
	if p.Room.Set {
		a.Room = strings.TrimSpace(p.Room.Value)
	}
	if p.IntakeStatus.Set {
		a.IntakeStatus = p.IntakeStatus.Value
		if p.IntakeStatus.Null || a.IntakeStatus == "" {
			a.IntakeStatus = IntakeNotSubmitted
		}
	}
	if p.Notes.Set {
		a.Notes = p.Notes.Value
	}
	if p.ChiefComplaint.Set {
		a.ChiefComplaint = p.ChiefComplaint.Value
	}
	if p.ColorCode.present() && p.ColorCode.Value != "" {
		if hexColorRE.MatchString(p.ColorCode.Value) {
			a.ColorCode = p.ColorCode.Value
		} else {
			add(CodeInvalidColor, "Color must be a #RRGGBB hex value.", "color_code")
		}
	}
	if p.IsRecurring.Set {
		a.IsRecurring = p.IsRecurring.Value
	}
	if p.RepeatDays.Set {
		a.RepeatDays = nil
		if !p.RepeatDays.Null {
			a.RepeatDays = normalizeDays(p.RepeatDays.Value)
		}
	}
	if p.RepeatIntervalWeeks.Set {
		a.RepeatIntervalWeeks = 1
		if !p.RepeatIntervalWeeks.Null {
			a.RepeatIntervalWeeks = p.RepeatIntervalWeeks.Value
		}
	}
	if p.RepeatOccurrences.Set {
		a.RepeatOccurrences = nil
		if !p.RepeatOccurrences.Null {
			v := p.RepeatOccurrences.Value
			a.RepeatOccurrences = &v
		}
	}
	if p.Date.Set {
		if p.Date.Null || strings.TrimSpace(p.Date.Value) == "" {
			add(CodeInvalidDate, "Date is required.", "date")
		} else if d, err := ParseLocalDate(p.Date.Value, e.loc); err != nil {
			add(CodeInvalidDate, "Date must be YYYY-MM-DD.", "date")
		} else {
			a.Date = d
		}
	}
	if p.RepeatEndDate.Set {
		a.RepeatEndDate = nil
		if p.RepeatEndDate.present() && strings.TrimSpace(p.RepeatEndDate.Value) != "" {
			if d, err := ParseLocalDate(p.RepeatEndDate.Value, e.loc); err != nil {
				add(CodeInvalidDate, "Repeat end date must be YYYY-MM-DD.", "repeat_end_date")
			} else {
				a.RepeatEndDate = &d
			}
		}
	}
}

// applyTimes merges start and end times and reports whether both parsed.
func (e *Engine) applyTimes(p *Proposal, a *Appointment, add addFunc) bool {
	ok := true
	parse := func(f Field[string], field string, dst **civil.Time) {
		if !f.Set {
			return
		}
		if !f.present() || strings.TrimSpace(f.Value) == "" {
			*dst = nil
			return
		}
		t, err := ParseClock(f.Value)
		if err != nil {
			add(CodeInvalidTime, "Time must be HH:MM or HH:MM:SS.", field)
			ok = false
			return
		}
		*dst = &t
	}
	parse(p.StartTime, "start_time", &a.StartTime)
	parse(p.EndTime, "end_time", &a.EndTime)
	// A new start without a new end re-derives the end from the duration.
	if p.StartTime.present() && !p.EndTime.Set && a.ID != 0 {
		a.EndTime = nil
	}
	if a.EndTime != nil && a.StartTime == nil {
		add(CodeInvalidTime, "End time requires a start time.", "start_time")
		ok = false
	}
	return ok
}

// resolveLocation reconciles the numeric location and the office slug.
func (e *Engine) resolveLocation(ctx context.Context, p *Proposal, a *Appointment, creating bool, add addFunc) error {
	idGiven := p.Location.present() && p.Location.Value != 0
	slugGiven := p.Office.present() && strings.TrimSpace(p.Office.Value) != ""
	slug := strings.TrimSpace(p.Office.Value)

	switch {
	case idGiven:
		ref, err := e.locations.Get(ctx, p.Location.Value)
		if err != nil {
			return storageErr("get location", err)
		}
		if ref == nil {
			add(CodeLocationUnknown, fmt.Sprintf("Location %d does not exist.", p.Location.Value), "location")
			return nil
		}
		if slugGiven && !strings.EqualFold(slug, ref.Slug) {
			add(CodeLocationMismatch, fmt.Sprintf("Office %q does not match location %q.", slug, ref.Slug), "location", "office")
			return nil
		}
		a.LocationID, a.Office = ref.ID, ref.Slug
	case slugGiven:
		ref, err := e.locations.GetBySlug(ctx, slug)
		if err != nil {
			return storageErr("get location by slug", err)
		}
		if ref == nil {
			add(CodeLocationUnknown, fmt.Sprintf("Office %q does not exist.", slug), "office")
			return nil
		}
		a.LocationID, a.Office = ref.ID, ref.Slug
	case creating || a.LocationID == 0:
		add(CodeLocationRequired, "Location is required.", "location")
	}
	return nil
}

// enrich applies catalog defaults for duration and color.
func (e *Engine) enrich(p *Proposal, a *Appointment, creating, isBlockReason bool) {
	durationGiven := p.Duration.present() && p.Duration.Value > 0
	colorGiven := p.ColorCode.present() && p.ColorCode.Value != ""

	if durationGiven {
		a.Duration = p.Duration.Value
	}
	if t, ok := e.settings.FindType(a.AppointmentType); ok {
		if !durationGiven && (creating || a.Duration <= 0) && t.DefaultDuration > 0 {
			a.Duration = t.DefaultDuration
		}
		if !colorGiven && (creating || a.ColorCode == "") && t.ColorCode != "" {
			a.ColorCode = t.ColorCode
		}
	}
	if a.Duration <= 0 {
		a.Duration = DefaultDuration
	}
	if a.ColorCode == "" {
		a.ColorCode = DefaultColor
	}
	if isBlockReason {
		a.ColorCode = BlockColor
	}
}

func (e *Engine) validateRecurrence(a *Appointment, add addFunc) {
	if !a.IsRecurring {
		a.RepeatDays = nil
		a.RepeatEndDate = nil
		a.RepeatOccurrences = nil
		a.RepeatIntervalWeeks = 1
		return
	}
	if a.RepeatEndDate != nil && a.RepeatEndDate.Before(a.Date) {
		add(CodeRecurrenceEndBeforeStart, "Repeat end date must be on or after the appointment date.", "repeat_end_date")
	}
	if a.RepeatOccurrences != nil && *a.RepeatOccurrences < 1 {
		add(CodeRecurrenceInvalidOccurrences, "Repeat occurrences must be at least 1.", "repeat_occurrences")
	}
	if len(a.RepeatDays) == 0 {
		add(CodeRecurrenceNoDays, "Select at least one weekday to repeat on.", "repeat_days")
	}
	for _, d := range a.RepeatDays {
		if !IsWeekdayCode(d) {
			add(CodeRecurrenceInvalidDay, fmt.Sprintf("%q is not a weekday code.", d), "repeat_days")
			break
		}
	}
	if a.RepeatIntervalWeeks < 1 {
		add(CodeRecurrenceInvalidInterval, "Repeat interval must be at least 1 week.", "repeat_interval_weeks")
	}
}

// checkHours logs bookings outside the location's opening hours. It never
// rejects.
func (e *Engine) checkHours(ctx context.Context, a *Appointment) {
	if a.StartTime == nil || a.EndTime == nil || a.LocationID == 0 {
		return
	}
	weekday := WeekdayCode(a.Date)
	h, err := e.locations.Hours(ctx, a.LocationID, weekday)
	if err != nil {
		e.logger.Warn().Err(err).Int64("location_id", a.LocationID).Msg("location hours unavailable")
		return
	}
	switch {
	case !h.Open:
		e.logger.Warn().
			Str("office", a.Office).
			Str("weekday", weekday).
			Str("date", a.Date.String()).
			Msg("appointment booked on a closed day")
	case seconds(*a.StartTime) < seconds(h.Start) || seconds(*a.EndTime) > seconds(h.End):
		e.logger.Warn().
			Str("office", a.Office).
			Str("weekday", weekday).
			Str("start", a.StartTime.String()).
			Str("end", a.EndTime.String()).
			Msg("appointment booked outside opening hours")
	}
}

// normalizeDays lowercases, trims and de-duplicates weekday codes, keeping
// first-seen order.
func normalizeDays(days []string) []string {
	out := make([]string, 0, len(days))
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
