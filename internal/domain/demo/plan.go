// Package demo wipes the database and seeds a reproducible six-week clinic
// schedule around a given day.
package demo

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/clinicsched/clinic/internal/domain/identity"
	"github.com/clinicsched/clinic/internal/domain/location"
	"github.com/clinicsched/clinic/internal/domain/scheduling"
	"github.com/clinicsched/clinic/internal/domain/settings"
)

// WindowDays is how far the schedule reaches on each side of today.
const WindowDays = 21

const (
	officeNorth = "north"
	officeSouth = "south"
)

var noon = civil.Time{Hour: 12}

// Entry is one generated appointment or block. Indexes refer to the plan's
// Providers and Patients; PatientIndex is -1 for blocks.
type Entry struct {
	ProviderIndex int
	PatientIndex  int
	Office        string
	Type          string
	ColorCode     string
	Date          civil.Date
	Start         civil.Time
	End           civil.Time
	Status        string
	IntakeStatus  string
}

func (e Entry) IsBlock() bool { return e.PatientIndex < 0 }

// Plan is everything a reset writes, computed without touching storage.
type Plan struct {
	Today       civil.Date
	WindowStart civil.Date
	WindowEnd   civil.Date
	Locations   []*location.Location
	Types       []scheduling.AppointmentType
	Providers   []identity.AccountSpec
	Patients    []*identity.Patient
	Entries     []Entry
}

// Blocks counts the block entries.
func (p *Plan) Blocks() int {
	n := 0
	for _, e := range p.Entries {
		if e.IsBlock() {
			n++
		}
	}
	return n
}

// Appointments counts the patient entries.
func (p *Plan) Appointments() int {
	return len(p.Entries) - p.Blocks()
}

var demoLocations = []struct{ name, slug string }{
	{"North Office", officeNorth},
	{"South Office", officeSouth},
}

type providerSeed struct {
	first, last, specialty, password string
	staff, superuser                 bool
}

var demoProviders = []providerSeed{
	{"Avery", "Demouser", "General Practice", "DemoPass1!", true, false},
	{"Clay", "Adminton", "Administration", "AdminPass1!", true, true},
	{"Casey", "Hart", "Orthopedics", "StaffPass1!", false, false},
	{"Drew", "Nguyen", "Radiology", "StaffPass1!", false, false},
	{"Elliot", "Patel", "Surgery", "StaffPass1!", false, false},
	{"Finley", "Kline", "Family Medicine", "StaffPass1!", false, false},
}

type patientSeed struct {
	first, last, gender string
	dob                 civil.Date
}

func dob(y int, m time.Month, d int) civil.Date { return civil.Date{Year: y, Month: m, Day: d} }

var demoPatients = []patientSeed{
	{"Miles", "Rowan", "Male", dob(1994, 7, 30)},
	{"Noah", "Keats", "Male", dob(1988, 2, 12)},
	{"Ethan", "Blake", "Male", dob(1979, 9, 4)},
	{"Caleb", "Morris", "Male", dob(1966, 5, 21)},
	{"Owen", "Reed", "Male", dob(1954, 11, 2)},
	{"Lucas", "Hale", "Male", dob(2001, 3, 18)},
	{"Henry", "Price", "Male", dob(1991, 12, 9)},
	{"Jack", "Foster", "Male", dob(1983, 8, 27)},
	{"Wyatt", "Turner", "Male", dob(1972, 1, 15)},
	{"Levi", "Sutton", "Male", dob(1960, 6, 7)},
	{"Theo", "Carter", "Male", dob(1948, 10, 25)},
	{"Finn", "Dawson", "Male", dob(1998, 4, 3)},
	{"Maya", "Sterling", "Female", dob(1993, 1, 14)},
	{"Nora", "Wells", "Female", dob(1989, 6, 30)},
	{"Ivy", "Bennett", "Female", dob(1977, 12, 5)},
	{"Elena", "Park", "Female", dob(1968, 3, 22)},
	{"Sofia", "Quinn", "Female", dob(1956, 7, 11)},
	{"Ava", "Hughes", "Female", dob(2002, 9, 8)},
	{"Chloe", "James", "Female", dob(1990, 11, 19)},
	{"Lila", "Fleming", "Female", dob(1984, 5, 2)},
	{"Renee", "Cross", "Female", dob(1971, 2, 26)},
	{"Tessa", "Hayden", "Female", dob(1962, 8, 16)},
	{"Vivian", "Shaw", "Female", dob(1949, 4, 28)},
	{"Jade", "Larson", "Female", dob(1997, 10, 1)},
}

var streets = []string{
	"Maple Ave", "Oak Street", "Pine Road", "Cedar Lane",
	"Elm Drive", "Birch Way", "Willow Blvd", "Spruce Court",
}

func fakePhone(n int) string {
	return fmt.Sprintf("(555) 01%02d-%d", n, 2000+n)
}

func fakeEmail(first, last string) string {
	return strings.ToLower(first) + "." + strings.ToLower(last) + "@example.test"
}

func fakeAddress(idx int) string {
	return fmt.Sprintf("%d %s, Apt %d", 100+idx*7, streets[idx%len(streets)], idx%8+1)
}

type span struct {
	label      string
	start, end civil.Time
}

func clock(h, m int) civil.Time { return civil.Time{Hour: h, Minute: m} }

// slotTemplate is four morning and three afternoon 30 minute visits.
var slotTemplate = []span{
	{start: clock(8, 0), end: clock(8, 30)},
	{start: clock(8, 45), end: clock(9, 15)},
	{start: clock(9, 30), end: clock(10, 0)},
	{start: clock(10, 15), end: clock(10, 45)},
	{start: clock(13, 0), end: clock(13, 30)},
	{start: clock(13, 45), end: clock(14, 15)},
	{start: clock(14, 30), end: clock(15, 0)},
}

var statusCycle = []string{
	scheduling.StatusPending,
	scheduling.StatusArrived,
	scheduling.StatusInLobby,
	scheduling.StatusSeen,
	scheduling.StatusTentative,
}

// ordinal is the proleptic Gregorian day number, 0001-01-01 being 1.
func ordinal(d civil.Date) int {
	return d.DaysSince(civil.Date{Year: 1, Month: time.January, Day: 1}) + 1
}

func isoWeek(d civil.Date) int {
	_, w := d.In(time.UTC).ISOWeek()
	return w
}

func weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// locationPattern returns the morning and afternoon offices of a provider
// on d. Every third provider-week is a full day at one office.
func locationPattern(providerIdx int, d civil.Date) (morning, afternoon string) {
	k := providerIdx + isoWeek(d)
	if k%3 == 0 {
		if k%2 == 0 {
			return officeNorth, officeNorth
		}
		return officeSouth, officeSouth
	}
	if k%2 == 0 {
		return officeNorth, officeSouth
	}
	return officeSouth, officeNorth
}

func overlaps(a, b span) bool {
	return scheduling.Overlaps(a.start, a.end, b.start, b.end)
}

// blockPlan returns the blocks of a provider on d: a daily lunch and admin
// block plus occasional half days out of office. A fixed block that falls
// inside an out of office block is dropped.
func blockPlan(providerIdx int, d civil.Date) []span {
	var away []span
	switch {
	case providerIdx == 2 && weekday(d) == time.Wednesday && ordinal(d)%2 == 0:
		away = append(away, span{"Out of Office", clock(13, 0), clock(17, 0)})
	case providerIdx == 4 && weekday(d) == time.Friday && ordinal(d)%3 == 0:
		away = append(away, span{"Out of Office", clock(8, 0), clock(12, 0)})
	}
	var blocks []span
	for _, fixed := range []span{
		{"Lunch", clock(12, 0), clock(13, 0)},
		{"Admin", clock(15, 15), clock(15, 45)},
	} {
		clash := false
		for _, a := range away {
			if overlaps(fixed, a) {
				clash = true
			}
		}
		if !clash {
			blocks = append(blocks, fixed)
		}
	}
	return append(blocks, away...)
}

func officeFor(t civil.Time, morning, afternoon string) string {
	if scheduling.Minutes(t) < scheduling.Minutes(noon) {
		return morning
	}
	return afternoon
}

// BuildPlan computes the demo data set for today. The result depends on
// today alone.
func BuildPlan(today civil.Date) *Plan {
	p := &Plan{
		Today:       today,
		WindowStart: today.AddDays(-WindowDays),
		WindowEnd:   today.AddDays(WindowDays),
		Types:       settings.DefaultTypes(),
	}

	for _, l := range demoLocations {
		hours := make([]location.Hours, 0, len(scheduling.Weekdays))
		for _, wd := range scheduling.Weekdays {
			hours = append(hours, location.Hours{
				Weekday: wd,
				Open:    wd != "sat" && wd != "sun",
				Start:   location.DefaultOpen,
				End:     location.DefaultClose,
			})
		}
		p.Locations = append(p.Locations, &location.Location{Name: l.name, Slug: l.slug, IsActive: true, Hours: hours})
	}

	for i, s := range demoProviders {
		p.Providers = append(p.Providers, identity.AccountSpec{
			Username:    strings.ToLower(s.first[:1] + s.last),
			Password:    s.password,
			FirstName:   s.first,
			LastName:    s.last,
			Email:       fakeEmail(s.first, s.last),
			Specialty:   s.specialty,
			Phone:       fakePhone(i + 1),
			IsStaff:     s.staff,
			IsSuperuser: s.superuser,
		})
	}

	for i, s := range demoPatients {
		gender, email, phone, address := s.gender, fakeEmail(s.first, s.last), fakePhone(i+20), fakeAddress(i)
		p.Patients = append(p.Patients, &identity.Patient{
			PRN:         fmt.Sprintf("DEMO-%04d", i+1),
			FirstName:   s.first,
			LastName:    s.last,
			DateOfBirth: s.dob,
			Gender:      &gender,
			Email:       &email,
			Phone:       &phone,
			Address:     &address,
		})
	}

	cursor := 0
	for d := p.WindowStart; !d.After(p.WindowEnd); d = d.AddDays(1) {
		if wd := weekday(d); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for pi := range p.Providers {
			morning, afternoon := locationPattern(pi, d)
			blocks := blockPlan(pi, d)
			for _, b := range blocks {
				p.Entries = append(p.Entries, Entry{
					ProviderIndex: pi,
					PatientIndex:  -1,
					Office:        officeFor(b.start, morning, afternoon),
					Type:          b.label,
					ColorCode:     scheduling.BlockColor,
					Date:          d,
					Start:         b.start,
					End:           b.end,
					Status:        scheduling.StatusPending,
					IntakeStatus:  scheduling.IntakeNotSubmitted,
				})
			}
			for si, slot := range slotTemplate {
				skip := false
				for _, b := range blocks {
					if overlaps(slot, b) {
						skip = true
					}
				}
				if skip {
					continue
				}
				t := p.Types[(ordinal(d)+si+pi)%len(p.Types)]
				intake := scheduling.IntakeNotSubmitted
				if si%3 == 0 {
					intake = scheduling.IntakeSubmitted
				}
				p.Entries = append(p.Entries, Entry{
					ProviderIndex: pi,
					PatientIndex:  cursor % len(p.Patients),
					Office:        officeFor(slot.start, morning, afternoon),
					Type:          t.Name,
					ColorCode:     t.ColorCode,
					Date:          d,
					Start:         slot.start,
					End:           slot.end,
					Status:        statusCycle[si%len(statusCycle)],
					IntakeStatus:  intake,
				})
				cursor++
			}
		}
	}
	return p
}
