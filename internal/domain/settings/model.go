// Package settings holds the schedule settings: the appointment type catalog
// used by the admission engine, persisted as one row and cached in memory.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clinicsched/clinic/internal/domain/scheduling"
)

var ErrNotFound = errors.New("schedule settings not found")

const untitled = "Untitled"

var (
	hexColor         = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	allowedDurations = map[int]bool{15: true, 30: true, 60: true}
)

// Settings is the stored schedule configuration. AppointmentTypes holds the
// bookable types only; block reasons are added by the catalog.
type Settings struct {
	ID               int                          `json:"id"`
	AppointmentTypes []scheduling.AppointmentType `json:"appointment_types"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

// TypeInput is an appointment type as submitted by a client or a catalog
// file. Durations may arrive as numbers or numeric strings.
type TypeInput struct {
	Name            string `json:"name" yaml:"name"`
	DefaultDuration any    `json:"default_duration" yaml:"default_duration"`
	ColorCode       any    `json:"color_code" yaml:"color_code"`
}

// Normalize coerces client input into catalog entries. A blank name becomes
// "Untitled", a duration other than 15, 30 or 60 becomes 30 and a color that
// is not #RRGGBB becomes #000000. Entries that reuse a block reason name and
// later duplicates of a name are dropped.
func Normalize(in []TypeInput) []scheduling.AppointmentType {
	types := make([]scheduling.AppointmentType, 0, len(in))
	for _, t := range in {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			name = untitled
		}
		types = append(types, scheduling.AppointmentType{
			Name:            name,
			DefaultDuration: coerceDuration(t.DefaultDuration),
			ColorCode:       coerceColor(t.ColorCode),
			Kind:            scheduling.KindBookable,
		})
	}
	return bookable(types)
}

// bookable filters catalog entries down to the stored, bookable list.
func bookable(types []scheduling.AppointmentType) []scheduling.AppointmentType {
	out := make([]scheduling.AppointmentType, 0, len(types))
	for _, t := range scheduling.NewCatalog(types).Types() {
		if t.Kind == scheduling.KindBookable {
			out = append(out, t)
		}
	}
	return out
}

func coerceDuration(v any) int {
	var d int
	switch x := v.(type) {
	case nil:
		return scheduling.DefaultDuration
	case int:
		d = x
	case int64:
		d = int(x)
	case float64:
		d = int(x)
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return scheduling.DefaultDuration
		}
		d = int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return scheduling.DefaultDuration
		}
		d = n
	default:
		return scheduling.DefaultDuration
	}
	if !allowedDurations[d] {
		return scheduling.DefaultDuration
	}
	return d
}

func coerceColor(v any) string {
	s, ok := v.(string)
	if !ok || !hexColor.MatchString(s) {
		return "#000000"
	}
	return s
}

// DecodeTypes parses a JSON appointment_types value. Anything other than a
// list yields no types, and a list element that is not an object becomes an
// untitled entry.
func DecodeTypes(raw json.RawMessage) []scheduling.AppointmentType {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []scheduling.AppointmentType{}
	}
	in := make([]TypeInput, 0, len(items))
	for _, item := range items {
		var t TypeInput
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		if err := dec.Decode(&t); err != nil {
			t = TypeInput{}
		}
		in = append(in, t)
	}
	return Normalize(in)
}

// DefaultTypes is the built-in catalog used when no catalog file is
// configured. The demo generator seeds the same list.
func DefaultTypes() []scheduling.AppointmentType {
	return []scheduling.AppointmentType{
		{Name: "Consult", DefaultDuration: 30, ColorCode: "#2E7D32", Kind: scheduling.KindBookable},
		{Name: "Follow-up", DefaultDuration: 30, ColorCode: "#9A8700", Kind: scheduling.KindBookable},
		{Name: "Pre-op", DefaultDuration: 60, ColorCode: "#006064", Kind: scheduling.KindBookable},
		{Name: "Post-op", DefaultDuration: 30, ColorCode: "#5E2B97", Kind: scheduling.KindBookable},
		{Name: "X-Ray", DefaultDuration: 15, ColorCode: "#5F6F52", Kind: scheduling.KindBookable},
		{Name: "Procedure", DefaultDuration: 60, ColorCode: "#003366", Kind: scheduling.KindBookable},
		{Name: "Phlebotomy", DefaultDuration: 15, ColorCode: "#B23A48", Kind: scheduling.KindBookable},
	}
}

type typesFile struct {
	AppointmentTypes []TypeInput `yaml:"appointment_types"`
}

// LoadTypesFile reads a YAML catalog:
//
//	appointment_types:
//	  - name: Consult
//	    default_duration: 30
//	    color_code: "#2E7D32"
func LoadTypesFile(path string) ([]scheduling.AppointmentType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read appointment types file: %w", err)
	}
	return ParseTypesYAML(data)
}

func ParseTypesYAML(data []byte) ([]scheduling.AppointmentType, error) {
	var f typesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse appointment types: %w", err)
	}
	if len(f.AppointmentTypes) == 0 {
		return nil, errors.New("parse appointment types: appointment_types is empty")
	}
	return Normalize(f.AppointmentTypes), nil
}
