package location

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/clinicsched/clinic/internal/domain/scheduling"
)

var (
	ErrNotFound     = errors.New("location not found")
	ErrInUse        = errors.New("location is referenced by appointments")
	ErrSlugTaken    = errors.New("slug already in use")
	ErrInvalidHours = errors.New("invalid hours")
)

// ValidationError is a client input error.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// CodeLocationInUse is the API code returned when deleting a referenced
// location.
const CodeLocationInUse = "LOCATION_IN_USE"

const (
	maxSlugLength = 50
	fallbackSlug  = "location"
)

var (
	DefaultOpen  = civil.Time{Hour: 8}
	DefaultClose = civil.Time{Hour: 17}
)

type Location struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Phone     *string   `json:"phone"`
	Email     *string   `json:"email"`
	Address   *string   `json:"address"`
	IsActive  bool      `json:"is_active"`
	Hours     []Hours   `json:"hours"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Hours are the opening hours of a location on one weekday.
type Hours struct {
	Weekday string     `json:"weekday"`
	Open    bool       `json:"open"`
	Start   civil.Time `json:"start"`
	End     civil.Time `json:"end"`
}

// Day returns the hours for weekday, or the default open day when the row
// is missing.
func (l *Location) Day(weekday string) Hours {
	for _, h := range l.Hours {
		if h.Weekday == weekday {
			return h
		}
	}
	return Hours{Weekday: weekday, Open: true, Start: DefaultOpen, End: DefaultClose}
}

// DefaultWeek returns seven open 08:00-17:00 rows.
func DefaultWeek() []Hours {
	out := make([]Hours, 0, len(scheduling.Weekdays))
	for _, d := range scheduling.Weekdays {
		out = append(out, Hours{Weekday: d, Open: true, Start: DefaultOpen, End: DefaultClose})
	}
	return out
}

// BusinessSettings is the single practice-wide settings row.
type BusinessSettings struct {
	ID            int       `json:"id"`
	Name          *string   `json:"name"`
	ShowNameInNav bool      `json:"show_name_in_nav"`
	UpdatedAt     time.Time `json:"updated_at"`
}

var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify converts a name into a URL slug: accents are folded to ASCII,
// anything other than letters, digits, underscores and hyphens is dropped,
// and runs of whitespace or hyphens become a single hyphen.
func Slugify(name string) string {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r > unicode.MaxASCII:
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingDash = true
		}
	}
	slug := strings.Trim(b.String(), "-_")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-_")
	}
	return slug
}

// slugCandidate returns the n-th candidate for base: base itself, then
// base-2, base-3 and so on, truncated so the result fits a slug column.
func slugCandidate(base string, n int) string {
	if n <= 1 {
		return base
	}
	suffix := "-" + strconv.Itoa(n)
	if len(base)+len(suffix) > maxSlugLength {
		base = strings.TrimRight(base[:maxSlugLength-len(suffix)], "-_")
	}
	return base + suffix
}
