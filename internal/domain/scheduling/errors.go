package scheduling

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Rejection codes.
const (
	CodeInvalidTimeRange             = "INVALID_TIME_RANGE"
	CodePatientRequired              = "PATIENT_REQUIRED"
	CodeTimeOverlap                  = "TIME_OVERLAP"
	CodeRecurrenceEndBeforeStart     = "RECURRENCE_END_BEFORE_START"
	CodeRecurrenceInvalidOccurrences = "RECURRENCE_INVALID_OCCURRENCES"
	CodeRecurrenceNoDays             = "RECURRENCE_NO_DAYS"
	CodeRecurrenceInvalidDay         = "RECURRENCE_INVALID_DAY"
	CodeRecurrenceInvalidInterval    = "RECURRENCE_INVALID_INTERVAL"
	CodeProviderRequired             = "PROVIDER_REQUIRED"
	CodeLocationRequired             = "LOCATION_REQUIRED"
	CodeLocationUnknown              = "LOCATION_UNKNOWN"
	CodeLocationMismatch             = "LOCATION_MISMATCH"
	CodeInvalidStatus                = "INVALID_STATUS"
	CodeInvalidIntakeStatus          = "INVALID_INTAKE_STATUS"
	CodeInvalidColor                 = "INVALID_COLOR"
	CodeInvalidRoom                  = "INVALID_ROOM"
	CodeInvalidDate                  = "INVALID_DATE"
	CodeInvalidTime                  = "INVALID_TIME"
	CodeInvalidDuration              = "INVALID_DURATION"
	CodePatientUnknown               = "PATIENT_UNKNOWN"
	CodeProviderUnknown              = "PROVIDER_UNKNOWN"
	CodeStorageError                 = "STORAGE_ERROR"
)

// codeRank orders violations so the first one is the primary reason. The
// admission rules come first in evaluation order, field checks after.
var codeRank = map[string]int{
	CodeInvalidTimeRange:             0,
	CodePatientRequired:              1,
	CodeTimeOverlap:                  2,
	CodeRecurrenceEndBeforeStart:     3,
	CodeRecurrenceInvalidOccurrences: 4,
	CodeRecurrenceNoDays:             5,
	CodeRecurrenceInvalidDay:         6,
	CodeRecurrenceInvalidInterval:    7,
	CodeInvalidDate:                  8,
	CodeInvalidTime:                  9,
	CodeInvalidDuration:              10,
	CodeProviderRequired:             11,
	CodeProviderUnknown:              12,
	CodePatientUnknown:               13,
	CodeLocationRequired:             14,
	CodeLocationUnknown:              15,
	CodeLocationMismatch:             16,
	CodeInvalidStatus:                17,
	CodeInvalidIntakeStatus:          18,
	CodeInvalidColor:                 19,
	CodeInvalidRoom:                  20,
}

// ErrNotFound is returned when an appointment does not exist.
var ErrNotFound = errors.New("appointment not found")

// Violation is one failed admission rule.
type Violation struct {
	Code    string   `json:"code"`
	Fields  []string `json:"fields"`
	Message string   `json:"message"`

	// Set for TIME_OVERLAP.
	ConflictID     int64  `json:"conflict_id,omitempty"`
	ConflictOffice string `json:"conflict_office,omitempty"`
}

// RejectionError is returned when a proposal breaks one or more admission
// rules. Violations are ordered with the primary reason first.
type RejectionError struct {
	Violations []Violation
}

func (e *RejectionError) Error() string {
	codes := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		codes = append(codes, v.Code)
	}
	return "appointment rejected: " + strings.Join(codes, ", ")
}

// Code returns the primary rejection code.
func (e *RejectionError) Code() string {
	if len(e.Violations) == 0 {
		return ""
	}
	return e.Violations[0].Code
}

// Has reports whether any violation carries code.
func (e *RejectionError) Has(code string) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

func newRejection(vs []Violation) *RejectionError {
	sorted := append([]Violation(nil), vs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return codeRank[sorted[i].Code] < codeRank[sorted[j].Code]
	})
	return &RejectionError{Violations: sorted}
}

// StorageError wraps an unexpected failure of a collaborator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// AsRejection extracts a *RejectionError from err.
func AsRejection(err error) (*RejectionError, bool) {
	var re *RejectionError
	ok := errors.As(err, &re)
	return re, ok
}
