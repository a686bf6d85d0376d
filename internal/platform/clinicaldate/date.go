// Package clinicaldate normalizes the date encodings found in CDA and FHIR
// documents into a single ClinicalDate value and renders it for clinicians.
package clinicaldate

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind distinguishes how much of a date is known.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindYearOnly
	KindExact
)

func (k Kind) String() string {
	switch k {
	case KindYearOnly:
		return "year"
	case KindExact:
		return "exact"
	default:
		return "unknown"
	}
}

// Date is a normalized clinical date. The zero value is Unknown.
//
// Values are only produced by Normalize, so the invariants hold everywhere:
// an Exact date always has a valid calendar day, and hasTime is false when
// the source carried a bare midnight.
type Date struct {
	kind    Kind
	year    int
	month   time.Month
	day     int
	hasTime bool
	hour    int
	minute  int
	second  int
}

// Unknown returns the Unknown date.
func Unknown() Date { return Date{} }

func (d Date) Kind() Kind { return d.kind }
func (d Date) IsKnown() bool { return d.kind != KindUnknown }
func (d Date) Year() int { return d.year }
func (d Date) Month() time.Month { return d.month }
func (d Date) Day() int { return d.day }
func (d Date) HasTime() bool { return d.hasTime }

// Clock returns the significant time of day. It is zero when HasTime is false.
func (d Date) Clock() (hour, minute, second int) {
	return d.hour, d.minute, d.second
}

// ISO renders the date in ISO 8601 form at its known precision: "2022",
// "2022-06-15" or "2022-06-15T14:30:00". Unknown renders as "".
func (d Date) ISO() string {
	switch d.kind {
	case KindYearOnly:
		return fmt.Sprintf("%04d", d.year)
	case KindExact:
		s := fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
		if d.hasTime {
			s += fmt.Sprintf("T%02d:%02d:%02d", d.hour, d.minute, d.second)
		}
		return s
	default:
		return ""
	}
}

// Time converts an Exact date to a UTC time.Time. ok is false for any other
// kind.
func (d Date) Time() (t time.Time, ok bool) {
	if d.kind != KindExact {
		return time.Time{}, false
	}
	return time.Date(d.year, d.month, d.day, d.hour, d.minute, d.second, 0, time.UTC), true
}

// Before reports whether d sorts before other. Unknown dates sort last.
func (d Date) Before(other Date) bool {
	if d.kind == KindUnknown {
		return false
	}
	if other.kind == KindUnknown {
		return true
	}
	a, b := d.sortKey(), other.sortKey()
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (d Date) sortKey() [6]int {
	return [6]int{d.year, int(d.month), d.day, d.hour, d.minute, d.second}
}

func (d Date) String() string {
	if d.kind == KindUnknown {
		return "unknown"
	}
	return d.ISO()
}

type dateJSON struct {
	Kind    string `json:"kind"`
	Value   string `json:"value,omitempty"`
	HasTime bool   `json:"has_time,omitempty"`
}

// MarshalJSON encodes the date as {"kind": "...", "value": "<iso>"}.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateJSON{Kind: d.kind.String(), Value: d.ISO(), HasTime: d.hasTime})
}
