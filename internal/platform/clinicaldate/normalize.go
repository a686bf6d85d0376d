package clinicaldate

import (
	"strconv"
	"strings"
	"time"
)

// SourceHint tells Normalize which encoding to try first. Both encodings are
// always accepted; the hint only orders the attempts.
type SourceHint uint8

const (
	HintAny SourceHint = iota
	HintCDA
	HintFHIR
)

type parseFunc func(string) (Date, bool)

var (
	cdaFirst  = []parseFunc{parseCompact, parseExtended}
	fhirFirst = []parseFunc{parseExtended, parseCompact}
)

// Normalize parses a raw CDA or FHIR date string. Anything it cannot read
// yields Unknown; it never fails and has no hidden state, so the same input
// always produces the same Date.
func Normalize(raw string, hint SourceHint) Date {
	s := strings.TrimSpace(raw)
	if len(s) < 4 || len(s) > 40 {
		return Date{}
	}
	for _, r := range s {
		if !validChar(r) {
			return Date{}
		}
	}

	order := cdaFirst
	if hint == HintFHIR || (hint == HintAny && strings.ContainsRune(s, '-') && len(s) > 4 && s[4] == '-') {
		order = fhirFirst
	}
	for _, parse := range order {
		if d, ok := parse(s); ok {
			return d
		}
	}
	return Date{}
}

func validChar(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == '-', r == '+', r == ':', r == '.', r == 'T', r == 'Z', r == 'z', r == 't':
		return true
	}
	return false
}

// parseCompact reads the HL7 v3 TS form: YYYY[MM[DD[HH[MM[SS[.F+]]]]]][+/-ZZZZ].
func parseCompact(s string) (Date, bool) {
	body, ok := stripCompactZone(s)
	if !ok {
		return Date{}, false
	}
	if i := strings.IndexByte(body, '.'); i >= 0 {
		if i != 14 || !allDigits(body[i+1:]) || len(body) == i+1 {
			return Date{}, false
		}
		body = body[:i]
	}
	if !allDigits(body) {
		return Date{}, false
	}

	year := atoi(body[0:4])
	switch len(body) {
	case 4, 6:
		// Month precision is not representable; keep the year.
		if len(body) == 6 {
			if m := atoi(body[4:6]); m < 1 || m > 12 {
				return Date{}, false
			}
		}
		return yearOnly(year)
	case 8:
		return exact(year, atoi(body[4:6]), atoi(body[6:8]), 0, 0, 0)
	case 10:
		return exact(year, atoi(body[4:6]), atoi(body[6:8]), atoi(body[8:10]), 0, 0)
	case 12:
		return exact(year, atoi(body[4:6]), atoi(body[6:8]), atoi(body[8:10]), atoi(body[10:12]), 0)
	case 14:
		return exact(year, atoi(body[4:6]), atoi(body[6:8]), atoi(body[8:10]), atoi(body[10:12]), atoi(body[12:14]))
	}
	return Date{}, false
}

func stripCompactZone(s string) (string, bool) {
	i := strings.IndexAny(s, "+-")
	if i < 0 {
		return s, true
	}
	zone := s[i+1:]
	if len(zone) != 4 || !allDigits(zone) {
		return "", false
	}
	if atoi(zone[0:2]) > 14 || atoi(zone[2:4]) > 59 {
		return "", false
	}
	return s[:i], true
}

// parseExtended reads the FHIR/ISO 8601 forms: YYYY, YYYY-MM, YYYY-MM-DD and
// YYYY-MM-DDThh:mm[:ss[.fff]][Z|+hh:mm].
func parseExtended(s string) (Date, bool) {
	datePart, timePart, hasT := cutAny(s, "Tt")
	parts := strings.Split(datePart, "-")
	for _, p := range parts {
		if !allDigits(p) {
			return Date{}, false
		}
	}
	if len(parts[0]) != 4 {
		return Date{}, false
	}
	year := atoi(parts[0])

	switch len(parts) {
	case 1:
		if hasT {
			return Date{}, false
		}
		return yearOnly(year)
	case 2:
		if hasT || len(parts[1]) != 2 {
			return Date{}, false
		}
		if m := atoi(parts[1]); m < 1 || m > 12 {
			return Date{}, false
		}
		return yearOnly(year)
	case 3:
		if len(parts[1]) != 2 || len(parts[2]) != 2 {
			return Date{}, false
		}
	default:
		return Date{}, false
	}
	month, day := atoi(parts[1]), atoi(parts[2])
	if !hasT {
		return exact(year, month, day, 0, 0, 0)
	}

	clock, ok := stripExtendedZone(timePart)
	if !ok {
		return Date{}, false
	}
	if i := strings.IndexByte(clock, '.'); i >= 0 {
		if !allDigits(clock[i+1:]) || len(clock) == i+1 {
			return Date{}, false
		}
		clock = clock[:i]
	}
	fields := strings.Split(clock, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return Date{}, false
	}
	for _, f := range fields {
		if len(f) != 2 || !allDigits(f) {
			return Date{}, false
		}
	}
	sec := 0
	if len(fields) == 3 {
		sec = atoi(fields[2])
	}
	return exact(year, month, day, atoi(fields[0]), atoi(fields[1]), sec)
}

func stripExtendedZone(s string) (string, bool) {
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		return s[:len(s)-1], true
	}
	i := strings.IndexAny(s, "+-")
	if i < 0 {
		return s, true
	}
	zone := s[i+1:]
	if len(zone) != 5 || zone[2] != ':' || !allDigits(zone[:2]) || !allDigits(zone[3:]) {
		return "", false
	}
	if atoi(zone[:2]) > 14 || atoi(zone[3:]) > 59 {
		return "", false
	}
	return s[:i], true
}

func yearOnly(year int) (Date, bool) {
	if year < 1 {
		return Date{}, false
	}
	return Date{kind: KindYearOnly, year: year}, true
}

func exact(year, month, day, hour, minute, second int) (Date, bool) {
	if year < 1 || month < 1 || month > 12 || day < 1 {
		return Date{}, false
	}
	if hour > 23 || minute > 59 || second > 59 {
		return Date{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return Date{}, false
	}
	d := Date{kind: KindExact, year: year, month: time.Month(month), day: day}
	// A bare midnight is how both formats encode "date only".
	if hour != 0 || minute != 0 || second != 0 {
		d.hasTime = true
		d.hour, d.minute, d.second = hour, minute, second
	}
	return d, true
}

func cutAny(s, seps string) (before, after string, found bool) {
	if i := strings.IndexAny(s, seps); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
