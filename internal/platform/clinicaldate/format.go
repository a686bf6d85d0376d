package clinicaldate

import (
	"fmt"
	"strings"
)

// NotRecorded is shown for dates the source did not carry.
const NotRecorded = "Not recorded"

// Style selects the display convention. Both spell the month out so day and
// month can never be confused.
type Style uint8

const (
	StyleEuropean Style = iota // 15 June 2022
	StyleUS                    // June 15, 2022
)

// ParseStyle maps a configuration value to a Style. Unknown values fall back
// to StyleEuropean.
func ParseStyle(s string) Style {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "us", "en-us", "american":
		return StyleUS
	default:
		return StyleEuropean
	}
}

func (s Style) String() string {
	if s == StyleUS {
		return "us"
	}
	return "european"
}

// Format renders d for a clinician. Exact dates carry " at HH:MM" only when
// the time is significant.
func Format(d Date, style Style) string {
	switch d.kind {
	case KindYearOnly:
		return fmt.Sprintf("%d", d.year)
	case KindExact:
		var out string
		if style == StyleUS {
			out = fmt.Sprintf("%s %d, %d", d.month, d.day, d.year)
		} else {
			out = fmt.Sprintf("%d %s %d", d.day, d.month, d.year)
		}
		if d.hasTime {
			out += fmt.Sprintf(" at %02d:%02d", d.hour, d.minute)
		}
		return out
	default:
		return NotRecorded
	}
}

// FormatRange renders a start/end pair, e.g. "3 October 1994 to 5 May 2001".
// A missing end renders as an open range; two Unknown dates render as
// NotRecorded.
func FormatRange(start, end Date, style Style) string {
	switch {
	case !start.IsKnown() && !end.IsKnown():
		return NotRecorded
	case !end.IsKnown():
		return "since " + Format(start, style)
	case !start.IsKnown():
		return "until " + Format(end, style)
	case start == end:
		return Format(start, style)
	}
	return Format(start, style) + " to " + Format(end, style)
}
