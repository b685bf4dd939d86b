package collector

import (
	"regexp"
	"strings"
	"time"
)

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	dayMonthYear = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+` + monthPattern + `\.?,?\s+(\d{4})\b`)
	monthDayYear = regexp.MustCompile(`(?i)\b` + monthPattern + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	isoDate      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDate    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
)

// ParseDate parses an explicit date value such as a <time datetime> attribute,
// falling back to ScanDate for free text.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return ScanDate(s)
}

// ScanDate finds the first recognizable calendar date in free text.
// Slash dates are read day-first.
func ScanDate(text string) (time.Time, bool) {
	type candidate struct {
		at int
		t  time.Time
	}
	var best *candidate
	consider := func(idx []int, t time.Time, ok bool) {
		if !ok || idx == nil {
			return
		}
		if best == nil || idx[0] < best.at {
			best = &candidate{at: idx[0], t: t}
		}
	}

	if m := dayMonthYear.FindStringSubmatchIndex(text); m != nil {
		day, month, year := text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]]
		t, ok := parseParts(day, month, year)
		consider(m, t, ok)
	}
	if m := monthDayYear.FindStringSubmatchIndex(text); m != nil {
		month, day, year := text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]]
		t, ok := parseParts(day, month, year)
		consider(m, t, ok)
	}
	if m := isoDate.FindStringIndex(text); m != nil {
		t, err := time.Parse("2006-01-02", text[m[0]:m[1]])
		consider(m, t, err == nil)
	}
	if m := slashDate.FindStringIndex(text); m != nil {
		t, err := time.Parse("2/1/2006", text[m[0]:m[1]])
		consider(m, t, err == nil)
	}
	if best == nil {
		return time.Time{}, false
	}
	return best.t.UTC(), true
}

func parseParts(day, month, year string) (time.Time, bool) {
	month = strings.ToLower(month)
	if len(month) < 3 {
		return time.Time{}, false
	}
	abbrev := strings.ToUpper(month[:1]) + month[1:3]
	t, err := time.Parse("2 Jan 2006", day+" "+abbrev+" "+year)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
