package transform

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Accepted layouts, tried in order; first match wins.
var (
	dateLayouts = []string{"2006-01-02", "01/02/2006", "2006/01/02"}

	datetimeLayouts = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
	}

	timeKeyLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
	}
)

// cleanText trims, collapses internal whitespace runs to single spaces, and
// maps empty to nil.
func cleanText(value string) *string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil
	}
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	return &cleaned
}

// parseFlag maps value to 0/1 against yesSet (lowercased members). Absent or
// unmatched values default to 0; flag fields never reject.
func parseFlag(value string, yesSet map[string]struct{}) int {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return 0
	}
	if _, ok := yesSet[v]; ok {
		return 1
	}
	return 0
}

// knownFlagValue reports whether v is a recognized yes or no spelling, so
// callers can record a quality error for junk without rejecting the record.
func knownFlagValue(value string, yesSet map[string]struct{}) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return true
	}
	if _, ok := yesSet[v]; ok {
		return true
	}
	switch v {
	case "no", "n", "false", "0", "0.0":
		return true
	}
	return false
}

// parseMinutes parses a non-negative float. Parse failures and negative
// results are cleared to nil, never rejected; ok distinguishes the two error
// kinds for the caller.
func parseMinutes(value string) (mins *float64, kind string) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, ""
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, KindInvalidNumber
	}
	if f < 0 {
		return nil, KindNegativeValue
	}
	return &f, ""
}

// cleanDatetime validates an event timestamp. Bare 10-character dates are
// returned unchanged; unparseable values coerce to nil, since datetime
// failures are always recoverable.
func cleanDatetime(value string) (*string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, true
	}
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return &v, true
		}
	}
	return nil, false
}

// DateKey derives the integer YYYYMMDD date dimension key, or -1 when the
// value is absent or matches no accepted format.
func DateKey(value *string) int {
	if value == nil {
		return -1
	}
	v := strings.TrimSpace(*value)
	if len(v) > 10 {
		v = v[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Year()*10000 + int(t.Month())*100 + t.Day()
		}
	}
	return -1
}

// TimeKey derives minutes since midnight (0..1439) from an event timestamp.
// A bare date yields 0 (midnight); absent or unparseable yields -1.
func TimeKey(value *string) int {
	if value == nil {
		return -1
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return -1
	}
	if len(v) == 10 {
		return 0
	}
	for _, layout := range timeKeyLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Hour()*60 + t.Minute()
		}
	}
	return -1
}

// TimeDiffMinutes computes (end-start) in minutes rounded to 2 decimals.
// Missing or unparseable endpoints and negative spans yield nil.
func TimeDiffMinutes(start, end *string) *float64 {
	if start == nil || end == nil {
		return nil
	}
	s, ok := parseEventTime(*start)
	if !ok {
		return nil
	}
	e, ok := parseEventTime(*end)
	if !ok {
		return nil
	}
	diff := e.Sub(s).Seconds() / 60
	if diff < 0 {
		return nil
	}
	rounded := math.Round(diff*100) / 100
	return &rounded
}

func parseEventTime(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
