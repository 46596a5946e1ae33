// Package temporal parses absolute, relative, recurring, duration, and
// range time expressions in free text into absolute instants relative
// to a reference time and zone.
package temporal

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind is the shape of a parsed temporal expression.
type Kind string

const (
	Absolute  Kind = "absolute"
	Relative  Kind = "relative"
	Recurring Kind = "recurring"
	Duration  Kind = "duration"
	Range     Kind = "range"
)

// Info describes one resolved temporal expression.
type Info struct {
	OriginalText      string
	Kind              Kind
	Start             time.Time
	End               time.Time // zero if not applicable
	Duration          time.Duration
	Zone              string
	Confidence        float64
	IsRecurring       bool
	RecurrencePattern string
}

// Resolver parses temporal expressions relative to a fixed reference
// instant and time zone. It is safe for concurrent read-only use once
// constructed.
type Resolver struct {
	reference time.Time
	zoneName  string
	loc       *time.Location
}

// NewResolver builds a Resolver. If loc is nil, UTC is used.
func NewResolver(reference time.Time, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{
		reference: reference.In(loc),
		zoneName:  loc.String(),
		loc:       loc,
	}
}

var weekdayIndex = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday, "sunday": time.Sunday,
}

var candidatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(tomorrow|yesterday|today|tonight)\b`),
	regexp.MustCompile(`(?i)\b(?:next|last|this)\s+(?:week|month|year|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
	regexp.MustCompile(`(?i)\b(?:in|after)\s+\d+\s+(?:minutes?|hours?|days?|weeks?|months?|years?)\b`),
	regexp.MustCompile(`(?i)\b\d+\s+(?:minutes?|hours?|days?|weeks?|months?|years?)\s+(?:ago|from now)\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s*(?:am|pm)?\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}:\d{2}\s*(?:am|pm)?\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s*(?:am|pm)\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}(?:,\s*\d{4})?\b`),
	regexp.MustCompile(`(?i)\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
	regexp.MustCompile(`(?i)\bevery\s+(?:day|week|month|year|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
	regexp.MustCompile(`(?i)\b(?:daily|weekly|monthly|yearly|annually)\b`),
	regexp.MustCompile(`(?i)\bfor\s+\d+\s+(?:minutes?|hours?|days?|weeks?|months?|years?)\b`),
	regexp.MustCompile(`(?i)\bfrom\s+\d{1,2}:\d{2}\s*(?:am|pm)?\s+to\s+\d{1,2}:\d{2}\s*(?:am|pm)?\b`),
	regexp.MustCompile(`(?i)\bbetween\s+\d{1,2}:\d{2}\s*(?:am|pm)?\s+and\s+\d{1,2}:\d{2}\s*(?:am|pm)?\b`),
	regexp.MustCompile(`(?i)\bfrom\s+\d{1,2}\s*(?:am|pm)?\s+to\s+\d{1,2}\s*(?:am|pm)?\b`),
	regexp.MustCompile(`(?i)\bbetween\s+\d{1,2}\s*(?:am|pm)?\s+and\s+\d{1,2}\s*(?:am|pm)?\b`),
}

type candidate struct {
	text       string
	start, end int
}

// ParseExpressions finds and resolves every temporal expression in text.
func (r *Resolver) ParseExpressions(text string) []Info {
	var infos []Info
	for _, c := range extractCandidates(text) {
		if info, ok := r.ParseExpression(c.text); ok {
			infos = append(infos, info)
		}
	}
	return infos
}

func extractCandidates(text string) []candidate {
	var candidates []candidate
	for _, re := range candidatePatterns {
		for _, m := range re.FindAllStringIndex(text, -1) {
			candidates = append(candidates, candidate{text: text[m[0]:m[1]], start: m[0], end: m[1]})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].start < candidates[j].start })

	var kept []candidate
	for _, c := range candidates {
		overlapped := false
		for i, k := range kept {
			if c.start < k.end && c.end > k.start {
				if (c.end - c.start) > (k.end - k.start) {
					kept = append(kept[:i], kept[i+1:]...)
				} else {
					overlapped = true
				}
				break
			}
		}
		if !overlapped {
			kept = append(kept, c)
		}
	}
	return kept
}

// ParseExpression parses a single expression, trying relative, absolute,
// recurring, duration, and range forms in that order.
func (r *Resolver) ParseExpression(expr string) (Info, bool) {
	expr = strings.ToLower(strings.TrimSpace(expr))

	for _, parser := range []func(string) (Info, bool){
		r.parseRelative,
		r.parseAbsolute,
		r.parseRecurring,
		r.parseDuration,
		r.parseRange,
	} {
		if info, ok := parser(expr); ok {
			info.OriginalText = expr
			return info, true
		}
	}
	return Info{}, false
}

var unitRe = regexp.MustCompile(`^(?:in|after)\s+(\d+)\s+(minutes?|hours?|days?|weeks?|months?|years?)$`)
var agoRe = regexp.MustCompile(`^(\d+)\s+(minutes?|hours?|days?|weeks?|months?|years?)\s+ago$`)
var fromNowRe = regexp.MustCompile(`^(\d+)\s+(minutes?|hours?|days?|weeks?|months?|years?)\s+from\s+now$`)
var nextLastThisWeekdayRe = regexp.MustCompile(`^(next|last|this)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`)

func (r *Resolver) parseRelative(expr string) (Info, bool) {
	simple := map[string]func() time.Time{
		"tomorrow":    func() time.Time { return r.reference.AddDate(0, 0, 1) },
		"yesterday":   func() time.Time { return r.reference.AddDate(0, 0, -1) },
		"today":       func() time.Time { return r.reference },
		"tonight":     func() time.Time { return time.Date(r.reference.Year(), r.reference.Month(), r.reference.Day(), 20, 0, 0, 0, r.loc) },
		"next week":   func() time.Time { return r.reference.AddDate(0, 0, 7) },
		"last week":   func() time.Time { return r.reference.AddDate(0, 0, -7) },
		"this week":   func() time.Time { return r.reference },
		"next month":  func() time.Time { return addMonths(r.reference, 1) },
		"last month":  func() time.Time { return addMonths(r.reference, -1) },
		"this month":  func() time.Time { return r.reference },
		"next year":   func() time.Time { return r.reference.AddDate(1, 0, 0) },
		"last year":   func() time.Time { return r.reference.AddDate(-1, 0, 0) },
		"this year":   func() time.Time { return r.reference },
	}
	if fn, ok := simple[expr]; ok {
		return Info{Kind: Relative, Start: fn(), Zone: r.zoneName, Confidence: 0.9}, true
	}

	if m := unitRe.FindStringSubmatch(expr); m != nil {
		amount, _ := strconv.Atoi(m[1])
		dt, err := addTimeUnit(r.reference, amount, singularUnit(m[2]))
		if err == nil {
			return Info{Kind: Relative, Start: dt, Zone: r.zoneName, Confidence: 0.85}, true
		}
	}
	if m := agoRe.FindStringSubmatch(expr); m != nil {
		amount, _ := strconv.Atoi(m[1])
		dt, err := addTimeUnit(r.reference, -amount, singularUnit(m[2]))
		if err == nil {
			return Info{Kind: Relative, Start: dt, Zone: r.zoneName, Confidence: 0.85}, true
		}
	}
	if m := fromNowRe.FindStringSubmatch(expr); m != nil {
		amount, _ := strconv.Atoi(m[1])
		dt, err := addTimeUnit(r.reference, amount, singularUnit(m[2]))
		if err == nil {
			return Info{Kind: Relative, Start: dt, Zone: r.zoneName, Confidence: 0.85}, true
		}
	}

	if m := nextLastThisWeekdayRe.FindStringSubmatch(expr); m != nil {
		modifier, weekdayName := m[1], m[2]
		target := weekdayIndex[weekdayName]
		current := r.reference.Weekday()
		daysAhead := int(target - current)
		switch modifier {
		case "next":
			if daysAhead <= 0 {
				daysAhead += 7
			}
		case "last":
			if daysAhead >= 0 {
				daysAhead -= 7
			}
		}
		return Info{Kind: Relative, Start: r.reference.AddDate(0, 0, daysAhead), Zone: r.zoneName, Confidence: 0.85}, true
	}

	if target, ok := weekdayIndex[expr]; ok {
		current := r.reference.Weekday()
		daysAhead := int(target - current)
		if daysAhead <= 0 {
			daysAhead += 7
		}
		return Info{Kind: Relative, Start: r.reference.AddDate(0, 0, daysAhead), Zone: r.zoneName, Confidence: 0.8}, true
	}

	return Info{}, false
}

var timeWithMinutesRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*(am|pm)?$`)
var timeWithSecondsRe = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})\s*(am|pm)?$`)
var timeHourOnlyRe = regexp.MustCompile(`^(\d{1,2})\s*(am|pm)$`)
var dateSlashRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
var dateISORe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
var monthNameRe = regexp.MustCompile(`^(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:,\s*(\d{4}))?$`)

var monthIndex = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March, "april": time.April,
	"may": time.May, "june": time.June, "july": time.July, "august": time.August,
	"september": time.September, "october": time.October, "november": time.November, "december": time.December,
}

func (r *Resolver) parseAbsolute(expr string) (Info, bool) {
	if m := timeWithSecondsRe.FindStringSubmatch(expr); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		second, _ := strconv.Atoi(m[3])
		hour = to24Hour(hour, m[4])
		if dt, ok := r.combineTimeOfDay(hour, minute, second); ok {
			return Info{Kind: Absolute, Start: dt, Zone: r.zoneName, Confidence: 0.9}, true
		}
	}
	if m := timeWithMinutesRe.FindStringSubmatch(expr); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		hour = to24Hour(hour, m[3])
		if dt, ok := r.combineTimeOfDay(hour, minute, 0); ok {
			return Info{Kind: Absolute, Start: dt, Zone: r.zoneName, Confidence: 0.9}, true
		}
	}
	if m := timeHourOnlyRe.FindStringSubmatch(expr); m != nil {
		hour, _ := strconv.Atoi(m[1])
		hour = to24Hour(hour, m[2])
		if dt, ok := r.combineTimeOfDay(hour, 0, 0); ok {
			return Info{Kind: Absolute, Start: dt, Zone: r.zoneName, Confidence: 0.9}, true
		}
	}

	if m := dateSlashRe.FindStringSubmatch(expr); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year := normalizeYear(m[3])
		if dt, ok := r.buildDate(year, month, day); ok {
			return Info{Kind: Absolute, Start: dt, Zone: r.zoneName, Confidence: 0.95}, true
		}
	}
	if m := dateISORe.FindStringSubmatch(expr); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if dt, ok := r.buildDate(year, month, day); ok {
			return Info{Kind: Absolute, Start: dt, Zone: r.zoneName, Confidence: 0.95}, true
		}
	}
	if m := monthNameRe.FindStringSubmatch(expr); m != nil {
		month := monthIndex[m[1]]
		day, _ := strconv.Atoi(m[2])
		year := r.reference.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		if dt, ok := r.buildDate(year, int(month), day); ok {
			return Info{Kind: Absolute, Start: dt, Zone: r.zoneName, Confidence: 0.95}, true
		}
	}

	return Info{}, false
}

func (r *Resolver) combineTimeOfDay(hour, minute, second int) (time.Time, bool) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return time.Time{}, false
	}
	dt := time.Date(r.reference.Year(), r.reference.Month(), r.reference.Day(), hour, minute, second, 0, r.loc)
	if !dt.After(r.reference) {
		dt = dt.AddDate(0, 0, 1)
	}
	return dt, true
}

func (r *Resolver) buildDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	dt := time.Date(year, time.Month(month), day, 0, 0, 0, 0, r.loc)
	if !Valid(dt) {
		return time.Time{}, false
	}
	return dt, true
}

func normalizeYear(raw string) int {
	year, _ := strconv.Atoi(raw)
	if len(raw) <= 2 {
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	}
	return year
}

func to24Hour(hour int, ampm string) int {
	switch strings.ToLower(ampm) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}

var everyUnitRe = regexp.MustCompile(`^every\s+(day|week|month|year)$`)
var everyWeekdayRe = regexp.MustCompile(`^every\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`)

var recurringAliases = map[string]string{
	"daily": "daily", "weekly": "weekly", "monthly": "monthly", "yearly": "yearly", "annually": "yearly",
}

func (r *Resolver) parseRecurring(expr string) (Info, bool) {
	if pattern, ok := recurringAliases[expr]; ok {
		return Info{Kind: Recurring, Start: r.reference, Zone: r.zoneName, Confidence: 0.85, IsRecurring: true, RecurrencePattern: pattern}, true
	}
	if m := everyUnitRe.FindStringSubmatch(expr); m != nil {
		pattern := map[string]string{"day": "daily", "week": "weekly", "month": "monthly", "year": "yearly"}[m[1]]
		return Info{Kind: Recurring, Start: r.reference, Zone: r.zoneName, Confidence: 0.85, IsRecurring: true, RecurrencePattern: pattern}, true
	}
	if m := everyWeekdayRe.FindStringSubmatch(expr); m != nil {
		return Info{Kind: Recurring, Start: r.reference, Zone: r.zoneName, Confidence: 0.85, IsRecurring: true, RecurrencePattern: "weekly_" + m[1]}, true
	}
	return Info{}, false
}

var durationRe = regexp.MustCompile(`^for\s+(\d+)\s+(minutes?|hours?|days?|weeks?|months?|years?)$`)

func (r *Resolver) parseDuration(expr string) (Info, bool) {
	m := durationRe.FindStringSubmatch(expr)
	if m == nil {
		return Info{}, false
	}
	amount, _ := strconv.Atoi(m[1])
	d := timeDelta(amount, singularUnit(m[2]))
	return Info{
		Kind: Duration, Start: r.reference, End: r.reference.Add(d), Duration: d,
		Zone: r.zoneName, Confidence: 0.8,
	}, true
}

var fromToMinutesRe = regexp.MustCompile(`^from\s+(\d{1,2}):(\d{2})\s*(am|pm)?\s+to\s+(\d{1,2}):(\d{2})\s*(am|pm)?$`)
var betweenAndMinutesRe = regexp.MustCompile(`^between\s+(\d{1,2}):(\d{2})\s*(am|pm)?\s+and\s+(\d{1,2}):(\d{2})\s*(am|pm)?$`)
var fromToHourRe = regexp.MustCompile(`^from\s+(\d{1,2})\s*(am|pm)?\s+to\s+(\d{1,2})\s*(am|pm)?$`)
var betweenAndHourRe = regexp.MustCompile(`^between\s+(\d{1,2})\s*(am|pm)?\s+and\s+(\d{1,2})\s*(am|pm)?$`)

func (r *Resolver) parseRange(expr string) (Info, bool) {
	var startHour, startMinute, endHour, endMinute int
	var startAMPM, endAMPM string
	matched := false

	if m := fromToMinutesRe.FindStringSubmatch(expr); m != nil {
		startHour, _ = strconv.Atoi(m[1])
		startMinute, _ = strconv.Atoi(m[2])
		startAMPM = m[3]
		endHour, _ = strconv.Atoi(m[4])
		endMinute, _ = strconv.Atoi(m[5])
		endAMPM = m[6]
		matched = true
	} else if m := betweenAndMinutesRe.FindStringSubmatch(expr); m != nil {
		startHour, _ = strconv.Atoi(m[1])
		startMinute, _ = strconv.Atoi(m[2])
		startAMPM = m[3]
		endHour, _ = strconv.Atoi(m[4])
		endMinute, _ = strconv.Atoi(m[5])
		endAMPM = m[6]
		matched = true
	} else if m := fromToHourRe.FindStringSubmatch(expr); m != nil {
		startHour, _ = strconv.Atoi(m[1])
		startAMPM = m[2]
		endHour, _ = strconv.Atoi(m[3])
		endAMPM = m[4]
		matched = true
	} else if m := betweenAndHourRe.FindStringSubmatch(expr); m != nil {
		startHour, _ = strconv.Atoi(m[1])
		startAMPM = m[2]
		endHour, _ = strconv.Atoi(m[3])
		endAMPM = m[4]
		matched = true
	}

	if !matched {
		return Info{}, false
	}

	startHour = to24Hour(startHour, startAMPM)
	endHour = to24Hour(endHour, endAMPM)
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 23 || startMinute > 59 || endMinute > 59 {
		return Info{}, false
	}

	base := r.reference
	start := time.Date(base.Year(), base.Month(), base.Day(), startHour, startMinute, 0, 0, r.loc)
	end := time.Date(base.Year(), base.Month(), base.Day(), endHour, endMinute, 0, 0, r.loc)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}

	return Info{Kind: Range, Start: start, End: end, Zone: r.zoneName, Confidence: 0.9}, true
}

func addMonths(t time.Time, months int) time.Time {
	return t.AddDate(0, months, 0)
}

func singularUnit(unit string) string { return strings.TrimSuffix(unit, "s") }

func addTimeUnit(t time.Time, amount int, unit string) (time.Time, error) {
	switch unit {
	case "minute":
		return t.Add(time.Duration(amount) * time.Minute), nil
	case "hour":
		return t.Add(time.Duration(amount) * time.Hour), nil
	case "day":
		return t.AddDate(0, 0, amount), nil
	case "week":
		return t.AddDate(0, 0, amount*7), nil
	case "month":
		return t.AddDate(0, amount, 0), nil
	case "year":
		return t.AddDate(amount, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown time unit: %s", unit)
	}
}

func timeDelta(amount int, unit string) time.Duration {
	switch unit {
	case "minute":
		return time.Duration(amount) * time.Minute
	case "hour":
		return time.Duration(amount) * time.Hour
	case "day":
		return time.Duration(amount) * 24 * time.Hour
	case "week":
		return time.Duration(amount) * 7 * 24 * time.Hour
	case "month":
		return time.Duration(amount) * 30 * 24 * time.Hour
	case "year":
		return time.Duration(amount) * 365 * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether dt falls within the accepted [1900, 2100] range.
func Valid(dt time.Time) bool {
	min := time.Date(1900, 1, 1, 0, 0, 0, 0, dt.Location())
	max := time.Date(2100, 12, 31, 23, 59, 59, 0, dt.Location())
	return !dt.Before(min) && !dt.After(max)
}

// NextOccurrence computes the next instant a recurring expression fires,
// relative to its own start time.
func NextOccurrence(info Info) (time.Time, bool) {
	if !info.IsRecurring || info.RecurrencePattern == "" {
		return time.Time{}, false
	}
	base := info.Start
	switch info.RecurrencePattern {
	case "daily":
		return base.AddDate(0, 0, 1), true
	case "weekly":
		return base.AddDate(0, 0, 7), true
	case "monthly":
		return addMonths(base, 1), true
	case "yearly":
		return base.AddDate(1, 0, 0), true
	}
	if strings.HasPrefix(info.RecurrencePattern, "weekly_") {
		weekdayName := strings.TrimPrefix(info.RecurrencePattern, "weekly_")
		target, ok := weekdayIndex[weekdayName]
		if !ok {
			return time.Time{}, false
		}
		daysAhead := (int(target) - int(base.Weekday()) + 7) % 7
		if daysAhead == 0 {
			daysAhead = 7
		}
		return base.AddDate(0, 0, daysAhead), true
	}
	return time.Time{}, false
}
