package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "wartungsplan/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT as produced
// by the ICS parser. Recurrence expansion operates on this type.
type ParsedEvent struct {
	UID string

	Summary     string
	Description string
	Location    string
	Status      string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	RDates     []time.Time
	ExDates    []time.Time
	ExDays     []time.Time // date-valued EXDATEs of a timed event, matched by calendar day
	Recurrence *time.Time // RECURRENCE-ID (if present)
	IsOverride bool       // true if this VEVENT overrides one instance of a recurring event
}

// Calendar is an immutable, already parsed set of events. It is built once
// per run and only read afterwards.
type Calendar struct {
	Events []ParsedEvent
}

// ParseICS parses a single ICS payload.
//
//   - TZID parameters are normalized first so that Outlook/Exchange names
//     ("W. Europe Standard Time") resolve to IANA zones.
//   - Floating date-times and dates (no TZID, no trailing Z) are read in
//     time.Local.
//   - RRULE/RDATE/EXDATE/RECURRENCE-ID are recorded but not expanded;
//     expansion is done in expand.go.
func ParseICS(body []byte) (*Calendar, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	out := &Calendar{Events: make([]ParsedEvent, 0)}
	for i, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr, "index", i)
			continue
		}
		out.Events = append(out.Events, ev)
	}

	appLog.Debug("ics parse completed", "event_count", len(out.Events))
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	// UID is optional for our purposes: hand-written calendars often lack it.
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Status = strings.ToUpper(strings.TrimSpace(p.Value))
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := propTime(dtStart, time.Local)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = allDay

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		end, _, err := propTime(ve.GetProperty(ical.ComponentPropertyDtEnd), start.Location())
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	case ve.GetProperty(ical.ComponentPropertyDuration) != nil:
		d, err := parseDuration(ve.GetProperty(ical.ComponentPropertyDuration).Value)
		if err != nil {
			return out, fmt.Errorf("DURATION: %w", err)
		}
		out.End = d.addTo(start)
	case allDay:
		out.End = start.AddDate(0, 0, 1)
	default:
		out.End = start
	}
	if out.End.Before(out.Start) {
		return out, errors.New("DTEND before DTSTART")
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = strings.TrimPrefix(strings.TrimSpace(p.Value), "RRULE:")
	}

	// EXDATE and RDATE can appear multiple times, each with a comma list.
	exTimes, exDays := propTimeList(ve.GetProperties(ical.ComponentPropertyExdate), start.Location())
	if allDay {
		out.ExDates = append(exTimes, exDays...)
	} else {
		out.ExDates, out.ExDays = exTimes, exDays
	}
	rTimes, rDays := propTimeList(ve.GetProperties(ical.ComponentPropertyRdate), start.Location())
	out.RDates = append(rTimes, rDays...)

	// Use raw property name to avoid constant mismatch.
	if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil {
		if t, _, err := propTime(rid, start.Location()); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// propTime reads a DATE or DATE-TIME property honoring its TZID parameter.
// Values without zone information are interpreted in fallback.
func propTime(p *ical.IANAProperty, fallback *time.Location) (time.Time, bool, error) {
	loc := fallback
	isDate := false
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			isDate = true
		}
		if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
			l, err := loadTZID(tzs[0])
			if err != nil {
				return time.Time{}, false, err
			}
			loc = l
		}
	}
	return parseICSTime(p.Value, isDate, loc)
}

// propTimeList reads a list property and splits its values into
// date-times and plain dates.
func propTimeList(props []*ical.IANAProperty, fallback *time.Location) (times, days []time.Time) {
	for _, p := range props {
		if p == nil || p.Value == "" {
			continue
		}
		loc := fallback
		isDate := false
		if params := p.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				isDate = true
			}
			if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
				l, err := loadTZID(tzs[0])
				if err != nil {
					appLog.Warn("ics: unknown TZID in date list, using event zone", "tzid", tzs[0])
				} else {
					loc = l
				}
			}
		}
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, date, err := parseICSTime(part, isDate, loc)
			switch {
			case err != nil:
				appLog.Warn("ics: skipping unparsable date", "value", part)
			case date:
				days = append(days, t)
			default:
				times = append(times, t)
			}
		}
	}
	return times, days
}

// parseICSTime parses a basic ICS date/date-time string. The returned bool
// reports whether the value was a plain DATE (all-day).
func parseICSTime(v string, isDate bool, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}
	if loc == nil {
		loc = time.Local
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	}

	// Local date-time, e.g., 20250101T090000
	if !isDate && strings.Contains(v, "T") {
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	}

	// Date-only (all-day), e.g., 20250101
	t, err := time.ParseInLocation("20060102", v, loc)
	return t, true, err
}
