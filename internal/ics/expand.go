package ics

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "wartungsplan/internal/log"
	"wartungsplan/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the half-open window [RangeStart, RangeEnd).
	// Both are compared as absolute instants; their zone does not matter.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid extremely large
	// expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded occurrences and optionally
// information about truncation.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// Between returns the occurrences of cal that start in [start, end), ordered
// by start time.
func (c *Calendar) Between(start, end time.Time) ([]model.Occurrence, error) {
	if c == nil {
		return nil, errors.New("expand: calendar is nil")
	}
	res, err := ExpandOccurrences(c.Events, ExpandConfig{RangeStart: start, RangeEnd: end})
	if err != nil {
		return nil, err
	}
	return res.Occurrences, nil
}

// ExpandOccurrences expands events into the concrete occurrences that start
// inside the configured window. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence (DTSTART always counts as an instance)
//   - RDATE for additional instances
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides (moved or cancelled instances)
//
// The result is sorted by start time; ties keep calendar order.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Overrides replace one instance of their master. The replaced instance
	// is suppressed like an EXDATE and the override is expanded on its own.
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		}
	}

	allOccurrences := make([]model.Occurrence, 0)

	for _, ev := range events {
		if ev.IsOverride {
			if ev.Status == "CANCELLED" {
				continue
			}
			if inWindow(ev.Start, cfg) {
				allOccurrences = append(allOccurrences, makeOccurrence(ev, ev.Start, ev.End))
			}
			continue
		}
		if ev.Status == "CANCELLED" {
			appLog.Debug("expand: skipping cancelled event", "uid", ev.UID, "summary", ev.Summary)
			continue
		}

		occ, hitCap, err := expandEvent(ev, overridesByUID[ev.UID], cfg)
		if err != nil {
			return result, err
		}
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		allOccurrences = append(allOccurrences, occ...)
	}

	slices.SortStableFunc(allOccurrences, func(a, b model.Occurrence) int {
		return a.Start.Compare(b.Start)
	})

	result.Occurrences = allOccurrences
	return result, nil
}

// expandEvent expands a single master event, returning occurrences and
// whether the cap was hit.
func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Occurrence, bool, error) {
	if ev.RawRRule == "" && len(ev.RDates) == 0 {
		var out []model.Occurrence
		if inWindow(ev.Start, cfg) && !isReplaced(ev.Start, overrides) && !isExcluded(ev.Start, ev.ExDates) && !onExcludedDay(ev.Start, ev) {
			out = append(out, makeOccurrence(ev, ev.Start, ev.End))
		}
		return out, false, nil
	}

	return expandRecurringEvent(ev, overrides, cfg)
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Occurrence, bool, error) {
	out := make([]model.Occurrence, 0)
	hitCap := false

	var set rrule.Set
	set.DTStart(ev.Start)

	if ev.RawRRule != "" {
		r, err := parseRRule(ev.RawRRule, ev.Start)
		if err != nil {
			return nil, false, fmt.Errorf("expand: event %q: %w", ev.Summary, err)
		}
		set.RRule(r)
	}

	// DTSTART is the first instance even when it does not match the rule.
	set.RDate(ev.Start)
	for _, rd := range ev.RDates {
		set.RDate(rd)
	}

	for _, ex := range ev.ExDates {
		set.ExDate(ex)
	}
	for _, ov := range overrides {
		set.ExDate(*ov.Recurrence)
	}

	// Between is inclusive at both ends when inc is true; the right edge is
	// dropped below to keep the window half-open.
	occTimes := set.Between(cfg.RangeStart, cfg.RangeEnd, true)

	for _, occStart := range occTimes {
		if !inWindow(occStart, cfg) || onExcludedDay(occStart, ev) {
			continue
		}
		if len(out) >= cfg.MaxOccurrencesPerEvent {
			hitCap = true
			break
		}

		var occEnd time.Time
		if ev.AllDay {
			// All-day: keep the number of calendar days of the master.
			days := int(ev.End.Sub(ev.Start).Round(24*time.Hour) / (24 * time.Hour))
			if days <= 0 {
				days = 1
			}
			occStart = time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occEnd = occStart.AddDate(0, 0, days)
		} else {
			// Preserve original duration.
			occEnd = occStart.Add(ev.End.Sub(ev.Start))
		}

		out = append(out, makeOccurrence(ev, occStart, occEnd))
	}

	return out, hitCap, nil
}

// parseRRule builds a rule anchored at dtstart. The rule's own DTSTART, if
// any, is ignored.
func parseRRule(raw string, dtstart time.Time) (*rrule.RRule, error) {
	opt, err := rrule.StrToROptionInLocation(raw, dtstart.Location())
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE %q: %w", raw, err)
	}
	opt.Dtstart = dtstart
	return rrule.NewRRule(*opt)
}

// NormalizeRRule strips an optional "RRULE:" prefix, drops empty segments
// and segments that are not KEY=VALUE pairs, and validates the result.
func NormalizeRRule(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "RRULE:")

	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" || value == "" {
			continue
		}
		parts = append(parts, strings.ToUpper(key)+"="+value)
	}
	if len(parts) == 0 {
		return "", nil
	}

	norm := strings.Join(parts, ";")
	if _, err := rrule.StrToROption(norm); err != nil {
		return "", fmt.Errorf("invalid RRULE %q: %w", raw, err)
	}
	return norm, nil
}

func inWindow(t time.Time, cfg ExpandConfig) bool {
	return !t.Before(cfg.RangeStart) && t.Before(cfg.RangeEnd)
}

func isExcluded(t time.Time, exdates []time.Time) bool {
	for _, ex := range exdates {
		if ex.Equal(t) {
			return true
		}
	}
	return false
}

// onExcludedDay reports whether t falls on the calendar day, in the event's
// zone, of a date-valued EXDATE.
func onExcludedDay(t time.Time, ev ParsedEvent) bool {
	y, m, d := t.In(ev.Start.Location()).Date()
	for _, ex := range ev.ExDays {
		ey, em, ed := ex.Date()
		if ey == y && em == m && ed == d {
			return true
		}
	}
	return false
}

func isReplaced(t time.Time, overrides []ParsedEvent) bool {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(t) {
			return true
		}
	}
	return false
}

// makeOccurrence converts a (possibly overridden) ParsedEvent and a specific
// start/end into a model.Occurrence. Times keep the event's own zone.
func makeOccurrence(ev ParsedEvent, start, end time.Time) model.Occurrence {
	return model.Occurrence{
		UID:         ev.UID,
		InstanceKey: start.UTC().Format(time.RFC3339Nano),
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       start,
		End:         end,
	}
}
