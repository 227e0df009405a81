package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "wartungsplan/internal/log"
)

const productID = "-//wartungsplan//addevent//EN"

// NewEvent describes a VEVENT to append to a calendar file.
type NewEvent struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	// RRule is a raw rule such as "FREQ=WEEKLY;BYDAY=MO". Empty means a
	// single event.
	RRule string
}

// EventTimes combines the date and clock flags of the addevent tool into
// absolute start and end times in loc.
//
// startDate and endDate use YYYY-MM-DD, startTime/endTime HH:MM and duration
// H:MM. A non-empty duration replaces endTime. An empty endDate means the
// event ends on its start date.
func EventTimes(startDate, endDate, startTime, endTime, duration string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation("2006-01-02", startDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start date: %w", err)
	}
	clock, err := time.Parse("15:04", startTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start time: %w", err)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)

	if duration != "" {
		d, err := parseClockDuration(duration)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start, start.Add(d), nil
	}

	endDay := day
	if endDate != "" {
		endDay, err = time.ParseInLocation("2006-01-02", endDate, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end date: %w", err)
		}
	}
	endClock, err := time.Parse("15:04", endTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end time: %w", err)
	}
	end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), endClock.Hour(), endClock.Minute(), 0, 0, loc)
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("event ends before it starts")
	}
	return start, end, nil
}

func parseClockDuration(v string) (time.Duration, error) {
	h, m, ok := strings.Cut(v, ":")
	if !ok {
		return 0, fmt.Errorf("duration %q: expected H:MM", v)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", v, err)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", v, err)
	}
	if hours < 0 || minutes < 0 {
		return 0, fmt.Errorf("duration %q: negative", v)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

// AddEvent appends ev to the calendar file at path, creating the file if it
// does not exist. It returns the UID of the new event.
func AddEvent(path string, ev NewEvent) (string, error) {
	if path == "" {
		return "", errors.New("calendar path is empty")
	}
	if strings.TrimSpace(ev.Title) == "" {
		return "", errors.New("event title is empty")
	}

	rule, err := NormalizeRRule(ev.RRule)
	if err != nil {
		return "", err
	}

	cal, err := loadOrCreate(path)
	if err != nil {
		return "", err
	}

	uid := uuid.NewString()
	e := cal.AddEvent(uid)
	e.SetDtStampTime(time.Now())
	e.SetSummary(ev.Title)
	setEventTime(e, ical.ComponentPropertyDtStart, ev.Start)
	if !ev.End.IsZero() {
		setEventTime(e, ical.ComponentPropertyDtEnd, ev.End)
	}
	if ev.Description != "" {
		e.SetDescription(ev.Description)
	}
	if rule != "" {
		e.AddRrule(rule)
	}

	if err := writeFileAtomic(path, []byte(cal.Serialize())); err != nil {
		return "", err
	}
	appLog.Info("event added", "path", path, "uid", uid, "summary", ev.Title, "rrule", rule)
	return uid, nil
}

// setEventTime writes t as wall-clock time in its own zone so that a
// recurring event keeps its local hour across DST changes. time.Local is
// written as a floating time.
func setEventTime(e *ical.VEvent, prop ical.ComponentProperty, t time.Time) {
	const wall = "20060102T150405"
	loc := t.Location()
	switch {
	case loc == time.Local:
		e.SetProperty(prop, t.Format(wall))
	case loc == time.UTC || !isIANAZone(loc):
		e.SetProperty(prop, t.UTC().Format(wall+"Z"))
	default:
		e.SetProperty(prop, t.Format(wall), ical.WithTZID(loc.String()))
	}
}

// isIANAZone reports whether loc can be written as a TZID. Fixed zones
// have no name a reader could resolve.
func isIANAZone(loc *time.Location) bool {
	_, err := time.LoadLocation(loc.String())
	return err == nil && loc.String() != "UTC"
}

func loadOrCreate(path string) (*ical.Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cal := ical.NewCalendar()
			cal.SetProductId(productID)
			return cal, nil
		}
		return nil, err
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cal, nil
}

// writeFileAtomic writes via a temp file in the same directory and renames
// it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".wartungsplan-*.ics.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
