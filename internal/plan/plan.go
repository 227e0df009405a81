// Package plan resolves the maintenance window and drives a backend with
// the occurrences that fall into it.
package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"wartungsplan/internal/backend"
	"wartungsplan/internal/ics"
	appLog "wartungsplan/internal/log"
	"wartungsplan/internal/model"
)

// WindowError reports an unusable window argument.
type WindowError struct {
	Arg string
	Err error
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("window: %s: %v", e.Arg, e.Err)
}

func (e *WindowError) Unwrap() error { return e.Err }

// ResolveWindow turns the optional start and end arguments into absolute
// instants. An empty start means now, an empty end one day after start.
// Arguments without a zone are read in loc.
func ResolveWindow(startArg, endArg string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	start := now.In(loc)
	if s := strings.TrimSpace(startArg); s != "" {
		t, err := dateparse.ParseIn(s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, &WindowError{Arg: "start date", Err: err}
		}
		start = t
	}

	end := start.AddDate(0, 0, 1)
	if s := strings.TrimSpace(endArg); s != "" {
		t, err := dateparse.ParseIn(s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, &WindowError{Arg: "end date", Err: err}
		}
		end = t
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, &WindowError{
			Arg: "end date",
			Err: fmt.Errorf("%s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339)),
		}
	}
	return start, end, nil
}

// Query returns the occurrences of cal starting in [start, end), ordered by
// start time.
func Query(cal *ics.Calendar, start, end time.Time) ([]model.Occurrence, error) {
	return cal.Between(start, end)
}

// Plan is one maintenance run: a calendar, a window and the occurrences in
// it.
type Plan struct {
	Start  time.Time
	End    time.Time
	Events []model.Occurrence
}

// New expands cal over [start, end).
func New(cal *ics.Calendar, start, end time.Time) (*Plan, error) {
	occs, err := Query(cal, start, end)
	if err != nil {
		return nil, err
	}
	return &Plan{Start: start, End: end, Events: occs}, nil
}

// Run hands all occurrences to r as one batch. An empty plan still runs r
// with an empty batch.
func (p *Plan) Run(ctx context.Context, r backend.Runner) error {
	appLog.Info("running plan",
		"start", p.Start.Format(time.RFC3339),
		"end", p.End.Format(time.RFC3339),
		"events", len(p.Events),
	)
	if len(p.Events) == 0 {
		appLog.Info("no events in the given period")
	}
	return r.Run(ctx, p.Events)
}
