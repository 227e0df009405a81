// Command addevent appends an event to an ics file, creating the file if
// needed. The event description is read from stdin.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"wartungsplan/internal/ics"
	appLog "wartungsplan/internal/log"
)

type flagConfig struct {
	calendarFile string
	startDate    string
	endDate      string
	rrule        string
	startTime    string
	endTime      string
	duration     string
	title        string
	verbose      bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, time.Now()))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, now time.Time) int {
	flags, err := parseFlags(args, stderr, now)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "addevent: %v\n", err)
		return 2
	}
	if flags.verbose {
		appLog.SetLevel(appLog.LevelInfo)
	}

	description, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "addevent: read description: %v\n", err)
		return 1
	}

	start, end, err := ics.EventTimes(flags.startDate, flags.endDate, flags.startTime, flags.endTime, flags.duration, time.Local)
	if err != nil {
		fmt.Fprintf(stderr, "addevent: %v\n", err)
		return 1
	}

	uid, err := ics.AddEvent(flags.calendarFile, ics.NewEvent{
		Title:       flags.title,
		Description: strings.TrimSpace(string(description)),
		Start:       start,
		End:         end,
		RRule:       flags.rrule,
	})
	if err != nil {
		appLog.Error("add event failed", err, "path", flags.calendarFile)
		fmt.Fprintf(stderr, "addevent: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, uid)
	return 0
}

func parseFlags(args []string, stderr io.Writer, now time.Time) (flagConfig, error) {
	var cfg flagConfig

	fs := flag.NewFlagSet("addevent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: addevent CALENDAR_FILE --title TITLE [flags] < description\n")
		fs.PrintDefaults()
	}

	fs.StringVar(&cfg.startDate, "start-date", now.Format("2006-01-02"), "Start date in YYYY-MM-DD format. Default is today")
	fs.StringVar(&cfg.endDate, "end-date", "", "End date in YYYY-MM-DD format. Default is the start date")
	fs.StringVar(&cfg.rrule, "rrule", "RRULE:FREQ=DAILY", "Interval according to RFC 5545, e.g. RRULE:FREQ=DAILY")
	fs.StringVar(&cfg.startTime, "start-time", "09:00", "Start time in HH:MM format")
	fs.StringVar(&cfg.endTime, "end-time", "10:00", "End time in HH:MM format")
	fs.StringVar(&cfg.duration, "duration", "", "H:MM format. If set replaces --end-time")
	fs.StringVar(&cfg.title, "title", "", "Event title (required)")
	fs.BoolVar(&cfg.verbose, "v", false, "Log what is written")

	// The calendar file may come before or after the flags.
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	rest := fs.Args()
	if len(rest) > 0 {
		cfg.calendarFile = rest[0]
		if err := fs.Parse(rest[1:]); err != nil {
			return cfg, err
		}
		if fs.NArg() > 0 {
			return cfg, fmt.Errorf("unexpected argument %q", fs.Arg(0))
		}
	}

	if cfg.calendarFile == "" {
		fs.Usage()
		return cfg, errors.New("missing CALENDAR_FILE")
	}
	if strings.TrimSpace(cfg.title) == "" {
		return cfg, errors.New("--title is required")
	}
	return cfg, nil
}
