// Package daemon runs a job on a cron schedule until its context ends.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	appLog "wartungsplan/internal/log"
)

// Job is called once per tick with the scheduled time.
type Job func(ctx context.Context, tick time.Time) error

// Config selects when the job runs.
type Config struct {
	// Spec is a 5-field cron expression or a descriptor like "@daily".
	Spec string
	// Location is the zone Spec is evaluated in. Nil means time.Local.
	Location *time.Location
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate parses spec without scheduling anything.
func Validate(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return errors.New("daemon: empty cron spec")
	}
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("daemon: cron spec %q: %w", spec, err)
	}
	return nil
}

// Run schedules job and blocks until ctx is done. A tick that fires while
// the previous job is still running is skipped. Job errors are logged and
// do not stop the daemon.
func Run(ctx context.Context, cfg Config, job Job) error {
	if job == nil {
		return errors.New("daemon: nil job")
	}
	if err := Validate(cfg.Spec); err != nil {
		return err
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := c.AddFunc(cfg.Spec, func() {
		tick := time.Now().In(loc)
		appLog.Info("scheduled run start", "tick", tick.Format(time.RFC3339))
		if err := job(ctx, tick); err != nil {
			appLog.Error("scheduled run failed", err, "tick", tick.Format(time.RFC3339))
			return
		}
		appLog.Info("scheduled run done", "tick", tick.Format(time.RFC3339))
	})
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}

	c.Start()
	appLog.Info("daemon started", "cron", cfg.Spec, "tz", loc.String())

	<-ctx.Done()

	// Stop prevents new ticks; its context is done once a running job
	// returned.
	<-c.Stop().Done()
	appLog.Info("daemon stopped")
	return nil
}
