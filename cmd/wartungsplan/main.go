package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wartungsplan/internal/backend"
	"wartungsplan/internal/config"
	"wartungsplan/internal/daemon"
	"wartungsplan/internal/ics"
	appLog "wartungsplan/internal/log"
	"wartungsplan/internal/plan"
)

const version = "1.1.0"

var actions = []string{"version", "list", "send", "otrs", "daemon"}

// errUsage marks command line mistakes; they exit with status 2.
var errUsage = errors.New("usage")

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	calendar   string
	verbose    int
	dryRun     bool
	logfile    string
	startDate  string
	endDate    string
	action     string
}

// verbosity counts repeated -v flags.
type verbosity struct {
	n    *int
	step int
}

func (v verbosity) String() string {
	if v.n == nil {
		return "0"
	}
	return strconv.Itoa(*v.n)
}

func (v verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v.n += v.step
	}
	return nil
}

func (v verbosity) IsBoolFlag() bool { return true }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "wartungsplan: %v\n", err)
		return 2
	}

	if flags.action == "version" {
		fmt.Fprintln(stdout, "Wartungsplan", version)
		return 0
	}

	if flags.logfile != "" {
		f, err := os.OpenFile(flags.logfile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(stderr, "wartungsplan: logfile: %v\n", err)
			return 1
		}
		defer f.Close()
		appLog.SetOutput(f)
	}
	appLog.SetLevel(appLog.LevelFromVerbosity(flags.verbose))
	appLog.Debug("wartungsplan starting", "version", version, "action", flags.action)
	appLog.Info("time", "utc", time.Now().UTC().Format(time.RFC3339), "local", time.Now().Format(time.RFC3339))

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := execute(ctx, flags, stdout); err != nil {
		appLog.Error("wartungsplan failed", err, "action", flags.action)
		fmt.Fprintf(stderr, "wartungsplan: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (flagConfig, error) {
	var cfg flagConfig

	fs := flag.NewFlagSet("wartungsplan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: wartungsplan [flags] {version|list|send|otrs|daemon}\n")
		fs.PrintDefaults()
	}

	for _, name := range []string{"config", "c"} {
		fs.StringVar(&cfg.configPath, name, config.DefaultPath, "Path to config file")
	}
	for _, name := range []string{"ics-calendar", "i"} {
		fs.StringVar(&cfg.calendar, name, "", "Path or URL of the ics calendar (overrides config)")
	}
	for _, name := range []string{"verbose", "v"} {
		fs.Var(verbosity{n: &cfg.verbose, step: 1}, name, "More v's more text (repeatable)")
	}
	fs.Var(verbosity{n: &cfg.verbose, step: 2}, "vv", "Same as -v -v")
	for _, name := range []string{"dry-run", "d"} {
		fs.BoolVar(&cfg.dryRun, name, false, "Don't perform any action")
	}
	for _, name := range []string{"logfile", "w"} {
		fs.StringVar(&cfg.logfile, name, "", "Append log to file")
	}
	for _, name := range []string{"start-date", "s"} {
		fs.StringVar(&cfg.startDate, name, "", "Start date e.g. 2023-05-02. Default is now")
	}
	for _, name := range []string{"end-date", "e"} {
		fs.StringVar(&cfg.endDate, name, "", "End date e.g. 2023-05-03. Default is start date + 1 day")
	}

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return cfg, fmt.Errorf("%w: missing action", errUsage)
	}
	cfg.action = fs.Arg(0)
	// Flags may also follow the action.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}

	for _, a := range actions {
		if a == cfg.action {
			return cfg, nil
		}
	}
	return cfg, fmt.Errorf("%w: unknown action %q (choose from %v)", errUsage, cfg.action, actions)
}

func execute(ctx context.Context, flags flagConfig, stdout io.Writer) error {
	// Secrets may live in a .env file next to the working directory.
	_ = godotenv.Load()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.calendar != "" {
		conf.Calendar.File = flags.calendar
	}
	if err := conf.RequireCalendar(); err != nil {
		return err
	}

	appLog.Info("effective config",
		"config_path", flags.configPath,
		"calendar", conf.Calendar.File,
		"headers", conf.Headers.Names(),
		"dry_run", flags.dryRun,
	)

	mode := backend.Live
	if flags.dryRun {
		mode = backend.DryRun
	}
	loader := ics.NewLoader(conf.Calendar.CacheDir)

	if flags.action == "daemon" {
		return runDaemon(ctx, conf, loader, mode, stdout)
	}

	loc, err := config.Location(conf.Calendar.Timezone)
	if err != nil {
		return err
	}
	runner, err := newRunner(flags.action, conf, mode, stdout)
	if err != nil {
		return err
	}
	start, end, err := plan.ResolveWindow(flags.startDate, flags.endDate, time.Now(), loc)
	if err != nil {
		return err
	}
	return runOnce(ctx, loader, conf.Calendar.File, start, end, runner)
}

// newRunner builds the backend for action. Configuration is checked here,
// before the calendar is read.
func newRunner(action string, conf *config.Config, mode backend.RunMode, stdout io.Writer) (backend.Runner, error) {
	switch action {
	case "list":
		return backend.Bind[backend.Record](backend.NewList(stdout)), nil
	case "send":
		if err := conf.RequireMail(); err != nil {
			return nil, err
		}
		b := backend.NewEmail(conf.Mail, conf.Headers, mode)
		b.Console = stdout
		return backend.Bind[backend.Email](b), nil
	case "otrs":
		if err := conf.RequireOTRS(); err != nil {
			return nil, err
		}
		b, err := backend.NewTicket(conf.OTRS, conf.Headers, mode)
		if err != nil {
			return nil, fmt.Errorf("otrs: %w", err)
		}
		return backend.Bind[backend.TicketRequest](b), nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", errUsage, action)
	}
}

func runOnce(ctx context.Context, loader *ics.Loader, location string, start, end time.Time, runner backend.Runner) error {
	cal, err := loader.Load(ctx, location)
	if err != nil {
		return err
	}
	p, err := plan.New(cal, start, end)
	if err != nil {
		return err
	}
	return p.Run(ctx, runner)
}

func runDaemon(ctx context.Context, conf *config.Config, loader *ics.Loader, mode backend.RunMode, stdout io.Writer) error {
	window, err := conf.RequireSchedule()
	if err != nil {
		return err
	}
	loc, err := config.Location(conf.Schedule.Timezone)
	if err != nil {
		return err
	}
	// Fail before the first tick, not at it.
	if _, err := newRunner(conf.Schedule.Action, conf, mode, stdout); err != nil {
		return err
	}

	return daemon.Run(ctx, daemon.Config{Spec: conf.Schedule.Cron, Location: loc}, func(ctx context.Context, tick time.Time) error {
		runner, err := newRunner(conf.Schedule.Action, conf, mode, stdout)
		if err != nil {
			return err
		}
		return runOnce(ctx, loader, conf.Calendar.File, tick, tick.Add(window), runner)
	})
}
