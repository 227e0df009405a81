package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "/etc/wartungsplan/config.yaml"

// Environment variables that override secrets from the config file.
const (
	EnvMailPassword = "WARTUNGSPLAN_MAIL_PASSWORD"
	EnvOTRSPassword = "WARTUNGSPLAN_OTRS_PASSWORD"
)

// Defaults applied by Normalize.
const (
	DefaultMailPort     = 465
	DefaultWebservice   = "GenericTicketConnectorREST"
	DefaultQueue        = "Queueebene1::Queueebene2"
	DefaultState        = "New"
	DefaultPriority     = "1 very low"
	DefaultCustomerUser = "root@localhost"
	DefaultWindow       = 24 * time.Hour
	DefaultAction       = "list"
)

// CalendarConfig describes where the maintenance calendar lives.
type CalendarConfig struct {
	// File is a local path or an http(s) URL.
	File string `yaml:"calendarfile"`
	// CacheDir holds ETag metadata and the last body of URL calendars.
	CacheDir string `yaml:"cache_dir"`
	// Timezone is the IANA zone window arguments are read in. Empty means
	// the local zone.
	Timezone string `yaml:"timezone"`
}

// MailConfig holds the SMTP-over-TLS account used by the send action.
type MailConfig struct {
	Sender    string `yaml:"sender"`
	Recipient string `yaml:"recipient"`
	Server    string `yaml:"server"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
}

// OTRSConfig holds the ticket system endpoint and ticket defaults.
type OTRSConfig struct {
	Server       string `yaml:"server"`
	Webservice   string `yaml:"webservice"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Queue        string `yaml:"queue"`
	State        string `yaml:"state"`
	Priority     string `yaml:"priority"`
	CustomerUser string `yaml:"customer_user"`
	Footer       string `yaml:"footer"`
}

// ScheduleConfig drives the daemon subcommand.
type ScheduleConfig struct {
	// Cron is a 5-field cron expression or a descriptor like "@daily".
	Cron string `yaml:"cron"`
	// Action is one of list, send or otrs.
	Action string `yaml:"action"`
	// Window is the length of the period handled per tick, as a Go duration.
	Window string `yaml:"window"`
	// Timezone is the IANA zone the cron expression is evaluated in.
	Timezone string `yaml:"timezone"`
}

// Config is the top-level application configuration.
type Config struct {
	Calendar CalendarConfig `yaml:"calendar"`
	Mail     MailConfig     `yaml:"mail"`
	// Headers is the allow-list of headers an event description may set,
	// each with its default value.
	Headers  HeaderPolicy   `yaml:"headers"`
	OTRS     OTRSConfig     `yaml:"otrs"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// Error reports a missing or invalid configuration value.
type Error struct {
	Section string
	Key     string
	Reason  string
}

func (e *Error) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing"
	}
	if e.Key == "" {
		return fmt.Sprintf("config: section [%s]: %s", e.Section, reason)
	}
	return fmt.Sprintf("config: %s.%s: %s", e.Section, e.Key, reason)
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	c.Calendar.File = strings.TrimSpace(c.Calendar.File)
	if c.Mail.Port == 0 {
		c.Mail.Port = DefaultMailPort
	}

	if c.OTRS.Webservice == "" {
		c.OTRS.Webservice = DefaultWebservice
	}
	if c.OTRS.Queue == "" {
		c.OTRS.Queue = DefaultQueue
	}
	if c.OTRS.State == "" {
		c.OTRS.State = DefaultState
	}
	if c.OTRS.Priority == "" {
		c.OTRS.Priority = DefaultPriority
	}
	if c.OTRS.CustomerUser == "" {
		c.OTRS.CustomerUser = DefaultCustomerUser
	}
	c.OTRS.Server = strings.TrimRight(c.OTRS.Server, "/")

	if c.Schedule.Action == "" {
		c.Schedule.Action = DefaultAction
	}
	if c.Schedule.Window == "" {
		c.Schedule.Window = DefaultWindow.String()
	}
}

// ApplyEnv overrides secrets with values from the environment, if set.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvMailPassword); ok {
		c.Mail.Password = v
	}
	if v, ok := os.LookupEnv(EnvOTRSPassword); ok {
		c.OTRS.Password = v
	}
}

// Load reads the YAML configuration at path, applies environment overrides
// and normalizes defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ApplyEnv()
	cfg.Normalize()
	return &cfg, nil
}

// RequireCalendar checks that a calendar location is configured.
func (c *Config) RequireCalendar() error {
	if c.Calendar.File == "" {
		return &Error{Section: "calendar", Key: "calendarfile"}
	}
	return nil
}

// RequireMail checks the keys the send action needs.
func (c *Config) RequireMail() error {
	required := []struct {
		key, value string
	}{
		{"sender", c.Mail.Sender},
		{"recipient", c.Mail.Recipient},
		{"server", c.Mail.Server},
		{"password", c.Mail.Password},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &Error{Section: "mail", Key: r.key}
		}
	}
	if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
		return &Error{Section: "mail", Key: "port", Reason: "out of range: " + strconv.Itoa(c.Mail.Port)}
	}
	return nil
}

// RequireOTRS checks the keys the otrs action needs.
func (c *Config) RequireOTRS() error {
	required := []struct {
		key, value string
	}{
		{"server", c.OTRS.Server},
		{"username", c.OTRS.Username},
		{"password", c.OTRS.Password},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &Error{Section: "otrs", Key: r.key}
		}
	}
	return nil
}

// RequireSchedule checks the daemon settings and returns the parsed window.
func (c *Config) RequireSchedule() (time.Duration, error) {
	if strings.TrimSpace(c.Schedule.Cron) == "" {
		return 0, &Error{Section: "schedule", Key: "cron"}
	}
	switch c.Schedule.Action {
	case "list", "send", "otrs":
	default:
		return 0, &Error{Section: "schedule", Key: "action", Reason: fmt.Sprintf("unknown action %q", c.Schedule.Action)}
	}
	window, err := time.ParseDuration(c.Schedule.Window)
	if err != nil || window <= 0 {
		return 0, &Error{Section: "schedule", Key: "window", Reason: fmt.Sprintf("invalid duration %q", c.Schedule.Window)}
	}
	return window, nil
}

// Location resolves an IANA zone name; empty means time.Local.
func Location(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", name, err)
	}
	return loc, nil
}
