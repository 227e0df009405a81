package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
calendar:
  calendarfile: /etc/wartungsplan/plan.ics
  timezone: Europe/Berlin
mail:
  sender: plan@example.com
  recipient: ops@example.com
  server: smtp.example.com
  password: hunter2
headers:
  X-Priority: 3 (Normal)
  Reply-To: helpdesk@example.com
  Cc:
otrs:
  server: https://otrs.example.com/
  username: plan
  password: secret
  footer: "-- wartungsplan"
schedule:
  cron: "@daily"
  action: otrs
  window: 48h
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "/etc/wartungsplan/plan.ics", cfg.Calendar.File)
	assert.Equal(t, DefaultMailPort, cfg.Mail.Port)
	assert.Equal(t, "https://otrs.example.com", cfg.OTRS.Server)
	assert.Equal(t, DefaultWebservice, cfg.OTRS.Webservice)
	assert.Equal(t, DefaultQueue, cfg.OTRS.Queue)
	assert.Equal(t, DefaultState, cfg.OTRS.State)
	assert.Equal(t, DefaultPriority, cfg.OTRS.Priority)
	assert.Equal(t, DefaultCustomerUser, cfg.OTRS.CustomerUser)
	assert.Equal(t, "-- wartungsplan", cfg.OTRS.Footer)

	assert.Equal(t, HeaderPolicy{
		{Name: "X-Priority", Default: "3 (Normal)"},
		{Name: "Reply-To", Default: "helpdesk@example.com"},
		{Name: "Cc", Default: ""},
	}, cfg.Headers)
	assert.Equal(t, []string{"X-Priority", "Reply-To", "Cc"}, cfg.Headers.Names())

	require.NoError(t, cfg.RequireCalendar())
	require.NoError(t, cfg.RequireMail())
	require.NoError(t, cfg.RequireOTRS())
	window, err := cfg.RequireSchedule()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, window)
}

func TestParseRejectsNonMappingHeaders(t *testing.T) {
	_, err := Parse([]byte("headers:\n  - X-Priority\n"))
	assert.Error(t, err)
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv(EnvMailPassword, "from-env")
	t.Setenv(EnvOTRSPassword, "otrs-env")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Mail.Password)
	assert.Equal(t, "otrs-env", cfg.OTRS.Password)
}

func TestRequireReportsMissingKeys(t *testing.T) {
	cfg, err := Parse([]byte("mail:\n  sender: a@example.com\n"))
	require.NoError(t, err)

	var cerr *Error
	require.ErrorAs(t, cfg.RequireCalendar(), &cerr)
	assert.Equal(t, "calendar", cerr.Section)
	assert.Equal(t, "calendarfile", cerr.Key)

	require.ErrorAs(t, cfg.RequireMail(), &cerr)
	assert.Equal(t, "mail", cerr.Section)
	assert.Equal(t, "recipient", cerr.Key)

	require.ErrorAs(t, cfg.RequireOTRS(), &cerr)
	assert.Equal(t, "config: otrs.server: missing", cerr.Error())

	_, err = cfg.RequireSchedule()
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "cron", cerr.Key)
}

func TestRequireScheduleValidates(t *testing.T) {
	cfg := &Config{Schedule: ScheduleConfig{Cron: "0 6 * * 1", Action: "fax"}}
	cfg.Normalize()
	_, err := cfg.RequireSchedule()
	assert.ErrorContains(t, err, "unknown action")

	cfg.Schedule.Action = "send"
	cfg.Schedule.Window = "tomorrow"
	_, err = cfg.RequireSchedule()
	assert.ErrorContains(t, err, "schedule.window")

	cfg.Schedule.Window = ""
	cfg.Normalize()
	window, err := cfg.RequireSchedule()
	require.NoError(t, err)
	assert.Equal(t, DefaultWindow, window)
}

func TestMailPortRange(t *testing.T) {
	cfg := &Config{Mail: MailConfig{Sender: "a", Recipient: "b", Server: "c", Password: "d", Port: 70000}}
	assert.ErrorContains(t, cfg.RequireMail(), "out of range")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "plan@example.com", cfg.Mail.Sender)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = Load("")
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	loc, err := Location("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = Location("Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	_, err = Location("Mars/Olympus")
	assert.Error(t, err)
}
