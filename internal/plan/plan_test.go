package plan

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wartungsplan/internal/backend"
	"wartungsplan/internal/ics"
	appLog "wartungsplan/internal/log"
	"wartungsplan/internal/model"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func TestResolveWindowDefaults(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2023, 9, 25, 8, 30, 0, 0, time.UTC)

	start, end, err := ResolveWindow("", "", now, loc)
	require.NoError(t, err)
	assert.True(t, start.Equal(now))
	assert.True(t, end.Equal(now.Add(24*time.Hour)))
	assert.Equal(t, loc, start.Location())
}

func TestResolveWindowDefaultEndAcrossDST(t *testing.T) {
	loc := berlin(t)

	// 2023-10-29 has 25 hours in Berlin.
	start, end, err := ResolveWindow("2023-10-29", "", time.Now(), loc)
	require.NoError(t, err)
	assert.True(t, time.Date(2023, 10, 29, 0, 0, 0, 0, loc).Equal(start))
	assert.True(t, time.Date(2023, 10, 30, 0, 0, 0, 0, loc).Equal(end))
	assert.Equal(t, 25*time.Hour, end.Sub(start))
}

func TestResolveWindowParsesFlexibleFormats(t *testing.T) {
	loc := berlin(t)
	cases := []struct {
		arg  string
		want time.Time
	}{
		{"2023-05-02", time.Date(2023, 5, 2, 0, 0, 0, 0, loc)},
		{"2023/05/02 10:00", time.Date(2023, 5, 2, 10, 0, 0, 0, loc)},
		{"2023-05-02T10:00:00Z", time.Date(2023, 5, 2, 10, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.arg, func(t *testing.T) {
			start, _, err := ResolveWindow(tc.arg, "", time.Now(), loc)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(start), "got %s", start)
		})
	}
}

func TestResolveWindowErrors(t *testing.T) {
	loc := berlin(t)

	_, _, err := ResolveWindow("2023-09-26", "2023-09-25", time.Now(), loc)
	var werr *WindowError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "end date", werr.Arg)

	_, _, err = ResolveWindow("next tuesday-ish", "", time.Now(), loc)
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "start date", werr.Arg)

	start, end, err := ResolveWindow("2023-09-25", "2023-09-25", time.Now(), loc)
	require.NoError(t, err)
	assert.Equal(t, start, end)
}

const calendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:daily-1\r\n" +
	"SUMMARY:Daily check\r\n" +
	"DESCRIPTION:X-Priority: 1\\n\\nLook at the dashboards.\r\n" +
	"DTSTART;TZID=Europe/Berlin:20230925T090000\r\n" +
	"DTEND;TZID=Europe/Berlin:20230925T091500\r\n" +
	"RRULE:FREQ=DAILY\r\n" +
	"EXDATE;TZID=Europe/Berlin:20230926T090000\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type recordingRunner struct {
	batches [][]model.Occurrence
}

func (r *recordingRunner) Run(_ context.Context, occs []model.Occurrence) error {
	r.batches = append(r.batches, occs)
	return nil
}

func TestPlanRun(t *testing.T) {
	loc := berlin(t)
	cal, err := ics.ParseICS([]byte(calendar))
	require.NoError(t, err)

	cases := []struct {
		start, end string
		want       int
	}{
		{"2023-09-25", "", 1},
		{"2023-09-26", "", 0},
		{"2023-09-25", "2023-10-02", 6},
		{"2023-09-30", "2023-09-30 09:00", 0},
	}
	for _, tc := range cases {
		t.Run(tc.start+"_"+tc.end, func(t *testing.T) {
			start, end, err := ResolveWindow(tc.start, tc.end, time.Now(), loc)
			require.NoError(t, err)
			p, err := New(cal, start, end)
			require.NoError(t, err)

			r := &recordingRunner{}
			require.NoError(t, p.Run(context.Background(), r))
			require.Len(t, r.batches, 1)
			assert.Len(t, r.batches[0], tc.want)
		})
	}
}

func TestPlanRunLogsEmptyWindow(t *testing.T) {
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	appLog.SetLevel(appLog.LevelInfo)
	t.Cleanup(func() {
		appLog.SetLevel(appLog.LevelError)
		appLog.SetOutput(os.Stderr)
	})

	p := &Plan{Start: time.Now(), End: time.Now().Add(time.Hour)}
	var out bytes.Buffer
	require.NoError(t, p.Run(context.Background(), backend.Bind[backend.Record](backend.NewList(&out))))

	assert.Contains(t, buf.String(), "no events in the given period")
	assert.Empty(t, out.String())
}

func TestPlanWithListBackend(t *testing.T) {
	loc := berlin(t)
	cal, err := ics.ParseICS([]byte(calendar))
	require.NoError(t, err)

	p, err := New(cal, time.Date(2023, 9, 27, 0, 0, 0, 0, loc), time.Date(2023, 9, 29, 0, 0, 0, 0, loc))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, p.Run(context.Background(), backend.Bind[backend.Record](backend.NewList(&out))))

	assert.Equal(t, 2, strings.Count(out.String(), "Daily check\n"))
	assert.Contains(t, out.String(), "2023-09-27 09:00:00+02:00\n2023-09-27 09:15:00+02:00\n")
}
