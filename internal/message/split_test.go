package message

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "wartungsplan/internal/log"
)

func TestSplitHeadersAndBody(t *testing.T) {
	h, body := Split("X-Priority: 1 (Highest)\nX-INVALID: yes\n\nKind creature,\nplease reboot.")

	require.Equal(t, 2, h.Len())
	assert.Equal(t, []string{"X-Priority", "X-INVALID"}, h.Keys())
	v, ok := h.Get("X-Priority")
	assert.True(t, ok)
	assert.Equal(t, "1 (Highest)", v)
	assert.Equal(t, "\nKind creature,\nplease reboot.", body)
}

func TestSplitEmpty(t *testing.T) {
	h, body := Split("")
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, body)
}

func TestSplitWithoutHeaders(t *testing.T) {
	raw := "Reboot the backup server.\nX-Priority: 1 (Highest)"
	h, body := Split(raw)
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, raw, body)
}

func TestSplitHeaderModeIsMonotonic(t *testing.T) {
	h, body := Split("To: ops@example.com\nplain text\nX-Priority: 1 (Highest)")

	assert.Equal(t, []string{"To"}, h.Keys())
	_, ok := h.Get("X-Priority")
	assert.False(t, ok)
	assert.Equal(t, "plain text\nX-Priority: 1 (Highest)", body)
}

func TestSplitStripsCarriageReturns(t *testing.T) {
	h, body := Split("Queue: Ops\r\n\r\nline one\r\nline two\r\n")

	v, _ := h.Get("Queue")
	assert.Equal(t, "Ops", v)
	assert.Equal(t, "\nline one\nline two\n", body)
}

func TestSplitDuplicateKeyLastWins(t *testing.T) {
	h, _ := Split("X-Priority: 3\nQueue: A\nX-Priority: 1\n\nbody")

	assert.Equal(t, []string{"X-Priority", "Queue"}, h.Keys())
	v, _ := h.Get("X-Priority")
	assert.Equal(t, "1", v)
}

func TestSplitKeysAreCaseSensitive(t *testing.T) {
	h, _ := Split("queue: a\nQueue: b")
	assert.Equal(t, 2, h.Len())
	v, _ := h.Get("queue")
	assert.Equal(t, "a", v)
}

func TestSplitWarnsOnEqualsSign(t *testing.T) {
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	appLog.SetLevel(appLog.LevelWarn)
	t.Cleanup(func() {
		appLog.SetLevel(appLog.LevelError)
		appLog.SetOutput(os.Stderr)
	})

	h, body := Split("X-Priority=1\nsome=thing later")

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, "X-Priority=1\nsome=thing later", body)
	// Only the line that closed header mode is reported.
	assert.Equal(t, 1, strings.Count(buf.String(), "likely '=' used instead of ':'"))
}
