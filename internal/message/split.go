// Package message splits an event description into a leading header block
// and the remaining body text.
package message

import (
	"regexp"
	"strings"

	appLog "wartungsplan/internal/log"
)

var headerLine = regexp.MustCompile(`^[A-Za-z0-9-]+: .*$`)

// HeaderBlock is an ordered set of header key/value pairs. Keys are
// case-sensitive. A repeated key keeps its first position and its last value.
type HeaderBlock struct {
	keys   []string
	values map[string]string
}

// Get returns the value stored for key.
func (h HeaderBlock) Get(key string) (string, bool) {
	v, ok := h.values[key]
	return v, ok
}

// Keys returns the header keys in the order they first appeared.
func (h HeaderBlock) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

func (h HeaderBlock) Len() int {
	return len(h.keys)
}

func (h *HeaderBlock) set(key, value string) {
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Split separates raw into its header block and body.
//
// Carriage returns are dropped. Leading lines of the form "Key: value" form
// the header block; the first line that does not match (a blank line
// included) and everything after it is body, joined with "\n".
func Split(raw string) (HeaderBlock, string) {
	var headers HeaderBlock
	if raw == "" {
		return headers, ""
	}

	lines := strings.Split(strings.ReplaceAll(raw, "\r", ""), "\n")
	body := make([]string, 0, len(lines))
	inHeaders := true

	for _, line := range lines {
		if inHeaders {
			if strings.Contains(line, "=") {
				appLog.Warn("header line contains '=', likely '=' used instead of ':'", "line", line)
			}
			if headerLine.MatchString(line) {
				key, value, _ := strings.Cut(line, ": ")
				headers.set(key, strings.TrimSpace(value))
				continue
			}
			inHeaders = false
		}
		body = append(body, line)
	}

	return headers, strings.Join(body, "\n")
}
