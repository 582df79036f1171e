package sse

import (
	"strconv"
	"strings"
)

// Event is one record to push down a stream. Name "" (or "message") is
// the default event name and is omitted from the wire form.
type Event struct {
	ID   uint64
	Name string
	Data string
}

// Encode renders an event into its exact wire form: retry (only on
// id == 1), event (only when not "message"), id (only when > 0), one
// data line per input line with CRLF/CR normalized to LF first, and a
// blank-line terminator.
func Encode(ev Event, retryMillis int) []byte {
	var b strings.Builder
	if ev.ID == 1 && retryMillis > 0 {
		b.WriteString("retry: ")
		b.WriteString(strconv.Itoa(retryMillis))
		b.WriteByte('\n')
	}
	if ev.Name != "" && ev.Name != "message" {
		b.WriteString("event: ")
		b.WriteString(ev.Name)
		b.WriteByte('\n')
	}
	if ev.ID > 0 {
		b.WriteString("id: ")
		b.WriteString(strconv.FormatUint(ev.ID, 10))
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(normalizeNewlines(ev.Data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

const closeEventName = "close"

var keepaliveComment = []byte(":keepalive\r\n\r\n")
