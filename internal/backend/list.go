package backend

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"wartungsplan/internal/message"
	"wartungsplan/internal/model"
)

const (
	recordSeparator  = "-------------------------"
	recordTimeFormat = "2006-01-02 15:04:05-07:00"
)

// Record is one formatted occurrence of the list backend.
type Record string

// List prints occurrences to a writer, usually stdout.
type List struct {
	out io.Writer
}

func NewList(out io.Writer) *List {
	return &List{out: out}
}

// Prepare formats summary, raw description, start and end, one per line,
// followed by a separator line.
func (l *List) Prepare(_ message.HeaderBlock, _ string, occ model.Occurrence) (Record, error) {
	lines := []string{
		occ.Summary,
		occ.Description,
		formatRecordTime(occ, occ.Start),
		formatRecordTime(occ, occ.End),
		recordSeparator,
	}
	return Record(strings.Join(lines, "\n")), nil
}

func (l *List) ApplyHeaders(_ message.HeaderBlock, _ model.Occurrence, pre Record) Record {
	return pre
}

func (l *List) Perform(_ context.Context, records []Record) error {
	for _, r := range records {
		if _, err := fmt.Fprintln(l.out, r); err != nil {
			return err
		}
	}
	return nil
}

func formatRecordTime(occ model.Occurrence, t time.Time) string {
	if occ.AllDay {
		return t.Format("2006-01-02")
	}
	return t.Format(recordTimeFormat)
}
