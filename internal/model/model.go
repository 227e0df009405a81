package model

import "time"

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion). Occurrences are produced fresh for every
// query and are never mutated afterwards.
type Occurrence struct {
	UID string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, derived from the absolute start time.
	InstanceKey string

	Summary string
	// Description is the raw DESCRIPTION text, possibly multi-line and
	// possibly starting with a header block.
	Description string
	Location    string

	AllDay bool

	// Start / End carry the timezone of the calendar data they came from.
	Start time.Time
	End   time.Time
}
