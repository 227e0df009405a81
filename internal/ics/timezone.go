package ics

import (
	"fmt"
	"strings"
	"time"
)

// Outlook and Exchange write Windows zone names as TZID. Map the common ones
// to IANA names so time.LoadLocation can resolve them.
var windowsToIANA = map[string]string{
	"Pacific Standard Time":          "America/Los_Angeles",
	"Mountain Standard Time":         "America/Denver",
	"Central Standard Time":          "America/Chicago",
	"Eastern Standard Time":          "America/New_York",
	"Atlantic Standard Time":         "America/Halifax",
	"Alaskan Standard Time":          "America/Anchorage",
	"Hawaiian Standard Time":         "Pacific/Honolulu",
	"UTC":                            "UTC",
	"GMT Standard Time":              "Europe/London",
	"W. Europe Standard Time":        "Europe/Berlin",
	"Central Europe Standard Time":   "Europe/Budapest",
	"Central European Standard Time": "Europe/Warsaw",
	"Romance Standard Time":          "Europe/Paris",
	"E. Europe Standard Time":        "Europe/Chisinau",
	"FLE Standard Time":              "Europe/Kiev",
	"GTB Standard Time":              "Europe/Bucharest",
	"Russian Standard Time":          "Europe/Moscow",
	"SE Asia Standard Time":          "Asia/Bangkok",
	"China Standard Time":            "Asia/Shanghai",
	"Tokyo Standard Time":            "Asia/Tokyo",
	"Korea Standard Time":            "Asia/Seoul",
	"India Standard Time":            "Asia/Kolkata",
	"Singapore Standard Time":        "Asia/Singapore",
	"AUS Eastern Standard Time":      "Australia/Sydney",
}

// loadTZID resolves a TZID parameter value to a location.
func loadTZID(tzid string) (*time.Location, error) {
	name := strings.Trim(strings.TrimSpace(tzid), `"`)
	if name == "" {
		return time.Local, nil
	}
	if iana, ok := windowsToIANA[name]; ok {
		name = iana
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc, nil
	}
	// Some producers prefix the zone with a vendor path,
	// e.g. "/citadel.org/20190914_1/Europe/Berlin".
	if i := strings.Index(name, "/"); i == 0 {
		parts := strings.Split(name, "/")
		if len(parts) >= 2 {
			candidate := strings.Join(parts[len(parts)-2:], "/")
			if loc, err := time.LoadLocation(candidate); err == nil {
				return loc, nil
			}
		}
	}
	return nil, fmt.Errorf("unknown TZID %q", tzid)
}
