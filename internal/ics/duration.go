package ics

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// icsDuration is an RFC 5545 DURATION value. Days and weeks are nominal
// (calendar days) and are kept apart from the exact time part.
type icsDuration struct {
	days  int
	exact time.Duration
}

var durationRe = regexp.MustCompile(`^([+-])?P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

func parseDuration(v string) (icsDuration, error) {
	m := durationRe.FindStringSubmatch(v)
	if m == nil || v == "P" || v == "PT" {
		return icsDuration{}, fmt.Errorf("invalid duration %q", v)
	}
	num := func(s string) int {
		if s == "" {
			return 0
		}
		n, _ := strconv.Atoi(s)
		return n
	}

	d := icsDuration{
		days: num(m[2])*7 + num(m[3]),
		exact: time.Duration(num(m[4]))*time.Hour +
			time.Duration(num(m[5]))*time.Minute +
			time.Duration(num(m[6]))*time.Second,
	}
	if m[1] == "-" {
		d.days = -d.days
		d.exact = -d.exact
	}
	return d, nil
}

func (d icsDuration) addTo(t time.Time) time.Time {
	return t.AddDate(0, 0, d.days).Add(d.exact)
}
