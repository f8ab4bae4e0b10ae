// Package schedule holds the date rules shared by meetups and subscriptions.
package schedule

import "time"

// Clock returns the current time. Services take a Clock so tests can pin "now".
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// Normalize converts a meetup date to its stored form: UTC, second precision.
// Two meetups "share a date" when their normalized dates are equal.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// IsPast reports whether a meetup dated at date has already happened.
// A meetup is past when its date is at or before now.
func IsPast(date, now time.Time) bool {
	return !date.After(now)
}

// InPast reports whether date lies strictly before now.
// Meetups may be scheduled for "now" but not earlier. Pass unnormalized
// times: truncating first accepts dates up to a second in the past.
func InPast(date, now time.Time) bool {
	return date.Before(now)
}

// SameSlot reports whether two meetup dates conflict for one subscriber.
// Only exact date-time equality conflicts; the same calendar day does not.
func SameSlot(a, b time.Time) bool {
	return Normalize(a).Equal(Normalize(b))
}

// dateLayouts are the accepted client date formats. Layouts without a zone
// are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses a client-supplied meetup date.
func ParseDate(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
