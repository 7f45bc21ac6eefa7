// Package timeutil holds the time conventions shared across the bridge:
// everything internal is unix epoch seconds, while the upstream API speaks
// minute-precision UTC strings.
package timeutil

import (
	"fmt"
	"time"
)

// apiTimeLayout is the minute-precision format the upstream expects in
// from_date/to_date payloads. Always UTC.
const apiTimeLayout = "2006-01-02 15:04"

// sampleTimeLayouts are the shapes observed in upstream sample Time fields.
// Zone-less strings are interpreted as UTC.
var sampleTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	apiTimeLayout,
}

// APITimeString renders an epoch-seconds timestamp as a minute-precision
// UTC string for the upstream query window.
func APITimeString(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(apiTimeLayout)
}

// ParseAPITime is the inverse of APITimeString.
func ParseAPITime(s string) (int64, error) {
	t, err := time.ParseInLocation(apiTimeLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse api time %q: %w", s, err)
	}
	return t.Unix(), nil
}

// ParseSampleTime converts an ISO-ish timestamp from an upstream sample into
// epoch seconds, accepting the handful of layouts the API emits.
func ParseSampleTime(s string) (int64, error) {
	for _, layout := range sampleTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized sample time %q", s)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
