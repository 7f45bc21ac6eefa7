// Package upstream is the client for the SDG device-data API, the REST
// service the bridge polls for raw logger samples.
package upstream

import (
	"encoding/json"
	"fmt"
)

// Well-known sample fields. Everything else numeric is a channel value
// keyed by channel tag.
const (
	fieldTime           = "Time"
	fieldBatteryVoltage = "Battery Voltage"
	fieldSignalStrength = "signalStrength"
)

// Sample is one upstream measurement frame: a timestamp, per-tag channel
// values, and optional battery and signal readings.
type Sample struct {
	Time           string
	Values         map[string]float64
	Battery        *float64
	SignalStrength *float64
}

// Value returns the reading for a channel tag.
func (s *Sample) Value(tag string) (float64, bool) {
	v, ok := s.Values[tag]
	return v, ok
}

// UnmarshalJSON splits the upstream's flat object into the timestamp, the
// battery/signal extras, and the remaining numeric tag values. Non-numeric
// extras are ignored.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Values = make(map[string]float64, len(raw))
	for key, val := range raw {
		switch key {
		case fieldTime:
			if err := json.Unmarshal(val, &s.Time); err != nil {
				return fmt.Errorf("sample Time: %w", err)
			}
		case fieldBatteryVoltage:
			var v float64
			if err := json.Unmarshal(val, &v); err == nil {
				s.Battery = &v
			}
		case fieldSignalStrength:
			var v float64
			if err := json.Unmarshal(val, &v); err == nil {
				s.SignalStrength = &v
			}
		default:
			var v float64
			if err := json.Unmarshal(val, &v); err == nil {
				s.Values[key] = v
			}
		}
	}
	return nil
}
