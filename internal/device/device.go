// Package device models the loggers known to the platform: identity, model,
// channel metadata, and the per-device polling schedule.
package device

import (
	"fmt"
	"strings"

	"github.com/intabcloud/sdg-bridge/internal/schedule"
)

// ChannelTagsByModel is the closed set of supported logger models and the
// channel tags each model is expected to report. Unknown models fail device
// construction.
var ChannelTagsByModel = map[string][]string{
	"IOTSU_N3_AQ05":   {"CO2", "Humidity", "Temperature"},
	"IOTSU_N3_RHTEMP": {"Humidity", "Temperature"},
}

// Channel is one measurement stream on a device, identified by the platform
// channel ID and carrying a tag unique within the device.
type Channel struct {
	ID  int64
	Tag string
}

// Record is a device as returned by the platform's registry listing.
type Record struct {
	ID       int64     `json:"id"`
	LookupID int64     `json:"lookup_id"`
	Tag      string    `json:"tag"` // model
	LastSeen int64     `json:"last_seen"`
	Channels []Channel `json:"channels"`
}

// Device is one logger tracked by the bridge. Identity is the platform ID;
// the upstream keys the same device by LookupID (the serial). Channel state
// and the schedule are mutated only by the worker holding the schedule's
// single-owner lock.
type Device struct {
	ID       int64
	LookupID int64
	Model    string
	Schedule *schedule.State

	channels       []Channel
	channelIDByTag map[string]int64
}

// New validates a platform record against the model table and builds a
// device with its schedule primed at dueAt.
func New(rec Record, dueAt int64) (*Device, error) {
	model := strings.ToUpper(rec.Tag)
	if _, ok := ChannelTagsByModel[model]; !ok {
		return nil, fmt.Errorf("unknown logger model %q for device %d", rec.Tag, rec.ID)
	}

	d := &Device{
		ID:             rec.ID,
		LookupID:       rec.LookupID,
		Model:          model,
		Schedule:       schedule.New(dueAt, rec.LastSeen),
		channels:       append([]Channel(nil), rec.Channels...),
		channelIDByTag: make(map[string]int64, len(rec.Channels)),
	}
	for _, ch := range rec.Channels {
		d.channelIDByTag[ch.Tag] = ch.ID
	}
	return d, nil
}

// ChannelTags returns the tags this device's model is expected to report.
func (d *Device) ChannelTags() []string {
	return ChannelTagsByModel[d.Model]
}

// ChannelID resolves a tag to its platform channel ID.
func (d *Device) ChannelID(tag string) (int64, bool) {
	id, ok := d.channelIDByTag[tag]
	return id, ok
}

// AddChannel records a newly created channel. Idempotent per tag: a repeat
// add for a known tag only updates the map entry.
func (d *Device) AddChannel(id int64, tag string) {
	if _, ok := d.channelIDByTag[tag]; !ok {
		d.channels = append(d.channels, Channel{ID: id, Tag: tag})
	}
	d.channelIDByTag[tag] = id
}

// Channels returns a copy of the device's channel list.
func (d *Device) Channels() []Channel {
	return append([]Channel(nil), d.channels...)
}
