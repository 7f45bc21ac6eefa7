// Package platform is the client for the Intab cloud API, which owns the
// device registry and per-device channel metadata.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/intabcloud/sdg-bridge/internal/device"
	"github.com/intabcloud/sdg-bridge/internal/httpx"
)

// unitByTag resolves the display unit when creating a channel. Unlisted
// tags fall back to the tag itself.
var unitByTag = map[string]string{
	"TEMPERATURE": "°C",
	"HUMIDITY":    "%RH",
	"CO2":         "CO2",
}

// Client talks to the Intab REST API.
type Client struct {
	baseURL string
	http    *httpx.Transport
	log     *slog.Logger
}

func NewClient(baseURL string, transport *httpx.Transport, log *slog.Logger) *Client {
	return &Client{baseURL: baseURL, http: transport, log: log}
}

// ListDevices returns the active SDG loggers the platform knows about,
// children included.
func (c *Client) ListDevices(ctx context.Context) ([]device.Record, error) {
	query := url.Values{
		"manufacturer":  {"SDG"},
		"incl_children": {"true"},
		"limit":         {"1000"},
	}

	var records []device.Record
	err := c.http.DoJSON(ctx, http.MethodGet, c.baseURL+"/loggers/internal/active-loggers/", query, nil, &records)
	if err != nil {
		return nil, fmt.Errorf("list loggers: %w", err)
	}
	c.log.Debug("listed loggers", "count", len(records))
	return records, nil
}

// ListChannels returns the channels currently defined on a logger.
func (c *Client) ListChannels(ctx context.Context, deviceID int64) ([]device.Channel, error) {
	var channels []device.Channel
	url := fmt.Sprintf("%s/loggers/%d/channels/", c.baseURL, deviceID)
	if err := c.http.DoJSON(ctx, http.MethodGet, url, nil, nil, &channels); err != nil {
		return nil, fmt.Errorf("list channels for logger %d: %w", deviceID, err)
	}
	return channels, nil
}

// channelPayload is the creation body the platform expects. Thresholds and
// styling are fixed; only tag, name, and unit vary.
type channelPayload struct {
	Tag          string `json:"tag"`
	Name         string `json:"name"`
	Unit         string `json:"unit"`
	HighFrom     int    `json:"high_from"`
	HighTo       int    `json:"high_to"`
	LowFrom      int    `json:"low_from"`
	LowTo        int    `json:"low_to"`
	Color        string `json:"color"`
	DecimalCount int    `json:"decimal_count"`
}

// CreateChannel creates a channel on a logger, resolving the unit from the
// tag. The platform must echo the tag back; a mismatch means the channel
// landed wrong and is treated as an error.
func (c *Client) CreateChannel(ctx context.Context, deviceID int64, tag string) (device.Channel, error) {
	payload := channelPayload{
		Tag:          tag,
		Name:         tag,
		Unit:         resolveUnit(tag),
		Color:        "#000000",
		DecimalCount: 1,
	}

	var created device.Channel
	url := fmt.Sprintf("%s/loggers/%d/channels/", c.baseURL, deviceID)
	if err := c.http.DoJSON(ctx, http.MethodPost, url, nil, payload, &created); err != nil {
		return device.Channel{}, fmt.Errorf("create channel %q on logger %d: %w", tag, deviceID, err)
	}
	if created.ID == 0 || created.Tag != tag {
		return device.Channel{}, fmt.Errorf("create channel %q on logger %d: platform returned id=%d tag=%q",
			tag, deviceID, created.ID, created.Tag)
	}
	c.log.Debug("created channel", "logger_id", deviceID, "channel_id", created.ID, "tag", tag)
	return created, nil
}

func resolveUnit(tag string) string {
	if u, ok := unitByTag[strings.ToUpper(tag)]; ok {
		return u
	}
	return tag
}
