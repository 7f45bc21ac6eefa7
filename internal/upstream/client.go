package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/intabcloud/sdg-bridge/internal/httpx"
	"github.com/intabcloud/sdg-bridge/internal/timeutil"
)

// Client fetches raw samples from the SDG API. Retry, auth, and rate
// limiting live in the transport.
type Client struct {
	baseURL string
	http    *httpx.Transport
	clock   clockwork.Clock
	log     *slog.Logger
}

func NewClient(baseURL string, transport *httpx.Transport, clock clockwork.Clock, log *slog.Logger) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{baseURL: baseURL, http: transport, clock: clock, log: log}
}

// fetchWindow is the request body of the data endpoint: a minute-precision
// UTC window.
type fetchWindow struct {
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

// FetchSamples returns all samples recorded for the device since the given
// epoch-seconds watermark, up to now.
func (c *Client) FetchSamples(ctx context.Context, lookupID int64, since int64) ([]Sample, error) {
	url := fmt.Sprintf("%s/devices/%d/data", c.baseURL, lookupID)
	window := fetchWindow{
		FromDate: timeutil.APITimeString(since),
		ToDate:   timeutil.APITimeString(c.clock.Now().Unix()),
	}
	c.log.Debug("fetching samples", "url", url, "from", window.FromDate, "to", window.ToDate)

	var samples []Sample
	if err := c.http.DoJSON(ctx, http.MethodPost, url, nil, window, &samples); err != nil {
		return nil, fmt.Errorf("fetch samples for device %d: %w", lookupID, err)
	}
	return samples, nil
}
