package upstream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/intabcloud/sdg-bridge/internal/httpx"
)

func TestSample_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	raw := `{
		"Time": "2023-11-14T22:13:20",
		"Temperature": 21.4,
		"Humidity": 44.0,
		"Battery Voltage": 3.58,
		"signalStrength": -97,
		"firmware": "v2.1"
	}`
	var s Sample
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	require.Equal(t, "2023-11-14T22:13:20", s.Time)
	v, ok := s.Value("Temperature")
	require.True(t, ok)
	require.Equal(t, 21.4, v)
	v, ok = s.Value("Humidity")
	require.True(t, ok)
	require.Equal(t, 44.0, v)

	require.NotNil(t, s.Battery)
	require.Equal(t, 3.58, *s.Battery)
	require.NotNil(t, s.SignalStrength)
	require.Equal(t, -97.0, *s.SignalStrength)

	// Non-numeric extras are dropped, not errors.
	_, ok = s.Value("firmware")
	require.False(t, ok)
}

func TestSample_UnmarshalWithoutExtras(t *testing.T) {
	t.Parallel()

	var s Sample
	require.NoError(t, json.Unmarshal([]byte(`{"Time":"2023-11-14 22:13","CO2":412}`), &s))
	require.Nil(t, s.Battery)
	require.Nil(t, s.SignalStrength)
	v, ok := s.Value("CO2")
	require.True(t, ok)
	require.Equal(t, 412.0, v)
}

func TestClient_FetchSamples(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Unix(1_700_001_900, 0))

	var gotPath string
	var gotWindow struct {
		FromDate string `json:"from_date"`
		ToDate   string `json:"to_date"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotWindow)
		w.Write([]byte(`[
			{"Time":"2023-11-14T22:15:00","Humidity":40.1,"Temperature":20.9},
			{"Time":"2023-11-14T22:30:00","Humidity":41.5,"Temperature":21.1}
		]`)) //nolint:errcheck
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := httpx.NewTransport(srv.Client(), nil, nil, log)
	c := NewClient(srv.URL, tr, clock, log)

	samples, err := c.FetchSamples(context.Background(), 350457791342064, 1_700_000_000)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, "/devices/350457791342064/data", gotPath)
	// since=1_700_000_000 is 2023-11-14 22:13 UTC at minute precision.
	require.Equal(t, "2023-11-14 22:13", gotWindow.FromDate)
	require.Equal(t, "2023-11-14 22:45", gotWindow.ToDate)

	v, ok := samples[1].Value("Humidity")
	require.True(t, ok)
	require.Equal(t, 41.5, v)
}
