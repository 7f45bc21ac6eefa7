package platform

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intabcloud/sdg-bridge/internal/httpx"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(srv.URL, httpx.NewTransport(srv.Client(), nil, nil, log), log), srv
}

func TestClient_ListDevices(t *testing.T) {
	t.Parallel()

	var gotQuery map[string]string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/loggers/internal/active-loggers/", r.URL.Path)
		gotQuery = map[string]string{
			"manufacturer":  r.URL.Query().Get("manufacturer"),
			"incl_children": r.URL.Query().Get("incl_children"),
			"limit":         r.URL.Query().Get("limit"),
		}
		w.Write([]byte(`[
			{"id":7,"lookup_id":350457791342064,"tag":"IOTSU_N3_RHTEMP","last_seen":1700000000,
			 "channels":[{"id":101,"tag":"Humidity"},{"id":102,"tag":"Temperature"}]}
		]`)) //nolint:errcheck
	}))

	records, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, int64(7), records[0].ID)
	require.Equal(t, int64(350457791342064), records[0].LookupID)
	require.Equal(t, "IOTSU_N3_RHTEMP", records[0].Tag)
	require.Equal(t, int64(1700000000), records[0].LastSeen)
	require.Len(t, records[0].Channels, 2)

	require.Equal(t, map[string]string{
		"manufacturer":  "SDG",
		"incl_children": "true",
		"limit":         "1000",
	}, gotQuery)
}

func TestClient_ListChannels(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/loggers/7/channels/", r.URL.Path)
		w.Write([]byte(`[{"id":101,"tag":"Humidity"}]`)) //nolint:errcheck
	}))

	channels, err := c.ListChannels(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	require.Equal(t, int64(101), channels[0].ID)
	require.Equal(t, "Humidity", channels[0].Tag)
}

func TestClient_CreateChannel(t *testing.T) {
	t.Parallel()

	var gotPayload map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/loggers/7/channels/", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{"id":103,"tag":"CO2"}`)) //nolint:errcheck
	}))

	ch, err := c.CreateChannel(context.Background(), 7, "CO2")
	require.NoError(t, err)
	require.Equal(t, int64(103), ch.ID)
	require.Equal(t, "CO2", ch.Tag)

	require.Equal(t, "CO2", gotPayload["tag"])
	require.Equal(t, "CO2", gotPayload["name"])
	require.Equal(t, "CO2", gotPayload["unit"])
	require.Equal(t, "#000000", gotPayload["color"])
	require.EqualValues(t, 1, gotPayload["decimal_count"])
	require.EqualValues(t, 0, gotPayload["high_from"])
}

func TestClient_CreateChannelTagMismatch(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":103,"tag":"Humidity"}`)) //nolint:errcheck
	}))

	_, err := c.CreateChannel(context.Background(), 7, "CO2")
	require.Error(t, err)
}

func TestResolveUnit(t *testing.T) {
	t.Parallel()

	require.Equal(t, "°C", resolveUnit("Temperature"))
	require.Equal(t, "%RH", resolveUnit("HUMIDITY"))
	require.Equal(t, "CO2", resolveUnit("CO2"))
	require.Equal(t, "Pressure", resolveUnit("Pressure"))
}
