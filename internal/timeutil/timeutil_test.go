package timeutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeutil_APITimeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"2023-11-14 22:13",
		"1970-01-01 00:00",
		"2026-02-28 23:59",
	} {
		ts, err := ParseAPITime(s)
		require.NoError(t, err)
		require.Equal(t, s, APITimeString(ts))
	}
}

func TestTimeutil_APITimeStringIsUTC(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2023-11-14 22:13", APITimeString(1700000000-20))
	require.Equal(t, "2023-11-14 22:13", APITimeString(1699999980))
}

func TestTimeutil_ParseSampleTime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int64
	}{
		{"2023-11-14T22:13:20Z", 1700000000},
		{"2023-11-14T22:13:20", 1700000000},
		{"2023-11-14 22:13:20", 1700000000},
		{"2023-11-14 22:13", 1700000000 - 20},
	}
	for _, tc := range cases {
		got, err := ParseSampleTime(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseSampleTime("not-a-time")
	require.Error(t, err)
}

func TestTimeutil_Clamp(t *testing.T) {
	t.Parallel()

	require.EqualValues(t, 900, Clamp(100, 900, 3600))
	require.EqualValues(t, 3600, Clamp(10000, 900, 3600))
	require.EqualValues(t, 1000, Clamp(1000, 900, 3600))
	require.EqualValues(t, 900, Clamp(900, 900, 3600))
	require.EqualValues(t, 3600, Clamp(3600, 900, 3600))
}
