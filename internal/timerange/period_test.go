package timerange

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	cases := map[string]Period{
		"daily":   PeriodDaily,
		"1d":      PeriodDaily,
		"WEEKLY":  PeriodWeekly,
		"1w":      PeriodWeekly,
		" month ": PeriodMonthly,
		"allTime": PeriodAllTime,
		"all":     PeriodAllTime,
	}
	for in, want := range cases {
		got, err := ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePeriod("fortnight")
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestPeriodDuration(t *testing.T) {
	d, ok := PeriodWeekly.Duration()
	require.True(t, ok)
	assert.Equal(t, int64(604_800_000), d)

	d, ok = PeriodDaily.Duration()
	require.True(t, ok)
	assert.Equal(t, int64(86_400_000), d)

	d, ok = PeriodMonthly.Duration()
	require.True(t, ok)
	assert.Equal(t, int64(2_592_000_000), d)

	_, ok = PeriodAllTime.Duration()
	assert.False(t, ok)
}

func TestPeriodValid(t *testing.T) {
	for _, p := range AllPeriods() {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, Period("hourly").Valid())
}

func TestPeriodUnmarshalText(t *testing.T) {
	var p Period
	require.NoError(t, p.UnmarshalText([]byte("1m")))
	assert.Equal(t, PeriodMonthly, p)
	assert.Error(t, p.UnmarshalText([]byte("nope")))
}

func TestPeriodJSONRoundTrip(t *testing.T) {
	for _, p := range append(AllPeriods(), Period("")) {
		data, err := json.Marshal(Range{Period: p})
		require.NoError(t, err, p)

		var got Range
		require.NoError(t, json.Unmarshal(data, &got), string(data))
		assert.Equal(t, p, got.Period)
	}

	var r Range
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"period":"hourly"}`), &r), ErrUnknownPeriod)
}
