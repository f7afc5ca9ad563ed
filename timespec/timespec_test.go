package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundtripIntegerNanos(t *testing.T) {
	cases := []int64{
		0, 1, 999999999, 1000000000,
		1672531200123456789,
		9223372036854775807, // 2^63 - 1
		-1, -999999999,
	}

	for _, n := range cases {
		ts := FromNanos(n)
		require.True(t, ts.Nsec < 1e9, "nsec out of range for %d: %+v", n, ts)
		assert.Equal(t, n, ts.Nanos(), "roundtrip failed for %d", n)
	}
}

func TestFromTimeRoundtrip(t *testing.T) {
	tm := time.Date(2026, 7, 30, 12, 0, 0, 123456000, time.UTC)
	ts := FromTime(tm)
	assert.Equal(t, tm.Unix(), ts.Sec)
	assert.Equal(t, uint32(123456000), ts.Nsec)
	assert.True(t, ts.Time().Equal(tm))
}

func TestParseSecondsDotNanos(t *testing.T) {
	ts, err := ParseString("1672531200.123456789")
	require.NoError(t, err)
	assert.EqualValues(t, 1672531200, ts.Sec)
	assert.EqualValues(t, 123456789, ts.Nsec)
}

func TestParseIntegerSecondsOnly(t *testing.T) {
	ts, err := ParseString("100")
	require.NoError(t, err)
	assert.EqualValues(t, 100, ts.Sec)
	assert.EqualValues(t, 0, ts.Nsec)
}

func TestParseISO8601RoundsToMillis(t *testing.T) {
	ts, err := ParseString("2026-07-30T12:00:00.123456789Z")
	require.NoError(t, err)
	assert.EqualValues(t, 123000000, ts.Nsec)
}

func TestFromFloatHeuristic(t *testing.T) {
	// Below threshold: seconds.
	ts := FromFloat(1700000000.5)
	assert.EqualValues(t, 1700000000, ts.Sec)
	assert.InDelta(t, 5e8, float64(ts.Nsec), 1e6)

	// At/above threshold: milliseconds.
	ts2 := FromFloat(1.7e12)
	assert.EqualValues(t, int64(1.7e12)/1000, ts2.Sec)
}

func TestParseAcceptsHeterogeneousInputs(t *testing.T) {
	if ts, err := Parse(int64(5000000000)); assert.NoError(t, err) {
		assert.EqualValues(t, 5000000000, ts.Nanos())
	}

	now := time.Now()
	if ts, err := Parse(now); assert.NoError(t, err) {
		assert.True(t, ts.Time().Equal(now.Truncate(time.Nanosecond)) || ts.Sec == now.Unix())
	}

	if _, err := Parse(struct{}{}); assert.Error(t, err) {
		assert.Contains(t, err.Error(), "unsupported")
	}
}

func TestArithmeticPreservesPrecision(t *testing.T) {
	ts := FromNanos(1_000_000_000)
	later := ts.AddMillis(1500)
	assert.EqualValues(t, 2_500_000_000, later.Nanos())
	assert.EqualValues(t, 1500, later.DiffMillis(ts))
}

func TestIsZero(t *testing.T) {
	assert.True(t, Timespec{}.IsZero())
	assert.False(t, FromNanos(1).IsZero())
}
