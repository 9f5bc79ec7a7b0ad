package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	cases := map[string]time.Duration{
		"1s":   time.Second,
		"1m":   time.Minute,
		"5m":   5 * time.Minute,
		"15m":  15 * time.Minute,
		" 1h ": time.Hour,
		"4h":   4 * time.Hour,
		"1d":   24 * time.Hour,
	}
	for in, want := range cases {
		tf, err := ParseTimeframe(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, tf.Duration, in)
	}

	for _, bad := range []string{"3m", "30m", "1w", "", "1M", "1H", "1D", "5M"} {
		_, err := ParseTimeframe(bad)
		assert.ErrorIs(t, err, ErrUnsupportedInterval, bad)
	}
}

func TestSupportedTimeframesOrdered(t *testing.T) {
	assert.Equal(t, []string{"1s", "1m", "5m", "15m", "1h", "4h", "1d"}, SupportedTimeframes())
}

func TestExpectedCandles(t *testing.T) {
	tf, err := ParseTimeframe("1h")
	require.NoError(t, err)
	assert.Equal(t, int64(3600000), tf.Millis())
	assert.Equal(t, int64(24), tf.ExpectedCandles(0, 24*3600000))
	assert.Equal(t, int64(0), tf.ExpectedCandles(10, 10))
	assert.Equal(t, int64(0), tf.ExpectedCandles(10, 5))
}

func TestFetchRequestNormalize(t *testing.T) {
	req := FetchRequest{Symbol: "sol/usdt", Interval: " 1h", Limit: 5000}.Normalize()
	assert.Equal(t, "SOLUSDT", req.Symbol)
	assert.Equal(t, "1h", req.Interval)
	assert.Equal(t, MaxBatchLimit, req.Limit)

	assert.Equal(t, MaxBatchLimit, FetchRequest{Limit: 0}.Normalize().Limit)
	assert.Equal(t, 200, FetchRequest{Limit: 200}.Normalize().Limit)
	// 1M 是月线，大小写必须保留
	assert.Equal(t, "1M", FetchRequest{Interval: "1M"}.Normalize().Interval)
}
