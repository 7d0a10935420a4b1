package metric_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/metrics-engine/metric"
)

func TestDecodeRaw_DailyShapeAcceptsCountAndValue(t *testing.T) {
	raw, err := metric.DecodeRaw([]byte(`{
		"daily": [
			{"date": "2025-03-02", "value": 4.5},
			{"date": "2025-03-01", "count": 3}
		],
		"total": 7.5,
		"active": 12
	}`))
	require.NoError(t, err)
	require.Equal(t, metric.ShapeDaily, raw.Shape())

	ds := raw.(*metric.DailySeries)
	assert.Equal(t, []string{"2025-03-01", "2025-03-02"}, []string{ds.Daily[0].Date, ds.Daily[1].Date})
	assert.Equal(t, []float64{3, 4.5}, ds.Values())

	total, ok := raw.Scalar("total")
	assert.True(t, ok)
	assert.Equal(t, 7.5, total)
	active, ok := raw.Scalar("active")
	assert.True(t, ok)
	assert.Equal(t, 12.0, active)
}

func TestDecodeRaw_LegacyFlatShape(t *testing.T) {
	raw, err := metric.DecodeRaw([]byte(`{"rate": 72.5, "label": "ignored"}`))
	require.NoError(t, err)
	assert.Equal(t, metric.ShapeLegacyFlat, raw.Shape())

	rate, ok := raw.Scalar("rate")
	assert.True(t, ok)
	assert.Equal(t, 72.5, rate)
	_, ok = raw.Scalar("label")
	assert.False(t, ok)
}

func TestDecodeRaw_LegacyModules(t *testing.T) {
	raw, err := metric.DecodeRaw([]byte(`{"total": 5, "modules": [
		{"id": "1", "name": {"en-US": "Paid Time Off", "fr-FR": "Congés payés"}, "count": 3},
		{"id": "2", "name": "Wellness", "count": 2}
	]}`))
	require.NoError(t, err)

	cats := raw.CategoryList()
	require.Len(t, cats, 2)
	assert.Equal(t, "Paid Time Off", cats[0].Name["en-US"])
	assert.Equal(t, 3.0, cats[0].Count)
	assert.Equal(t, "Wellness", cats[1].Name["en"])
}

func TestDecodeRaw_Malformed(t *testing.T) {
	for _, in := range []string{``, `not json`, `[1,2,3]`, `"str"`} {
		_, err := metric.DecodeRaw([]byte(in))
		assert.ErrorIs(t, err, metric.ErrMalformedRaw, "input %q", in)
	}
}

func TestEncodeRaw_RoundTripKeepsShape(t *testing.T) {
	daily := &metric.DailySeries{
		Daily: []metric.DailyPoint{{Date: "2025-03-01", Value: 2, Breakdown: map[string]float64{"12": 2}}},
		Total: 2,
		Categories: []metric.Category{{ID: "12", Name: map[string]string{"en-US": "Paid Time Off"}}},
	}
	legacy := &metric.LegacyFlat{Fields: map[string]float64{"bounce_rate": 33.3}}

	for _, in := range []metric.RawMetricResult{daily, legacy, &metric.DailySeries{}} {
		data, err := metric.EncodeRaw(in)
		require.NoError(t, err)
		out, err := metric.DecodeRaw(data)
		require.NoError(t, err)
		assert.Equal(t, in.Shape(), out.Shape())
	}

	data, err := metric.EncodeRaw(daily)
	require.NoError(t, err)
	out, err := metric.DecodeRaw(data)
	require.NoError(t, err)
	assert.Equal(t, daily.Daily, out.(*metric.DailySeries).Daily)
	assert.Equal(t, daily.Categories, out.CategoryList())
}

func TestEncodeRaw_RejectsNilResults(t *testing.T) {
	for _, in := range []metric.RawMetricResult{nil, (*metric.DailySeries)(nil), (*metric.LegacyFlat)(nil)} {
		_, err := metric.EncodeRaw(in)
		assert.ErrorIs(t, err, metric.ErrMalformedRaw)
		assert.True(t, metric.IsNilRaw(in))
	}
	assert.False(t, metric.IsNilRaw(&metric.DailySeries{}))
}
