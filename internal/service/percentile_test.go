package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileInterpolation(t *testing.T) {
	values := []float64{100, 1, 50, 5, 10}
	d := NewDistribution(values)

	assert.Equal(t, 5, d.Len())
	assert.InDelta(t, 6.0, d.Percentile(30), 1e-9)
	assert.InDelta(t, 10.0, d.Median(), 1e-9)
	assert.InDelta(t, 42.0, d.Percentile(70), 1e-9)
	assert.Equal(t, 1.0, d.Min())
	assert.Equal(t, 100.0, d.Max())
	assert.InDelta(t, 33.2, d.Mean(), 1e-9)

	// input is untouched
	assert.Equal(t, []float64{100, 1, 50, 5, 10}, values)
}

func TestPercentileEdges(t *testing.T) {
	assert.Zero(t, Percentile(nil, 50))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 30))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 70))
	assert.Equal(t, 1.0, Percentile([]float64{1, 2, 3}, 0))
	assert.Equal(t, 3.0, Percentile([]float64{1, 2, 3}, 100))
	assert.Equal(t, 4.0, Percentile([]float64{4, 4, 4, 4}, 70))
}

func TestPercentileMonotonic(t *testing.T) {
	samples := [][]float64{
		{0, 0, 0, 1},
		{3, 9, 1, 4, 4, 7, 2},
		{1000, 0.5, 12, 12, 12, 80},
	}
	for _, s := range samples {
		d := NewDistribution(s)
		p30, p50, p70 := d.Percentile(30), d.Percentile(50), d.Percentile(70)
		assert.LessOrEqual(t, p30, p50)
		assert.LessOrEqual(t, p50, p70)
		assert.GreaterOrEqual(t, p30, d.Min())
		assert.LessOrEqual(t, p70, d.Max())
	}
}
