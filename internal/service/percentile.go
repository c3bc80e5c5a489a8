package service

import (
	"math"
	"sort"
)

// Distribution is a sorted copy of metric values for percentile lookups.
type Distribution struct {
	sorted []float64
}

// NewDistribution copies and sorts values. The input slice is left untouched.
func NewDistribution(values []float64) Distribution {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return Distribution{sorted: sorted}
}

// Len is the sample size.
func (d Distribution) Len() int { return len(d.sorted) }

// Percentile returns the value at p (0..100) using linear interpolation between the
// two nearest ranks, rank = p/100 * (n-1). An empty distribution yields 0.
func (d Distribution) Percentile(p float64) float64 {
	return percentileSorted(d.sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Percentile is a convenience for a one-off lookup over unsorted values.
func Percentile(values []float64, p float64) float64 {
	return NewDistribution(values).Percentile(p)
}

// Median of the distribution.
func (d Distribution) Median() float64 {
	return d.Percentile(50)
}

// Min and Max of the distribution, 0 when empty.
func (d Distribution) Min() float64 {
	if len(d.sorted) == 0 {
		return 0
	}
	return d.sorted[0]
}

func (d Distribution) Max() float64 {
	if len(d.sorted) == 0 {
		return 0
	}
	return d.sorted[len(d.sorted)-1]
}

// Mean of the distribution, 0 when empty.
func (d Distribution) Mean() float64 {
	if len(d.sorted) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range d.sorted {
		sum += v
	}
	return sum / float64(len(d.sorted))
}
