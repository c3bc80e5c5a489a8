package service

import (
	"testing"

	"stockinsight/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateSummaries(t *testing.T) {
	records := NewPercentileClassifier(testThresholds()).Classify(brandX()).Records
	unmatched := merged("F", "X", 7, 0, 0, 0)
	unmatched.Matched = false
	records = append(records, unmatched)

	agg := NewBrandAggregator(testThresholds()).Aggregate(records)

	require.Len(t, agg.Summaries, 1)
	s := agg.Summaries[0]
	assert.Equal(t, "X", s.Brand)
	assert.Equal(t, 6, s.SKUCount)
	assert.Equal(t, 5, s.MatchedCount)
	assert.InDelta(t, 5.0/6.0, s.MatchRate, 1e-9)
	assert.Equal(t, 173, s.TotalStock)
	assert.Equal(t, 195, s.TotalViews)
	assert.Equal(t, 12, s.TotalPurchases)
	assert.Equal(t, "1300", s.TotalRevenue.String())
	assert.InDelta(t, 12.0/195.0*100, s.OverallCVR, 1e-9)
	assert.Equal(t, 1, s.ProblemCount)
	assert.Equal(t, 1, s.OpportunityCount)

	require.Len(t, s.TopByViews, 6)
	assert.Equal(t, "A", s.TopByViews[0].SKU)
	assert.Equal(t, 1, s.TopByViews[0].Rank)
	assert.Equal(t, "B", s.TopByViews[1].SKU)
	// E and F tie on zero views; input order is kept
	assert.Equal(t, "E", s.TopByViews[4].SKU)
	assert.Equal(t, "F", s.TopByViews[5].SKU)

	assert.Equal(t, "A", s.TopByRevenue[0].SKU)
	assert.Equal(t, "B", s.TopByRevenue[1].SKU)
	assert.Equal(t, "D", s.TopByRevenue[2].SKU)
}

func TestAggregateTopN(t *testing.T) {
	cfg := testThresholds()
	cfg.TopN = 2
	agg := NewBrandAggregator(cfg).Aggregate(brandX())

	require.Len(t, agg.Summaries, 1)
	assert.Len(t, agg.Summaries[0].TopByViews, 2)
	assert.Len(t, agg.Summaries[0].TopByRevenue, 2)
}

func TestAggregateBrandWithoutMetrics(t *testing.T) {
	orphan := merged("Z1", "Orphan", 3, 0, 0, 0)
	orphan.Matched = false
	records := append(brandX(), orphan)

	agg := NewBrandAggregator(testThresholds()).Aggregate(records)

	require.Len(t, agg.Summaries, 1)
	assert.Equal(t, "X", agg.Summaries[0].Brand)
	require.Len(t, agg.Warnings, 1)
	assert.Equal(t, models.WarningBrandWithoutMetric, agg.Warnings[0].Kind)
	assert.Equal(t, "Orphan", agg.Warnings[0].Brand)
}

func TestAggregateExcludedBrand(t *testing.T) {
	cfg := testThresholds()
	cfg.ExcludedBrands = []string{"x"}

	agg := NewBrandAggregator(cfg).Aggregate(brandX())

	assert.Empty(t, agg.Summaries)
	assert.Empty(t, agg.Warnings)
}

func TestAggregateLowConfidenceCarried(t *testing.T) {
	records := NewPercentileClassifier(testThresholds()).Classify([]models.MergedRecord{
		merged("A", "Small", 1, 10, 1, 100),
	}).Records

	agg := NewBrandAggregator(testThresholds()).Aggregate(records)

	require.Len(t, agg.Summaries, 1)
	assert.True(t, agg.Summaries[0].LowConfidence)
}

func TestFilterByBrand(t *testing.T) {
	records := append(brandX(), merged("Y1", "Y", 1, 1, 0, 0))

	assert.Len(t, FilterByBrand(records, ""), 6)
	assert.Len(t, FilterByBrand(records, "ALL"), 6)
	assert.Len(t, FilterByBrand(records, "x"), 5)
	assert.Len(t, FilterByBrand(records, " y "), 1)
	assert.Empty(t, FilterByBrand(records, "nope"))
}

func TestSegmentMembers(t *testing.T) {
	records := []models.MergedRecord{
		merged("P1", "X", 10, 0, 0, 0).WithSegments([]models.Segment{models.SegmentProblem}, false),
		merged("O1", "X", 1, 50, 0, 0).WithSegments([]models.Segment{models.SegmentOpportunity}, false),
		merged("P2", "X", 30, 0, 0, 0).WithSegments([]models.Segment{models.SegmentProblem}, false),
		merged("O2", "X", 2, 90, 0, 0).WithSegments([]models.Segment{models.SegmentOpportunity}, false),
		merged("N", "X", 2, 90, 0, 0),
	}

	problems := SegmentMembers(records, models.SegmentProblem, 0)
	require.Len(t, problems, 2)
	assert.Equal(t, "P2", problems[0].SKU)

	opps := SegmentMembers(records, models.SegmentOpportunity, 1)
	require.Len(t, opps, 1)
	assert.Equal(t, "O2", opps[0].SKU)
}

func TestGroupByProductClass(t *testing.T) {
	a1 := merged("A-S", "X", 2, 100, 1, 1000)
	a1.ProductClassID = "A"
	a2 := merged("A-M", "X", 3, 100, 4, 4000)
	a2.ProductClassID = "A"
	b := merged("B-S", "X", 9, 40, 0, 0)
	b.ProductClassID = "B"
	c := merged("C-S", "X", 1, 0, 0, 0)

	groups := GroupByProductClass([]models.MergedRecord{b, a1, a2, c}, SortByViews, 0)

	require.Len(t, groups, 2)
	assert.Equal(t, "A", groups[0].ProductClassID)
	assert.Equal(t, 2, groups[0].SKUCount)
	assert.Equal(t, 100, groups[0].Views)
	assert.Equal(t, 5, groups[0].Purchases)
	assert.Equal(t, 5, groups[0].Stock)
	assert.Equal(t, "5000", groups[0].Revenue.String())
	assert.InDelta(t, 5.0, groups[0].CVR, 1e-9)
	assert.Equal(t, "A-M", groups[0].SKUs[0].SKU)
	assert.Equal(t, "B", groups[1].ProductClassID)

	byRevenue := GroupByProductClass([]models.MergedRecord{b, a1, a2, c}, SortByRevenue, 2)
	require.Len(t, byRevenue, 2)
	assert.Equal(t, "A", byRevenue[0].ProductClassID)
}
