package service

import (
	"testing"

	"stockinsight/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleSnapshot() models.Snapshot {
	return models.Snapshot{
		Products: []models.ProductRecord{
			product("A", "X", 1),
			product("B", "X", 5),
			product("C", "X", 10),
			product("D", "X", 50),
			product("E", "X", 100),
			product("Q1", "Quiet", 4),
		},
		Metrics: []models.MetricsRecord{
			metric("A", 100, 10, 500),
			metric("B", 80, 1, 300),
			metric("C", 10, 1, 200),
			metric("D", 5, 0, 300),
			metric("E", 0, 0, 0),
			metric("SKU-999", 30, 2, 5000),
		},
		Warnings: []models.Warning{{Kind: models.WarningMissingColumn, Source: models.SourceProducts, Field: "image_url"}},
	}
}

func TestAnalyzerRun(t *testing.T) {
	res := NewAnalyzer(testThresholds()).Run(exampleSnapshot())

	require.Len(t, res.Merged, 6)
	require.Len(t, res.Untracked, 1)
	assert.Equal(t, "SKU-999", res.Untracked[0].SKU)
	assert.Equal(t, 30, res.Untracked[0].Views)

	require.Len(t, res.Summaries, 1)
	assert.Equal(t, "X", res.Summaries[0].Brand)
	assert.Len(t, res.Thresholds, 2)

	// E in X, and the lone Quiet SKU sits at its own stock and revenue cutoffs
	assert.Equal(t, 2, res.Stats.ProblemCount)
	assert.Equal(t, 1, res.Stats.OpportunityCount)
	assert.Equal(t, 5, res.Stats.MatchedIDs)
	assert.Equal(t, 1, res.Stats.UntrackedIDs)

	kinds := warningKinds(res.Warnings)
	assert.Equal(t, models.WarningMissingColumn, kinds[0])
	assert.Contains(t, kinds, models.WarningLowConfidence)
	assert.Contains(t, kinds, models.WarningBrandWithoutMetric)

	for _, r := range res.Merged {
		assert.GreaterOrEqual(t, r.PurchaseRate, 0.0)
		assert.LessOrEqual(t, r.PurchaseRate, 1.0)
		assert.False(t, r.IsProblem() && r.IsOpportunity())
	}
}

func TestAnalyzerIdempotent(t *testing.T) {
	a := NewAnalyzer(testThresholds())
	snap := exampleSnapshot()

	first := a.Run(snap)
	second := a.Run(snap)

	assert.Equal(t, first, second)
}

func TestAnalyzerEmptySnapshot(t *testing.T) {
	res := NewAnalyzer(testThresholds()).Run(models.Snapshot{})

	assert.Empty(t, res.Merged)
	assert.NotNil(t, res.Untracked)
	assert.NotNil(t, res.Summaries)
	assert.Empty(t, res.Warnings)
}
