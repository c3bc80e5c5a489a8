package service

import (
	"testing"

	"stockinsight/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileColumn(t *testing.T) {
	dqp := NewDataQualityProfiler()

	p := dqp.ProfileColumn("products", "sku_id", []string{"a", "b", "b", "", "c"})
	assert.Equal(t, 5, p.TotalRows)
	assert.Equal(t, 4, p.NonNullRows)
	assert.Equal(t, 3, p.DistinctCount)
	assert.Equal(t, 1, p.DuplicateRows)
	assert.InDelta(t, 0.2, p.NullRate, 1e-9)
	assert.InDelta(t, 0.75, p.UniquenessRatio, 1e-9)
	assert.InDelta(t, 1.5, p.Entropy, 1e-9)
	assert.InDelta(t, 0.6, p.QualityScore, 1e-9)
	assert.False(t, p.IsPrimaryKey)

	clean := dqp.ProfileColumn("products", "sku_id", []string{"a", "b", "c"})
	assert.True(t, clean.IsPrimaryKey)
	assert.InDelta(t, 1.0, clean.QualityScore, 1e-9)

	empty := dqp.ProfileColumn("products", "sku_id", nil)
	assert.Zero(t, empty.QualityScore)
}

func TestProfileSnapshotNormalizesIdentifiers(t *testing.T) {
	snap := models.Snapshot{
		Products: []models.ProductRecord{product("A", "X", 1), product(" a ", "X", 1)},
		Metrics:  []models.MetricsRecord{metric("A", 1, 0, 0)},
	}
	profiles := NewDataQualityProfiler().ProfileSnapshot(snap)

	require.Len(t, profiles, 2)
	assert.Equal(t, models.SourceProducts, profiles[0].Dataset)
	assert.Equal(t, 1, profiles[0].DuplicateRows)
	assert.Equal(t, models.SourceMetrics, profiles[1].Dataset)
	assert.True(t, profiles[1].IsPrimaryKey)
}
