package service

import (
	"testing"

	"stockinsight/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileLeftJoin(t *testing.T) {
	products := []models.ProductRecord{
		product("SKU-001", "X", 10),
		product("SKU-002", "X", 3),
		product("SKU-003", "Y", 0),
	}
	metrics := []models.MetricsRecord{
		metric("sku-001", 200, 4, 8000),
		metric(" SKU-003 ", 50, 0, 0),
		metric("SKU-999", 30, 2, 5000),
	}

	rec := NewReconciler().Reconcile(products, metrics)

	require.Len(t, rec.Merged, 3)
	assert.True(t, rec.Merged[0].Matched)
	assert.Equal(t, 200, rec.Merged[0].Views)
	assert.Equal(t, "8000", rec.Merged[0].Revenue.String())
	assert.InDelta(t, 0.02, rec.Merged[0].PurchaseRate, 1e-9)
	assert.InDelta(t, 2.0, rec.Merged[0].CVR, 1e-9)
	assert.InDelta(t, 800.0, rec.Merged[0].StockEfficiency, 1e-9)

	assert.False(t, rec.Merged[1].Matched)
	assert.Zero(t, rec.Merged[1].Views)
	assert.True(t, rec.Merged[1].Revenue.IsZero())
	assert.Zero(t, rec.Merged[1].PurchaseRate)

	assert.True(t, rec.Merged[2].Matched)
	for _, m := range rec.Merged {
		assert.NotNil(t, m.Segments)
		assert.Empty(t, m.Segments)
	}

	require.Len(t, rec.Untracked, 1)
	u := rec.Untracked[0]
	assert.Equal(t, "SKU-999", u.SKU)
	assert.Equal(t, 30, u.Views)
	assert.Equal(t, 2, u.Purchases)
	assert.True(t, u.Revenue.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, 1, u.Occurrences)

	assert.Equal(t, models.RunStats{
		ProductRows:       3,
		MetricsRows:       3,
		DistinctMetricIDs: 3,
		MatchedIDs:        2,
		MatchedRecords:    2,
		UntrackedIDs:      1,
	}, rec.Stats)
	assert.Empty(t, rec.Warnings)
}

func TestReconcileDuplicateMetricsSummed(t *testing.T) {
	products := []models.ProductRecord{product("A", "X", 1)}
	metrics := []models.MetricsRecord{
		{SKU: "A", Views: 10, Purchases: 1, Revenue: decimal.NewFromInt(100)},
		{SKU: "a", ItemName: "late name", Views: 5, Purchases: 1, Revenue: decimal.NewFromInt(50)},
	}

	rec := NewReconciler().Reconcile(products, metrics)

	require.Len(t, rec.Merged, 1)
	assert.Equal(t, 15, rec.Merged[0].Views)
	assert.Equal(t, 2, rec.Merged[0].Purchases)
	assert.Equal(t, "150", rec.Merged[0].Revenue.String())
	assert.Equal(t, "late name", rec.Merged[0].ItemName)
	assert.Equal(t, 1, rec.Stats.DistinctMetricIDs)
	assert.Contains(t, warningKinds(rec.Warnings), models.WarningDuplicateMetric)
}

func TestReconcileDuplicateProductsKeepCardinality(t *testing.T) {
	first := product("A", "X", 4)
	first.Name = "old"
	second := product("A", "X", 6)
	second.Name = "new"
	products := []models.ProductRecord{first, second}

	rec := NewReconciler().Reconcile(products, []models.MetricsRecord{metric("A", 10, 0, 0)})

	require.Len(t, rec.Merged, 2)
	for _, m := range rec.Merged {
		assert.Equal(t, "new", m.Name)
	}
	assert.Equal(t, 4, rec.Merged[0].Stock)
	assert.Equal(t, 6, rec.Merged[1].Stock)

	// metrics belong to the last row only
	assert.False(t, rec.Merged[0].Matched)
	assert.Equal(t, 0, rec.Merged[0].Views)
	assert.True(t, rec.Merged[1].Matched)
	assert.Equal(t, 10, rec.Merged[1].Views)
	assert.Equal(t, 1, rec.Stats.MatchedIDs)
	assert.Equal(t, 1, rec.Stats.MatchedRecords)
	assert.Contains(t, warningKinds(rec.Warnings), models.WarningDuplicateProduct)
}

func TestDuplicateProductsDoNotInflateBrandTotals(t *testing.T) {
	products := []models.ProductRecord{product("SKU-1", "X", 3), product("sku-1 ", "X", 2)}
	metrics := []models.MetricsRecord{metric("SKU-1", 100, 2, 500)}

	res := NewAnalyzer(testThresholds()).Run(models.Snapshot{Products: products, Metrics: metrics})

	require.Len(t, res.Summaries, 1)
	sum := res.Summaries[0]
	assert.Equal(t, 2, sum.SKUCount)
	assert.Equal(t, 100, sum.TotalViews)
	assert.True(t, decimal.NewFromInt(500).Equal(sum.TotalRevenue), sum.TotalRevenue.String())
	assert.Equal(t, 1, res.Stats.MatchedIDs)
	assert.Equal(t, 1, res.Stats.MatchedRecords)
	assert.Equal(t, 0, res.Stats.UntrackedIDs)
}

func TestReconcileMissingIdentifiers(t *testing.T) {
	products := []models.ProductRecord{product("", "X", 1)}
	metrics := []models.MetricsRecord{metric("  ", 10, 1, 100)}

	rec := NewReconciler().Reconcile(products, metrics)

	require.Len(t, rec.Merged, 1)
	assert.False(t, rec.Merged[0].Matched)
	assert.Empty(t, rec.Untracked)
	assert.Equal(t, []models.WarningKind{models.WarningMissingIdentifier, models.WarningMissingIdentifier}, warningKinds(rec.Warnings))
}

func TestReconcileClampsAndNegatives(t *testing.T) {
	p := product("A", "X", 0)
	p.WebStock = -5
	m := metric("A", 2, 5, 100)
	m.CartAdds = -1

	rec := NewReconciler().Reconcile([]models.ProductRecord{p}, []models.MetricsRecord{m})

	require.Len(t, rec.Merged, 1)
	got := rec.Merged[0]
	assert.Zero(t, got.Stock)
	assert.Zero(t, got.CartAdds)
	assert.Equal(t, 1.0, got.PurchaseRate)
	assert.Equal(t, 100.0, got.CVR)
	assert.Zero(t, got.StockEfficiency)
	kinds := warningKinds(rec.Warnings)
	assert.Contains(t, kinds, models.WarningNegativeNumber)
	assert.Contains(t, kinds, models.WarningPurchaseRateClamp)
}

func TestReconcileDoesNotMutateInputs(t *testing.T) {
	products := []models.ProductRecord{product("A", "X", 1), product("A", "Y", 2)}
	products[0].Name = "first"
	metrics := []models.MetricsRecord{metric("A", 1, 0, 0)}

	NewReconciler().Reconcile(products, metrics)

	assert.Equal(t, "first", products[0].Name)
	assert.Equal(t, "X", products[0].Brand)
}

func TestReconcileCountsAddUp(t *testing.T) {
	var products []models.ProductRecord
	var metrics []models.MetricsRecord
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		products = append(products, product(id, "X", i))
	}
	for _, id := range []string{"a", "c", "z", "y", "c"} {
		metrics = append(metrics, metric(id, 1, 0, 0))
	}

	rec := NewReconciler().Reconcile(products, metrics)

	assert.Len(t, rec.Merged, len(products))
	assert.Equal(t, rec.Stats.DistinctMetricIDs, rec.Stats.MatchedIDs+rec.Stats.UntrackedIDs)
	assert.Equal(t, 4, rec.Stats.DistinctMetricIDs)
	assert.Equal(t, 2, rec.Stats.MatchedIDs)
	assert.Equal(t, 2, rec.Stats.UntrackedIDs)
	assert.NotContains(t, warningKinds(rec.Warnings), models.WarningCountMismatch)
}

func TestCountMismatchFires(t *testing.T) {
	_, bad := countMismatch(models.RunStats{MatchedIDs: 2, UntrackedIDs: 1, DistinctMetricIDs: 3})
	assert.False(t, bad)

	w, bad := countMismatch(models.RunStats{MatchedIDs: 2, UntrackedIDs: 1, DistinctMetricIDs: 4})
	require.True(t, bad)
	assert.Equal(t, models.WarningCountMismatch, w.Kind)
	assert.Contains(t, w.Message, "!= distinct metric ids 4")
}
