package service

import (
	"fmt"
	"strconv"

	"stockinsight/internal/models"

	"github.com/shopspring/decimal"
)

// Reconciliation is the output of a join between product master and metrics.
type Reconciliation struct {
	Merged    []models.MergedRecord
	Untracked []models.UntrackedMetric
	Warnings  []models.Warning
	Stats     models.RunStats
}

// Reconciler left joins the product master to metrics by normalized identifier.
type Reconciler struct{}

// NewReconciler creates a new reconciler
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

type metricsEntry struct {
	record      models.MetricsRecord
	occurrences int
	consumed    bool
}

// Reconcile joins products to metrics. Every product row yields exactly one merged
// record; metrics never consumed by a product surface as untracked.
func (r *Reconciler) Reconcile(products []models.ProductRecord, metrics []models.MetricsRecord) Reconciliation {
	rn := NewRecordNormalizer()
	out := Reconciliation{}
	out.Stats.ProductRows = len(products)
	out.Stats.MetricsRows = len(metrics)

	out.Stats.DistinctMetricIDs = distinctIdentifiers(rn, metrics)
	index, order := r.indexMetrics(rn, metrics)

	products, owner := r.resolveDuplicateProducts(rn, products)

	matchedIDs := make(map[string]struct{}, len(index))
	out.Merged = make([]models.MergedRecord, 0, len(products))
	for i, p := range products {
		row := rowOf(p.Row, i)
		p.WebStock = rn.NonNegativeInt(models.SourceProducts, row, "web_stock", p.WebStock)
		p.AdjustedStock = rn.NonNegativeInt(models.SourceProducts, row, "adjust_stock", p.AdjustedStock)
		p.ExpectedStock = rn.NonNegativeInt(models.SourceProducts, row, "expected_stock", p.ExpectedStock)
		p.Price = rn.NonNegativeDecimal(models.SourceProducts, row, "price", p.Price)

		key := rn.NormalizeIdentifier(p.SKU)
		merged := models.MergedRecord{ProductRecord: p, Revenue: decimal.Zero}
		if key == "" {
			rn.Warn(models.Warning{
				Kind: models.WarningMissingIdentifier, Source: models.SourceProducts, Row: row, Field: "sku_id",
				Brand: p.Brand, Message: "product row has no identifier and cannot be matched",
			})
		} else if entry, ok := index[key]; ok && owner[key] == i {
			// only the last row of a duplicate group carries the metrics
			entry.consumed = true
			matchedIDs[key] = struct{}{}
			merged.Matched = true
			merged.ItemName = entry.record.ItemName
			merged.Views = entry.record.Views
			merged.CartAdds = entry.record.CartAdds
			merged.Purchases = entry.record.Purchases
			merged.Revenue = entry.record.Revenue
		}
		out.Merged = append(out.Merged, derive(rn, merged, row))
		if merged.Matched {
			out.Stats.MatchedRecords++
		}
	}
	out.Stats.MatchedIDs = len(matchedIDs)

	for _, key := range order {
		entry := index[key]
		if entry.consumed {
			continue
		}
		out.Untracked = append(out.Untracked, models.UntrackedMetric{
			MetricsRecord: entry.record,
			Occurrences:   entry.occurrences,
		})
	}
	out.Stats.UntrackedIDs = len(out.Untracked)

	if w, bad := countMismatch(out.Stats); bad {
		rn.Warn(w)
	}

	out.Warnings = rn.Warnings()
	return out
}

// indexMetrics folds metrics rows by normalized identifier. Numeric fields are summed,
// the first non-empty item name is kept. order preserves first-seen key order.
func (r *Reconciler) indexMetrics(rn *RecordNormalizer, metrics []models.MetricsRecord) (map[string]*metricsEntry, []string) {
	index := make(map[string]*metricsEntry, len(metrics))
	order := make([]string, 0, len(metrics))

	for i, m := range metrics {
		row := rowOf(m.Row, i)
		key := rn.NormalizeIdentifier(m.SKU)
		if key == "" {
			rn.Warn(models.Warning{
				Kind: models.WarningMissingIdentifier, Source: models.SourceMetrics, Row: row, Field: "sku_id",
				Message: "metrics row has no identifier and was skipped",
			})
			continue
		}
		m.Views = rn.NonNegativeInt(models.SourceMetrics, row, "views", m.Views)
		m.CartAdds = rn.NonNegativeInt(models.SourceMetrics, row, "add_to_cart", m.CartAdds)
		m.Purchases = rn.NonNegativeInt(models.SourceMetrics, row, "purchases", m.Purchases)
		m.Revenue = rn.NonNegativeDecimal(models.SourceMetrics, row, "revenue", m.Revenue)

		entry, ok := index[key]
		if !ok {
			index[key] = &metricsEntry{record: m, occurrences: 1}
			order = append(order, key)
			continue
		}
		entry.occurrences++
		entry.record.Views += m.Views
		entry.record.CartAdds += m.CartAdds
		entry.record.Purchases += m.Purchases
		entry.record.Revenue = entry.record.Revenue.Add(m.Revenue)
		if entry.record.ItemName == "" {
			entry.record.ItemName = m.ItemName
		}
		rn.Warn(models.Warning{
			Kind: models.WarningDuplicateMetric, Source: models.SourceMetrics, Row: row, Field: "sku_id", Value: m.SKU,
			Message: fmt.Sprintf("identifier %q repeated (%d rows), numeric fields summed", m.SKU, entry.occurrences),
		})
	}
	return index, order
}

// countMismatch checks matched + untracked against the distinct ids counted from the input.
func countMismatch(stats models.RunStats) (models.Warning, bool) {
	if stats.MatchedIDs+stats.UntrackedIDs == stats.DistinctMetricIDs {
		return models.Warning{}, false
	}
	return models.Warning{
		Kind: models.WarningCountMismatch, Source: models.SourceJoin,
		Message: fmt.Sprintf("matched %d + untracked %d != distinct metric ids %d",
			stats.MatchedIDs, stats.UntrackedIDs, stats.DistinctMetricIDs),
	}, true
}

// distinctIdentifiers counts non-empty normalized metrics identifiers.
func distinctIdentifiers(rn *RecordNormalizer, metrics []models.MetricsRecord) int {
	ids := make(map[string]struct{}, len(metrics))
	for _, m := range metrics {
		if key := rn.NormalizeIdentifier(m.SKU); key != "" {
			ids[key] = struct{}{}
		}
	}
	return len(ids)
}

// resolveDuplicateProducts applies last-write-wins on descriptive fields across rows
// sharing an identifier. Row count and per-row stock are preserved. owner maps each
// identifier to the index of its last row.
func (r *Reconciler) resolveDuplicateProducts(rn *RecordNormalizer, products []models.ProductRecord) ([]models.ProductRecord, map[string]int) {
	last := make(map[string]int, len(products))
	seen := make(map[string]int, len(products))
	for i, p := range products {
		key := rn.NormalizeIdentifier(p.SKU)
		if key == "" {
			continue
		}
		if first, ok := seen[key]; ok {
			rn.Warn(models.Warning{
				Kind: models.WarningDuplicateProduct, Source: models.SourceProducts, Row: rowOf(p.Row, i),
				Field: "sku_id", Value: p.SKU, Brand: p.Brand,
				Message: fmt.Sprintf("identifier %q already seen at row %d, descriptive fields and metrics go to the last row", p.SKU, rowOf(products[first].Row, first)),
			})
		} else {
			seen[key] = i
		}
		last[key] = i
	}

	out := make([]models.ProductRecord, len(products))
	copy(out, products)
	for i, p := range out {
		key := rn.NormalizeIdentifier(p.SKU)
		j, ok := last[key]
		if !ok || j == i {
			continue
		}
		src := products[j]
		p.ProductClassID = src.ProductClassID
		p.Brand = src.Brand
		p.Name = src.Name
		p.Color = src.Color
		p.ColorTag = src.ColorTag
		p.Size = src.Size
		p.Price = src.Price
		p.ProductURL = src.ProductURL
		p.ImageURL = src.ImageURL
		p.PublishStatus = src.PublishStatus
		p.SalesStatus = src.SalesStatus
		p.Published = src.Published
		p.OnSale = src.OnSale
		out[i] = p
	}
	return out, last
}

// derive fills stock and ratio fields.
func derive(rn *RecordNormalizer, m models.MergedRecord, row int) models.MergedRecord {
	m.Stock = m.TotalStock()
	m.PurchaseRate = 0
	m.CartRate = 0
	if m.Views > 0 {
		m.PurchaseRate = float64(m.Purchases) / float64(m.Views)
		if m.PurchaseRate > 1 {
			rn.Warn(models.Warning{
				Kind: models.WarningPurchaseRateClamp, Source: models.SourceJoin, Row: row, Field: "purchases",
				Value: strconv.Itoa(m.Purchases), Brand: m.Brand,
				Message: fmt.Sprintf("%s has more purchases (%d) than views (%d), purchase rate capped at 1", m.SKU, m.Purchases, m.Views),
			})
			m.PurchaseRate = 1
		}
		m.CartRate = float64(m.CartAdds) / float64(m.Views) * 100
	}
	m.CVR = m.PurchaseRate * 100
	m.StockEfficiency = 0
	if m.Stock > 0 {
		m.StockEfficiency = m.Revenue.InexactFloat64() / float64(m.Stock)
	}
	m.Segments = []models.Segment{}
	return m
}

func rowOf(row, index int) int {
	if row > 0 {
		return row
	}
	return index + 1
}
