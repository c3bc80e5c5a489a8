package service

import (
	"fmt"
	"sort"
	"strings"

	"stockinsight/internal/config"
	"stockinsight/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// Aggregation is the aggregator output.
type Aggregation struct {
	Summaries []models.BrandSummary
	Warnings  []models.Warning
}

// BrandAggregator rolls classified records up per brand.
type BrandAggregator struct {
	cfg config.Thresholds
}

// NewBrandAggregator creates a new aggregator
func NewBrandAggregator(cfg config.Thresholds) *BrandAggregator {
	return &BrandAggregator{cfg: cfg}
}

// Aggregate produces one summary per brand, in first-appearance order. Segment counts
// are read from the tags; thresholds are not recomputed.
func (ba *BrandAggregator) Aggregate(merged []models.MergedRecord) Aggregation {
	var out Aggregation
	for _, g := range groupByBrand(merged) {
		if ba.cfg.IsExcluded(g.name) {
			continue
		}
		records := pick(merged, g.indices)
		s := ba.summarize(g.name, records)
		if s.MatchedCount == 0 {
			out.Warnings = append(out.Warnings, models.Warning{
				Kind: models.WarningBrandWithoutMetric, Source: models.SourceSummary, Brand: g.name,
				Message: fmt.Sprintf("brand %q has %d SKUs but no matching metrics rows, excluded from summaries", g.name, s.SKUCount),
			})
			continue
		}
		out.Summaries = append(out.Summaries, s)
	}
	return out
}

func (ba *BrandAggregator) summarize(brand string, records []models.MergedRecord) models.BrandSummary {
	s := models.BrandSummary{Brand: brand, SKUCount: len(records), TotalRevenue: decimal.Zero}
	for _, r := range records {
		if r.Matched {
			s.MatchedCount++
		}
		s.TotalStock += r.Stock
		s.TotalViews += r.Views
		s.TotalCartAdds += r.CartAdds
		s.TotalPurchases += r.Purchases
		s.TotalRevenue = s.TotalRevenue.Add(r.Revenue)
		if r.IsProblem() {
			s.ProblemCount++
		}
		if r.IsOpportunity() {
			s.OpportunityCount++
		}
		if r.LowConfidence {
			s.LowConfidence = true
		}
	}
	if s.SKUCount > 0 {
		s.MatchRate = float64(s.MatchedCount) / float64(s.SKUCount)
	}
	if s.TotalViews > 0 {
		s.OverallCVR = float64(s.TotalPurchases) / float64(s.TotalViews) * 100
	}
	s.TopByViews = rank(records, ba.cfg.TopN, func(a, b models.MergedRecord) bool { return a.Views > b.Views })
	s.TopByRevenue = rank(records, ba.cfg.TopN, func(a, b models.MergedRecord) bool { return a.Revenue.GreaterThan(b.Revenue) })
	return s
}

// rank returns the first n records under a stable descending order.
func rank(records []models.MergedRecord, n int, greater func(a, b models.MergedRecord) bool) []models.RankedItem {
	sorted := make([]models.MergedRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return greater(sorted[i], sorted[j]) })
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	items := make([]models.RankedItem, 0, len(sorted))
	for i, r := range sorted {
		items = append(items, models.RankedItem{
			Rank:      i + 1,
			SKU:       r.SKU,
			Name:      r.Name,
			Color:     r.Color,
			Size:      r.Size,
			ImageURL:  r.ImageURL,
			Views:     r.Views,
			Purchases: r.Purchases,
			Revenue:   r.Revenue,
			Stock:     r.Stock,
		})
	}
	return items
}

func pick(records []models.MergedRecord, indices []int) []models.MergedRecord {
	out := make([]models.MergedRecord, 0, len(indices))
	for _, i := range indices {
		out = append(out, records[i])
	}
	return out
}

// FilterByBrand returns records of brand (case-insensitive). An empty brand or "all" keeps everything.
func FilterByBrand(records []models.MergedRecord, brand string) []models.MergedRecord {
	brand = strings.TrimSpace(brand)
	if brand == "" || strings.EqualFold(brand, "all") {
		return records
	}
	fold := cases.Fold()
	want := fold.String(brand)
	var out []models.MergedRecord
	for _, r := range records {
		if fold.String(strings.TrimSpace(r.Brand)) == want {
			out = append(out, r)
		}
	}
	return out
}

// SegmentMembers lists records of a segment. Problem is ordered by stock, Opportunity by
// views, both descending and stable. limit <= 0 means no limit.
func SegmentMembers(records []models.MergedRecord, seg models.Segment, limit int) []models.MergedRecord {
	var out []models.MergedRecord
	for _, r := range records {
		if r.HasSegment(seg) {
			out = append(out, r)
		}
	}
	switch seg {
	case models.SegmentProblem:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Stock > out[j].Stock })
	case models.SegmentOpportunity:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Views > out[j].Views })
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Sort keys for GroupByProductClass.
const (
	SortByViews   = "views"
	SortByRevenue = "revenue"
)

// GroupByProductClass rolls SKUs up to their product class. Views are the maximum across
// SKUs since item views are reported per product page; other metrics are summed. Classes
// without any views are dropped when sorting by views.
func GroupByProductClass(records []models.MergedRecord, sortBy string, limit int) []models.ProductGroup {
	index := make(map[string]int)
	var groups []models.ProductGroup
	for _, r := range records {
		id := strings.TrimSpace(r.ProductClassID)
		if id == "" {
			id = r.SKU
		}
		i, ok := index[id]
		if !ok {
			groups = append(groups, models.ProductGroup{
				ProductClassID: id,
				Brand:          r.Brand,
				Name:           r.Name,
				ImageURL:       r.ImageURL,
				ProductURL:     r.ProductURL,
				Revenue:        decimal.Zero,
			})
			i = len(groups) - 1
			index[id] = i
		}
		g := &groups[i]
		g.SKUCount++
		if r.Views > g.Views {
			g.Views = r.Views
		}
		g.CartAdds += r.CartAdds
		g.Purchases += r.Purchases
		g.Revenue = g.Revenue.Add(r.Revenue)
		g.Stock += r.Stock
		g.SKUs = append(g.SKUs, r)
	}

	out := groups[:0]
	for _, g := range groups {
		if sortBy == SortByViews && g.Views == 0 {
			continue
		}
		if g.Views > 0 {
			g.CVR = float64(g.Purchases) / float64(g.Views) * 100
		}
		sort.SliceStable(g.SKUs, func(i, j int) bool { return g.SKUs[i].Purchases > g.SKUs[j].Purchases })
		out = append(out, g)
	}

	switch sortBy {
	case SortByRevenue:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Revenue.GreaterThan(out[j].Revenue) })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Views > out[j].Views })
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
