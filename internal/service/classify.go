package service

import (
	"fmt"
	"strings"

	"stockinsight/internal/config"
	"stockinsight/internal/models"

	"golang.org/x/text/cases"
)

// Classification is the classifier output.
type Classification struct {
	Records    []models.MergedRecord
	Thresholds []models.BrandThresholds
	Warnings   []models.Warning
}

// PercentileClassifier tags merged records with Problem/Opportunity using per-brand thresholds.
type PercentileClassifier struct {
	cfg config.Thresholds
}

// NewPercentileClassifier creates a new classifier
func NewPercentileClassifier(cfg config.Thresholds) *PercentileClassifier {
	return &PercentileClassifier{cfg: cfg}
}

// brandGroup holds record indices of one brand in input order.
type brandGroup struct {
	key     string
	name    string
	indices []int
}

// groupByBrand groups record indices by case-folded brand, in first-appearance order.
func groupByBrand(records []models.MergedRecord) []*brandGroup {
	fold := cases.Fold()
	byKey := make(map[string]*brandGroup)
	var groups []*brandGroup
	for i, r := range records {
		name := strings.TrimSpace(r.Brand)
		key := fold.String(name)
		g, ok := byKey[key]
		if !ok {
			g = &brandGroup{key: key, name: name}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.indices = append(g.indices, i)
	}
	return groups
}

// Classify returns tagged copies of merged; the input is not modified.
// Thresholds never mix brands.
func (pc *PercentileClassifier) Classify(merged []models.MergedRecord) Classification {
	out := Classification{Records: make([]models.MergedRecord, len(merged))}

	for _, g := range groupByBrand(merged) {
		th := pc.brandThresholds(g, merged)
		out.Thresholds = append(out.Thresholds, th)
		if th.LowConfidence {
			out.Warnings = append(out.Warnings, models.Warning{
				Kind: models.WarningLowConfidence, Source: models.SourceClassify, Brand: g.name,
				Message: fmt.Sprintf("brand %q has %d SKUs (< %d), thresholds are low confidence", g.name, th.SampleSize, pc.cfg.MinBrandSKUs),
			})
		}

		for _, idx := range g.indices {
			rec := merged[idx]
			problem := pc.isProblem(rec, th)
			opportunity := pc.isOpportunity(rec, th)

			segs := make([]models.Segment, 0, 1)
			switch {
			case problem && opportunity:
				// happens whenever the brand's stock cutoff is at or below the ceiling,
				// e.g. a brand where most SKUs are out of stock
				out.Warnings = append(out.Warnings, models.Warning{
					Kind: models.WarningSegmentConflict, Source: models.SourceClassify, Row: rec.Row, Brand: g.name, Value: rec.SKU,
					Message: fmt.Sprintf("%s qualifies for both segments (brand stock cutoff %.2f is within ceiling %d), kept as opportunity", rec.SKU, th.Stock.Cutoff, pc.cfg.OpportunityStockCeiling),
				})
				segs = append(segs, models.SegmentOpportunity)
			case problem:
				segs = append(segs, models.SegmentProblem)
			case opportunity:
				segs = append(segs, models.SegmentOpportunity)
			}
			out.Records[idx] = rec.WithSegments(segs, th.LowConfidence)
		}
	}
	return out
}

// isProblem: stock at or above the stock cutoff and revenue at or below the revenue cutoff.
func (pc *PercentileClassifier) isProblem(rec models.MergedRecord, th models.BrandThresholds) bool {
	return float64(rec.Stock) >= th.Stock.Cutoff && rec.Revenue.InexactFloat64() <= th.Revenue.Cutoff
}

// isOpportunity: high views, stock under the absolute ceiling, some views and weak conversion.
// views > 0 matters: a zero-view record has purchase rate 0 and would otherwise qualify.
func (pc *PercentileClassifier) isOpportunity(rec models.MergedRecord, th models.BrandThresholds) bool {
	return float64(rec.Views) >= th.Views.Cutoff &&
		rec.Stock <= pc.cfg.OpportunityStockCeiling &&
		rec.Views > 0 &&
		rec.PurchaseRate < pc.cfg.OpportunityPurchaseRateCeiling
}

func (pc *PercentileClassifier) brandThresholds(g *brandGroup, merged []models.MergedRecord) models.BrandThresholds {
	stock := make([]float64, 0, len(g.indices))
	revenue := make([]float64, 0, len(g.indices))
	views := make([]float64, 0, len(g.indices))
	for _, idx := range g.indices {
		r := merged[idx]
		stock = append(stock, float64(r.Stock))
		revenue = append(revenue, r.Revenue.InexactFloat64())
		views = append(views, float64(r.Views))
	}
	return models.BrandThresholds{
		Brand:         g.name,
		SampleSize:    len(g.indices),
		Stock:         metricThresholds(NewDistribution(stock), pc.cfg.ProblemStockPercentile),
		Revenue:       metricThresholds(NewDistribution(revenue), pc.cfg.ProblemRevenuePercentile),
		Views:         metricThresholds(NewDistribution(views), pc.cfg.OpportunityViewsPercentile),
		LowConfidence: len(g.indices) < pc.cfg.MinBrandSKUs,
	}
}

func metricThresholds(d Distribution, cutoff float64) models.MetricThresholds {
	return models.MetricThresholds{
		Min:    d.Min(),
		Max:    d.Max(),
		Mean:   d.Mean(),
		P30:    d.Percentile(30),
		P50:    d.Median(),
		P70:    d.Percentile(70),
		Cutoff: d.Percentile(cutoff),
	}
}
