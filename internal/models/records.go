package models

import "github.com/shopspring/decimal"

// ProductRecord is one row of the product master.
type ProductRecord struct {
	SKU            string          `json:"sku_id"`
	ProductClassID string          `json:"product_class_id,omitempty"`
	Brand          string          `json:"brand"`
	Name           string          `json:"product_name"`
	Color          string          `json:"color_name"`
	ColorTag       string          `json:"color_tag,omitempty"`
	Size           string          `json:"size"`
	Price          decimal.Decimal `json:"price"`
	WebStock       int             `json:"web_stock"`
	AdjustedStock  int             `json:"adjust_stock"`
	ExpectedStock  int             `json:"expected_stock"`
	ProductURL     string          `json:"product_url,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	PublishStatus  string          `json:"publish_status,omitempty"`
	SalesStatus    string          `json:"sales_status,omitempty"`
	Published      bool            `json:"published"`
	OnSale         bool            `json:"on_sale"`
	// Row is the 1-based data row in the source, 0 when unknown.
	Row int `json:"-"`
}

// TotalStock is web + adjusted + expected stock.
func (p ProductRecord) TotalStock() int {
	return p.WebStock + p.AdjustedStock + p.ExpectedStock
}

// MetricsRecord is one row of behavioral metrics (GA4 item report).
type MetricsRecord struct {
	SKU       string          `json:"sku_id"`
	ItemName  string          `json:"item_name"`
	Views     int             `json:"views"`
	CartAdds  int             `json:"add_to_cart"`
	Purchases int             `json:"purchases"`
	Revenue   decimal.Decimal `json:"revenue"`
	Row       int             `json:"-"`
}

// Segment is a classification tag on a merged record.
type Segment string

const (
	// SegmentProblem marks overstocked, low selling SKUs.
	SegmentProblem Segment = "problem"
	// SegmentOpportunity marks high demand, near zero stock, low conversion SKUs.
	SegmentOpportunity Segment = "opportunity"
)

// MergedRecord is a product joined with its metrics.
type MergedRecord struct {
	ProductRecord
	ItemName  string          `json:"item_name"`
	Views     int             `json:"views"`
	CartAdds  int             `json:"add_to_cart"`
	Purchases int             `json:"purchases"`
	Revenue   decimal.Decimal `json:"revenue"`
	Matched   bool            `json:"matched"`

	Stock           int     `json:"total_stock"`
	PurchaseRate    float64 `json:"purchase_rate"`
	CVR             float64 `json:"cvr"`
	CartRate        float64 `json:"cart_rate"`
	StockEfficiency float64 `json:"stock_efficiency"`

	Segments      []Segment `json:"segments"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
}

// HasSegment reports whether the record carries seg.
func (m MergedRecord) HasSegment(seg Segment) bool {
	for _, s := range m.Segments {
		if s == seg {
			return true
		}
	}
	return false
}

// IsProblem is a shortcut for HasSegment(SegmentProblem).
func (m MergedRecord) IsProblem() bool { return m.HasSegment(SegmentProblem) }

// IsOpportunity is a shortcut for HasSegment(SegmentOpportunity).
func (m MergedRecord) IsOpportunity() bool { return m.HasSegment(SegmentOpportunity) }

// WithSegments returns a copy carrying the given tags. The receiver is left untouched.
func (m MergedRecord) WithSegments(segs []Segment, lowConfidence bool) MergedRecord {
	out := m
	out.Segments = append([]Segment{}, segs...)
	out.LowConfidence = lowConfidence
	return out
}

// UntrackedMetric is a metrics row without a product master counterpart.
type UntrackedMetric struct {
	MetricsRecord
	// Occurrences is the number of input rows folded into this entry.
	Occurrences int `json:"occurrences"`
}

// RankedItem is one entry in a top-N list.
type RankedItem struct {
	Rank      int             `json:"rank"`
	SKU       string          `json:"sku_id"`
	Name      string          `json:"product_name"`
	Color     string          `json:"color_name"`
	Size      string          `json:"size"`
	ImageURL  string          `json:"image_url,omitempty"`
	Views     int             `json:"views"`
	Purchases int             `json:"purchases"`
	Revenue   decimal.Decimal `json:"revenue"`
	Stock     int             `json:"total_stock"`
}

// BrandSummary is the brand roll-up shown on the dashboard.
type BrandSummary struct {
	Brand            string          `json:"brand"`
	SKUCount         int             `json:"sku_count"`
	MatchedCount     int             `json:"matched_count"`
	MatchRate        float64         `json:"match_rate"`
	TotalStock       int             `json:"total_stock"`
	TotalViews       int             `json:"total_views"`
	TotalCartAdds    int             `json:"total_add_to_cart"`
	TotalPurchases   int             `json:"total_purchases"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	OverallCVR       float64         `json:"overall_cvr"`
	ProblemCount     int             `json:"problem_count"`
	OpportunityCount int             `json:"opportunity_count"`
	LowConfidence    bool            `json:"low_confidence,omitempty"`
	TopByViews       []RankedItem    `json:"top_by_views"`
	TopByRevenue     []RankedItem    `json:"top_by_revenue"`
}

// ProductGroup aggregates SKUs sharing a product class id.
type ProductGroup struct {
	ProductClassID string          `json:"product_class_id"`
	Brand          string          `json:"brand"`
	Name           string          `json:"product_name"`
	ImageURL       string          `json:"image_url,omitempty"`
	ProductURL     string          `json:"product_url,omitempty"`
	SKUCount       int             `json:"sku_count"`
	Views          int             `json:"views"`
	CartAdds       int             `json:"add_to_cart"`
	Purchases      int             `json:"purchases"`
	Revenue        decimal.Decimal `json:"revenue"`
	Stock          int             `json:"total_stock"`
	CVR            float64         `json:"cvr"`
	SKUs           []MergedRecord  `json:"skus"`
}
