package models

import (
	"fmt"
	"time"
)

// WarningKind classifies a run warning.
type WarningKind string

const (
	WarningInvalidNumber      WarningKind = "invalid_number"
	WarningNegativeNumber     WarningKind = "negative_number"
	WarningFractionalNumber   WarningKind = "fractional_number"
	WarningMissingIdentifier  WarningKind = "missing_identifier"
	WarningDuplicateProduct   WarningKind = "duplicate_product"
	WarningDuplicateMetric    WarningKind = "duplicate_metric"
	WarningPurchaseRateClamp  WarningKind = "purchase_rate_clamped"
	WarningLowConfidence      WarningKind = "low_confidence"
	WarningBrandWithoutMetric WarningKind = "brand_without_metrics"
	WarningSegmentConflict    WarningKind = "segment_conflict"
	WarningCountMismatch      WarningKind = "count_mismatch"
	WarningMissingColumn      WarningKind = "missing_column"
	WarningMalformedRow       WarningKind = "malformed_row"
)

// Sources of warnings.
const (
	SourceProducts = "products"
	SourceMetrics  = "metrics"
	SourceJoin     = "reconcile"
	SourceClassify = "classify"
	SourceSummary  = "aggregate"
)

// Warning is a recoverable issue attached to a run. Warnings never abort processing.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Source  string      `json:"source"`
	Row     int         `json:"row,omitempty"`
	Field   string      `json:"field,omitempty"`
	Value   string      `json:"value,omitempty"`
	Brand   string      `json:"brand,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.Row > 0 {
		return fmt.Sprintf("[%s] %s row %d: %s", w.Kind, w.Source, w.Row, w.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", w.Kind, w.Source, w.Message)
}

// Period describes the date window of a metrics export.
type Period struct {
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Property   string     `json:"property,omitempty"`
	Days       int        `json:"days"`
	PeriodType string     `json:"period_type"`
}

// Period types.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodCustom  = "custom"
	PeriodUnknown = "unknown"
)

// NewPeriod builds a period from inclusive start and end dates. Days counts calendar
// dates, so a range across a DST change still has whole days.
func NewPeriod(start, end time.Time, property string) Period {
	p := Period{StartDate: &start, EndDate: &end, Property: property}
	p.Days = int(calendarDate(end).Sub(calendarDate(start)).Hours()/24) + 1
	switch {
	case p.Days == 1:
		p.PeriodType = PeriodDaily
	case p.Days == 7:
		p.PeriodType = PeriodWeekly
	case p.Days >= 28 && p.Days <= 31:
		p.PeriodType = PeriodMonthly
	default:
		p.PeriodType = PeriodCustom
	}
	return p
}

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Snapshot is the immutable input of a single analysis run.
type Snapshot struct {
	Products []ProductRecord `json:"products"`
	Metrics  []MetricsRecord `json:"metrics"`
	Period   *Period         `json:"period,omitempty"`
	// Warnings raised while the snapshot was parsed; carried into the run result.
	Warnings []Warning `json:"warnings,omitempty"`
}

// MetricThresholds are the p30/p50/p70 values of one metric within a brand.
type MetricThresholds struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	P30  float64 `json:"p30"`
	P50  float64 `json:"p50"`
	P70  float64 `json:"p70"`
	// Cutoff is the value at the configured percentile used by the segment rule.
	Cutoff float64 `json:"cutoff"`
}

// BrandThresholds are the per-brand distribution cutoffs used by the classifier.
type BrandThresholds struct {
	Brand         string           `json:"brand"`
	SampleSize    int              `json:"sample_size"`
	Stock         MetricThresholds `json:"stock"`
	Revenue       MetricThresholds `json:"revenue"`
	Views         MetricThresholds `json:"views"`
	LowConfidence bool             `json:"low_confidence"`
}

// RunStats are the reconciliation counters.
type RunStats struct {
	ProductRows       int `json:"product_rows"`
	MetricsRows       int `json:"metrics_rows"`
	DistinctMetricIDs int `json:"distinct_metric_ids"`
	MatchedIDs        int `json:"matched_ids"`
	MatchedRecords    int `json:"matched_records"`
	UntrackedIDs      int `json:"untracked_ids"`
	ProblemCount      int `json:"problem_count"`
	OpportunityCount  int `json:"opportunity_count"`
}

// RunResult is the output of one analysis run.
type RunResult struct {
	Merged     []MergedRecord    `json:"merged"`
	Untracked  []UntrackedMetric `json:"untracked"`
	Summaries  []BrandSummary    `json:"summaries"`
	Thresholds []BrandThresholds `json:"thresholds"`
	Warnings   []Warning         `json:"warnings"`
	Stats      RunStats          `json:"stats"`
	Period     *Period           `json:"period,omitempty"`
}

// Report is a stored run with its identity.
type Report struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Result    RunResult `json:"result"`
}
