package service

import (
	"math"

	"stockinsight/internal/models"
)

// DataQualityProfile holds quality metrics for a key column
type DataQualityProfile struct {
	Dataset         string  `json:"dataset"`
	ColumnName      string  `json:"column_name"`
	TotalRows       int     `json:"total_rows"`
	NonNullRows     int     `json:"non_null_rows"`
	NullRate        float64 `json:"null_rate"`
	DistinctCount   int     `json:"distinct_count"`
	DuplicateRows   int     `json:"duplicate_rows"`
	UniquenessRatio float64 `json:"uniqueness_ratio"`
	Entropy         float64 `json:"entropy"`
	IsPrimaryKey    bool    `json:"is_primary_key"`
	QualityScore    float64 `json:"quality_score"` // 0-1
}

// DataQualityProfiler analyzes data quality metrics of snapshot key columns
type DataQualityProfiler struct{}

// NewDataQualityProfiler creates a new profiler
func NewDataQualityProfiler() *DataQualityProfiler {
	return &DataQualityProfiler{}
}

// ProfileSnapshot profiles the normalized identifier columns of both inputs.
func (dqp *DataQualityProfiler) ProfileSnapshot(snap models.Snapshot) []DataQualityProfile {
	rn := NewRecordNormalizer()
	skus := make([]string, len(snap.Products))
	for i, p := range snap.Products {
		skus[i] = rn.NormalizeIdentifier(p.SKU)
	}
	metricIDs := make([]string, len(snap.Metrics))
	for i, m := range snap.Metrics {
		metricIDs[i] = rn.NormalizeIdentifier(m.SKU)
	}

	return []DataQualityProfile{
		dqp.ProfileColumn(models.SourceProducts, "sku_id", skus),
		dqp.ProfileColumn(models.SourceMetrics, "sku_id", metricIDs),
	}
}

// ProfileColumn analyzes quality metrics for a single column of values
func (dqp *DataQualityProfiler) ProfileColumn(dataset, column string, values []string) DataQualityProfile {
	profile := DataQualityProfile{
		Dataset:    dataset,
		ColumnName: column,
		TotalRows:  len(values),
	}

	uniqueValues := make(map[string]int)
	nonNullCount := 0
	for _, value := range values {
		if value == "" || value == "null" || value == "none" {
			continue
		}
		nonNullCount++
		uniqueValues[value]++
	}

	profile.NonNullRows = nonNullCount
	profile.DistinctCount = len(uniqueValues)
	profile.DuplicateRows = nonNullCount - len(uniqueValues)

	if profile.TotalRows > 0 {
		profile.NullRate = float64(profile.TotalRows-nonNullCount) / float64(profile.TotalRows)
	}
	if nonNullCount > 0 {
		profile.UniquenessRatio = float64(profile.DistinctCount) / float64(nonNullCount)
	}

	profile.Entropy = dqp.calculateEntropy(uniqueValues, nonNullCount)

	// High uniqueness (>95%) and low null rate (<5%)
	profile.IsPrimaryKey = profile.UniquenessRatio > 0.95 && profile.NullRate < 0.05

	profile.QualityScore = dqp.calculateQualityScore(profile)
	return profile
}

// calculateEntropy computes Shannon entropy
func (dqp *DataQualityProfiler) calculateEntropy(valueCounts map[string]int, total int) float64 {
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, count := range valueCounts {
		if count > 0 {
			p := float64(count) / float64(total)
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// calculateQualityScore computes overall quality (0-1) of a key column:
// completeness times uniqueness.
func (dqp *DataQualityProfiler) calculateQualityScore(profile DataQualityProfile) float64 {
	if profile.TotalRows == 0 {
		return 0
	}
	score := (1.0 - profile.NullRate) * profile.UniquenessRatio
	return math.Max(0, math.Min(1, score))
}
