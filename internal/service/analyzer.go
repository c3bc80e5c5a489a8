package service

import (
	"stockinsight/internal/config"
	"stockinsight/internal/models"
)

// Analyzer runs reconcile -> classify -> aggregate over one snapshot.
// It holds configuration only; every run is independent.
type Analyzer struct {
	reconciler *Reconciler
	classifier *PercentileClassifier
	aggregator *BrandAggregator
}

// NewAnalyzer creates a new analyzer for the given thresholds
func NewAnalyzer(cfg config.Thresholds) *Analyzer {
	return &Analyzer{
		reconciler: NewReconciler(),
		classifier: NewPercentileClassifier(cfg),
		aggregator: NewBrandAggregator(cfg),
	}
}

// Run analyzes a snapshot. It never fails: issues are returned as warnings.
func (a *Analyzer) Run(snap models.Snapshot) models.RunResult {
	rec := a.reconciler.Reconcile(snap.Products, snap.Metrics)
	cls := a.classifier.Classify(rec.Merged)
	agg := a.aggregator.Aggregate(cls.Records)

	warnings := make([]models.Warning, 0, len(snap.Warnings)+len(rec.Warnings)+len(cls.Warnings)+len(agg.Warnings))
	warnings = append(warnings, snap.Warnings...)
	warnings = append(warnings, rec.Warnings...)
	warnings = append(warnings, cls.Warnings...)
	warnings = append(warnings, agg.Warnings...)

	stats := rec.Stats
	for _, r := range cls.Records {
		if r.IsProblem() {
			stats.ProblemCount++
		}
		if r.IsOpportunity() {
			stats.OpportunityCount++
		}
	}

	untracked := rec.Untracked
	if untracked == nil {
		untracked = []models.UntrackedMetric{}
	}
	summaries := agg.Summaries
	if summaries == nil {
		summaries = []models.BrandSummary{}
	}

	return models.RunResult{
		Merged:     cls.Records,
		Untracked:  untracked,
		Summaries:  summaries,
		Thresholds: cls.Thresholds,
		Warnings:   warnings,
		Stats:      stats,
		Period:     snap.Period,
	}
}
