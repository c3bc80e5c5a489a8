package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"stockinsight/internal/models"

	"github.com/360EntSecGroup-Skylar/excelize/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() models.RunResult {
	problem := models.MergedRecord{
		ProductRecord: models.ProductRecord{SKU: "E", Brand: "X", Name: "Coat", Price: decimal.NewFromInt(9900)},
		Matched:       true,
		Stock:         100,
		Revenue:       decimal.Zero,
		Segments:      []models.Segment{models.SegmentProblem},
	}
	opportunity := models.MergedRecord{
		ProductRecord: models.ProductRecord{SKU: "B", Brand: "X", Name: "Shirt", Price: decimal.NewFromInt(5400)},
		Matched:       true,
		Stock:         5,
		Views:         80,
		Purchases:     1,
		Revenue:       decimal.NewFromInt(300),
		PurchaseRate:  0.0125,
		CVR:           1.25,
		Segments:      []models.Segment{models.SegmentOpportunity},
	}
	plain := models.MergedRecord{
		ProductRecord: models.ProductRecord{SKU: "A", Brand: "X", Name: "Dress", Price: decimal.NewFromInt(12800)},
		Revenue:       decimal.Zero,
		Segments:      []models.Segment{},
	}
	return models.RunResult{
		Merged: []models.MergedRecord{plain, problem, opportunity},
		Untracked: []models.UntrackedMetric{{
			MetricsRecord: models.MetricsRecord{SKU: "SKU-999", Views: 30, Purchases: 2, Revenue: decimal.NewFromInt(5000)},
			Occurrences:   1,
		}},
		Summaries: []models.BrandSummary{{
			Brand: "X", SKUCount: 3, MatchedCount: 2, MatchRate: 2.0 / 3.0, TotalStock: 105,
			TotalViews: 80, TotalPurchases: 1, TotalRevenue: decimal.NewFromInt(300), ProblemCount: 1, OpportunityCount: 1,
		}},
		Thresholds: []models.BrandThresholds{{Brand: "X", SampleSize: 3}},
		Warnings:   []models.Warning{{Kind: models.WarningLowConfidence, Source: models.SourceClassify, Brand: "X", Message: "small"}},
	}
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, sampleResult()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)

	var names []string
	for _, name := range f.GetSheetMap() {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{SheetSummary, SheetProblem, SheetOpportunity, SheetUntracked, SheetThresholds, SheetWarnings}, names)

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "Brand", summary[0][0])
	assert.Equal(t, "X", summary[1][0])
	assert.Equal(t, "3", summary[1][1])

	problem, err := f.GetRows(SheetProblem)
	require.NoError(t, err)
	require.Len(t, problem, 2)
	assert.Equal(t, "E", problem[1][1])

	opportunity, err := f.GetRows(SheetOpportunity)
	require.NoError(t, err)
	require.Len(t, opportunity, 2)
	assert.Equal(t, "B", opportunity[1][1])

	untracked, err := f.GetRows(SheetUntracked)
	require.NoError(t, err)
	require.Len(t, untracked, 2)
	assert.Equal(t, "SKU-999", untracked[1][0])
	assert.Equal(t, "30", untracked[1][2])

	warnings, err := f.GetRows(SheetWarnings)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, "low_confidence", warnings[1][0])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResult().Merged))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, csvHeader, lines[0])

	assert.Equal(t, "A", lines[1][1])
	assert.Equal(t, "", lines[1][17])
	assert.Equal(t, "false", lines[1][16])

	assert.Equal(t, "problem", lines[2][17])
	assert.Equal(t, "100", lines[2][7])

	assert.Equal(t, "opportunity", lines[3][17])
	assert.Equal(t, "0.012500", lines[3][12])
	assert.Equal(t, "1.25", lines[3][13])
	assert.Equal(t, "300", lines[3][11])
}
