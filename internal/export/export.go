package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"stockinsight/internal/models"
	"stockinsight/internal/service"

	"github.com/360EntSecGroup-Skylar/excelize/v2"
	"github.com/pkg/errors"
)

// Sheet names of the workbook, in order.
const (
	SheetSummary     = "Summary"
	SheetProblem     = "Problem"
	SheetOpportunity = "Opportunity"
	SheetUntracked   = "Untracked"
	SheetThresholds  = "Thresholds"
	SheetWarnings    = "Warnings"
)

const defaultSheet = "Sheet1"

var (
	summaryHeader = []interface{}{
		"Brand", "SKUs", "Matched", "Match rate", "Stock", "Views", "Cart adds", "Purchases",
		"Revenue", "CVR %", "Problem", "Opportunity", "Low confidence",
	}
	recordHeader = []interface{}{
		"Brand", "SKU", "Product class", "Name", "Color", "Size", "Stock", "Views", "Cart adds",
		"Purchases", "Revenue", "CVR %", "Product URL",
	}
	untrackedHeader = []interface{}{"SKU", "Item name", "Views", "Cart adds", "Purchases", "Revenue", "Rows"}
	thresholdHeader = []interface{}{
		"Brand", "Sample size", "Stock p30", "Stock p50", "Stock p70", "Stock cutoff",
		"Revenue p30", "Revenue p50", "Revenue p70", "Revenue cutoff",
		"Views p30", "Views p50", "Views p70", "Views cutoff", "Low confidence",
	}
	warningHeader = []interface{}{"Kind", "Source", "Row", "Field", "Value", "Brand", "Message"}

	csvHeader = []string{
		"brand", "sku_id", "product_class_id", "product_name", "color_name", "size", "price",
		"total_stock", "views", "add_to_cart", "purchases", "revenue", "purchase_rate", "cvr",
		"cart_rate", "stock_efficiency", "matched", "segments", "low_confidence", "product_url",
	}
)

// WriteWorkbook renders a run result as an xlsx workbook.
func WriteWorkbook(w io.Writer, res models.RunResult) error {
	f := excelize.NewFile()

	sheets := []struct {
		name   string
		header []interface{}
		rows   [][]interface{}
	}{
		{SheetSummary, summaryHeader, summaryRows(res.Summaries)},
		{SheetProblem, recordHeader, recordRows(service.SegmentMembers(res.Merged, models.SegmentProblem, 0))},
		{SheetOpportunity, recordHeader, recordRows(service.SegmentMembers(res.Merged, models.SegmentOpportunity, 0))},
		{SheetUntracked, untrackedHeader, untrackedRows(res.Untracked)},
		{SheetThresholds, thresholdHeader, thresholdRows(res.Thresholds)},
		{SheetWarnings, warningHeader, warningRows(res.Warnings)},
	}

	for _, s := range sheets {
		f.NewSheet(s.name)
		if err := writeRows(f, s.name, s.header, s.rows); err != nil {
			return err
		}
	}
	f.DeleteSheet(defaultSheet)
	f.SetActiveSheet(f.GetSheetIndex(SheetSummary))

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "failed to write workbook")
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrapf(err, "failed to write %s header", sheet)
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return errors.Wrapf(err, "failed to write %s row %d", sheet, i+2)
		}
	}
	return nil
}

func summaryRows(summaries []models.BrandSummary) [][]interface{} {
	rows := make([][]interface{}, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []interface{}{
			s.Brand, s.SKUCount, s.MatchedCount, round(s.MatchRate, 4), s.TotalStock, s.TotalViews,
			s.TotalCartAdds, s.TotalPurchases, s.TotalRevenue.InexactFloat64(), round(s.OverallCVR, 2),
			s.ProblemCount, s.OpportunityCount, s.LowConfidence,
		})
	}
	return rows
}

func recordRows(records []models.MergedRecord) [][]interface{} {
	rows := make([][]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, []interface{}{
			r.Brand, r.SKU, r.ProductClassID, r.Name, r.Color, r.Size, r.Stock, r.Views, r.CartAdds,
			r.Purchases, r.Revenue.InexactFloat64(), round(r.CVR, 2), r.ProductURL,
		})
	}
	return rows
}

func untrackedRows(untracked []models.UntrackedMetric) [][]interface{} {
	rows := make([][]interface{}, 0, len(untracked))
	for _, u := range untracked {
		rows = append(rows, []interface{}{
			u.SKU, u.ItemName, u.Views, u.CartAdds, u.Purchases, u.Revenue.InexactFloat64(), u.Occurrences,
		})
	}
	return rows
}

func thresholdRows(thresholds []models.BrandThresholds) [][]interface{} {
	rows := make([][]interface{}, 0, len(thresholds))
	for _, t := range thresholds {
		rows = append(rows, []interface{}{
			t.Brand, t.SampleSize,
			t.Stock.P30, t.Stock.P50, t.Stock.P70, t.Stock.Cutoff,
			t.Revenue.P30, t.Revenue.P50, t.Revenue.P70, t.Revenue.Cutoff,
			t.Views.P30, t.Views.P50, t.Views.P70, t.Views.Cutoff,
			t.LowConfidence,
		})
	}
	return rows
}

func warningRows(warnings []models.Warning) [][]interface{} {
	rows := make([][]interface{}, 0, len(warnings))
	for _, w := range warnings {
		var row interface{} = ""
		if w.Row > 0 {
			row = w.Row
		}
		rows = append(rows, []interface{}{string(w.Kind), w.Source, row, w.Field, w.Value, w.Brand, w.Message})
	}
	return rows
}

// WriteCSV writes merged records, one line per product master row.
func WriteCSV(w io.Writer, records []models.MergedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "failed to write csv header")
	}
	for _, r := range records {
		segs := make([]string, 0, len(r.Segments))
		for _, s := range r.Segments {
			segs = append(segs, string(s))
		}
		line := []string{
			r.Brand, r.SKU, r.ProductClassID, r.Name, r.Color, r.Size, r.Price.String(),
			strconv.Itoa(r.Stock), strconv.Itoa(r.Views), strconv.Itoa(r.CartAdds), strconv.Itoa(r.Purchases),
			r.Revenue.String(), formatFloat(r.PurchaseRate, 6), formatFloat(r.CVR, 2),
			formatFloat(r.CartRate, 2), formatFloat(r.StockEfficiency, 2), strconv.FormatBool(r.Matched),
			strings.Join(segs, "|"), strconv.FormatBool(r.LowConfidence), r.ProductURL,
		}
		if err := cw.Write(line); err != nil {
			return errors.Wrap(err, "failed to write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "failed to flush csv")
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func round(v float64, prec int) float64 {
	f, _ := strconv.ParseFloat(formatFloat(v, prec), 64)
	return f
}
