package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"stockinsight/internal/config"
	"stockinsight/internal/export"
	"stockinsight/internal/models"
	"stockinsight/internal/service"
	"stockinsight/internal/state"

	"github.com/go-chi/chi/v5"
)

// StatusResponse is returned by /api/status
type StatusResponse struct {
	Workspace   state.Status                 `json:"workspace"`
	DataQuality []service.DataQualityProfile `json:"data_quality"`
	R2Enabled   bool                         `json:"r2_enabled"`
	GA4Enabled  bool                         `json:"ga4_enabled"`
	Thresholds  config.Thresholds            `json:"thresholds"`
}

// GetStatus reports loaded datasets and identifier quality
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	var snap models.Snapshot
	if pm := h.Workspace.ProductMaster(); pm != nil {
		snap.Products = pm.Products
	}
	for _, b := range h.Workspace.MetricsBatches() {
		snap.Metrics = append(snap.Metrics, b.Records...)
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Workspace:   h.Workspace.Status(),
		DataQuality: h.Profiler.ProfileSnapshot(snap),
		R2Enabled:   h.Store != nil,
		GA4Enabled:  h.Fetcher != nil,
		Thresholds:  h.thresholds,
	})
}

// latestReport writes 404 and returns false when nothing has been analyzed yet
func (h *Handler) latestReport(w http.ResponseWriter) (models.Report, bool) {
	rep, err := h.Workspace.Report()
	if err != nil {
		http.Error(w, "No analysis has been run yet", http.StatusNotFound)
		return models.Report{}, false
	}
	return rep, true
}

// GetBrands lists brand summaries of the latest report
func (h *Handler) GetBrands(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latestReport(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.BrandsResponse{
		ReportID: rep.ID,
		Period:   rep.Result.Period,
		Brands:   rep.Result.Summaries,
	})
}

// GetBrand returns one brand's summary, segment lists and product class rankings
func (h *Handler) GetBrand(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latestReport(w)
	if !ok {
		return
	}
	brand := chi.URLParam(r, "brand")
	limit, err := queryLimit(r, defaultListLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var resp *models.BrandDetailResponse
	for _, s := range rep.Result.Summaries {
		if strings.EqualFold(strings.TrimSpace(s.Brand), strings.TrimSpace(brand)) {
			resp = &models.BrandDetailResponse{Summary: s}
			break
		}
	}
	if resp == nil {
		http.Error(w, fmt.Sprintf("Brand '%s' not found", brand), http.StatusNotFound)
		return
	}
	for i, th := range rep.Result.Thresholds {
		if strings.EqualFold(th.Brand, resp.Summary.Brand) {
			resp.Thresholds = &rep.Result.Thresholds[i]
			break
		}
	}

	records := service.FilterByBrand(rep.Result.Merged, resp.Summary.Brand)
	resp.Problem = nonNil(service.SegmentMembers(records, models.SegmentProblem, limit))
	resp.Opportunity = nonNil(service.SegmentMembers(records, models.SegmentOpportunity, limit))
	resp.TopProductsByViews = service.GroupByProductClass(records, service.SortByViews, h.thresholds.TopN)
	resp.TopProductsRevenue = service.GroupByProductClass(records, service.SortByRevenue, h.thresholds.TopN)

	writeJSON(w, http.StatusOK, resp)
}

// GetProducts lists merged records, optionally by brand and segment
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latestReport(w)
	if !ok {
		return
	}
	limit, err := queryLimit(r, defaultListLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records := service.FilterByBrand(rep.Result.Merged, r.URL.Query().Get("brand"))
	switch seg := models.Segment(strings.ToLower(r.URL.Query().Get("segment"))); seg {
	case "":
	case models.SegmentProblem, models.SegmentOpportunity:
		records = service.SegmentMembers(records, seg, 0)
	default:
		http.Error(w, fmt.Sprintf("Unknown segment '%s'", seg), http.StatusBadRequest)
		return
	}

	total := len(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	writeJSON(w, http.StatusOK, models.ProductsResponse{Total: total, Records: nonNil(records)})
}

// GetUntracked lists metrics rows with no product master counterpart
func (h *Handler) GetUntracked(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latestReport(w)
	if !ok {
		return
	}
	limit, err := queryLimit(r, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records := rep.Result.Untracked
	total := len(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	writeJSON(w, http.StatusOK, models.UntrackedResponse{Total: total, Records: records})
}

// GetWarnings lists run warnings, optionally of one kind
func (h *Handler) GetWarnings(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latestReport(w)
	if !ok {
		return
	}
	kind := models.WarningKind(r.URL.Query().Get("kind"))

	resp := models.WarningsResponse{Counts: map[models.WarningKind]int{}, Warnings: []models.Warning{}}
	for _, wn := range rep.Result.Warnings {
		resp.Counts[wn.Kind]++
		if kind == "" || wn.Kind == kind {
			resp.Warnings = append(resp.Warnings, wn)
		}
	}
	resp.Total = len(resp.Warnings)
	writeJSON(w, http.StatusOK, resp)
}

// ExportXLSX downloads the latest report as a workbook
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latestReport(w)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteWorkbook(&buf, rep.Result); err != nil {
		h.log.Error("xlsx export failed", "report_id", rep.ID, "error", err)
		http.Error(w, "Failed to build workbook", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(rep, "xlsx")))
	w.Write(buf.Bytes())
}

// ExportCSV downloads merged records, optionally of one brand
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latestReport(w)
	if !ok {
		return
	}
	records := service.FilterByBrand(rep.Result.Merged, r.URL.Query().Get("brand"))

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, records); err != nil {
		h.log.Error("csv export failed", "report_id", rep.ID, "error", err)
		http.Error(w, "Failed to build csv", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(rep, "csv")))
	w.Write(buf.Bytes())
}

func exportName(rep models.Report, ext string) string {
	return fmt.Sprintf("stockinsight_%s.%s", rep.CreatedAt.Format("20060102_150405"), ext)
}

func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return n, nil
}

func nonNil(records []models.MergedRecord) []models.MergedRecord {
	if records == nil {
		return []models.MergedRecord{}
	}
	return records
}
