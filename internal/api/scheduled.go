package api

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"stockinsight/internal/analysis"
	"stockinsight/internal/ga4"
	"stockinsight/internal/models"
	"stockinsight/internal/state"
	"stockinsight/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

const schedulerHeader = "X-Scheduler-Secret"

// scheduledPeriods are fetched by a scheduled update. The first one with data becomes active.
var scheduledPeriods = []string{ga4.PeriodYesterday, ga4.PeriodWeekly, ga4.PeriodThreeDays}

// ScheduledUpdate fetches every named period, keeps each as a period dataset and
// analyzes it when a product master is loaded. Meant for an external scheduler.
func (h *Handler) ScheduledUpdate(w http.ResponseWriter, r *http.Request) {
	if h.schedulerKey == "" {
		http.Error(w, "Scheduled updates are disabled", http.StatusServiceUnavailable)
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.Header.Get(schedulerHeader)), []byte(h.schedulerKey)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if h.Fetcher == nil {
		http.Error(w, "GA4 is not configured", http.StatusServiceUnavailable)
		return
	}

	now := h.now()
	resp := models.ScheduledUpdateResponse{
		Timestamp: now.UTC(),
		Periods:   []models.FetchResponse{},
		Errors:    []string{},
	}
	for _, period := range scheduledPeriods {
		start, end, err := ga4.Window(period, now)
		if err != nil {
			resp.Errors = append(resp.Errors, err.Error())
			continue
		}
		batches, fr := h.fetchPeriod(r.Context(), period, start, end, false)
		if fr.Failed > 0 {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %d of %d brands failed", period, fr.Failed, fr.Failed+fr.Succeeded))
		}
		if len(batches) == 0 {
			resp.Periods = append(resp.Periods, fr)
			continue
		}

		h.Workspace.StorePeriod(state.PeriodData{Period: period, Metrics: batches})
		snap, err := h.Workspace.PeriodSnapshot(period)
		switch {
		case err == nil:
			report := h.runAnalysis(snap)
			if err := h.Workspace.SetPeriodReport(period, report); err != nil {
				resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", period, err))
			} else {
				fr.ReportID = report.ID
			}
		case errors.Cause(err) != state.ErrNoProducts:
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", period, err))
		}
		resp.Periods = append(resp.Periods, fr)
	}

	for _, period := range scheduledPeriods {
		if h.Workspace.SwitchPeriod(period) == nil {
			resp.ActivePeriod = period
			break
		}
	}
	resp.Success = len(resp.Errors) == 0

	status := http.StatusOK
	if resp.ActivePeriod == "" {
		status = http.StatusBadGateway
	}
	h.log.Info("scheduled update finished", "active_period", resp.ActivePeriod, "errors", len(resp.Errors))
	writeJSON(w, status, resp)
}

// SwitchPeriod makes a stored period dataset, and its report, the active one
func (h *Handler) SwitchPeriod(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	if period == ga4.PeriodCustom {
		http.Error(w, "Custom ranges are not kept as periods", http.StatusBadRequest)
		return
	}
	if _, _, err := ga4.Window(period, h.now()); err != nil || period == "" {
		http.Error(w, fmt.Sprintf("Unknown period '%s'", period), http.StatusBadRequest)
		return
	}
	if err := h.Workspace.SwitchPeriod(period); err != nil {
		http.Error(w, fmt.Sprintf("No %s data has been fetched yet", period), http.StatusNotFound)
		return
	}

	resp := models.SwitchPeriodResponse{Period: period, Batches: len(h.Workspace.MetricsBatches())}
	if rep, err := h.Workspace.Report(); err == nil {
		resp.ReportID = rep.ID
	}
	h.log.Info("switched period", "period", period, "report_id", resp.ReportID)
	writeJSON(w, http.StatusOK, resp)
}

// Bootstrap restores the workspace at startup. The product master comes from R2, or
// from productFile when R2 is not configured. With R2 the newest stored metrics snapshot
// of each brand is loaded too, and the workspace is analyzed once both are present.
// Brands without a snapshot are skipped.
func (h *Handler) Bootstrap(ctx context.Context, productFile string, brands []string) error {
	var (
		up     analysis.ProductUpload
		name   string
		source string
	)
	switch {
	case h.Store != nil:
		content, info, err := h.Store.DownloadProductMaster(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to download product master")
		}
		up, err = h.CSVService.LoadProductMaster(bytes.NewReader(content))
		if err != nil {
			return errors.Wrapf(err, "failed to parse %s", info.Key)
		}
		name, source = info.Key, state.SourceR2
	case productFile != "":
		var err error
		up, err = h.CSVService.LoadProductMasterFile(productFile)
		if err != nil {
			return err
		}
		name, source = productFile, state.SourceFile
	default:
		return nil
	}
	h.Workspace.SetProductMaster(state.ProductMaster{
		FileName: name,
		Source:   source,
		Products: up.Products,
		Warnings: up.Warnings,
	})
	h.log.Info("product master restored", "source", source, "file", name, "rows", len(up.Products))

	if h.Store == nil {
		return nil
	}
	for _, brand := range brands {
		snap, err := h.Store.LoadLatestMetrics(ctx, brand)
		if err != nil {
			if errors.Cause(err) == storage.ErrNotFound {
				h.log.Info("no stored metrics", "brand", brand)
			} else {
				h.log.Warn("failed to load stored metrics", "brand", brand, "error", err)
			}
			continue
		}
		h.Workspace.PutMetrics(state.MetricsBatch{
			Key:      metricsKey(brand),
			FileName: fmt.Sprintf("r2:%s", snap.FetchedAt.Format("20060102-150405")),
			Source:   state.SourceR2,
			Period:   snap.Period,
			Records:  snap.Records,
		})
		h.log.Info("metrics restored", "brand", brand, "rows", len(snap.Records), "fetched_at", snap.FetchedAt)
	}

	snap, err := h.Workspace.Snapshot()
	if err != nil {
		return nil
	}
	h.Workspace.SetReport(h.runAnalysis(snap))
	return nil
}
