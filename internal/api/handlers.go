package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stockinsight/internal/analysis"
	"stockinsight/internal/config"
	"stockinsight/internal/ga4"
	"stockinsight/internal/logger"
	"stockinsight/internal/models"
	"stockinsight/internal/service"
	"stockinsight/internal/state"
	"stockinsight/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	defaultMaxUpload   = 50 << 20
	defaultListLimit   = 100
	defaultPreviewRows = 10
	maxPreviewRows     = 100
)

// ProductStore is the object storage used for product master sync and metric snapshots.
type ProductStore interface {
	DownloadProductMaster(ctx context.Context) ([]byte, storage.ObjectInfo, error)
	UploadProductMaster(ctx context.Context, content []byte) error
	SaveMetrics(ctx context.Context, snap storage.MetricsSnapshot) (string, error)
	LoadLatestMetrics(ctx context.Context, brand string) (storage.MetricsSnapshot, error)
}

// MetricsFetcher pulls metrics for every configured brand over an inclusive date range.
type MetricsFetcher interface {
	FetchAll(ctx context.Context, start, end time.Time) []ga4.Result
}

// DataSourceOpener connects to a SQL product master source.
type DataSourceOpener func(ctx context.Context, cfg service.DataSourceConfig) (service.DataSource, error)

// Options configures a Handler. Store and Fetcher may be nil when R2 or GA4 are not configured.
type Options struct {
	Thresholds     config.Thresholds
	CSVService     *analysis.CSVService
	Store          ProductStore
	Fetcher        MetricsFetcher
	OpenDataSource DataSourceOpener
	DefaultDB      service.DataSourceConfig
	URLTemplate    string
	UploadDir      string
	MaxUploadBytes int64
	// SchedulerSecret enables POST /api/scheduled-update when set.
	SchedulerSecret string
	Log             *logger.Logger
}

type Handler struct {
	Workspace  *state.Workspace
	CSVService *analysis.CSVService
	Analyzer   *service.Analyzer
	Profiler   *service.DataQualityProfiler
	Store      ProductStore
	Fetcher    MetricsFetcher

	thresholds     config.Thresholds
	openDataSource DataSourceOpener
	defaultDB      service.DataSourceConfig
	urlTemplate    string
	uploadDir      string
	maxUpload      int64
	schedulerKey   string
	log            *logger.Logger
	now            func() time.Time
}

func NewHandler(ws *state.Workspace, opts Options) *Handler {
	h := &Handler{
		Workspace:      ws,
		CSVService:     opts.CSVService,
		Analyzer:       service.NewAnalyzer(opts.Thresholds),
		Profiler:       service.NewDataQualityProfiler(),
		Store:          opts.Store,
		Fetcher:        opts.Fetcher,
		thresholds:     opts.Thresholds,
		openDataSource: opts.OpenDataSource,
		defaultDB:      opts.DefaultDB,
		urlTemplate:    opts.URLTemplate,
		uploadDir:      opts.UploadDir,
		maxUpload:      opts.MaxUploadBytes,
		schedulerKey:   opts.SchedulerSecret,
		log:            opts.Log,
		now:            time.Now,
	}
	if h.CSVService == nil {
		h.CSVService = analysis.NewCSVService(opts.URLTemplate)
	}
	if h.maxUpload <= 0 {
		h.maxUpload = defaultMaxUpload
	}
	if h.log == nil {
		h.log = logger.NewNop()
	}
	if h.openDataSource == nil {
		h.openDataSource = func(ctx context.Context, cfg service.DataSourceConfig) (service.DataSource, error) {
			return service.OpenDataSource(ctx, cfg)
		}
	}
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload/products", h.UploadProducts)
		r.Post("/upload/metrics", h.UploadMetrics)
		r.Delete("/metrics/{key}", h.DeleteMetrics)
		r.Post("/sync/r2", h.SyncR2)
		r.Post("/fetch/ga4", h.FetchGA4)
		r.Post("/scheduled-update", h.ScheduledUpdate)
		r.Post("/period/{period}", h.SwitchPeriod)
		r.Get("/db/tables", h.ListTables)
		r.Get("/db/tables/{table}/preview", h.PreviewTable)
		r.Post("/db/products", h.LoadDBProducts)

		r.Post("/analyze", h.Analyze)
		r.Get("/status", h.GetStatus)
		r.Get("/brands", h.GetBrands)
		r.Get("/brands/{brand}", h.GetBrand)
		r.Get("/products", h.GetProducts)
		r.Get("/untracked", h.GetUntracked)
		r.Get("/warnings", h.GetWarnings)
		r.Get("/export/xlsx", h.ExportXLSX)
		r.Get("/export/csv", h.ExportCSV)
	})
}

// ============================================================================
// Health
// ============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// ============================================================================
// Uploads
// ============================================================================

// UploadProducts replaces the product master with an uploaded CSV
func (h *Handler) UploadProducts(w http.ResponseWriter, r *http.Request) {
	content, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	up, err := h.CSVService.LoadProductMaster(bytes.NewReader(content))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse product master: %v", err), http.StatusBadRequest)
		return
	}
	h.saveUpload("products", filename, content)

	h.Workspace.SetProductMaster(state.ProductMaster{
		FileName: filename,
		Source:   state.SourceUpload,
		Products: up.Products,
		Warnings: up.Warnings,
	})

	resp := models.UploadResponse{
		Message:  fmt.Sprintf("File '%s' uploaded successfully", filename),
		FileName: filename,
		Source:   state.SourceUpload,
		Rows:     len(up.Products),
		Encoding: up.Encoding,
		Warnings: len(up.Warnings),
	}
	if h.Store != nil {
		if err := h.Store.UploadProductMaster(r.Context(), content); err != nil {
			h.log.Warn("product master not synced to R2", "file", filename, "error", err)
		} else {
			resp.SyncedToR2 = true
		}
	}
	h.log.Info("product master uploaded", "file", filename, "rows", resp.Rows, "warnings", resp.Warnings, "encoding", up.Encoding)
	writeJSON(w, http.StatusOK, resp)
}

// UploadMetrics adds a GA4 export. The brand form field keys the batch; a later upload
// with the same key replaces it.
func (h *Handler) UploadMetrics(w http.ResponseWriter, r *http.Request) {
	content, filename, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	up, err := h.CSVService.LoadMetrics(bytes.NewReader(content))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse metrics: %v", err), http.StatusBadRequest)
		return
	}
	key := metricsKey(r.FormValue("brand"))
	if key == "" {
		key = metricsKey(strings.TrimSuffix(strings.ToLower(filename), ".csv"))
	}
	h.saveUpload("metrics_"+key, filename, content)

	h.Workspace.PutMetrics(state.MetricsBatch{
		Key:      key,
		FileName: filename,
		Source:   state.SourceUpload,
		Period:   up.Period,
		Records:  up.Records,
		Warnings: up.Warnings,
	})

	h.log.Info("metrics uploaded", "key", key, "file", filename, "rows", len(up.Records), "warnings", len(up.Warnings))
	writeJSON(w, http.StatusOK, models.UploadResponse{
		Message:  fmt.Sprintf("File '%s' uploaded successfully", filename),
		Key:      key,
		FileName: filename,
		Source:   state.SourceUpload,
		Rows:     len(up.Records),
		Encoding: up.Encoding,
		Warnings: len(up.Warnings),
		Period:   up.Period,
	})
}

// DeleteMetrics drops a metrics batch
func (h *Handler) DeleteMetrics(w http.ResponseWriter, r *http.Request) {
	key := metricsKey(chi.URLParam(r, "key"))
	if !h.Workspace.RemoveMetrics(key) {
		http.Error(w, fmt.Sprintf("No metrics loaded for '%s'", key), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

// metricsKey normalizes a metrics batch key; uploads and deletes must agree on it.
func metricsKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		http.Error(w, "File too large or malformed form", http.StatusBadRequest)
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return nil, "", false
	}
	defer file.Close()

	// Validate file extension
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		http.Error(w, "Only CSV files are allowed", http.StatusBadRequest)
		return nil, "", false
	}

	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusBadRequest)
		return nil, "", false
	}
	return content, filepath.Base(header.Filename), true
}

// saveUpload keeps a copy of the raw upload. Failures are logged only.
func (h *Handler) saveUpload(prefix, filename string, content []byte) {
	if h.uploadDir == "" {
		return
	}
	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		h.log.Warn("failed to create upload dir", "dir", h.uploadDir, "error", err)
		return
	}
	path := filepath.Join(h.uploadDir, fmt.Sprintf("%s_%s", prefix, filename))
	if err := os.WriteFile(path, content, 0644); err != nil {
		h.log.Warn("failed to save upload", "path", path, "error", err)
	}
}

// ============================================================================
// Remote sources
// ============================================================================

// SyncR2 loads the latest product master from R2
func (h *Handler) SyncR2(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		http.Error(w, "R2 is not configured", http.StatusServiceUnavailable)
		return
	}

	content, info, err := h.Store.DownloadProductMaster(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Cause(err) == storage.ErrNotFound {
			status = http.StatusNotFound
		}
		h.log.Error("R2 download failed", "error", err)
		http.Error(w, fmt.Sprintf("Failed to download product master: %v", err), status)
		return
	}

	up, err := h.CSVService.LoadProductMaster(bytes.NewReader(content))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse product master %s: %v", info.Key, err), http.StatusUnprocessableEntity)
		return
	}

	h.Workspace.SetProductMaster(state.ProductMaster{
		FileName: info.Key,
		Source:   state.SourceR2,
		Products: up.Products,
		Warnings: up.Warnings,
	})

	h.log.Info("product master synced from R2", "key", info.Key, "rows", len(up.Products), "modified", info.LastModified)
	writeJSON(w, http.StatusOK, models.UploadResponse{
		Message:  fmt.Sprintf("Loaded '%s' from R2", info.Key),
		FileName: info.Key,
		Source:   state.SourceR2,
		Rows:     len(up.Products),
		Encoding: up.Encoding,
		Warnings: len(up.Warnings),
	})
}

// FetchGA4 pulls item reports for every configured brand. period is one of yesterday,
// 3days and weekly, or custom with start and end dates. Named periods are also kept as
// period datasets for SwitchPeriod.
func (h *Handler) FetchGA4(w http.ResponseWriter, r *http.Request) {
	if h.Fetcher == nil {
		http.Error(w, "GA4 is not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	period := q.Get("period")
	if period == "" {
		period = ga4.PeriodYesterday
	}
	start, end, err := ga4.Range(period, q.Get("start"), q.Get("end"), h.now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	batches, resp := h.fetchPeriod(r.Context(), period, start, end, true)
	for _, b := range batches {
		h.Workspace.PutMetrics(b)
	}
	if period != ga4.PeriodCustom && len(batches) > 0 {
		h.Workspace.StorePeriod(state.PeriodData{Period: period, Metrics: batches})
	}

	status := http.StatusOK
	if resp.Succeeded == 0 && resp.Failed > 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// fetchPeriod fetches start..end for every brand and turns the successful results into
// metrics batches. With snapshot set each batch is also saved to R2.
func (h *Handler) fetchPeriod(ctx context.Context, period string, start, end time.Time, snapshot bool) ([]state.MetricsBatch, models.FetchResponse) {
	resp := models.FetchResponse{Period: period, Brands: []models.BrandFetchStatus{}}
	var batches []state.MetricsBatch
	for _, res := range h.Fetcher.FetchAll(ctx, start, end) {
		st := models.BrandFetchStatus{Brand: res.Brand}
		if res.Err != nil {
			h.log.Warn("GA4 fetch failed", "brand", res.Brand, "period", period, "error", res.Err)
			st.Error = res.Err.Error()
			resp.Failed++
			resp.Brands = append(resp.Brands, st)
			continue
		}

		p := res.Period
		batches = append(batches, state.MetricsBatch{
			Key:      metricsKey(res.Brand),
			FileName: fmt.Sprintf("ga4:%s", period),
			Source:   state.SourceGA4,
			Period:   &p,
			Records:  res.Records,
			Warnings: res.Warnings,
		})
		st.Rows = len(res.Records)
		st.Period = &p

		if snapshot && h.Store != nil {
			key, err := h.Store.SaveMetrics(ctx, storage.MetricsSnapshot{
				Brand:     res.Brand,
				FetchedAt: h.now().UTC(),
				Period:    &p,
				Records:   res.Records,
			})
			if err != nil {
				h.log.Warn("failed to store metrics snapshot", "brand", res.Brand, "error", err)
			} else {
				st.SnapshotKey = key
			}
		}
		resp.Succeeded++
		resp.Brands = append(resp.Brands, st)
		h.log.Info("GA4 fetched", "period", period, "result", res.String())
	}
	return batches, resp
}

// ListTables returns tables of the configured database
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	if !h.dbConfigured() {
		http.Error(w, "No database configured", http.StatusServiceUnavailable)
		return
	}
	ds, err := h.openDataSource(r.Context(), h.defaultDB)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to connect: %v", err), http.StatusBadGateway)
		return
	}
	defer ds.Close()

	tables, err := ds.ListTables(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list tables: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

// PreviewTable returns the first rows of a table of the configured database
func (h *Handler) PreviewTable(w http.ResponseWriter, r *http.Request) {
	if !h.dbConfigured() {
		http.Error(w, "No database configured", http.StatusServiceUnavailable)
		return
	}
	limit, err := queryLimit(r, defaultPreviewRows)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if limit == 0 || limit > maxPreviewRows {
		limit = maxPreviewRows
	}

	ds, err := h.openDataSource(r.Context(), h.defaultDB)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to connect: %v", err), http.StatusBadGateway)
		return
	}
	defer ds.Close()

	table := chi.URLParam(r, "table")
	rows, err := ds.PreviewData(r.Context(), table, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to preview table: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"table": table, "rows": rows})
}

func (h *Handler) dbConfigured() bool {
	return h.defaultDB.DSN != "" || h.defaultDB.DBName != ""
}

// LoadDBProducts replaces the product master with a SQL table
func (h *Handler) LoadDBProducts(w http.ResponseWriter, r *http.Request) {
	var req models.DBLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Table) == "" {
		http.Error(w, "table is required", http.StatusBadRequest)
		return
	}

	if !h.dbConfigured() {
		http.Error(w, "No database configured", http.StatusServiceUnavailable)
		return
	}
	cfg := h.defaultDB

	ds, err := h.openDataSource(r.Context(), cfg)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to connect: %v", err), http.StatusBadGateway)
		return
	}
	defer ds.Close()

	products, warnings, err := ds.LoadProducts(r.Context(), req.Table)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load products: %v", err), http.StatusBadRequest)
		return
	}
	for i := range products {
		products[i] = service.FillProductURL(products[i], h.urlTemplate)
	}

	h.Workspace.SetProductMaster(state.ProductMaster{
		FileName: req.Table,
		Source:   state.SourceDB,
		Products: products,
		Warnings: warnings,
	})

	h.log.Info("product master loaded from database", "driver", cfg.Driver, "table", req.Table, "rows", len(products))
	writeJSON(w, http.StatusOK, models.UploadResponse{
		Message:  fmt.Sprintf("Loaded table '%s'", req.Table),
		FileName: req.Table,
		Source:   state.SourceDB,
		Rows:     len(products),
		Warnings: len(warnings),
	})
}

// ============================================================================
// Analysis
// ============================================================================

// Analyze runs the analyzer over the current workspace and stores the report
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Workspace.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report := h.runAnalysis(snap)
	h.Workspace.SetReport(report)
	if period := h.Workspace.ActivePeriod(); period != "" {
		if err := h.Workspace.SetPeriodReport(period, report); err != nil {
			h.log.Warn("report not kept for period", "period", period, "error", err)
		}
	}

	res := report.Result
	writeJSON(w, http.StatusOK, models.AnalyzeResponse{
		ReportID:  report.ID,
		CreatedAt: report.CreatedAt,
		Stats:     res.Stats,
		Period:    res.Period,
		Brands:    len(res.Summaries),
		Warnings:  len(res.Warnings),
	})
}

func (h *Handler) runAnalysis(snap models.Snapshot) models.Report {
	started := h.now()
	res := h.Analyzer.Run(snap)
	report := models.Report{ID: uuid.NewString(), CreatedAt: started.UTC(), Result: res}

	h.log.Info("analysis complete",
		"report_id", report.ID,
		"products", res.Stats.ProductRows,
		"metrics", res.Stats.MetricsRows,
		"matched", res.Stats.MatchedRecords,
		"untracked", res.Stats.UntrackedIDs,
		"problem", res.Stats.ProblemCount,
		"opportunity", res.Stats.OpportunityCount,
		"warnings", len(res.Warnings),
		"elapsed", time.Since(started).String(),
	)
	return report
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
