package models

import "time"

// UploadResponse is returned after a dataset is loaded
type UploadResponse struct {
	Message    string  `json:"message"`
	Key        string  `json:"key,omitempty"`
	FileName   string  `json:"file_name"`
	Source     string  `json:"source"`
	Rows       int     `json:"rows"`
	Encoding   string  `json:"encoding,omitempty"`
	Warnings   int     `json:"warnings"`
	Period     *Period `json:"period,omitempty"`
	SyncedToR2 bool    `json:"synced_to_r2,omitempty"`
}

// BrandFetchStatus is the GA4 outcome of one brand
type BrandFetchStatus struct {
	Brand       string  `json:"brand"`
	Rows        int     `json:"rows"`
	Period      *Period `json:"period,omitempty"`
	SnapshotKey string  `json:"snapshot_key,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// FetchResponse is returned by the GA4 fetch endpoint
type FetchResponse struct {
	Period    string             `json:"period"`
	ReportID  string             `json:"report_id,omitempty"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Brands    []BrandFetchStatus `json:"brands"`
}

// ScheduledUpdateResponse reports a fetch of every named period.
type ScheduledUpdateResponse struct {
	Timestamp    time.Time       `json:"timestamp"`
	Success      bool            `json:"success"`
	ActivePeriod string          `json:"active_period,omitempty"`
	Periods      []FetchResponse `json:"periods"`
	Errors       []string        `json:"errors"`
}

// SwitchPeriodResponse is returned after a stored period became active.
type SwitchPeriodResponse struct {
	Period   string `json:"period"`
	Batches  int    `json:"batches"`
	ReportID string `json:"report_id,omitempty"`
}

// DBLoadRequest selects a table of the configured database holding the product master
type DBLoadRequest struct {
	Table string `json:"table"`
}

// AnalyzeResponse is returned after a run
type AnalyzeResponse struct {
	ReportID  string    `json:"report_id"`
	CreatedAt time.Time `json:"created_at"`
	Stats     RunStats  `json:"stats"`
	Period    *Period   `json:"period,omitempty"`
	Brands    int       `json:"brands"`
	Warnings  int       `json:"warnings"`
}

// BrandsResponse lists brand summaries of the latest run
type BrandsResponse struct {
	ReportID string         `json:"report_id"`
	Period   *Period        `json:"period,omitempty"`
	Brands   []BrandSummary `json:"brands"`
}

// BrandDetailResponse is the per-brand dashboard
type BrandDetailResponse struct {
	Summary            BrandSummary     `json:"summary"`
	Thresholds         *BrandThresholds `json:"thresholds,omitempty"`
	Problem            []MergedRecord   `json:"problem"`
	Opportunity        []MergedRecord   `json:"opportunity"`
	TopProductsByViews []ProductGroup   `json:"top_products_by_views"`
	TopProductsRevenue []ProductGroup   `json:"top_products_by_revenue"`
}

// ProductsResponse is a filtered page of merged records
type ProductsResponse struct {
	Total   int            `json:"total"`
	Records []MergedRecord `json:"records"`
}

// UntrackedResponse lists metrics without a product master row
type UntrackedResponse struct {
	Total   int               `json:"total"`
	Records []UntrackedMetric `json:"records"`
}

// WarningsResponse lists run warnings with per-kind counts
type WarningsResponse struct {
	Total    int                 `json:"total"`
	Counts   map[WarningKind]int `json:"counts"`
	Warnings []Warning           `json:"warnings"`
}
