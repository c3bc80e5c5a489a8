package state

import (
	"sort"
	"sync"
	"time"

	"stockinsight/internal/models"

	"github.com/pkg/errors"
)

// Where a dataset came from.
const (
	SourceUpload = "upload"
	SourceR2     = "r2"
	SourceGA4    = "ga4"
	SourceDB     = "database"
	SourceFile   = "file"
)

var (
	ErrNoProducts = errors.New("no product master loaded")
	ErrNoMetrics  = errors.New("no metrics loaded")
	ErrNoReport   = errors.New("no analysis has been run")
	ErrNoPeriod   = errors.New("no data stored for period")
)

// ProductMaster is the loaded product master with its parse warnings
type ProductMaster struct {
	FileName string                 `json:"file_name"`
	Source   string                 `json:"source"`
	LoadedAt time.Time              `json:"loaded_at"`
	Products []models.ProductRecord `json:"-"`
	Warnings []models.Warning       `json:"-"`
}

// MetricsBatch is one metrics load, keyed by brand
type MetricsBatch struct {
	Key      string                 `json:"key"`
	FileName string                 `json:"file_name"`
	Source   string                 `json:"source"`
	LoadedAt time.Time              `json:"loaded_at"`
	Period   *models.Period         `json:"period,omitempty"`
	Records  []models.MetricsRecord `json:"-"`
	Warnings []models.Warning       `json:"-"`
}

// PeriodData is a stored metrics set for one named period, with the report built from it.
type PeriodData struct {
	Period    string
	Metrics   []MetricsBatch
	Report    *models.Report
	UpdatedAt time.Time
}

// Status is a cheap view of what the workspace holds
type Status struct {
	ProductMaster *DatasetStatus  `json:"product_master"`
	Metrics       []DatasetStatus `json:"metrics"`
	LastReportID  string          `json:"last_report_id,omitempty"`
	LastRunAt     *time.Time      `json:"last_run_at,omitempty"`
	ActivePeriod  string          `json:"active_period,omitempty"`
	Periods       []PeriodStatus  `json:"periods"`
}

// PeriodStatus describes a stored period
type PeriodStatus struct {
	Period    string    `json:"period"`
	Batches   int       `json:"batches"`
	Rows      int       `json:"rows"`
	ReportID  string    `json:"report_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DatasetStatus describes one loaded dataset
type DatasetStatus struct {
	Key      string         `json:"key,omitempty"`
	FileName string         `json:"file_name"`
	Source   string         `json:"source"`
	Rows     int            `json:"rows"`
	Warnings int            `json:"warnings"`
	LoadedAt time.Time      `json:"loaded_at"`
	Period   *models.Period `json:"period,omitempty"`
}

// Workspace holds uploads between requests and the latest report.
// Snapshots handed to the analyzer are copies; later uploads never change a running analysis.
//
// Besides the active metrics, metrics fetched per named period are kept aside and can be
// made active with SwitchPeriod. Any direct change to the active metrics clears the
// active period name.
type Workspace struct {
	mu sync.RWMutex

	products *ProductMaster
	metrics  []*MetricsBatch
	report   *models.Report

	periods map[string]*PeriodData
	active  string
}

func NewWorkspace() *Workspace {
	return &Workspace{periods: make(map[string]*PeriodData)}
}

// SetProductMaster replaces the product master
func (w *Workspace) SetProductMaster(pm ProductMaster) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pm.LoadedAt.IsZero() {
		pm.LoadedAt = time.Now()
	}
	w.products = &pm
}

// ProductMaster returns the current product master, nil when none is loaded
func (w *Workspace) ProductMaster() *ProductMaster {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.products == nil {
		return nil
	}
	pm := *w.products
	return &pm
}

// PutMetrics adds a batch, replacing an earlier batch with the same key in place
func (w *Workspace) PutMetrics(batch MetricsBatch) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if batch.LoadedAt.IsZero() {
		batch.LoadedAt = time.Now()
	}
	w.active = ""
	for i, b := range w.metrics {
		if b.Key == batch.Key {
			w.metrics[i] = &batch
			return
		}
	}
	w.metrics = append(w.metrics, &batch)
}

// RemoveMetrics drops the batch with key, reporting whether it existed
func (w *Workspace) RemoveMetrics(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, b := range w.metrics {
		if b.Key == key {
			w.metrics = append(w.metrics[:i], w.metrics[i+1:]...)
			w.active = ""
			return true
		}
	}
	return false
}

// MetricsBatches returns the batches in load order
func (w *Workspace) MetricsBatches() []MetricsBatch {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]MetricsBatch, 0, len(w.metrics))
	for _, b := range w.metrics {
		out = append(out, *b)
	}
	return out
}

// Snapshot copies the current inputs. Metrics batches are concatenated in load order
// and the first batch carrying a period supplies it.
func (w *Workspace) Snapshot() (models.Snapshot, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.snapshot(w.metrics)
}

// PeriodSnapshot is Snapshot over the metrics stored for period instead of the active ones.
func (w *Workspace) PeriodSnapshot(period string) (models.Snapshot, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	pd, ok := w.periods[period]
	if !ok {
		return models.Snapshot{}, errors.Wrap(ErrNoPeriod, period)
	}
	batches := make([]*MetricsBatch, 0, len(pd.Metrics))
	for i := range pd.Metrics {
		batches = append(batches, &pd.Metrics[i])
	}
	return w.snapshot(batches)
}

func (w *Workspace) snapshot(batches []*MetricsBatch) (models.Snapshot, error) {
	if w.products == nil {
		return models.Snapshot{}, ErrNoProducts
	}
	if len(batches) == 0 {
		return models.Snapshot{}, ErrNoMetrics
	}

	snap := models.Snapshot{
		Products: append([]models.ProductRecord(nil), w.products.Products...),
	}
	snap.Warnings = append(snap.Warnings, w.products.Warnings...)
	for _, b := range batches {
		snap.Metrics = append(snap.Metrics, b.Records...)
		snap.Warnings = append(snap.Warnings, b.Warnings...)
		if snap.Period == nil && b.Period != nil {
			p := *b.Period
			snap.Period = &p
		}
	}
	return snap, nil
}

// StorePeriod keeps pd under its period name, replacing what was stored before.
// The active metrics are left alone.
func (w *Workspace) StorePeriod(pd PeriodData) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pd.UpdatedAt.IsZero() {
		pd.UpdatedAt = time.Now()
	}
	pd.Metrics = append([]MetricsBatch(nil), pd.Metrics...)
	w.periods[pd.Period] = &pd
}

// SetPeriodReport attaches a report to a stored period.
func (w *Workspace) SetPeriodReport(period string, r models.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	pd, ok := w.periods[period]
	if !ok {
		return errors.Wrap(ErrNoPeriod, period)
	}
	pd.Report = &r
	if w.active == period {
		w.report = &r
	}
	return nil
}

// SwitchPeriod makes the metrics stored for period the active metrics. The active
// report becomes the period's report, or none when the period was never analyzed.
func (w *Workspace) SwitchPeriod(period string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	pd, ok := w.periods[period]
	if !ok || len(pd.Metrics) == 0 {
		return errors.Wrap(ErrNoPeriod, period)
	}
	w.metrics = make([]*MetricsBatch, 0, len(pd.Metrics))
	for _, b := range pd.Metrics {
		b := b
		w.metrics = append(w.metrics, &b)
	}
	w.report = nil
	if pd.Report != nil {
		r := *pd.Report
		w.report = &r
	}
	w.active = period
	return nil
}

// ActivePeriod names the stored period the active metrics came from, "" when they
// were loaded directly.
func (w *Workspace) ActivePeriod() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active
}

// SetReport stores the latest report
func (w *Workspace) SetReport(r models.Report) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.report = &r
}

// Report returns the latest report
func (w *Workspace) Report() (models.Report, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.report == nil {
		return models.Report{}, ErrNoReport
	}
	return *w.report, nil
}

// Status summarizes loaded datasets
func (w *Workspace) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	st := Status{Metrics: []DatasetStatus{}, Periods: []PeriodStatus{}, ActivePeriod: w.active}
	if w.products != nil {
		st.ProductMaster = &DatasetStatus{
			FileName: w.products.FileName,
			Source:   w.products.Source,
			Rows:     len(w.products.Products),
			Warnings: len(w.products.Warnings),
			LoadedAt: w.products.LoadedAt,
		}
	}
	for _, b := range w.metrics {
		st.Metrics = append(st.Metrics, DatasetStatus{
			Key:      b.Key,
			FileName: b.FileName,
			Source:   b.Source,
			Rows:     len(b.Records),
			Warnings: len(b.Warnings),
			LoadedAt: b.LoadedAt,
			Period:   b.Period,
		})
	}
	if w.report != nil {
		st.LastReportID = w.report.ID
		created := w.report.CreatedAt
		st.LastRunAt = &created
	}
	for name, pd := range w.periods {
		ps := PeriodStatus{Period: name, Batches: len(pd.Metrics), UpdatedAt: pd.UpdatedAt}
		for _, b := range pd.Metrics {
			ps.Rows += len(b.Records)
		}
		if pd.Report != nil {
			ps.ReportID = pd.Report.ID
		}
		st.Periods = append(st.Periods, ps)
	}
	sort.Slice(st.Periods, func(i, j int) bool { return st.Periods[i].Period < st.Periods[j].Period })
	return st
}
