package state

import (
	"sync"
	"testing"
	"time"

	"stockinsight/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRequiresInputs(t *testing.T) {
	ws := NewWorkspace()

	_, err := ws.Snapshot()
	assert.ErrorIs(t, err, ErrNoProducts)

	ws.SetProductMaster(ProductMaster{FileName: "master.csv", Products: []models.ProductRecord{{SKU: "A"}}})
	_, err = ws.Snapshot()
	assert.ErrorIs(t, err, ErrNoMetrics)
}

func TestSnapshotCombinesBatches(t *testing.T) {
	ws := NewWorkspace()
	ws.SetProductMaster(ProductMaster{
		FileName: "master.csv",
		Products: []models.ProductRecord{{SKU: "A"}, {SKU: "B"}},
		Warnings: []models.Warning{{Kind: models.WarningMissingColumn}},
	})
	start := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
	period := models.NewPeriod(start, start.AddDate(0, 0, 6), "rady")
	ws.PutMetrics(MetricsBatch{Key: "rady", Records: []models.MetricsRecord{{SKU: "A", Views: 1}}})
	ws.PutMetrics(MetricsBatch{Key: "solni", Period: &period, Records: []models.MetricsRecord{{SKU: "B", Views: 2}}})

	snap, err := ws.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Products, 2)
	require.Len(t, snap.Metrics, 2)
	assert.Equal(t, "A", snap.Metrics[0].SKU)
	assert.Len(t, snap.Warnings, 1)
	require.NotNil(t, snap.Period)
	assert.Equal(t, 7, snap.Period.Days)

	// the snapshot is a copy
	snap.Products[0].SKU = "changed"
	again, err := ws.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "A", again.Products[0].SKU)
}

func TestPutMetricsReplacesSameKey(t *testing.T) {
	ws := NewWorkspace()
	ws.PutMetrics(MetricsBatch{Key: "rady", FileName: "old.csv"})
	ws.PutMetrics(MetricsBatch{Key: "solni", FileName: "s.csv"})
	ws.PutMetrics(MetricsBatch{Key: "rady", FileName: "new.csv"})

	batches := ws.MetricsBatches()
	require.Len(t, batches, 2)
	assert.Equal(t, "new.csv", batches[0].FileName)
	assert.Equal(t, "solni", batches[1].Key)

	assert.True(t, ws.RemoveMetrics("rady"))
	assert.False(t, ws.RemoveMetrics("rady"))
	assert.Len(t, ws.MetricsBatches(), 1)
}

func TestReportAndStatus(t *testing.T) {
	ws := NewWorkspace()
	_, err := ws.Report()
	assert.ErrorIs(t, err, ErrNoReport)

	ws.SetProductMaster(ProductMaster{FileName: "master.csv", Source: SourceUpload, Products: make([]models.ProductRecord, 3)})
	ws.PutMetrics(MetricsBatch{Key: "rady", Source: SourceGA4, Records: make([]models.MetricsRecord, 2)})
	ws.SetReport(models.Report{ID: "r1", CreatedAt: time.Now()})

	rep, err := ws.Report()
	require.NoError(t, err)
	assert.Equal(t, "r1", rep.ID)

	st := ws.Status()
	require.NotNil(t, st.ProductMaster)
	assert.Equal(t, 3, st.ProductMaster.Rows)
	assert.False(t, st.ProductMaster.LoadedAt.IsZero())
	require.Len(t, st.Metrics, 1)
	assert.Equal(t, SourceGA4, st.Metrics[0].Source)
	assert.Equal(t, "r1", st.LastReportID)
}

func TestWorkspaceConcurrentAccess(t *testing.T) {
	ws := NewWorkspace()
	ws.SetProductMaster(ProductMaster{Products: []models.ProductRecord{{SKU: "A"}}})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ws.PutMetrics(MetricsBatch{Key: "rady", Records: []models.MetricsRecord{{SKU: "A"}}})
		}()
		go func() {
			defer wg.Done()
			ws.Snapshot()
			ws.Status()
		}()
	}
	wg.Wait()
	assert.Len(t, ws.MetricsBatches(), 1)
}

func TestSwitchPeriod(t *testing.T) {
	ws := NewWorkspace()
	ws.SetProductMaster(ProductMaster{Products: []models.ProductRecord{{SKU: "A"}}})
	ws.PutMetrics(MetricsBatch{Key: "manual", Records: []models.MetricsRecord{{SKU: "A", Views: 1}}})
	ws.SetReport(models.Report{ID: "manual-report"})

	assert.ErrorIs(t, ws.SwitchPeriod("weekly"), ErrNoPeriod)

	ws.StorePeriod(PeriodData{Period: "yesterday", Metrics: []MetricsBatch{{Key: "rady", Records: []models.MetricsRecord{{SKU: "A", Views: 5}}}}})
	ws.StorePeriod(PeriodData{Period: "weekly", Metrics: []MetricsBatch{
		{Key: "rady", Records: []models.MetricsRecord{{SKU: "A", Views: 30}}},
		{Key: "solni", Records: []models.MetricsRecord{{SKU: "B", Views: 7}}},
	}})
	require.NoError(t, ws.SetPeriodReport("weekly", models.Report{ID: "weekly-report"}))
	assert.ErrorIs(t, ws.SetPeriodReport("3days", models.Report{}), ErrNoPeriod)

	// storing leaves the active metrics alone
	assert.Equal(t, "", ws.ActivePeriod())
	require.Len(t, ws.MetricsBatches(), 1)

	snap, err := ws.PeriodSnapshot("weekly")
	require.NoError(t, err)
	assert.Len(t, snap.Metrics, 2)
	_, err = ws.PeriodSnapshot("3days")
	assert.ErrorIs(t, err, ErrNoPeriod)

	require.NoError(t, ws.SwitchPeriod("weekly"))
	assert.Equal(t, "weekly", ws.ActivePeriod())
	batches := ws.MetricsBatches()
	require.Len(t, batches, 2)
	assert.Equal(t, 30, batches[0].Records[0].Views)
	rep, err := ws.Report()
	require.NoError(t, err)
	assert.Equal(t, "weekly-report", rep.ID)

	// a period without a report drops the active one
	require.NoError(t, ws.SwitchPeriod("yesterday"))
	_, err = ws.Report()
	assert.ErrorIs(t, err, ErrNoReport)

	// a late report for the active period becomes the active report
	require.NoError(t, ws.SetPeriodReport("yesterday", models.Report{ID: "y-report"}))
	rep, err = ws.Report()
	require.NoError(t, err)
	assert.Equal(t, "y-report", rep.ID)

	ws.PutMetrics(MetricsBatch{Key: "upload"})
	assert.Equal(t, "", ws.ActivePeriod())

	st := ws.Status()
	require.Len(t, st.Periods, 2)
	assert.Equal(t, "weekly", st.Periods[0].Period)
	assert.Equal(t, 2, st.Periods[0].Batches)
	assert.Equal(t, 2, st.Periods[0].Rows)
	assert.Equal(t, "weekly-report", st.Periods[0].ReportID)
	assert.Equal(t, "yesterday", st.Periods[1].Period)
}
