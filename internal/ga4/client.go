package ga4

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"stockinsight/internal/config"
	"stockinsight/internal/models"
	"stockinsight/internal/service"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"
)

// Period names accepted by Window.
const (
	PeriodYesterday = "yesterday"
	PeriodThreeDays = "3days"
	PeriodWeekly    = "weekly"
	PeriodCustom    = "custom"
)

const (
	pageSize       = 100000
	maxConcurrency = 4
	dateLayout     = "2006-01-02"
)

var (
	dimensions = []string{"itemId", "itemName"}
	metrics    = []string{"itemsViewed", "itemsAddedToCart", "itemsPurchased", "itemRevenue"}
)

// reportRunner runs one runReport call against a property.
type reportRunner interface {
	RunReport(ctx context.Context, property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error)
}

type serviceRunner struct {
	svc *analyticsdata.Service
}

func (s serviceRunner) RunReport(ctx context.Context, property string, req *analyticsdata.RunReportRequest) (*analyticsdata.RunReportResponse, error) {
	return s.svc.Properties.RunReport(property, req).Context(ctx).Do()
}

// Result is the metrics fetched for one brand.
type Result struct {
	Brand    string                 `json:"brand"`
	Period   models.Period          `json:"period"`
	Records  []models.MetricsRecord `json:"-"`
	Warnings []models.Warning       `json:"-"`
	Err      error                  `json:"-"`
}

// Client fetches item reports from the GA4 Data API.
type Client struct {
	runner     reportRunner
	properties map[string]string
	timeout    time.Duration
}

// NewClient builds a client from service account credentials; CredentialsJSON may be
// the JSON document itself or a path to it.
func NewClient(ctx context.Context, cfg config.GA4Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("GA4 credentials or properties are not configured")
	}
	creds := strings.TrimSpace(cfg.CredentialsJSON)
	opts := []option.ClientOption{option.WithScopes(analyticsdata.AnalyticsReadonlyScope)}
	if strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	svc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create analytics data service")
	}
	return newClient(serviceRunner{svc: svc}, cfg), nil
}

func newClient(runner reportRunner, cfg config.GA4Config) *Client {
	props := make(map[string]string, len(cfg.Properties))
	for brand, id := range cfg.Properties {
		if id = strings.TrimSpace(id); id != "" {
			props[strings.ToLower(strings.TrimSpace(brand))] = id
		}
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{runner: runner, properties: props, timeout: timeout}
}

// Brands lists configured brands in sorted order.
func (c *Client) Brands() []string {
	brands := make([]string, 0, len(c.properties))
	for b := range c.properties {
		brands = append(brands, b)
	}
	sort.Strings(brands)
	return brands
}

// Window returns the inclusive date range of a named period ending yesterday.
func Window(period string, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := today.AddDate(0, 0, -1)
	switch period {
	case PeriodYesterday, "":
		return end, end, nil
	case PeriodThreeDays:
		return today.AddDate(0, 0, -3), end, nil
	case PeriodWeekly:
		return today.AddDate(0, 0, -7), end, nil
	}
	return time.Time{}, time.Time{}, errors.Errorf("unknown period %q", period)
}

// Range resolves period like Window, except that PeriodCustom takes the inclusive
// YYYY-MM-DD dates start and end. A custom range may not end after today.
func Range(period, start, end string, now time.Time) (time.Time, time.Time, error) {
	if period != PeriodCustom {
		return Window(period, now)
	}
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, errors.New("custom period needs start and end")
	}
	from, err := time.ParseInLocation(dateLayout, start, now.Location())
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(err, "invalid start date %q", start)
	}
	to, err := time.ParseInLocation(dateLayout, end, now.Location())
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(err, "invalid end date %q", end)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.Errorf("start %s is after end %s", start, end)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if to.After(today) {
		return time.Time{}, time.Time{}, errors.Errorf("end %s is in the future", end)
	}
	return from, to, nil
}

// Fetch pulls the item report of one brand for the inclusive date range start..end.
func (c *Client) Fetch(ctx context.Context, brand string, start, end time.Time) (Result, error) {
	brand = strings.ToLower(strings.TrimSpace(brand))
	propertyID, ok := c.properties[brand]
	if !ok {
		return Result{}, errors.Errorf("no GA4 property configured for %q", brand)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	property := "properties/" + propertyID
	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: start.Format(dateLayout), EndDate: end.Format(dateLayout)}},
		Limit:      pageSize,
	}
	for _, d := range dimensions {
		req.Dimensions = append(req.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	for _, m := range metrics {
		req.Metrics = append(req.Metrics, &analyticsdata.Metric{Name: m})
	}

	var rows []*analyticsdata.Row
	for {
		resp, err := c.runner.RunReport(ctx, property, req)
		if err != nil {
			return Result{}, errors.Wrapf(err, "runReport failed for %s", brand)
		}
		rows = append(rows, resp.Rows...)
		if len(resp.Rows) == 0 || int64(len(rows)) >= resp.RowCount {
			break
		}
		req.Offset = int64(len(rows))
	}

	records, warnings := ToRecords(rows)
	return Result{
		Brand:    brand,
		Period:   models.NewPeriod(start, end, property),
		Records:  records,
		Warnings: warnings,
	}, nil
}

// FetchAll fetches every configured brand concurrently. A failing brand carries its
// error in the result and does not cancel the others. Results follow Brands order.
func (c *Client) FetchAll(ctx context.Context, start, end time.Time) []Result {
	brands := c.Brands()
	results := make([]Result, len(brands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for i, brand := range brands {
		i, brand := i, brand
		g.Go(func() error {
			res, err := c.Fetch(gctx, brand, start, end)
			if err != nil {
				res = Result{Brand: brand, Err: err}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ToRecords converts report rows (dimensions itemId, itemName; metrics itemsViewed,
// itemsAddedToCart, itemsPurchased, itemRevenue) into metrics records.
func ToRecords(rows []*analyticsdata.Row) ([]models.MetricsRecord, []models.Warning) {
	rn := service.NewRecordNormalizer()
	records := make([]models.MetricsRecord, 0, len(rows))
	for i, row := range rows {
		n := i + 1
		dims := values(row.DimensionValues, len(dimensions), func(v *analyticsdata.DimensionValue) string { return v.Value })
		mets := values(row.MetricValues, len(metrics), func(v *analyticsdata.MetricValue) string { return v.Value })
		if dims[0] == "(not set)" {
			dims[0] = ""
		}
		records = append(records, models.MetricsRecord{
			SKU:       dims[0],
			ItemName:  dims[1],
			Views:     rn.Int(models.SourceMetrics, n, service.FieldViews, mets[0]),
			CartAdds:  rn.Int(models.SourceMetrics, n, service.FieldCartAdds, mets[1]),
			Purchases: rn.Int(models.SourceMetrics, n, service.FieldPurchases, mets[2]),
			Revenue:   rn.Decimal(models.SourceMetrics, n, service.FieldRevenue, mets[3]),
			Row:       n,
		})
	}
	return records, rn.Warnings()
}

func values[T any](in []*T, n int, get func(*T) string) []string {
	out := make([]string, n)
	for i := 0; i < n && i < len(in); i++ {
		if in[i] != nil {
			out[i] = get(in[i])
		}
	}
	return out
}

// String describes the result for logs.
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Brand, r.Err)
	}
	return fmt.Sprintf("%s: %d rows (%s)", r.Brand, len(r.Records), r.Period.PeriodType)
}
