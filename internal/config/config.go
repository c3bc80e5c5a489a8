package config

import (
	"os"
	"sort"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds process level settings read from the environment.
type Config struct {
	Env            string   `envconfig:"APP_ENV" default:"development"`
	Port           string   `envconfig:"PORT" default:"8001"`
	UploadDir      string   `envconfig:"UPLOAD_DIR" default:"./uploads"`
	MaxUploadMB    int64    `envconfig:"MAX_UPLOAD_MB" default:"50"`
	AllowedOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000"`
	ThresholdsFile string   `envconfig:"THRESHOLDS_FILE" default:"./config/thresholds.yaml"`

	// ProductURLTemplate fills blank product page URLs. {brand} and {sku} are replaced.
	ProductURLTemplate string `envconfig:"PRODUCT_URL_TEMPLATE"`
	// ProductMasterFile seeds the product master at startup when R2 is not configured.
	ProductMasterFile string `envconfig:"PRODUCT_MASTER_FILE"`
	// SchedulerSecret is the X-Scheduler-Secret value the scheduled update endpoint
	// requires. Empty disables the endpoint.
	SchedulerSecret string `envconfig:"SCHEDULER_SECRET"`

	R2       R2Config
	GA4      GA4Config
	Database DatabaseConfig
}

// R2Config is the S3 compatible bucket holding product master files and metric snapshots.
type R2Config struct {
	EndpointURL      string `envconfig:"R2_ENDPOINT_URL"`
	AccessKeyID      string `envconfig:"R2_ACCESS_KEY_ID"`
	SecretAccessKey  string `envconfig:"R2_SECRET_ACCESS_KEY"`
	Bucket           string `envconfig:"R2_BUCKET_NAME" default:"analyzeap-data"`
	Region           string `envconfig:"R2_REGION" default:"auto"`
	ProductMasterKey string `envconfig:"R2_PRODUCT_MASTER_KEY" default:"product_master.csv"`
	MetricsPrefix    string `envconfig:"R2_METRICS_PREFIX" default:"ga4_data"`
}

// Enabled reports whether credentials for the bucket are present.
func (c R2Config) Enabled() bool {
	return c.EndpointURL != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// GA4Config configures the optional Analytics Data API client.
type GA4Config struct {
	// CredentialsJSON is either the raw service account JSON or a path to it.
	CredentialsJSON string `envconfig:"GA4_CREDENTIALS_JSON"`
	// Properties maps brand key to GA4 property id, e.g. "rady:123,solni:456".
	Properties     map[string]string `envconfig:"GA4_PROPERTIES"`
	TimeoutSeconds int               `envconfig:"GA4_TIMEOUT_SECONDS" default:"60"`
}

// Enabled reports whether credentials and at least one property are set.
func (c GA4Config) Enabled() bool {
	if strings.TrimSpace(c.CredentialsJSON) == "" {
		return false
	}
	for _, id := range c.Properties {
		if strings.TrimSpace(id) != "" {
			return true
		}
	}
	return false
}

// Brands lists the brands with a property id, lower cased and sorted.
func (c GA4Config) Brands() []string {
	brands := make([]string, 0, len(c.Properties))
	for brand, id := range c.Properties {
		if strings.TrimSpace(id) != "" {
			brands = append(brands, strings.ToLower(strings.TrimSpace(brand)))
		}
	}
	sort.Strings(brands)
	return brands
}

// DatabaseConfig is the default SQL source for product master loads.
type DatabaseConfig struct {
	Driver string `envconfig:"DB_DRIVER" default:"postgres"`
	DSN    string `envconfig:"DB_DSN"`
}

// Load reads the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, errors.Errorf("MAX_UPLOAD_MB must be positive, got %d", cfg.MaxUploadMB)
	}
	return &cfg, nil
}

// Thresholds are the classification knobs. Percentiles are expressed in 0..100.
type Thresholds struct {
	// ProblemStockPercentile: stock at or above this percentile counts as overstocked.
	ProblemStockPercentile float64 `yaml:"problem_stock_percentile" json:"problem_stock_percentile"`
	// ProblemRevenuePercentile: revenue at or below this percentile counts as low selling.
	ProblemRevenuePercentile float64 `yaml:"problem_revenue_percentile" json:"problem_revenue_percentile"`
	// OpportunityViewsPercentile: views at or above this percentile count as high demand.
	OpportunityViewsPercentile float64 `yaml:"opportunity_views_percentile" json:"opportunity_views_percentile"`
	// OpportunityStockCeiling is an absolute unit count, not a percentile.
	OpportunityStockCeiling int `yaml:"opportunity_stock_ceiling" json:"opportunity_stock_ceiling"`
	// OpportunityPurchaseRateCeiling is a fraction of views (0.05 = 5%).
	OpportunityPurchaseRateCeiling float64 `yaml:"opportunity_purchase_rate_ceiling" json:"opportunity_purchase_rate_ceiling"`
	// MinBrandSKUs below which brand thresholds are flagged low confidence.
	MinBrandSKUs int `yaml:"min_brand_skus" json:"min_brand_skus"`
	// TopN is the length of per-brand ranking lists.
	TopN int `yaml:"top_n" json:"top_n"`
	// ExcludedBrands never appear in brand summaries.
	ExcludedBrands []string `yaml:"excluded_brands" json:"excluded_brands"`
}

// DefaultThresholds returns the stock analysis defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ProblemStockPercentile:         70,
		ProblemRevenuePercentile:       30,
		OpportunityViewsPercentile:     70,
		OpportunityStockCeiling:        5,
		OpportunityPurchaseRateCeiling: 0.05,
		MinBrandSKUs:                   5,
		TopN:                           10,
	}
}

// Validate checks ranges.
func (t Thresholds) Validate() error {
	for name, p := range map[string]float64{
		"problem_stock_percentile":     t.ProblemStockPercentile,
		"problem_revenue_percentile":   t.ProblemRevenuePercentile,
		"opportunity_views_percentile": t.OpportunityViewsPercentile,
	} {
		if p < 0 || p > 100 {
			return errors.Errorf("%s must be within 0..100, got %v", name, p)
		}
	}
	if t.OpportunityStockCeiling < 0 {
		return errors.Errorf("opportunity_stock_ceiling must be >= 0, got %d", t.OpportunityStockCeiling)
	}
	if t.OpportunityPurchaseRateCeiling < 0 || t.OpportunityPurchaseRateCeiling > 1 {
		return errors.Errorf("opportunity_purchase_rate_ceiling must be within 0..1, got %v", t.OpportunityPurchaseRateCeiling)
	}
	if t.MinBrandSKUs < 0 {
		return errors.Errorf("min_brand_skus must be >= 0, got %d", t.MinBrandSKUs)
	}
	if t.TopN <= 0 {
		return errors.Errorf("top_n must be positive, got %d", t.TopN)
	}
	return nil
}

// IsExcluded reports whether brand is in the exclusion list (case-insensitive).
func (t Thresholds) IsExcluded(brand string) bool {
	for _, b := range t.ExcludedBrands {
		if strings.EqualFold(strings.TrimSpace(b), strings.TrimSpace(brand)) {
			return true
		}
	}
	return false
}

// LoadThresholds reads a YAML file over the defaults. A missing file yields the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, errors.Wrapf(err, "failed to read thresholds file %s", path)
	}
	return ParseThresholds(data)
}

// ParseThresholds decodes YAML over the defaults and validates the result.
func ParseThresholds(data []byte) (Thresholds, error) {
	t := DefaultThresholds()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, errors.Wrap(err, "failed to parse thresholds yaml")
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}
