package service

import (
	"fmt"
	"strings"

	"stockinsight/internal/models"

	"github.com/pkg/errors"
)

// Canonical field names of the product master.
const (
	FieldSKU            = "sku_id"
	FieldProductClassID = "product_class_id"
	FieldBrand          = "brand"
	FieldProductName    = "product_name"
	FieldColorName      = "color_name"
	FieldColorTag       = "color_tag"
	FieldSize           = "size"
	FieldPrice          = "price"
	FieldWebStock       = "web_stock"
	FieldAdjustStock    = "adjust_stock"
	FieldExpectedStock  = "expected_stock"
	FieldProductURL     = "product_url"
	FieldImageURL       = "image_url"
	FieldPublishStatus  = "publish_status"
	FieldSalesStatus    = "sales_status"
)

// Canonical field names of the metrics export.
const (
	FieldItemName  = "item_name"
	FieldViews     = "views"
	FieldCartAdds  = "add_to_cart"
	FieldPurchases = "purchases"
	FieldRevenue   = "revenue"
)

// ProductColumns maps product master headers to fields. Keys are matched after
// trimming and lower-casing; canonical names map to themselves.
var ProductColumns = map[string]string{
	"SKU商品ID":    FieldSKU,
	"商品ID（型単位）":  FieldProductClassID,
	"ブランド名":      FieldBrand,
	"商品名":        FieldProductName,
	"カラー名":       FieldColorName,
	"カラータグ":      FieldColorTag,
	"サイズ名":       FieldSize,
	"販売価格":       FieldPrice,
	"WEB在庫":      FieldWebStock,
	"調整在庫":       FieldAdjustStock,
	"見込み在庫":      FieldExpectedStock,
	"商品ページURL":   FieldProductURL,
	"商品画像URL":    FieldImageURL,
	"公開ステータス":    FieldPublishStatus,
	"販売ステータス":    FieldSalesStatus,
	"sku":        FieldSKU,
	"sku id":     FieldSKU,
	"item id":    FieldSKU,
	"style id":   FieldProductClassID,
	"brand name": FieldBrand,
	"name":       FieldProductName,
	"color":      FieldColorName,
	"stock":      FieldWebStock,
	"image":      FieldImageURL,
}

// MetricsColumns maps GA4 item report headers to fields.
var MetricsColumns = map[string]string{
	"Item ID":             FieldSKU,
	"Item name":           FieldItemName,
	"Items viewed":        FieldViews,
	"Items added to cart": FieldCartAdds,
	"Items purchased":     FieldPurchases,
	"Item revenue":        FieldRevenue,
	"itemId":              FieldSKU,
	"itemName":            FieldItemName,
	"itemsViewed":         FieldViews,
	"itemsAddedToCart":    FieldCartAdds,
	"itemsPurchased":      FieldPurchases,
	"itemRevenue":         FieldRevenue,
}

var (
	productFields = []string{
		FieldSKU, FieldProductClassID, FieldBrand, FieldProductName, FieldColorName, FieldColorTag,
		FieldSize, FieldPrice, FieldWebStock, FieldAdjustStock, FieldExpectedStock, FieldProductURL,
		FieldImageURL, FieldPublishStatus, FieldSalesStatus,
	}
	metricsFields = []string{FieldSKU, FieldItemName, FieldViews, FieldCartAdds, FieldPurchases, FieldRevenue}

	requiredProductFields = []string{FieldSKU, FieldBrand}
	requiredMetricsFields = []string{FieldSKU}
)

// ColumnMapping resolves canonical fields to header positions.
type ColumnMapping struct {
	index map[string]int
}

// MapColumns matches headers against an alias table and the canonical names in fields.
// The first header mapping to a field wins.
func MapColumns(headers []string, aliases map[string]string, fields []string) ColumnMapping {
	lookup := make(map[string]string, len(aliases)+len(fields))
	for alias, field := range aliases {
		lookup[headerKey(alias)] = field
	}
	for _, field := range fields {
		lookup[headerKey(field)] = field
	}

	m := ColumnMapping{index: make(map[string]int)}
	for i, h := range headers {
		field, ok := lookup[headerKey(h)]
		if !ok {
			continue
		}
		if _, taken := m.index[field]; !taken {
			m.index[field] = i
		}
	}
	return m
}

// ProductMapping builds the product master mapping and checks required columns.
func ProductMapping(headers []string) (ColumnMapping, []models.Warning, error) {
	return buildMapping(headers, ProductColumns, productFields, requiredProductFields, models.SourceProducts)
}

// MetricsMapping builds the metrics mapping and checks required columns.
func MetricsMapping(headers []string) (ColumnMapping, []models.Warning, error) {
	return buildMapping(headers, MetricsColumns, metricsFields, requiredMetricsFields, models.SourceMetrics)
}

func buildMapping(headers []string, aliases map[string]string, fields, required []string, source string) (ColumnMapping, []models.Warning, error) {
	m := MapColumns(headers, aliases, fields)
	var missing []string
	for _, f := range required {
		if !m.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return m, nil, errors.Errorf("%s: required columns not found: %s", source, strings.Join(missing, ", "))
	}
	var warnings []models.Warning
	for _, f := range fields {
		if !m.Has(f) {
			warnings = append(warnings, models.Warning{
				Kind: models.WarningMissingColumn, Source: source, Field: f,
				Message: fmt.Sprintf("column for %s not found, values default to empty", f),
			})
		}
	}
	return m, warnings, nil
}

// Has reports whether field was found.
func (m ColumnMapping) Has(field string) bool {
	_, ok := m.index[field]
	return ok
}

// Get returns the cell of field in row, "" when absent.
func (m ColumnMapping) Get(row []string, field string) string {
	i, ok := m.index[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Product converts a raw row into a typed record. rowNum is 1-based.
func (m ColumnMapping) Product(rn *RecordNormalizer, row []string, rowNum int) models.ProductRecord {
	src := models.SourceProducts
	p := models.ProductRecord{
		SKU:            m.Get(row, FieldSKU),
		ProductClassID: m.Get(row, FieldProductClassID),
		Brand:          m.Get(row, FieldBrand),
		Name:           m.Get(row, FieldProductName),
		Color:          m.Get(row, FieldColorName),
		ColorTag:       m.Get(row, FieldColorTag),
		Size:           m.Get(row, FieldSize),
		Price:          rn.Decimal(src, rowNum, FieldPrice, m.Get(row, FieldPrice)),
		WebStock:       rn.Int(src, rowNum, FieldWebStock, m.Get(row, FieldWebStock)),
		AdjustedStock:  rn.Int(src, rowNum, FieldAdjustStock, m.Get(row, FieldAdjustStock)),
		ExpectedStock:  rn.Int(src, rowNum, FieldExpectedStock, m.Get(row, FieldExpectedStock)),
		ProductURL:     m.Get(row, FieldProductURL),
		ImageURL:       m.Get(row, FieldImageURL),
		PublishStatus:  m.Get(row, FieldPublishStatus),
		SalesStatus:    m.Get(row, FieldSalesStatus),
		Row:            rowNum,
	}
	p.Published = rn.Bool(p.PublishStatus)
	p.OnSale = rn.Bool(p.SalesStatus)
	return p
}

// Metrics converts a raw row into a typed record. rowNum is 1-based.
func (m ColumnMapping) Metrics(rn *RecordNormalizer, row []string, rowNum int) models.MetricsRecord {
	src := models.SourceMetrics
	return models.MetricsRecord{
		SKU:       m.Get(row, FieldSKU),
		ItemName:  m.Get(row, FieldItemName),
		Views:     rn.Int(src, rowNum, FieldViews, m.Get(row, FieldViews)),
		CartAdds:  rn.Int(src, rowNum, FieldCartAdds, m.Get(row, FieldCartAdds)),
		Purchases: rn.Int(src, rowNum, FieldPurchases, m.Get(row, FieldPurchases)),
		Revenue:   rn.Decimal(src, rowNum, FieldRevenue, m.Get(row, FieldRevenue)),
		Row:       rowNum,
	}
}

// FillProductURL sets a blank product URL from template; {brand} becomes the brand slug
// (lower-cased, spaces and underscores removed) and {sku} the identifier.
func FillProductURL(p models.ProductRecord, template string) models.ProductRecord {
	if template == "" || p.ProductURL != "" || p.SKU == "" {
		return p
	}
	slug := strings.ToLower(p.Brand)
	slug = strings.NewReplacer(" ", "", "_", "", "　", "").Replace(slug)
	if slug == "" {
		return p
	}
	p.ProductURL = strings.NewReplacer("{brand}", slug, "{sku}", p.SKU).Replace(template)
	return p
}

func headerKey(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
}
