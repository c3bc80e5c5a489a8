package service

import (
	"stockinsight/internal/config"
	"stockinsight/internal/models"

	"github.com/shopspring/decimal"
)

func product(sku, brand string, stock int) models.ProductRecord {
	return models.ProductRecord{SKU: sku, Brand: brand, Name: "item " + sku, WebStock: stock, Price: decimal.NewFromInt(1000)}
}

func metric(sku string, views, purchases int, revenue int64) models.MetricsRecord {
	return models.MetricsRecord{SKU: sku, ItemName: "item " + sku, Views: views, Purchases: purchases, Revenue: decimal.NewFromInt(revenue)}
}

func merged(sku, brand string, stock, views, purchases int, revenue int64) models.MergedRecord {
	m := models.MergedRecord{
		ProductRecord: product(sku, brand, stock),
		Matched:       true,
		Stock:         stock,
		Views:         views,
		Purchases:     purchases,
		Revenue:       decimal.NewFromInt(revenue),
		Segments:      []models.Segment{},
	}
	if views > 0 {
		m.PurchaseRate = float64(purchases) / float64(views)
		m.CVR = m.PurchaseRate * 100
	}
	return m
}

func testThresholds() config.Thresholds {
	th := config.DefaultThresholds()
	th.MinBrandSKUs = 3
	th.ExcludedBrands = nil
	return th
}

func warningKinds(ws []models.Warning) []models.WarningKind {
	kinds := make([]models.WarningKind, 0, len(ws))
	for _, w := range ws {
		kinds = append(kinds, w.Kind)
	}
	return kinds
}
