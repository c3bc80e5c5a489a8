package service

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"stockinsight/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// RecordNormalizer canonicalizes identifiers and numeric cells.
// It collects warnings instead of failing; one instance serves one run.
type RecordNormalizer struct {
	numberPattern *regexp.Regexp
	fold          cases.Caser
	warnings      []models.Warning
}

// NewRecordNormalizer creates a new normalizer
func NewRecordNormalizer() *RecordNormalizer {
	return &RecordNormalizer{
		numberPattern: regexp.MustCompile(`[\$€£¥￥₹,\s円]`),
		fold:          cases.Fold(),
	}
}

// NormalizeIdentifier trims whitespace (full-width included) and case-folds.
func (rn *RecordNormalizer) NormalizeIdentifier(raw string) string {
	return rn.fold.String(strings.TrimSpace(raw))
}

// Warnings returns the warnings collected so far.
func (rn *RecordNormalizer) Warnings() []models.Warning {
	return append([]models.Warning(nil), rn.warnings...)
}

// Warn records a warning.
func (rn *RecordNormalizer) Warn(w models.Warning) {
	rn.warnings = append(rn.warnings, w)
}

// Int coerces a cell to a non-negative integer. Empty cells are 0 without a warning.
func (rn *RecordNormalizer) Int(source string, row int, field, raw string) int {
	f, ok := rn.number(source, row, field, raw)
	if !ok {
		return 0
	}
	if f != math.Trunc(f) {
		rn.Warn(models.Warning{
			Kind: models.WarningFractionalNumber, Source: source, Row: row, Field: field, Value: raw,
			Message: fmt.Sprintf("%s has a fractional value, truncated to %d", field, int(f)),
		})
	}
	return int(f)
}

// Decimal coerces a cell to a non-negative decimal. Empty cells are 0 without a warning.
func (rn *RecordNormalizer) Decimal(source string, row int, field, raw string) decimal.Decimal {
	cleaned := rn.clean(raw)
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		// exponent notation is not accepted by NewFromString
		f, ferr := strconv.ParseFloat(cleaned, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			rn.invalid(source, row, field, raw)
			return decimal.Zero
		}
		d = decimal.NewFromFloat(f)
	}
	if d.IsNegative() {
		rn.negative(source, row, field, raw)
		return decimal.Zero
	}
	return d
}

// NonNegativeInt clamps an already typed value, warning when it was negative.
func (rn *RecordNormalizer) NonNegativeInt(source string, row int, field string, v int) int {
	if v < 0 {
		rn.negative(source, row, field, strconv.Itoa(v))
		return 0
	}
	return v
}

// NonNegativeDecimal clamps an already typed value, warning when it was negative.
func (rn *RecordNormalizer) NonNegativeDecimal(source string, row int, field string, v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		rn.negative(source, row, field, v.String())
		return decimal.Zero
	}
	return v
}

// Bool reads publish/sale style status cells.
func (rn *RecordNormalizer) Bool(raw string) bool {
	switch rn.fold.String(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on", "公開", "公開中", "販売中", "販売", "public", "published", "on sale", "active":
		return true
	}
	return false
}

func (rn *RecordNormalizer) number(source string, row int, field, raw string) (float64, bool) {
	cleaned := rn.clean(raw)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		rn.invalid(source, row, field, raw)
		return 0, false
	}
	if f < 0 {
		rn.negative(source, row, field, raw)
		return 0, false
	}
	if f > math.MaxInt32 {
		rn.invalid(source, row, field, raw)
		return 0, false
	}
	return f, true
}

// clean removes currency symbols and thousands separators
func (rn *RecordNormalizer) clean(raw string) string {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "-", "null", "none", "nan", "n/a", "(not set)":
		return ""
	}
	return rn.numberPattern.ReplaceAllString(s, "")
}

func (rn *RecordNormalizer) invalid(source string, row int, field, raw string) {
	rn.Warn(models.Warning{
		Kind: models.WarningInvalidNumber, Source: source, Row: row, Field: field, Value: raw,
		Message: fmt.Sprintf("%s is not a number, using 0", field),
	})
}

func (rn *RecordNormalizer) negative(source string, row int, field, raw string) {
	rn.Warn(models.Warning{
		Kind: models.WarningNegativeNumber, Source: source, Row: row, Field: field, Value: raw,
		Message: fmt.Sprintf("%s is negative, using 0", field),
	})
}
