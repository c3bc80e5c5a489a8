package analysis

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"stockinsight/internal/models"
	"stockinsight/internal/service"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/japanese"
)

// periodScanLines is how many leading lines of a GA4 export may carry period comments.
const periodScanLines = 15

var (
	startDatePattern = regexp.MustCompile(`Start date:\s*(\d{8})`)
	endDatePattern   = regexp.MustCompile(`End date:\s*(\d{8})`)
	propertyPattern  = regexp.MustCompile(`Property:\s*(.+)`)
)

// ProductUpload is a parsed product master file.
type ProductUpload struct {
	Products []models.ProductRecord
	Warnings []models.Warning
	Encoding string
}

// MetricsUpload is a parsed GA4 item report.
type MetricsUpload struct {
	Records  []models.MetricsRecord
	Period   *models.Period
	Warnings []models.Warning
	Encoding string
}

// CSVService parses product master and GA4 exports into typed records.
type CSVService struct {
	productURLTemplate string
}

func NewCSVService(productURLTemplate string) *CSVService {
	return &CSVService{productURLTemplate: productURLTemplate}
}

// LoadProductMaster parses a product master CSV (UTF-8 or Shift-JIS).
func (s *CSVService) LoadProductMaster(r io.Reader) (ProductUpload, error) {
	text, enc, err := decode(r)
	if err != nil {
		return ProductUpload{}, err
	}
	headers, rows, warnings, err := readTable(text, models.SourceProducts)
	if err != nil {
		return ProductUpload{}, err
	}
	mapping, colWarnings, err := service.ProductMapping(headers)
	if err != nil {
		return ProductUpload{}, err
	}

	rn := service.NewRecordNormalizer()
	products := make([]models.ProductRecord, 0, len(rows))
	for _, row := range rows {
		p := mapping.Product(rn, row.cells, row.line)
		products = append(products, service.FillProductURL(p, s.productURLTemplate))
	}

	out := ProductUpload{Products: products, Encoding: enc}
	out.Warnings = append(out.Warnings, colWarnings...)
	out.Warnings = append(out.Warnings, warnings...)
	out.Warnings = append(out.Warnings, rn.Warnings()...)
	return out, nil
}

// LoadProductMasterFile opens path and parses it as a product master.
func (s *CSVService) LoadProductMasterFile(path string) (ProductUpload, error) {
	file, err := os.Open(path)
	if err != nil {
		return ProductUpload{}, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()
	return s.LoadProductMaster(file)
}

// LoadMetrics parses a GA4 item report. Leading '#' comment lines are skipped and the
// period comments are read into Period when present.
func (s *CSVService) LoadMetrics(r io.Reader) (MetricsUpload, error) {
	text, enc, err := decode(r)
	if err != nil {
		return MetricsUpload{}, err
	}

	lines := strings.SplitAfter(text, "\n")
	period := ParsePeriod(lines)
	start := headerLine(lines)

	headers, rows, warnings, err := readTable(strings.Join(lines[start:], ""), models.SourceMetrics)
	if err != nil {
		return MetricsUpload{}, err
	}
	mapping, colWarnings, err := service.MetricsMapping(headers)
	if err != nil {
		return MetricsUpload{}, err
	}

	rn := service.NewRecordNormalizer()
	records := make([]models.MetricsRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapping.Metrics(rn, row.cells, start+row.line))
	}

	out := MetricsUpload{Records: records, Period: period, Encoding: enc}
	out.Warnings = append(out.Warnings, colWarnings...)
	out.Warnings = append(out.Warnings, warnings...)
	out.Warnings = append(out.Warnings, rn.Warnings()...)
	return out, nil
}

// ParsePeriod reads Start date / End date / Property comments of a GA4 export.
// It returns nil when neither date is found.
func ParsePeriod(lines []string) *models.Period {
	var start, end *time.Time
	var property string
	for i, line := range lines {
		if i >= periodScanLines {
			break
		}
		line = strings.TrimSpace(line)
		if m := startDatePattern.FindStringSubmatch(line); m != nil {
			if t, err := time.Parse("20060102", m[1]); err == nil {
				start = &t
			}
		}
		if m := endDatePattern.FindStringSubmatch(line); m != nil {
			if t, err := time.Parse("20060102", m[1]); err == nil {
				end = &t
			}
		}
		if m := propertyPattern.FindStringSubmatch(line); m != nil {
			property = strings.TrimSpace(m[1])
		}
	}

	switch {
	case start != nil && end != nil:
		p := models.NewPeriod(*start, *end, property)
		return &p
	case start != nil || end != nil:
		return &models.Period{StartDate: start, EndDate: end, Property: property, PeriodType: models.PeriodUnknown}
	}
	return nil
}

// headerLine finds the first non-comment line naming an item column.
func headerLine(lines []string) int {
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.Contains(trimmed, "Item name") || strings.Contains(trimmed, "Item ID") {
			return i
		}
	}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			return i
		}
	}
	return 0
}

// Encodings reported by decode.
const (
	EncodingUTF8     = "utf-8"
	EncodingShiftJIS = "shift_jis"
)

// decode returns the content as UTF-8. Valid UTF-8 is used as is with a BOM removed,
// anything else is decoded as Shift-JIS (CP932 exports from Japanese spreadsheets).
func decode(r io.Reader) (string, string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to read upload")
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if utf8.Valid(raw) {
		return string(raw), EncodingUTF8, nil
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", errors.Wrap(err, "file is neither UTF-8 nor Shift-JIS")
	}
	return string(decoded), EncodingShiftJIS, nil
}

type tableRow struct {
	line  int
	cells []string
}

// readTable reads a header and data rows. Rows the CSV reader rejects become warnings.
// line is the 1-based position of the row in the table, header included.
func readTable(text, source string) ([]string, []tableRow, []models.Warning, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil, errors.Errorf("%s: file is empty", source)
	}
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "%s: failed to read header", source)
	}

	var rows []tableRow
	var warnings []models.Warning
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				warnings = append(warnings, models.Warning{
					Kind: models.WarningMalformedRow, Source: source, Row: perr.Line,
					Message: fmt.Sprintf("row skipped: %v", perr.Err),
				})
				continue
			}
			return nil, nil, nil, errors.Wrapf(err, "%s: failed to read rows", source)
		}
		if blank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, tableRow{line: line, cells: record})
	}
	return headers, rows, warnings, nil
}

func sniffDelimiter(text string) rune {
	first := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		first = text[:i]
	}
	if strings.Count(first, ";") > strings.Count(first, ",") {
		return ';'
	}
	return ','
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
