package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"stockinsight/internal/models"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DataSourceConfig holds connection details
type DataSourceConfig struct {
	Driver   string // "postgres", "sqlite"
	DSN      string // used as is when set
	Host     string
	Port     int
	User     string
	Password string
	DBName   string // file path for sqlite
	SSLMode  string // "disable", "require"
}

func (c DataSourceConfig) dataSourceName() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == DriverSQLite {
		return c.DBName
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

// DataSource defines the interface for product master sources
type DataSource interface {
	Close() error
	ListTables(ctx context.Context) ([]string, error)
	PreviewData(ctx context.Context, table string, limit int) ([]map[string]interface{}, error)
	LoadProducts(ctx context.Context, table string) ([]models.ProductRecord, []models.Warning, error)
}

// SQLDataSource reads product master tables from Postgres or SQLite.
type SQLDataSource struct {
	db     *sql.DB
	driver string
}

// OpenDataSource connects and pings the database.
func OpenDataSource(ctx context.Context, cfg DataSourceConfig) (*SQLDataSource, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	case "":
		cfg.Driver = DriverPostgres
	default:
		return nil, errors.Errorf("unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.dataSourceName())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", cfg.Driver)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to ping %s", cfg.Driver)
	}
	return &SQLDataSource{db: db, driver: cfg.Driver}, nil
}

func (s *SQLDataSource) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLDataSource) ListTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name;
	`
	if s.driver == DriverSQLite {
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name;`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}
	return tables, rows.Err()
}

// checkTable returns the quoted table name when it exists in the catalog.
func (s *SQLDataSource) checkTable(ctx context.Context, table string) (string, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range tables {
		if t == table {
			return `"` + strings.ReplaceAll(t, `"`, `""`) + `"`, nil
		}
	}
	return "", errors.Errorf("table %q not found", table)
}

func (s *SQLDataSource) PreviewData(ctx context.Context, table string, limit int) ([]map[string]interface{}, error) {
	quoted, err := s.checkTable(ctx, table)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoted, limit))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to preview %s", table)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]interface{}
	for rows.Next() {
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return nil, err
		}
		rowMap := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			// Handle byte slices (common for strings in DB drivers)
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = values[i]
			}
		}
		result = append(result, rowMap)
	}
	return result, rows.Err()
}

// LoadProducts reads every row of table and maps columns with the product master mapping.
func (s *SQLDataSource) LoadProducts(ctx context.Context, table string) ([]models.ProductRecord, []models.Warning, error) {
	quoted, err := s.checkTable(ctx, table)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoted)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to query %s", table)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	mapping, warnings, err := ProductMapping(columns)
	if err != nil {
		return nil, nil, err
	}

	rn := NewRecordNormalizer()
	var products []models.ProductRecord
	rowNum := 0
	for rows.Next() {
		rowNum++
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to scan row %d", rowNum)
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = cellString(v)
		}
		products = append(products, mapping.Product(rn, cells, rowNum))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read %s", table)
	}
	return products, append(warnings, rn.Warnings()...), nil
}

func scanRow(rows *sql.Rows, n int) ([]interface{}, error) {
	values := make([]interface{}, n)
	valuePtrs := make([]interface{}, n)
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
