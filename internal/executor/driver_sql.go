// internal/executor/driver_sql.go
package executor

import (
	"context"
	"database/sql"
	"time"

	"intent-gateway/internal/template"
)

// SQLDriver executes sql-kind templates against the postgres pool.
type SQLDriver struct {
	db *sql.DB
}

func NewSQLDriver(db *sql.DB) *SQLDriver {
	return &SQLDriver{db: db}
}

func (d *SQLDriver) Name() string { return "postgres" }

func (d *SQLDriver) Execute(ctx context.Context, tmpl *template.Template, params map[string]interface{}) ([]map[string]interface{}, error) {
	query, args, err := BindSQL(tmpl, params)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// scanRows reads every row into a map keyed by column name. Byte slices and
// times are normalized so formatting downstream sees plain values.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalizeSQLValue(values[i])
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func normalizeSQLValue(v interface{}) interface{} {
	switch value := v.(type) {
	case []byte:
		return string(value)
	case time.Time:
		return value.Format(time.RFC3339)
	default:
		return v
	}
}
