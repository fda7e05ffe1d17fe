package dataset

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"hypoforge/internal/errors"
)

// ColumnType is the inferred type of a column
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeNumeric  ColumnType = "numeric"
	TypeTemporal ColumnType = "temporal"
	// TypeUnknown is reported for columns with no non-null value.
	TypeUnknown ColumnType = ""
)

// Record maps a column name to a cell value. Cells hold nil, string,
// float64 or time.Time.
type Record map[string]any

// Dataset is an ordered, immutable sequence of records sharing one column set.
type Dataset struct {
	columns []string
	rows    []Record
}

// New validates that every record carries exactly the given columns.
func New(columns []string, rows []Record) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, errors.ValidationError("dataset has no columns")
	}

	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if _, dup := seen[col]; dup {
			return nil, errors.ValidationError(fmt.Sprintf("duplicate column %q", col))
		}
		seen[col] = struct{}{}
	}

	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.ValidationError(fmt.Sprintf("row %d has %d cells, expected %d", i, len(row), len(columns)))
		}
		for _, col := range columns {
			if _, ok := row[col]; !ok {
				return nil, errors.ValidationError(fmt.Sprintf("row %d is missing column %q", i, col))
			}
			if err := checkCell(row[col]); err != nil {
				return nil, errors.Wrapf(err, "row %d column %q", i, col)
			}
		}
	}

	return &Dataset{
		columns: append([]string(nil), columns...),
		rows:    rows,
	}, nil
}

func checkCell(v any) error {
	switch v.(type) {
	case nil, string, float64, time.Time:
		return nil
	default:
		return errors.ValidationError(fmt.Sprintf("unsupported cell type %T", v))
	}
}

// Columns returns the column names in order.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Row returns row i. Callers must not modify it.
func (d *Dataset) Row(i int) Record {
	return d.rows[i]
}

// Values returns the column's cells in row order.
func (d *Dataset) Values(col string) []any {
	values := make([]any, len(d.rows))
	for i, row := range d.rows {
		values[i] = row[col]
	}
	return values
}

// ColumnType classifies a column by the type of its first non-null value.
// The rest of the column is not inspected, so a mixed column is summarised
// through whichever branch its first value selects.
func (d *Dataset) ColumnType(col string) ColumnType {
	for _, row := range d.rows {
		switch row[col].(type) {
		case nil:
			continue
		case string:
			return TypeString
		case float64:
			return TypeNumeric
		case time.Time:
			return TypeTemporal
		}
	}
	return TypeUnknown
}

// TemporalColumns lists the columns classified as temporal, sorted.
func (d *Dataset) TemporalColumns() []string {
	var cols []string
	for _, col := range d.columns {
		if d.ColumnType(col) == TypeTemporal {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

// String is a short description for logs.
func (d *Dataset) String() string {
	return fmt.Sprintf("dataset(%d rows: %s)", len(d.rows), strings.Join(d.columns, ", "))
}
