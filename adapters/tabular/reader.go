package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"hypoforge/domain/dataset"
	"hypoforge/internal/errors"

	"github.com/xuri/excelize/v2"
)

// maxDownloadBytes bounds remote datasets
const maxDownloadBytes = 64 << 20

// Reader loads CSV and Excel files from disk or over HTTP
type Reader struct {
	client *http.Client
}

// NewReader creates a reader; a nil client uses a 30s-timeout default
func NewReader(client *http.Client) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Reader{client: client}
}

// Load reads the file at location (http(s) URL or path) and infers cell types.
// .xlsx files are read from their first sheet; anything else is parsed as CSV.
func (r *Reader) Load(ctx context.Context, location string) (*dataset.Dataset, error) {
	startTime := time.Now()

	raw, name, err := r.fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		rows, err = readExcelRows(raw)
	} else {
		rows, err = readCSVRows(raw)
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("%s: %w", location, err))
	}

	ds, err := buildDataset(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", location)
	}

	log.Printf("[TabularReader] Loaded %s in %.2fms (%d rows, %d columns)",
		location, float64(time.Since(startTime).Nanoseconds())/1e6, ds.Len(), len(ds.Columns()))
	return ds, nil
}

func (r *Reader) fetch(ctx context.Context, location string) ([]byte, string, error) {
	u, err := url.Parse(location)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, "", errors.WithCode(errors.CodeInvalidInput, err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, "", errors.ExternalServiceError("dataset download", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, "", errors.ExternalServiceError("dataset download",
				fmt.Errorf("GET %s: status %d", location, resp.StatusCode))
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
		if err != nil {
			return nil, "", errors.ExternalServiceError("dataset download", err)
		}
		return raw, u.Path, nil
	}

	raw, err := os.ReadFile(location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", errors.NotFound(fmt.Sprintf("dataset file %s", location))
		}
		return nil, "", errors.Wrapf(err, "failed to read %s", location)
	}
	return raw, location, nil
}

// readExcelRows reads the first sheet
func readExcelRows(raw []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSVRows(raw []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return rows, nil
}

// buildDataset maps the header row to column names and auto-types every cell.
// Short rows are padded with nulls; cells past the header are dropped.
func buildDataset(rows [][]string) (*dataset.Dataset, error) {
	if len(rows) < 2 {
		return nil, errors.ValidationError("file must have a header row and at least one data row")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	records := make([]dataset.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(dataset.Record, len(headers))
		for j, h := range headers {
			var cell string
			if j < len(row) {
				cell = row[j]
			}
			rec[h] = AutoType(cell)
		}
		records = append(records, rec)
	}

	return dataset.New(headers, records)
}

var (
	numberPattern = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	datePattern   = regexp.MustCompile(`^(\d{4})(-\d{2}(-\d{2})?)?(T\d{2}:\d{2}(:\d{2}(\.\d{3})?)?(Z|[-+]\d{2}:\d{2})?)?$`)
)

// AutoType infers a cell value: empty is nil, numbers (and "NaN") are float64,
// ISO 8601 dates are time.Time, and everything else stays a string. Booleans
// are strings; there is no boolean column type.
func AutoType(cell string) any {
	s := strings.TrimSpace(cell)
	switch s {
	case "":
		return nil
	case "NaN":
		return math.NaN()
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	if numberPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if datePattern.MatchString(s) {
		if t, ok := parseISODate(s); ok {
			return t
		}
	}
	return s
}

var dateLayouts = []string{
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
}

// parseISODate reads the ISO subset matched by datePattern. Values without an
// offset are taken as UTC.
func parseISODate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
