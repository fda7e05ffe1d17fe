package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
)

const (
	// TopValues is how many frequent values a string column reports.
	TopValues = 3
	// MaxValueLength truncates long example values.
	MaxValueLength = 100

	temporalLayout = "2006-01-02 15:04:05"
)

// Summarize renders the statistical profile used as prompt context for every
// model call about this dataset. The output is deterministic.
func Summarize(d *Dataset) string {
	lines := make([]string, 0, len(d.columns))
	for _, col := range d.columns {
		lines = append(lines, fmt.Sprintf("- %s: %s", col, DescribeColumn(d, col)))
	}
	return fmt.Sprintf("The Pandas DataFrame df has %d rows and %d columns:\n%s",
		len(d.rows), len(d.columns), strings.Join(lines, "\n"))
}

// DescribeColumn returns the one-line profile of a single column.
func DescribeColumn(d *Dataset, col string) string {
	values := d.Values(col)
	switch d.ColumnType(col) {
	case TypeString:
		return describeString(values)
	case TypeNumeric:
		return describeNumeric(values)
	case TypeTemporal:
		return describeTemporal(values)
	default:
		return ""
	}
}

type valueCount struct {
	value string
	count int
}

func describeString(values []any) string {
	index := make(map[string]int)
	var counts []valueCount
	for _, v := range values {
		if v == nil {
			continue
		}
		key := cellString(v)
		if i, ok := index[key]; ok {
			counts[i].count++
			continue
		}
		index[key] = len(counts)
		counts = append(counts, valueCount{value: key, count: 1})
	}

	// counts is in first-occurrence order; the stable sort keeps that order for ties
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].count > counts[j].count
	})

	top := counts
	if len(top) > TopValues {
		top = top[:TopValues]
	}
	examples := make([]string, len(top))
	for i, vc := range top {
		examples[i] = fmt.Sprintf("%s (%d)", truncate(vc.value), vc.count)
	}

	return fmt.Sprintf("string. %d unique values. E.g. %s", len(counts), strings.Join(examples, ", "))
}

func describeNumeric(values []any) string {
	var nums []float64
	for _, v := range values {
		if f, ok := v.(float64); ok && !math.IsNaN(f) {
			nums = append(nums, f)
		}
	}

	mean, min, max := math.NaN(), math.NaN(), math.NaN()
	if len(nums) > 0 {
		// errors only occur on empty input
		mean, _ = stats.Mean(nums)
		min, _ = stats.Min(nums)
		max, _ = stats.Max(nums)
	}

	return fmt.Sprintf("numeric. mean: %s min: %s max: %s", FormatCompact(mean), FormatCompact(min), FormatCompact(max))
}

func describeTemporal(values []any) string {
	var (
		seconds []float64
		loc     *time.Location
	)
	for _, v := range values {
		if t, ok := v.(time.Time); ok {
			if loc == nil {
				loc = t.Location()
			}
			seconds = append(seconds, float64(t.Unix()))
		}
	}
	if len(seconds) == 0 {
		return ""
	}

	return fmt.Sprintf("date. min: %s max: %s",
		formatUnix(floats.Min(seconds), loc),
		formatUnix(floats.Max(seconds), loc))
}

func formatUnix(sec float64, loc *time.Location) string {
	return time.Unix(int64(sec), 0).In(loc).Format(temporalLayout)
}

func cellString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(temporalLayout)
	default:
		return fmt.Sprint(val)
	}
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) > MaxValueLength {
		return string(runes[:MaxValueLength]) + "..."
	}
	return s
}

var compactSuffixes = []string{"", "K", "M", "B", "T"}

// FormatCompact renders a number in en-US compact short notation: 1234 -> "1.2K",
// 12345 -> "12K", 2.5 -> "2.5", 0.01234 -> "0.012".
func FormatCompact(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "∞"
	case math.IsInf(v, -1):
		return "-∞"
	}

	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	scale := 0
	for v >= 1000 && scale < len(compactSuffixes)-1 {
		v /= 1000
		scale++
	}

	v = roundCompact(v)
	// rounding can carry into the next unit (999.9 -> 1000 -> 1K)
	if v >= 1000 && scale < len(compactSuffixes)-1 {
		v = roundCompact(v / 1000)
		scale++
	}
	if v == 0 {
		sign = ""
	}

	return sign + strconv.FormatFloat(v, 'f', -1, 64) + compactSuffixes[scale]
}

// roundCompact keeps whichever is more precise: an integer or two significant digits.
func roundCompact(v float64) float64 {
	if v == 0 {
		return 0
	}
	if v >= 10 {
		return math.Round(v)
	}
	exp := math.Floor(math.Log10(v))
	factor := math.Pow(10, 1-exp)
	rounded := math.Round(v*factor) / factor
	// re-parse to shed binary noise such as 0.12000000000000001
	clean, err := strconv.ParseFloat(strconv.FormatFloat(rounded, 'g', 2, 64), 64)
	if err != nil {
		return rounded
	}
	return clean
}
