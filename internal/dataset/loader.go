// Package dataset reads a tabular CSV source into validated, typed in-memory
// rows ready for training.
//
// Rows with unknown or missing labels are dropped and counted, not silently
// ignored. Structural corruption (unreadable file, ragged rows) is fatal and
// reported as ErrLoad with the offending line number.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/pkg/logger"
	"github.com/talentops/skillcast/pkg/metrics"
)

// imbalanceRatioLimit is the majority:minority ratio beyond which a class
// imbalance warning is logged. Training proceeds regardless.
const imbalanceRatioLimit = 10.0

// Row is one validated dataset row with typed columns.
type Row struct {
	Categorical map[string]string
	Numeric     map[string]float64
	Label       model.DemandLevel
}

// Dataset is the loaded, validated result.
type Dataset struct {
	Rows               []Row
	CategoricalColumns []string
	NumericColumns     []string
	LabelColumn        string
	DroppedRows        int
	Source             string
}

// FeatureColumns returns all usable feature columns, categorical first.
func (d *Dataset) FeatureColumns() []string {
	cols := make([]string, 0, len(d.CategoricalColumns)+len(d.NumericColumns))
	cols = append(cols, d.CategoricalColumns...)
	cols = append(cols, d.NumericColumns...)
	return cols
}

// ClassCounts returns the number of rows per label.
func (d *Dataset) ClassCounts() map[model.DemandLevel]int {
	counts := make(map[model.DemandLevel]int, 3)
	for _, row := range d.Rows {
		counts[row.Label]++
	}
	return counts
}

// Loader reads and validates tabular dataset files.
type Loader struct {
	log logger.Logger
}

// NewLoader creates a dataset loader.
func NewLoader(log logger.Logger) *Loader {
	if log == nil {
		log = logger.Get().Named("dataset")
	}
	return &Loader{log: log}
}

// LoadFile opens and loads a CSV dataset from disk.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrLoad, path, err)
	}
	defer func() { _ = f.Close() }()

	ds, err := l.Load(ctx, f)
	if err != nil {
		return nil, err
	}
	ds.Source = path
	return ds, nil
}

// Load reads a CSV stream into a validated Dataset.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrLoad, err)
	}

	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[name] = i
	}

	labelIdx, ok := colIndex[model.ColLabel]
	if !ok {
		return nil, fmt.Errorf("%w: label column %q not found", ErrLoad, model.ColLabel)
	}

	// Expected optional feature columns: absent ones reduce the feature set
	// with a warning, they do not block training.
	present := func(names []string) []string {
		var out []string
		for _, n := range names {
			if _, ok := colIndex[n]; ok {
				out = append(out, n)
			} else {
				l.log.Warn(ctx, "expected feature column absent; training with reduced feature set",
					logger.String("column", n),
				)
			}
		}
		return out
	}
	categoricalCols := present(model.CategoricalColumns())
	numericCols := present(model.NumericColumns())

	// Re-detect types for any extra columns the file carries beyond the
	// known schema: a column is numeric when every non-empty value parses.
	records, err := readAll(reader)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(categoricalCols)+len(numericCols)+1)
	for _, c := range append(append([]string{model.ColLabel}, categoricalCols...), numericCols...) {
		known[c] = true
	}
	for _, name := range header {
		if known[name] {
			continue
		}
		if columnIsNumeric(records, colIndex[name]) {
			numericCols = append(numericCols, name)
		} else {
			categoricalCols = append(categoricalCols, name)
		}
	}

	if len(categoricalCols)+len(numericCols) == 0 {
		return nil, fmt.Errorf("%w: no usable feature columns", ErrLoad)
	}

	rows := make([]Row, 0, len(records))
	dropped := 0
	for i, record := range records {
		row, ok := buildRow(record, colIndex, labelIdx, categoricalCols, numericCols)
		if !ok {
			dropped++
			l.log.Debug(ctx, "dropping invalid row",
				logger.Int("record", i+2), // header is line 1
			)
			continue
		}
		rows = append(rows, row)
	}

	if dropped > 0 {
		l.log.Warn(ctx, "dropped rows with malformed values or unknown labels",
			logger.Int("dropped", dropped),
			logger.Int("kept", len(rows)),
		)
		metrics.RecordDroppedRows(dropped)
	}
	metrics.UpdateDatasetRows(len(rows))

	ds := &Dataset{
		Rows:               rows,
		CategoricalColumns: categoricalCols,
		NumericColumns:     numericCols,
		LabelColumn:        model.ColLabel,
		DroppedRows:        dropped,
	}

	l.warnOnImbalance(ctx, ds)

	return ds, nil
}

// readAll consumes the remaining CSV records, converting parser errors into
// ErrLoad with the line at fault.
func readAll(reader *csv.Reader) ([][]string, error) {
	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("%w: malformed row at line %d: %w", ErrLoad, parseErr.Line, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrLoad, err)
		}
		records = append(records, record)
	}
}

// buildRow validates one record. Unknown labels and unparsable numeric
// values make the row invalid.
func buildRow(record []string, colIndex map[string]int, labelIdx int, categoricalCols, numericCols []string) (Row, bool) {
	if labelIdx >= len(record) {
		return Row{}, false
	}
	label, ok := model.ParseLevel(record[labelIdx])
	if !ok {
		return Row{}, false
	}

	row := Row{
		Categorical: make(map[string]string, len(categoricalCols)),
		Numeric:     make(map[string]float64, len(numericCols)),
		Label:       label,
	}
	for _, col := range categoricalCols {
		row.Categorical[col] = record[colIndex[col]]
	}
	for _, col := range numericCols {
		v, err := strconv.ParseFloat(record[colIndex[col]], 64)
		if err != nil {
			return Row{}, false
		}
		row.Numeric[col] = v
	}
	return row, true
}

// columnIsNumeric reports whether every non-empty value in the column
// parses as a float.
func columnIsNumeric(records [][]string, idx int) bool {
	seen := false
	for _, record := range records {
		if idx >= len(record) || record[idx] == "" {
			continue
		}
		if _, err := strconv.ParseFloat(record[idx], 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// warnOnImbalance logs when the majority:minority class ratio exceeds the
// limit. Classes with zero rows do not count as minority.
func (l *Loader) warnOnImbalance(ctx context.Context, ds *Dataset) {
	counts := ds.ClassCounts()
	minCount, maxCount := 0, 0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		if minCount == 0 || c < minCount {
			minCount = c
		}
		if c > maxCount {
			maxCount = c
		}
	}
	if minCount > 0 && float64(maxCount)/float64(minCount) > imbalanceRatioLimit {
		l.log.Warn(ctx, "severe class imbalance detected",
			logger.Int("majority", maxCount),
			logger.Int("minority", minCount),
			logger.Float64("ratio", float64(maxCount)/float64(minCount)),
		)
	}
}
