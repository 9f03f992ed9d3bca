package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantlink-statarb/pkg/logging"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// PairSource locates the two price columns of a pair in a CSV file.
type PairSource struct {
	Path string `yaml:"path" mapstructure:"path"`
	// TimeColumn is optional; its values are carried into reports verbatim.
	TimeColumn string `yaml:"time_column" mapstructure:"time_column"`
	Column1    string `yaml:"column1" mapstructure:"column1"`
	Column2    string `yaml:"column2" mapstructure:"column2"`
	// SkipInvalid drops unparsable or non-positive rows instead of failing.
	SkipInvalid bool `yaml:"skip_invalid" mapstructure:"skip_invalid"`
}

// PriceData holds two aligned price series.
type PriceData struct {
	Timestamps []string
	Price1     []float64
	Price2     []float64
}

// Len returns the number of aligned rows.
func (d *PriceData) Len() int {
	return len(d.Price1)
}

// HistoricalDataReader loads pair prices from CSV files.
type HistoricalDataReader struct {
	log *logrus.Entry
}

// NewHistoricalDataReader creates a new data reader
func NewHistoricalDataReader(logger *logrus.Logger) *HistoricalDataReader {
	return &HistoricalDataReader{log: logging.WithComponent(logger, "DataReader")}
}

// Load reads src.Path.
func (r *HistoricalDataReader) Load(src PairSource) (*PriceData, error) {
	file, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer file.Close()

	data, err := r.Read(file, src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Path, err)
	}
	r.log.Infof("Loaded %d rows from %s", data.Len(), src.Path)
	return data, nil
}

// Read parses CSV with a header row from in.
func (r *HistoricalDataReader) Read(in io.Reader, src PairSource) (*PriceData, error) {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	idx1, err := columnIndex(header, src.Column1)
	if err != nil {
		return nil, err
	}
	idx2, err := columnIndex(header, src.Column2)
	if err != nil {
		return nil, err
	}
	idxTime := -1
	if src.TimeColumn != "" {
		if idxTime, err = columnIndex(header, src.TimeColumn); err != nil {
			return nil, err
		}
	}

	data := &PriceData{}
	skipped := 0
	for row := 2; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", row, err)
		}

		p1, err1 := parsePrice(record, idx1)
		p2, err2 := parsePrice(record, idx2)
		if err1 != nil || err2 != nil {
			if src.SkipInvalid {
				skipped++
				continue
			}
			if err1 == nil {
				err1 = err2
			}
			return nil, fmt.Errorf("row %d: %w", row, err1)
		}

		data.Price1 = append(data.Price1, p1)
		data.Price2 = append(data.Price2, p2)
		if idxTime >= 0 && idxTime < len(record) {
			data.Timestamps = append(data.Timestamps, record[idxTime])
		}
	}

	if skipped > 0 {
		r.log.Warnf("Skipped %d invalid rows", skipped)
	}
	if data.Len() == 0 {
		return nil, fmt.Errorf("%w: no price rows", stats.ErrEmptySeries)
	}
	if data.Timestamps != nil && len(data.Timestamps) != data.Len() {
		return nil, fmt.Errorf("%w: time column missing on some rows", stats.ErrLengthMismatch)
	}
	return data, nil
}

func columnIndex(header []string, name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: price column name is empty", stats.ErrConfiguration)
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: column %q not in header %v", stats.ErrConfiguration, name, header)
}

func parsePrice(record []string, idx int) (float64, error) {
	if idx >= len(record) {
		return 0, fmt.Errorf("%w: missing field %d", stats.ErrParameter, idx)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid price %q", stats.ErrParameter, record[idx])
	}
	if !stats.IsFinite(v) || v <= 0 {
		return 0, fmt.Errorf("%w: price must be positive and finite, got %v", stats.ErrParameter, v)
	}
	return v, nil
}
