package backtest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantlink-statarb/pkg/signal"
	"github.com/yourusername/quantlink-statarb/pkg/spread"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

func sampleResult(t *testing.T) *Result {
	t.Helper()
	res, err := Simulate(
		[]float64{0, 1, 1, 0, -1},
		[]float64{0, 0.01, 0.02, -0.01, 0.005},
		nil,
		SimulationConfig{CostRate: 0.001},
	)
	require.NoError(t, err)
	return res
}

func sampleMeta() ReportMeta {
	return ReportMeta{
		Pair:         "AAA/BBB",
		Spread:       &spread.Options{Type: spread.SpreadTypeDifference},
		ZScoreWindow: 21,
		Long: &signal.Document{
			Lt:         []*float64{signal.Float(-1.5), nil},
			Gt:         []*float64{nil, signal.Float(0)},
			SignalType: signal.Long,
		},
		Timestamps: []string{"d1", "d2", "d3", "d4", "d5"},
		Precision:  4,
	}
}

func TestNewReport(t *testing.T) {
	res := sampleResult(t)
	r, err := NewReport(res, sampleMeta())
	require.NoError(t, err)

	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, "AAA/BBB", r.Pair)
	require.Len(t, r.Series, 5)
	assert.Equal(t, "d3", r.Series[2].Time)
	assert.Equal(t, 1.0, r.Series[2].Position)
	// rounded to 4 places
	assert.Equal(t, stats.Round(res.Summary.SharpeRatio, 4), r.Summary.SharpeRatio)
	assert.Len(t, r.Trades, len(res.Trades))
	assert.Empty(t, r.Warnings)
}

func TestNewReport_DocumentsAreCopied(t *testing.T) {
	meta := sampleMeta()
	r, err := NewReport(sampleResult(t), meta)
	require.NoError(t, err)

	*meta.Long.Lt[0] = -9
	assert.Equal(t, -1.5, *r.Long.Lt[0])
}

func TestNewReport_Errors(t *testing.T) {
	_, err := NewReport(nil, ReportMeta{})
	assert.True(t, errors.Is(err, stats.ErrParameter))

	meta := sampleMeta()
	meta.Timestamps = meta.Timestamps[:3]
	_, err = NewReport(sampleResult(t), meta)
	assert.True(t, errors.Is(err, stats.ErrLengthMismatch))
}

func TestNewReport_NonFiniteWarning(t *testing.T) {
	res := sampleResult(t)
	res.Summary.CalmarRatio = math.Inf(1)

	r, err := NewReport(res, ReportMeta{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Summary.CalmarRatio)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "non-finite")
}

func TestReport_Encodings(t *testing.T) {
	r, err := NewReport(sampleResult(t), sampleMeta())
	require.NoError(t, err)

	data, err := r.YAML()
	require.NoError(t, err)
	var fromYAML Report
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Equal(t, r.RunID, fromYAML.RunID)
	assert.Equal(t, r.Summary.Steps, fromYAML.Summary.Steps)
	require.NotNil(t, fromYAML.Long)
	assert.Equal(t, signal.Long, fromYAML.Long.SignalType)

	data, err = r.JSON()
	require.NoError(t, err)
	var fromJSON map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, r.RunID, fromJSON["run_id"])
}

func TestReport_WriteMarkdown(t *testing.T) {
	meta := sampleMeta()
	meta.Warnings = []string{"long and short signals overlapped on 2 steps"}
	meta.MaxGrossExposure = 2
	r, err := NewReport(sampleResult(t), meta)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.WriteMarkdown(&buf))
	out := buf.String()
	assert.Contains(t, out, "# 回测报告")
	assert.Contains(t, out, "AAA/BBB")
	assert.Contains(t, out, "## 交易明细")
	assert.Contains(t, out, "Long 条件")
	assert.Contains(t, out, "overlapped on 2 steps")
	assert.Contains(t, out, "| **最大总敞口** | 2.00 |")
}

func TestReport_CSV(t *testing.T) {
	r, err := NewReport(sampleResult(t), sampleMeta())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.WriteSeriesCSV(&buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "Step", rows[0][0])
	assert.Equal(t, "d1", rows[1][1])

	buf.Reset()
	require.NoError(t, r.WriteTradesCSV(&buf))
	rows, err = csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, len(r.Trades)+1)
}

func TestReportGenerator_Generate(t *testing.T) {
	r, err := NewReport(sampleResult(t), sampleMeta())
	require.NoError(t, err)

	dir := t.TempDir()
	gen := NewReportGenerator(dir, []string{FormatYAML, FormatJSON, FormatMarkdown, FormatCSV}, nil)
	paths, err := gen.Generate(r)
	require.NoError(t, err)
	require.Len(t, paths, 5)

	for _, p := range paths {
		_, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(filepath.Base(p), "backtest_AAA_BBB_"), p)
	}
}

func TestReportGenerator_UnknownFormat(t *testing.T) {
	r, err := NewReport(sampleResult(t), ReportMeta{})
	require.NoError(t, err)

	_, err = NewReportGenerator(t.TempDir(), []string{"xml"}, nil).Generate(r)
	assert.True(t, errors.Is(err, stats.ErrParameter))
}

func TestEvaluateHelpers(t *testing.T) {
	assert.Equal(t, "(优秀)", evaluateSharpe(2.5))
	assert.NotEmpty(t, evaluateSortino(0.1))
	assert.NotEmpty(t, evaluateDrawdown(0.3))
	assert.NotEmpty(t, evaluateProfitFactor(1.2))
}
