package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quantlink-statarb/pkg/backtest"
	"github.com/yourusername/quantlink-statarb/pkg/signal"
	"github.com/yourusername/quantlink-statarb/pkg/spread"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

const sampleYAML = `
log:
  level: debug
  format: json
pairs:
  - name: AAA/BBB
    path: data/aaa_bbb.csv
    time_column: date
    column1: AAA
    column2: BBB
spread:
  type: standard
zscore_window: 30
signals:
  long:
    lt: [-1.5, null]
    gt: [null, 0]
    signal_type: long
  short:
    gt: [1.5, null]
    lt: [null, 0]
    tolerance: 0.001
backtest:
  cost_rate: 0.0005
  weight1: 0.5
  weight2: 0.5
optimizer:
  goal: calmar
  workers: 2
  ranges:
    - name: long.lt.entry
      min: -2
      max: -1
      step: 0.5
output:
  dir: out
  formats: [yaml, csv]
  precision: 6
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.Len(t, cfg.Pairs, 1)
	assert.Equal(t, "AAA/BBB", cfg.Pairs[0].Name)
	assert.Equal(t, "data/aaa_bbb.csv", cfg.Pairs[0].Path)
	assert.Equal(t, "date", cfg.Pairs[0].TimeColumn)
	assert.Equal(t, "AAA", cfg.Pairs[0].Column1)

	assert.Equal(t, spread.SpreadTypeStandard, cfg.Spread.Type)
	assert.Equal(t, 30, cfg.ZScoreWindow)

	require.NotNil(t, cfg.Signals.Long)
	assert.Equal(t, signal.Long, cfg.Signals.Long.SignalType)
	assert.Equal(t, -1.5, *cfg.Signals.Long.Lt[0])
	assert.Nil(t, cfg.Signals.Long.Lt[1])
	require.NotNil(t, cfg.Signals.Short)
	assert.Equal(t, signal.Short, cfg.Signals.Short.SignalType, "section fills in the direction")
	assert.Equal(t, 0.001, *cfg.Signals.Short.Tolerance)

	assert.Equal(t, 0.0005, cfg.Backtest.CostRate)
	require.NotNil(t, cfg.Backtest.Weight2)
	assert.Equal(t, 0.5, *cfg.Backtest.Weight2)
	assert.Equal(t, backtest.DefaultPeriodsPerYear, cfg.Backtest.PeriodsPerYear)

	assert.Equal(t, "calmar", cfg.Optimizer.Goal)
	require.Len(t, cfg.Optimizer.Ranges, 1)
	assert.Equal(t, 0.5, cfg.Optimizer.Ranges[0].Step)

	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, []string{"yaml", "csv"}, cfg.Output.Formats)
	assert.Equal(t, int32(6), cfg.Output.Precision)

	assert.Equal(t, "statarb.reports", cfg.Engine.NATSSubject)
	assert.Equal(t, ":50061", cfg.Engine.GRPCAddr)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STATARB_ZSCORE_WINDOW", "42")
	t.Setenv("STATARB_BACKTEST_COST_RATE", "0.01")
	t.Setenv("STATARB_ENGINE_NATS_URL", "nats://example:4222")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.ZScoreWindow)
	assert.Equal(t, 0.01, cfg.Backtest.CostRate)
	assert.Equal(t, "nats://example:4222", cfg.Engine.NATSURL)
}

func TestLoad_EnvOverrideOptionalKey(t *testing.T) {
	t.Setenv("STATARB_BACKTEST_WEIGHT1", "0.25")

	cfg, err := Load(writeConfig(t, "signals:\n  long:\n    lt: [-1, 0]\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Backtest.Weight1)
	assert.Equal(t, 0.25, *cfg.Backtest.Weight1)
	assert.Nil(t, cfg.Backtest.Weight2)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "no signals",
			yaml:    "zscore_window: 21\n",
			wantErr: stats.ErrConfiguration,
		},
		{
			name:    "bad spread type",
			yaml:    "spread:\n  type: cubic\nsignals:\n  long:\n    lt: [-1, 0]\n",
			wantErr: stats.ErrParameter,
		},
		{
			name:    "window too small",
			yaml:    "zscore_window: 1\nsignals:\n  long:\n    lt: [-1, 0]\n",
			wantErr: stats.ErrParameter,
		},
		{
			name:    "malformed document",
			yaml:    "signals:\n  long:\n    lt: [-1]\n",
			wantErr: stats.ErrConfiguration,
		},
		{
			name:    "direction mismatch",
			yaml:    "signals:\n  long:\n    lt: [-1, 0]\n    signal_type: short\n",
			wantErr: stats.ErrConfiguration,
		},
		{
			name:    "negative cost",
			yaml:    "signals:\n  long:\n    lt: [-1, 0]\nbacktest:\n  cost_rate: -0.1\n",
			wantErr: stats.ErrParameter,
		},
		{
			name:    "pair without path",
			yaml:    "pairs:\n  - name: x\n    column1: A\n    column2: B\nsignals:\n  long:\n    lt: [-1, 0]\n",
			wantErr: stats.ErrConfiguration,
		},
		{
			name:    "unknown goal",
			yaml:    "optimizer:\n  goal: pnl\nsignals:\n  long:\n    lt: [-1, 0]\n",
			wantErr: stats.ErrConfiguration,
		},
		{
			name:    "unknown format",
			yaml:    "output:\n  formats: [xml]\nsignals:\n  long:\n    lt: [-1, 0]\n",
			wantErr: stats.ErrConfiguration,
		},
		{
			name:    "bad log level",
			yaml:    "log:\n  level: loud\nsignals:\n  long:\n    lt: [-1, 0]\n",
			wantErr: stats.ErrConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestValidate_PairDefaults(t *testing.T) {
	cfg := &Config{
		Pairs: []PairConfig{
			{PairSource: backtest.PairSource{Path: "a.csv", Column1: "A", Column2: "B"}},
			{Name: "A/B", PairSource: backtest.PairSource{Path: "b.csv", Column1: "A", Column2: "B"}},
		},
		Signals: backtest.SignalSet{Long: &signal.Document{Lt: []*float64{signal.Float(-1), signal.Float(0)}}},
	}
	err := cfg.Validate()
	assert.True(t, errors.Is(err, stats.ErrConfiguration), "duplicate derived name: %v", err)

	cfg.Pairs = cfg.Pairs[:1]
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "A/B", cfg.Pairs[0].Name)
	assert.Equal(t, backtest.DefaultZScoreWindow, cfg.ZScoreWindow)
	assert.Equal(t, spread.SpreadTypeDifference, cfg.Spread.Type)
	assert.Equal(t, 1, cfg.Engine.Workers)
}

func TestConfig_RunSpec(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	pair, ok := cfg.Pair("AAA/BBB")
	require.True(t, ok)
	_, ok = cfg.Pair("missing")
	assert.False(t, ok)

	prices := &backtest.PriceData{Price1: []float64{1}, Price2: []float64{1}}
	spec := cfg.RunSpec(pair, prices)
	assert.Equal(t, "AAA/BBB", spec.Pair)
	assert.Same(t, prices, spec.Prices)
	assert.Equal(t, 30, spec.ZScoreWindow)
	assert.Equal(t, int32(6), spec.Precision)

	*spec.Long.Lt[0] = -9
	assert.Equal(t, -1.5, *cfg.Signals.Long.Lt[0])
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveConfig(path, cfg))

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Pairs, again.Pairs)
	assert.Equal(t, cfg.Spread, again.Spread)
	assert.Equal(t, cfg.Signals, again.Signals)
	assert.Equal(t, cfg.Backtest, again.Backtest)
	assert.Equal(t, cfg.Output, again.Output)
}
