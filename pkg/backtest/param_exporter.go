package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantlink-statarb/pkg/signal"
)

// OptimalParams is the production-ready output of an optimization: the
// winning signal documents plus the metrics they achieved.
type OptimalParams struct {
	GeneratedAt      time.Time `yaml:"generated_at"`
	BacktestDate     string    `yaml:"backtest_date"`
	DataPeriod       string    `yaml:"data_period,omitempty"`
	OptimizationGoal string    `yaml:"optimization_goal"`

	Pair         string             `yaml:"pair"`
	ZScoreWindow int                `yaml:"zscore_window"`
	CostRate     float64            `yaml:"cost_rate"`
	Parameters   map[string]float64 `yaml:"parameters"`
	Signals      SignalSet          `yaml:"signals"`

	Performance OptimizationMetrics `yaml:"performance"`
}

// SignalSet mirrors the signals section of the config file so an export can
// be pasted back in.
type SignalSet struct {
	Long  *signal.Document `yaml:"long,omitempty" json:"long,omitempty" mapstructure:"long"`
	Short *signal.Document `yaml:"short,omitempty" json:"short,omitempty" mapstructure:"short"`
}

// ParamExporter exports optimized parameters
type ParamExporter struct {
	outputDir string
	now       func() time.Time
}

// NewParamExporter creates a new parameter exporter
func NewParamExporter(outputDir string) *ParamExporter {
	return &ParamExporter{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// BuildOptimalParams assembles the export for best under base.
func BuildOptimalParams(base RunSpec, best *OptimizationResult, goal OptimizationGoal, generatedAt time.Time) (*OptimalParams, error) {
	if best == nil {
		return nil, fmt.Errorf("no optimization result to export")
	}
	spec, err := ApplyParams(base, best.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to apply parameters: %w", err)
	}
	window := spec.ZScoreWindow
	if window == 0 {
		window = DefaultZScoreWindow
	}

	params := &OptimalParams{
		GeneratedAt:      generatedAt,
		BacktestDate:     generatedAt.Format("2006-01-02"),
		OptimizationGoal: string(goal),
		Pair:             base.Pair,
		ZScoreWindow:     window,
		CostRate:         spec.Simulation.CostRate,
		Parameters:       best.Parameters,
		Signals:          SignalSet{Long: spec.Long, Short: spec.Short},
		Performance:      best.Metrics,
	}
	if base.Prices != nil && len(base.Prices.Timestamps) > 0 {
		ts := base.Prices.Timestamps
		params.DataPeriod = fmt.Sprintf("%s to %s", ts[0], ts[len(ts)-1])
	}
	return params, nil
}

// ExportOptimalParams exports optimal parameters to YAML file
func (e *ParamExporter) ExportOptimalParams(base RunSpec, best *OptimizationResult, goal OptimizationGoal) (string, error) {
	now := e.now()
	params, err := BuildOptimalParams(base, best, goal, now)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := yaml.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parameters: %w", err)
	}

	filename := fmt.Sprintf("optimal_params_%s_%s.yaml", sanitizeName(base.Pair), now.Format("20060102"))
	path := filepath.Join(e.outputDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write parameters file: %w", err)
	}
	return path, nil
}

// ExportOptimizationResults exports all optimization results
func (e *ParamExporter) ExportOptimizationResults(pair string, results []*OptimizationResult, goal OptimizationGoal) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	now := e.now()
	export := struct {
		GeneratedAt      time.Time             `yaml:"generated_at"`
		OptimizationGoal string                `yaml:"optimization_goal"`
		Pair             string                `yaml:"pair"`
		TotalTests       int                   `yaml:"total_tests"`
		Results          []*OptimizationResult `yaml:"results"`
	}{
		GeneratedAt:      now,
		OptimizationGoal: string(goal),
		Pair:             pair,
		TotalTests:       len(results),
		Results:          results,
	}

	data, err := yaml.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}

	filename := fmt.Sprintf("optimization_results_%s_%s.yaml", sanitizeName(pair), now.Format("20060102_150405"))
	path := filepath.Join(e.outputDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}
	return path, nil
}

// LoadOptimalParams loads optimal parameters from file
func LoadOptimalParams(path string) (*OptimalParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters file: %w", err)
	}

	var params OptimalParams
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse parameters: %w", err)
	}
	return &params, nil
}

// ArchiveOptimalParams copies currentFile into archiveDir, tagging the name
// with its Sharpe ratio.
func (e *ParamExporter) ArchiveOptimalParams(currentFile, archiveDir string) (string, error) {
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	params, err := LoadOptimalParams(currentFile)
	if err != nil {
		return "", fmt.Errorf("failed to load current params: %w", err)
	}

	data, err := os.ReadFile(currentFile)
	if err != nil {
		return "", fmt.Errorf("failed to read current file: %w", err)
	}

	name := fmt.Sprintf("optimal_params_%s_%s_sharpe%.2f.yaml",
		sanitizeName(params.Pair), e.now().Format("20060102"), params.Performance.SharpeRatio)
	path := filepath.Join(archiveDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}
	return path, nil
}

// CompareParams compares two parameter sets
func CompareParams(baseline, current *OptimalParams) string {
	var b strings.Builder

	b.WriteString("Parameter Comparison\n")
	b.WriteString("===================\n\n")
	fmt.Fprintf(&b, "Pair: %s\n\n", current.Pair)

	b.WriteString("Performance Metrics:\n")
	fmt.Fprintf(&b, "  Sharpe Ratio:      %.4f -> %.4f%s\n",
		baseline.Performance.SharpeRatio, current.Performance.SharpeRatio,
		relativeChange(baseline.Performance.SharpeRatio, current.Performance.SharpeRatio))
	fmt.Fprintf(&b, "  Total Return:      %.4f -> %.4f%s\n",
		baseline.Performance.TotalReturn, current.Performance.TotalReturn,
		relativeChange(baseline.Performance.TotalReturn, current.Performance.TotalReturn))
	fmt.Fprintf(&b, "  Max Drawdown:      %.4f -> %.4f\n",
		baseline.Performance.MaxDrawdown, current.Performance.MaxDrawdown)
	fmt.Fprintf(&b, "  Win Rate:          %.2f%% -> %.2f%%\n\n",
		baseline.Performance.WinRate*100, current.Performance.WinRate*100)

	b.WriteString("Parameter Changes:\n")
	keys := make([]string, 0, len(current.Parameters)+len(baseline.Parameters))
	seen := make(map[string]bool)
	for _, m := range []map[string]float64{baseline.Parameters, current.Parameters} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "  %-20s: %s -> %s\n", key, paramValue(baseline.Parameters, key), paramValue(current.Parameters, key))
	}
	return b.String()
}

func relativeChange(from, to float64) string {
	if from == 0 {
		return ""
	}
	return fmt.Sprintf(" (%+.2f%%)", (to/from-1)*100)
}

func paramValue(m map[string]float64, key string) string {
	v, ok := m[key]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%g", v)
}
