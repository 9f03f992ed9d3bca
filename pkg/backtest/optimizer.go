package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quantlink-statarb/pkg/logging"
	"github.com/yourusername/quantlink-statarb/pkg/metrics"
	"github.com/yourusername/quantlink-statarb/pkg/signal"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// Parameter names understood by ApplyParams:
//
//	<long|short>.<eq|neq|gt|lt>.<entry|exit>   comparator threshold
//	<long|short>.tolerance                      equality tolerance
//	<long|short>.size                           position size
//	zscore_window                               rolling window
//	cost_rate                                   per-change cost
const (
	ParamZScoreWindow = "zscore_window"
	ParamCostRate     = "cost_rate"
)

// ParamRange defines the range for a parameter
type ParamRange struct {
	Name string    `yaml:"name" json:"name" mapstructure:"name"`
	Min  float64   `yaml:"min" json:"min" mapstructure:"min"`
	Max  float64   `yaml:"max" json:"max" mapstructure:"max"`
	Step float64   `yaml:"step" json:"step" mapstructure:"step"`
	Type ParamType `yaml:"type,omitempty" json:"type,omitempty" mapstructure:"type"`
}

// Values lists min, min+step, ... up to max inclusive.
func (r ParamRange) Values() []float64 {
	n := int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
	values := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := r.Min + float64(i)*r.Step
		if r.Type == ParamTypeInt {
			v = math.Round(v)
		} else {
			v = stats.Round(v, 10)
		}
		values = append(values, v)
	}
	return values
}

// ParseParamRanges parses "name:min:max:step,name:min:max:step".
func ParseParamRanges(s string) ([]ParamRange, error) {
	var ranges []ParamRange
	for _, spec := range strings.Split(s, ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		parts := strings.Split(spec, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w: invalid parameter spec %q (expected name:min:max:step)", stats.ErrConfiguration, spec)
		}
		var bounds [3]float64
		for i, label := range []string{"min", "max", "step"} {
			v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid %s value for %s: %v", stats.ErrConfiguration, label, parts[0], err)
			}
			bounds[i] = v
		}
		ranges = append(ranges, ParamRange{Name: strings.TrimSpace(parts[0]), Min: bounds[0], Max: bounds[1], Step: bounds[2]})
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%w: no parameter ranges", stats.ErrConfiguration)
	}
	return ranges, nil
}

// ParamType indicates how to interpret the parameter
type ParamType string

const (
	ParamTypeFloat ParamType = "float"
	ParamTypeInt   ParamType = "int"
)

// OptimizationGoal defines the optimization objective
type OptimizationGoal string

const (
	GoalSharpeRatio  OptimizationGoal = "sharpe"
	GoalTotalReturn  OptimizationGoal = "total_return"
	GoalWinRate      OptimizationGoal = "win_rate"
	GoalProfitFactor OptimizationGoal = "profit_factor"
	GoalCalmarRatio  OptimizationGoal = "calmar"
)

// ParseGoal maps a config string to a goal; empty means sharpe.
func ParseGoal(s string) (OptimizationGoal, error) {
	switch g := OptimizationGoal(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GoalSharpeRatio, nil
	case GoalSharpeRatio, GoalTotalReturn, GoalWinRate, GoalProfitFactor, GoalCalmarRatio:
		return g, nil
	}
	return "", fmt.Errorf("%w: unknown optimization goal %q", stats.ErrConfiguration, s)
}

// OptimizationResult stores the result of a single parameter combination
type OptimizationResult struct {
	Parameters map[string]float64  `yaml:"parameters" json:"parameters"`
	Metrics    OptimizationMetrics `yaml:"metrics" json:"metrics"`
	Long       *signal.Document    `yaml:"long,omitempty" json:"long,omitempty"`
	Short      *signal.Document    `yaml:"short,omitempty" json:"short,omitempty"`
	Rank       int                 `yaml:"rank" json:"rank"`
	Score      float64             `yaml:"score" json:"score"`
}

// OptimizationMetrics contains key performance metrics
type OptimizationMetrics struct {
	SharpeRatio      float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	SortinoRatio     float64 `yaml:"sortino_ratio" json:"sortino_ratio"`
	TotalReturn      float64 `yaml:"total_return" json:"total_return"`
	AnnualizedReturn float64 `yaml:"annualized_return" json:"annualized_return"`
	MaxDrawdown      float64 `yaml:"max_drawdown" json:"max_drawdown"`
	WinRate          float64 `yaml:"win_rate" json:"win_rate"`
	ProfitFactor     float64 `yaml:"profit_factor" json:"profit_factor"`
	CalmarRatio      float64 `yaml:"calmar_ratio" json:"calmar_ratio"`
	TotalTrades      int     `yaml:"total_trades" json:"total_trades"`
}

func metricsFromSummary(s Summary) OptimizationMetrics {
	return OptimizationMetrics{
		SharpeRatio:      s.SharpeRatio,
		SortinoRatio:     s.SortinoRatio,
		TotalReturn:      s.TotalReturn,
		AnnualizedReturn: s.AnnualizedReturn,
		MaxDrawdown:      s.MaxDrawdown,
		WinRate:          s.Trades.WinRate,
		ProfitFactor:     s.Trades.ProfitFactor,
		CalmarRatio:      s.CalmarRatio,
		TotalTrades:      s.Trades.Opened,
	}
}

// ParameterOptimizer performs parameter optimization using grid search
type ParameterOptimizer struct {
	base        RunSpec
	paramRanges map[string]ParamRange
	goal        OptimizationGoal
	maxWorkers  int
	runner      *Runner
	log         *logrus.Entry
	metrics     *metrics.Collector
}

// NewParameterOptimizer creates an optimizer around a base run. Evaluations
// run on a quiet runner; progress is logged by the optimizer itself.
func NewParameterOptimizer(base RunSpec, logger *logrus.Logger, collector *metrics.Collector) *ParameterOptimizer {
	return &ParameterOptimizer{
		base:        base,
		paramRanges: make(map[string]ParamRange),
		goal:        GoalSharpeRatio,
		maxWorkers:  4,
		runner:      NewRunner(nil, nil),
		log:         logging.WithComponent(logger, "Optimizer"),
		metrics:     collector,
	}
}

// AddParamRange adds a parameter range for optimization
func (opt *ParameterOptimizer) AddParamRange(r ParamRange) error {
	if _, err := ApplyParams(opt.base, map[string]float64{r.Name: r.Min}); err != nil {
		return err
	}
	if !stats.IsFinite(r.Min) || !stats.IsFinite(r.Max) || !stats.IsFinite(r.Step) {
		return fmt.Errorf("%w: range %s must be finite", stats.ErrParameter, r.Name)
	}
	if r.Step <= 0 || r.Max < r.Min {
		return fmt.Errorf("%w: range %s needs step > 0 and max >= min", stats.ErrParameter, r.Name)
	}
	if r.Type == "" {
		r.Type = ParamTypeFloat
		if r.Name == ParamZScoreWindow {
			r.Type = ParamTypeInt
		}
	}
	opt.paramRanges[r.Name] = r
	return nil
}

// SetOptimizationGoal sets the optimization objective
func (opt *ParameterOptimizer) SetOptimizationGoal(goal OptimizationGoal) {
	opt.goal = goal
}

// SetMaxWorkers sets the maximum number of parallel workers
func (opt *ParameterOptimizer) SetMaxWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	if workers > 16 {
		workers = 16
	}
	opt.maxWorkers = workers
}

// GridSearch evaluates every combination and returns the successful ones
// ranked by score, best first. Failed combinations are logged and skipped.
func (opt *ParameterOptimizer) GridSearch(ctx context.Context) ([]*OptimizationResult, error) {
	opt.log.Infof("Starting grid search: goal=%s workers=%d", opt.goal, opt.maxWorkers)

	combinations := opt.generateCombinations()
	total := len(combinations)
	if total == 0 {
		return nil, fmt.Errorf("%w: no parameter combinations to test", stats.ErrConfiguration)
	}
	opt.log.Infof("Total parameter combinations: %d", total)

	// indexed by combination so ties rank in grid order
	slots := make([]*OptimizationResult, total)
	var resultsMutex sync.Mutex
	var wg sync.WaitGroup
	completed := 0

	semaphore := make(chan struct{}, opt.maxWorkers)
	startTime := time.Now()

	for i, params := range combinations {
		wg.Add(1)
		go func(idx int, paramSet map[string]float64) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-semaphore }()

			result, err := opt.evaluate(ctx, paramSet)
			opt.metrics.ObserveOptimizerEval(err)
			if err != nil {
				opt.log.Warnf("Combination %d/%d failed: %v", idx+1, total, err)
				return
			}

			resultsMutex.Lock()
			slots[idx] = result
			completed++
			done := completed
			resultsMutex.Unlock()
			opt.log.Debugf("Progress: %d/%d score=%.4f", done, total, result.Score)
		}(i, params)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]*OptimizationResult, 0, completed)
	for _, r := range slots {
		if r != nil {
			results = append(results, r)
		}
	}
	opt.log.Infof("Grid search completed in %v: %d/%d succeeded", time.Since(startTime), len(results), total)

	rankResults(results)

	for i := 0; i < 5 && i < len(results); i++ {
		r := results[i]
		opt.log.Infof("#%d score=%.4f sharpe=%.2f return=%.4f params=%v",
			r.Rank, r.Score, r.Metrics.SharpeRatio, r.Metrics.TotalReturn, r.Parameters)
	}
	return results, nil
}

func rankResults(results []*OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return sortableScore(results[i].Score) > sortableScore(results[j].Score)
	})
	for i, r := range results {
		r.Rank = i + 1
	}
}

func sortableScore(s float64) float64 {
	if math.IsNaN(s) {
		return math.Inf(-1)
	}
	return s
}

// generateCombinations generates all parameter combinations
func (opt *ParameterOptimizer) generateCombinations() []map[string]float64 {
	paramNames := make([]string, 0, len(opt.paramRanges))
	for name := range opt.paramRanges {
		paramNames = append(paramNames, name)
	}
	sort.Strings(paramNames)

	if len(paramNames) == 0 {
		return nil
	}

	paramValues := make([][]float64, len(paramNames))
	for i, name := range paramNames {
		paramValues[i] = opt.paramRanges[name].Values()
	}

	combinations := make([]map[string]float64, 0)
	generateCombinationsRecursive(paramNames, paramValues, 0, make(map[string]float64), &combinations)
	return combinations
}

func generateCombinationsRecursive(
	paramNames []string,
	paramValues [][]float64,
	depth int,
	current map[string]float64,
	result *[]map[string]float64,
) {
	if depth == len(paramNames) {
		combo := make(map[string]float64, len(current))
		for k, v := range current {
			combo[k] = v
		}
		*result = append(*result, combo)
		return
	}

	paramName := paramNames[depth]
	for _, value := range paramValues[depth] {
		current[paramName] = value
		generateCombinationsRecursive(paramNames, paramValues, depth+1, current, result)
	}
}

func (opt *ParameterOptimizer) evaluate(ctx context.Context, params map[string]float64) (*OptimizationResult, error) {
	spec, err := ApplyParams(opt.base, params)
	if err != nil {
		return nil, err
	}
	out, err := opt.runner.Run(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("backtest failed: %w", err)
	}

	m := metricsFromSummary(out.Result.Summary)
	return &OptimizationResult{
		Parameters: params,
		Metrics:    m,
		Long:       spec.Long,
		Short:      spec.Short,
		Score:      opt.calculateScore(&m),
	}, nil
}

// calculateScore calculates the optimization score
func (opt *ParameterOptimizer) calculateScore(m *OptimizationMetrics) float64 {
	switch opt.goal {
	case GoalTotalReturn:
		return m.TotalReturn
	case GoalWinRate:
		return m.WinRate
	case GoalProfitFactor:
		return m.ProfitFactor
	case GoalCalmarRatio:
		return m.CalmarRatio
	default:
		return m.SharpeRatio
	}
}

// ApplyParams returns a copy of base with params applied. The signal
// documents are cloned so base is never modified; a side missing from base
// is created when one of its parameters is set.
func ApplyParams(base RunSpec, params map[string]float64) (RunSpec, error) {
	spec := base
	spec.Long = base.Long.Clone()
	spec.Short = base.Short.Clone()

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := params[name]
		switch name {
		case ParamZScoreWindow:
			spec.ZScoreWindow = int(math.Round(value))
			continue
		case ParamCostRate:
			spec.Simulation.CostRate = value
			continue
		}

		parts := strings.Split(name, ".")
		dir, err := signal.ParseDirection(parts[0])
		if err != nil {
			return RunSpec{}, fmt.Errorf("%w: unknown parameter %q", stats.ErrConfiguration, name)
		}
		doc := &spec.Long
		if dir == signal.Short {
			doc = &spec.Short
		}
		if *doc == nil {
			*doc = &signal.Document{SignalType: dir}
		}

		switch {
		case len(parts) == 2 && parts[1] == "tolerance":
			(*doc).Tolerance = signal.Float(value)
		case len(parts) == 2 && parts[1] == "size":
			(*doc).Size = value
		case len(parts) == 3:
			kind, err := signal.ParseComparatorKind(parts[1])
			if err != nil {
				return RunSpec{}, fmt.Errorf("%w: parameter %q: %v", stats.ErrConfiguration, name, err)
			}
			slot, err := signal.ParseSlot(parts[2])
			if err != nil {
				return RunSpec{}, fmt.Errorf("%w: parameter %q: %v", stats.ErrConfiguration, name, err)
			}
			if err := (*doc).Set(kind, slot, value); err != nil {
				return RunSpec{}, fmt.Errorf("parameter %q: %w", name, err)
			}
		default:
			return RunSpec{}, fmt.Errorf("%w: unknown parameter %q", stats.ErrConfiguration, name)
		}
	}
	return spec, nil
}

// GetBestResult returns the best optimization result
func GetBestResult(results []*OptimizationResult) *OptimizationResult {
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

// GetTopNResults returns the top N results
func GetTopNResults(results []*OptimizationResult, n int) []*OptimizationResult {
	if n > len(results) {
		n = len(results)
	}
	if n < 0 {
		n = 0
	}
	return results[:n]
}
