package backtest

import (
	"fmt"
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// Simulate turns a net position series and per-step log returns into a
// cost-adjusted strategy return series.
//
// For t >= 1 the position held at t-1 earns the return of t:
//
//	gross[t] = pos[t-1] * (w1*r1[t] - w2*r2[t])   // pair
//	gross[t] = pos[t-1] * w1*r1[t]                // single asset
//	cost[t]  = rate * |pos[t] - pos[t-1]|
//
// Step 0 earns nothing and pays nothing. returns2 and cfg.Weight2 must be
// given together or not at all.
func Simulate(position, returns1, returns2 []float64, cfg SimulationConfig) (*Result, error) {
	cfg, err := validateSimulation(position, returns1, returns2, cfg)
	if err != nil {
		return nil, err
	}

	n := len(position)
	w1 := *cfg.Weight1
	pair := returns2 != nil
	var w2 float64
	if pair {
		w2 = *cfg.Weight2
	}

	res := &Result{
		Config:          cfg,
		Positions:       append([]float64(nil), position...),
		GrossReturns:    make([]float64, n),
		Costs:           make([]float64, n),
		StrategyReturns: make([]float64, n),
	}

	for t := 1; t < n; t++ {
		held := position[t-1]
		if pair {
			res.GrossReturns[t] = held * (w1*returns1[t] - w2*returns2[t])
		} else {
			res.GrossReturns[t] = held * w1 * returns1[t]
		}
		res.Costs[t] = cfg.CostRate * math.Abs(position[t]-held)
		res.StrategyReturns[t] = res.GrossReturns[t] - res.Costs[t]
	}

	res.CumulativeReturns = stats.CumulativeSum(res.StrategyReturns)
	res.EquityCurve = stats.ToSimple(res.CumulativeReturns)
	res.Drawdowns = drawdowns(res.CumulativeReturns)
	res.Trades = extractTrades(res.Positions, res.GrossReturns, cfg.CostRate)
	res.Summary = summarize(res, cfg.PeriodsPerYear)

	return res, nil
}

// validateSimulation checks inputs in a fixed order and returns cfg with
// defaults applied.
func validateSimulation(position, returns1, returns2 []float64, cfg SimulationConfig) (SimulationConfig, error) {
	if err := stats.RequireNonEmpty("position", position); err != nil {
		return cfg, err
	}
	if err := stats.RequireNonEmpty("returns1", returns1); err != nil {
		return cfg, err
	}
	if !stats.IsFinite(cfg.CostRate) || cfg.CostRate < 0 {
		return cfg, fmt.Errorf("%w: cost rate must be non-negative and finite, got %v", stats.ErrParameter, cfg.CostRate)
	}
	if (returns2 != nil) != (cfg.Weight2 != nil) {
		return cfg, fmt.Errorf("%w: the second return series and its weight must be supplied together", stats.ErrParameter)
	}

	names := []string{"position", "returns1"}
	series := [][]float64{position, returns1}
	if returns2 != nil {
		names = append(names, "returns2")
		series = append(series, returns2)
	}
	if err := stats.RequireSameLength(names, series...); err != nil {
		return cfg, err
	}
	for i, s := range series {
		if err := stats.RequireFinite(names[i], s); err != nil {
			return cfg, err
		}
	}

	if cfg.Weight1 == nil {
		one := 1.0
		cfg.Weight1 = &one
	}
	if !stats.IsFinite(*cfg.Weight1) {
		return cfg, fmt.Errorf("%w: weight1 is not finite", stats.ErrParameter)
	}
	if cfg.Weight2 != nil && !stats.IsFinite(*cfg.Weight2) {
		return cfg, fmt.Errorf("%w: weight2 is not finite", stats.ErrParameter)
	}
	if !stats.IsFinite(cfg.PeriodsPerYear) || cfg.PeriodsPerYear < 0 {
		return cfg, fmt.Errorf("%w: periods per year must be non-negative, got %v", stats.ErrParameter, cfg.PeriodsPerYear)
	}
	if cfg.PeriodsPerYear == 0 {
		cfg.PeriodsPerYear = DefaultPeriodsPerYear
	}
	return cfg, nil
}

// drawdowns returns wealth / running peak - 1 for each step, starting from
// unit wealth.
func drawdowns(cumulative []float64) []float64 {
	out := make([]float64, len(cumulative))
	peak := 0.0
	for i, c := range cumulative {
		if c > peak {
			peak = c
		}
		out[i] = math.Expm1(c - peak)
	}
	return out
}
