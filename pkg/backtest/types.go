package backtest

import (
	"github.com/yourusername/quantlink-statarb/pkg/signal"
)

// DefaultPeriodsPerYear annualises daily bars.
const DefaultPeriodsPerYear = 252.0

// SimulationConfig holds the cost and capital parameters of one simulation.
type SimulationConfig struct {
	// CostRate is charged per unit of position change.
	CostRate float64 `yaml:"cost_rate" json:"cost_rate" mapstructure:"cost_rate"`
	// Weight1 is the capital weight of asset 1; nil means 1.0.
	Weight1 *float64 `yaml:"weight1,omitempty" json:"weight1,omitempty" mapstructure:"weight1"`
	// Weight2 is required exactly when a second return series is supplied.
	Weight2 *float64 `yaml:"weight2,omitempty" json:"weight2,omitempty" mapstructure:"weight2"`
	// PeriodsPerYear annualises ratios; 0 means DefaultPeriodsPerYear.
	PeriodsPerYear float64 `yaml:"periods_per_year,omitempty" json:"periods_per_year,omitempty" mapstructure:"periods_per_year"`
}

// Trade is one run of same-signed non-zero position.
type Trade struct {
	Direction signal.Direction `yaml:"direction" json:"direction"`
	EntryStep int              `yaml:"entry_step" json:"entry_step"`
	// ExitStep is the first step flat or reversed; len(series) while Open.
	ExitStep    int     `yaml:"exit_step" json:"exit_step"`
	Size        float64 `yaml:"size" json:"size"`
	GrossReturn float64 `yaml:"gross_return" json:"gross_return"`
	Cost        float64 `yaml:"cost" json:"cost"`
	Return      float64 `yaml:"return" json:"return"`
	Open        bool    `yaml:"open" json:"open"`
}

// HoldingSteps is the number of steps the trade was held.
func (t *Trade) HoldingSteps() int {
	return t.ExitStep - t.EntryStep
}

// TradeStats summarises closed trades; open trades only count as opened.
type TradeStats struct {
	Opened          int     `yaml:"opened" json:"opened"`
	Closed          int     `yaml:"closed" json:"closed"`
	Winning         int     `yaml:"winning" json:"winning"`
	Losing          int     `yaml:"losing" json:"losing"`
	WinRate         float64 `yaml:"win_rate" json:"win_rate"`
	AvgWin          float64 `yaml:"avg_win" json:"avg_win"`
	AvgLoss         float64 `yaml:"avg_loss" json:"avg_loss"`
	ProfitFactor    float64 `yaml:"profit_factor" json:"profit_factor"`
	BestTrade       float64 `yaml:"best_trade" json:"best_trade"`
	WorstTrade      float64 `yaml:"worst_trade" json:"worst_trade"`
	AvgHoldingSteps float64 `yaml:"avg_holding_steps" json:"avg_holding_steps"`
}

// Summary is derived only from the per-step series of a Result.
type Summary struct {
	Steps            int     `yaml:"steps" json:"steps"`
	TotalLogReturn   float64 `yaml:"total_log_return" json:"total_log_return"`
	TotalReturn      float64 `yaml:"total_return" json:"total_return"`
	PositionChanges  int     `yaml:"position_changes" json:"position_changes"`
	Turnover         float64 `yaml:"turnover" json:"turnover"`
	TotalCost        float64 `yaml:"total_cost" json:"total_cost"`
	MeanReturn       float64 `yaml:"mean_return" json:"mean_return"`
	Volatility       float64 `yaml:"volatility" json:"volatility"`
	AnnualizedVol    float64 `yaml:"annualized_volatility" json:"annualized_volatility"`
	SharpeRatio      float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	SortinoRatio     float64 `yaml:"sortino_ratio" json:"sortino_ratio"`
	AnnualizedReturn float64 `yaml:"annualized_return" json:"annualized_return"`
	MaxDrawdown      float64 `yaml:"max_drawdown" json:"max_drawdown"`
	CalmarRatio      float64 `yaml:"calmar_ratio" json:"calmar_ratio"`
	MaxAbsPosition   float64 `yaml:"max_abs_position" json:"max_abs_position"`
	ExposureRatio    float64 `yaml:"exposure_ratio" json:"exposure_ratio"`

	Trades TradeStats `yaml:"trades" json:"trades"`
}

// Result is the full output of Simulate. Every series has the length of
// the position series; index 0 carries no return and no cost.
type Result struct {
	Config            SimulationConfig
	Positions         []float64
	GrossReturns      []float64
	Costs             []float64
	StrategyReturns   []float64
	CumulativeReturns []float64
	EquityCurve       []float64
	Drawdowns         []float64
	Trades            []Trade
	Summary           Summary
}
