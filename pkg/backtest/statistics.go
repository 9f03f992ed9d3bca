package backtest

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// summarize derives the Summary from the per-step series of res.
func summarize(res *Result, periodsPerYear float64) Summary {
	n := len(res.StrategyReturns)
	s := Summary{
		Steps:          n,
		TotalLogReturn: res.CumulativeReturns[n-1],
	}
	s.TotalReturn = math.Expm1(s.TotalLogReturn)

	var active int
	for t, p := range res.Positions {
		if math.Abs(p) > s.MaxAbsPosition {
			s.MaxAbsPosition = math.Abs(p)
		}
		if p != 0 {
			active++
		}
		if t == 0 {
			continue
		}
		if delta := math.Abs(p - res.Positions[t-1]); delta != 0 {
			s.PositionChanges++
			s.Turnover += delta
		}
		s.TotalCost += res.Costs[t]
	}
	s.ExposureRatio = float64(active) / float64(n)

	// step 0 carries no return and is left out of the per-period moments
	periods := res.StrategyReturns[1:]

	s.MeanReturn = meanNonZeroReturn(res.StrategyReturns)
	s.AnnualizedReturn = math.Pow(1+s.MeanReturn, periodsPerYear) - 1

	if len(periods) > 0 {
		mean := stats.Mean(periods)
		s.Volatility = stats.StdDev(periods)
		s.AnnualizedVol = s.Volatility * math.Sqrt(periodsPerYear)

		// Sharpe / Sortino, risk-free rate = 0
		if s.Volatility > 1e-12 {
			s.SharpeRatio = mean / s.Volatility * math.Sqrt(periodsPerYear)
		}
		if downside := stats.DownsideDeviation(periods); downside > 1e-12 {
			s.SortinoRatio = mean / downside * math.Sqrt(periodsPerYear)
		}
	}

	for _, dd := range res.Drawdowns {
		if -dd > s.MaxDrawdown {
			s.MaxDrawdown = -dd
		}
	}
	if s.MaxDrawdown > 0 {
		s.CalmarRatio = s.AnnualizedReturn / s.MaxDrawdown
	}

	s.Trades = tradeStats(res.Trades)
	return s
}

// meanNonZeroReturn averages the log returns of steps that moved and
// converts the average to a simple return. Flat steps would otherwise
// dilute the per-period figure.
func meanNonZeroReturn(logReturns []float64) float64 {
	var sum float64
	var count int
	for _, r := range logReturns {
		if r != 0 {
			sum += r
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Expm1(sum / float64(count))
}

// PrintSummary writes a plain-text summary of s to w.
func PrintSummary(w io.Writer, title string, s Summary) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintf(w, "BACKTEST SUMMARY %s\n", title)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "\nSteps:             %d\n", s.Steps)
	fmt.Fprintf(w, "Total Return:      %.2f%% (log %.6f)\n", s.TotalReturn*100, s.TotalLogReturn)
	fmt.Fprintf(w, "Position Changes:  %d (turnover %.2f)\n", s.PositionChanges, s.Turnover)
	fmt.Fprintf(w, "Total Cost:        %.6f\n", s.TotalCost)

	fmt.Fprintf(w, "\nPerformance Metrics:\n")
	fmt.Fprintf(w, "  Annualized Return: %.2f%%\n", s.AnnualizedReturn*100)
	fmt.Fprintf(w, "  Volatility:        %.2f%% (annualized)\n", s.AnnualizedVol*100)
	fmt.Fprintf(w, "  Sharpe Ratio:      %.2f\n", s.SharpeRatio)
	fmt.Fprintf(w, "  Sortino Ratio:     %.2f\n", s.SortinoRatio)
	fmt.Fprintf(w, "  Max Drawdown:      %.2f%%\n", s.MaxDrawdown*100)
	fmt.Fprintf(w, "  Calmar Ratio:      %.2f\n", s.CalmarRatio)

	fmt.Fprintf(w, "\nTrade Statistics:\n")
	fmt.Fprintf(w, "  Opened / Closed:   %d / %d\n", s.Trades.Opened, s.Trades.Closed)
	fmt.Fprintf(w, "  Win Trades:        %d (%.1f%%)\n", s.Trades.Winning, s.Trades.WinRate*100)
	fmt.Fprintf(w, "  Loss Trades:       %d\n", s.Trades.Losing)
	fmt.Fprintf(w, "  Profit Factor:     %.2f\n", s.Trades.ProfitFactor)
	fmt.Fprintf(w, "  Avg Win:           %.4f\n", s.Trades.AvgWin)
	fmt.Fprintf(w, "  Avg Loss:          %.4f\n", s.Trades.AvgLoss)

	fmt.Fprintln(w, strings.Repeat("=", 60))
}
