package backtest

import (
	"math"

	"github.com/yourusername/quantlink-statarb/pkg/signal"
)

// extractTrades splits the position series into trades. The gross return of
// step t belongs to the trade held at t-1. A flip charges rate*|prev| to the
// closing trade and rate*|now| to the new one; a resize is charged to the
// trade being resized.
func extractTrades(position, gross []float64, rate float64) []Trade {
	var trades []Trade
	var cur *Trade

	open := func(step int, size, cost float64) {
		trades = append(trades, Trade{
			Direction: directionOf(size),
			EntryStep: step,
			Size:      math.Abs(size),
			Cost:      cost,
		})
		cur = &trades[len(trades)-1]
	}

	if position[0] != 0 {
		open(0, position[0], 0)
	}

	for t := 1; t < len(position); t++ {
		prev, now := position[t-1], position[t]
		if cur != nil {
			cur.GrossReturn += gross[t]
		}

		if sign(prev) == sign(now) {
			if cur != nil && prev != now {
				cur.Cost += rate * math.Abs(now-prev)
				cur.Size = math.Max(cur.Size, math.Abs(now))
			}
			continue
		}

		if cur != nil {
			cur.Cost += rate * math.Abs(prev)
			cur.ExitStep = t
			cur.Return = cur.GrossReturn - cur.Cost
			cur = nil
		}
		if now != 0 {
			open(t, now, rate*math.Abs(now))
		}
	}

	if cur != nil {
		cur.Open = true
		cur.ExitStep = len(position)
		cur.Return = cur.GrossReturn - cur.Cost
	}
	return trades
}

func tradeStats(trades []Trade) TradeStats {
	st := TradeStats{Opened: len(trades)}

	var sumWin, sumLoss float64
	var holding int
	first := true
	for _, tr := range trades {
		if tr.Open {
			continue
		}
		st.Closed++
		holding += tr.HoldingSteps()

		switch {
		case tr.Return > 0:
			st.Winning++
			sumWin += tr.Return
		case tr.Return < 0:
			st.Losing++
			sumLoss += -tr.Return
		}

		if first || tr.Return > st.BestTrade {
			st.BestTrade = tr.Return
		}
		if first || tr.Return < st.WorstTrade {
			st.WorstTrade = tr.Return
		}
		first = false
	}

	if st.Closed > 0 {
		st.WinRate = float64(st.Winning) / float64(st.Closed)
		st.AvgHoldingSteps = float64(holding) / float64(st.Closed)
	}
	if st.Winning > 0 {
		st.AvgWin = sumWin / float64(st.Winning)
	}
	if st.Losing > 0 {
		st.AvgLoss = sumLoss / float64(st.Losing)
	}
	if sumLoss > 0 {
		st.ProfitFactor = sumWin / sumLoss
	}
	return st
}

func directionOf(position float64) signal.Direction {
	if position < 0 {
		return signal.Short
	}
	return signal.Long
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
