// Package fifo implements first-in-first-out lot matching over a position's
// trade history, producing realized and unrealized P&L with per-trade
// attribution. All functions are pure: they operate on input snapshots only
// and keep no state across calls.
package fifo

import (
	"sort"

	"github.com/eddiefleurent/schrute_ledger/internal/models"
)

// LotMatch records one slice of an entry lot consumed by an exit trade.
type LotMatch struct {
	EntryTradeID string  `json:"entry_trade_id"`
	EntryPrice   float64 `json:"entry_price"`
	RealizedPnL  float64 `json:"realized_pnl"`
	Quantity     int     `json:"quantity"`
}

// TradePnL is the per-trade attribution entry. Entry trades carry zero
// realized P&L; exit trades list the entry lots they consumed.
type TradePnL struct {
	TradeID     string                `json:"trade_id"`
	Direction   models.TradeDirection `json:"direction"`
	Lots        []LotMatch            `json:"lots,omitempty"`
	RealizedPnL float64               `json:"realized_pnl"`
	Quantity    int                   `json:"quantity"`
}

// Result is the full matching outcome for one instrument's trades at a
// supplied mark price. Ephemeral: recomputed on demand, never cached.
type Result struct {
	PerTrade      []TradePnL `json:"per_trade"`
	RealizedPnL   float64    `json:"realized_pnl"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	TotalPnL      float64    `json:"total_pnl"`
	AvgOpenCost   float64    `json:"avg_open_cost"`
	OpenQuantity  int        `json:"open_quantity"`
	IsFullyClosed bool       `json:"is_fully_closed"`
	// MarkUnavailable is set when open quantity exists but no mark price was
	// known; unrealized figures are then omitted rather than guessed.
	MarkUnavailable bool `json:"mark_unavailable,omitempty"`
}

// lot is a still-open quantity from one entry trade. The lot queue is owned
// by a single Process invocation and never survives past the call.
type lot struct {
	tradeID   string
	price     float64
	remaining int
}

// Process matches one instrument's trades oldest-first and values any open
// remainder at markPrice. Trades are ordered ascending by execution
// timestamp with a stable sort, so insertion order breaks ties. An empty
// list returns an all-zero, fully-closed result.
//
// No rounding happens here; callers round only for display. A zero exit
// price is valid (expired/worthless) and realizes the full entry cost as a
// loss.
func Process(trades []models.Trade, markPrice float64) Result {
	result := Result{
		PerTrade:      make([]TradePnL, 0, len(trades)),
		IsFullyClosed: true,
	}
	if len(trades) == 0 {
		return result
	}

	ordered := make([]models.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var open []lot
	for i := range ordered {
		t := &ordered[i]
		entry := TradePnL{
			TradeID:   t.ID,
			Direction: t.Direction,
			Quantity:  t.Quantity,
		}
		if t.IsEntry() {
			open = append(open, lot{tradeID: t.ID, price: t.Price, remaining: t.Quantity})
			result.PerTrade = append(result.PerTrade, entry)
			continue
		}

		// Exit: consume head lots until satisfied or lots are exhausted.
		remaining := t.Quantity
		for remaining > 0 && len(open) > 0 {
			head := &open[0]
			matched := remaining
			if head.remaining < matched {
				matched = head.remaining
			}
			pnl := (t.Price - head.price) * float64(matched)
			entry.Lots = append(entry.Lots, LotMatch{
				EntryTradeID: head.tradeID,
				EntryPrice:   head.price,
				Quantity:     matched,
				RealizedPnL:  pnl,
			})
			entry.RealizedPnL += pnl
			result.RealizedPnL += pnl
			head.remaining -= matched
			remaining -= matched
			if head.remaining == 0 {
				open = open[1:]
			}
		}
		result.PerTrade = append(result.PerTrade, entry)
	}

	openQty := 0
	openCost := 0.0
	for _, l := range open {
		openQty += l.remaining
		openCost += l.price * float64(l.remaining)
	}
	result.OpenQuantity = openQty
	if openQty > 0 {
		result.AvgOpenCost = openCost / float64(openQty)
		result.UnrealizedPnL = (markPrice - result.AvgOpenCost) * float64(openQty)
		result.IsFullyClosed = false
	}
	result.TotalPnL = result.RealizedPnL + result.UnrealizedPnL
	return result
}

// PositionResult aggregates per-instrument results for a position whose
// trades may span multiple instruments (multi-leg strategies). Lots are
// never shared across instrument groups.
type PositionResult struct {
	ByInstrument map[string]Result `json:"by_instrument"`
	// MissingMarks lists instruments that carry open quantity but had no
	// mark price; their unrealized P&L is excluded from the totals.
	MissingMarks  []string `json:"missing_marks,omitempty"`
	RealizedPnL   float64  `json:"realized_pnl"`
	UnrealizedPnL float64  `json:"unrealized_pnl"`
	TotalPnL      float64  `json:"total_pnl"`
	OpenQuantity  int      `json:"open_quantity"`
	IsFullyClosed bool     `json:"is_fully_closed"`
}

// ProcessPosition groups a position's trades by instrument key, runs the
// engine per group with that instrument's mark price, and sums realized and
// unrealized totals across groups. An instrument missing from marks has its
// open quantity left unvalued and is reported in MissingMarks; valuing it at
// a zero mark would report the full entry cost as a phantom loss.
func ProcessPosition(p *models.Position, marks map[string]float64) PositionResult {
	agg := PositionResult{
		ByInstrument:  make(map[string]Result),
		IsFullyClosed: true,
	}
	if p == nil {
		return agg
	}

	groups := make(map[string][]models.Trade)
	order := make([]string, 0)
	for _, t := range p.Trades {
		key := t.InstrumentKey()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}

	for _, key := range order {
		mark, haveMark := marks[key]
		res := Process(groups[key], mark)
		if !haveMark && res.OpenQuantity > 0 {
			res.UnrealizedPnL = 0
			res.TotalPnL = res.RealizedPnL
			res.MarkUnavailable = true
			agg.MissingMarks = append(agg.MissingMarks, key)
		}
		agg.ByInstrument[key] = res
		agg.RealizedPnL += res.RealizedPnL
		agg.UnrealizedPnL += res.UnrealizedPnL
		agg.OpenQuantity += res.OpenQuantity
		if !res.IsFullyClosed {
			agg.IsFullyClosed = false
		}
	}
	agg.TotalPnL = agg.RealizedPnL + agg.UnrealizedPnL
	return agg
}
