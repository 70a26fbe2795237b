// Package analysis compares a closed position's planned targets against its
// actual execution, grading entry, exit and overall profit quality.
package analysis

import (
	"math"

	"github.com/eddiefleurent/schrute_ledger/internal/fifo"
	"github.com/eddiefleurent/schrute_ledger/internal/models"
)

// DefaultTolerance is the absolute price tolerance used to classify a delta
// as on-target, avoiding verdict flip-flop on floating-point noise.
const DefaultTolerance = 0.01

// Verdict is the qualitative grade for one dimension of execution quality.
type Verdict string

const (
	VerdictBetter   Verdict = "better"
	VerdictWorse    Verdict = "worse"
	VerdictOnTarget Verdict = "on-target"
)

// Comparison is the one-time plan-vs-execution artifact produced when a
// position closes. Ephemeral: recomputed on demand, never persisted.
type Comparison struct {
	PositionID string `json:"position_id"`

	PlannedEntry  float64 `json:"planned_entry"`
	ActualEntry   float64 `json:"actual_entry"`
	EntryDelta    float64 `json:"entry_delta"`
	EntryDeltaPct float64 `json:"entry_delta_pct"`
	EntryVerdict  Verdict `json:"entry_verdict"`

	PlannedExit  float64 `json:"planned_exit"`
	ActualExit   float64 `json:"actual_exit"`
	ExitDelta    float64 `json:"exit_delta"`
	ExitDeltaPct float64 `json:"exit_delta_pct"`
	ExitVerdict  Verdict `json:"exit_verdict"`

	TargetProfit   float64 `json:"target_profit"`
	ActualProfit   float64 `json:"actual_profit"`
	ProfitDelta    float64 `json:"profit_delta"`
	ProfitDeltaPct float64 `json:"profit_delta_pct"`
	OverallVerdict Verdict `json:"overall_verdict"`
}

// Analyzer grades execution quality with a configurable price tolerance.
// The profit tolerance scales with planned quantity.
type Analyzer struct {
	Tolerance float64
}

// NewAnalyzer returns an Analyzer; a non-positive tolerance falls back to
// DefaultTolerance.
func NewAnalyzer(tolerance float64) *Analyzer {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Analyzer{Tolerance: tolerance}
}

// Analyze combines the position's plan with the FIFO result. The caller is
// expected to invoke it only once the position's status is closed; on a
// still-open position the actual-exit figures are not meaningful.
func (a *Analyzer) Analyze(p *models.Position, res fifo.Result) Comparison {
	c := Comparison{
		PositionID:   p.ID,
		PlannedEntry: p.PlannedEntry,
		PlannedExit:  p.ProfitTarget,
	}

	c.ActualEntry = weightedAvg(p.Trades, models.DirectionBuy)
	c.ActualExit = weightedAvg(p.Trades, models.DirectionSell)

	c.EntryDelta = c.ActualEntry - c.PlannedEntry
	c.ExitDelta = c.ActualExit - c.PlannedExit
	c.TargetProfit = (c.PlannedExit - c.PlannedEntry) * float64(p.PlannedQuantity)
	c.ActualProfit = res.RealizedPnL
	c.ProfitDelta = c.ActualProfit - c.TargetProfit

	c.EntryDeltaPct = pctOf(c.EntryDelta, c.PlannedEntry, a.Tolerance)
	c.ExitDeltaPct = pctOf(c.ExitDelta, c.PlannedExit, a.Tolerance)
	profitTol := a.Tolerance * float64(p.PlannedQuantity)
	c.ProfitDeltaPct = pctOf(c.ProfitDelta, c.TargetProfit, profitTol)

	// Paying less than planned on entry is better; selling for more than
	// planned on exit is better.
	c.EntryVerdict = grade(-c.EntryDelta, a.Tolerance)
	c.ExitVerdict = grade(c.ExitDelta, a.Tolerance)
	c.OverallVerdict = grade(c.ProfitDelta, profitTol)
	return c
}

// AnalyzePosition grades against an aggregated multi-instrument result;
// only the realized total feeds the comparison.
func (a *Analyzer) AnalyzePosition(p *models.Position, res fifo.PositionResult) Comparison {
	return a.Analyze(p, fifo.Result{RealizedPnL: res.RealizedPnL})
}

// Analyze grades with the default tolerance.
func Analyze(p *models.Position, res fifo.Result) Comparison {
	return NewAnalyzer(DefaultTolerance).Analyze(p, res)
}

// grade maps a signed advantage (positive = favorable) to a verdict using an
// absolute tolerance band.
func grade(advantage, tolerance float64) Verdict {
	switch {
	case advantage > tolerance:
		return VerdictBetter
	case advantage < -tolerance:
		return VerdictWorse
	default:
		return VerdictOnTarget
	}
}

// pctOf returns delta as a percentage of the planned reference, guarding the
// near-zero reference case.
func pctOf(delta, reference, tolerance float64) float64 {
	if math.Abs(reference) <= tolerance {
		return 0
	}
	return delta / reference * 100
}

func weightedAvg(trades []models.Trade, dir models.TradeDirection) float64 {
	qty := 0
	cost := 0.0
	for i := range trades {
		if trades[i].Direction != dir {
			continue
		}
		qty += trades[i].Quantity
		cost += trades[i].Price * float64(trades[i].Quantity)
	}
	if qty == 0 {
		return 0
	}
	return cost / float64(qty)
}
