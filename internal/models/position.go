package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SharesPerContract is the standard equity option multiplier.
const SharesPerContract = 100

// StrategyKind identifies the trade plan's strategy. The set is extensible;
// option strategies require the option plan fields at construction time.
type StrategyKind string

const (
	StrategyStockLong StrategyKind = "stock_long"
	StrategyShortPut  StrategyKind = "short_put"
	StrategyShortCall StrategyKind = "short_call"
	StrategyLongPut   StrategyKind = "long_put"
	StrategyLongCall  StrategyKind = "long_call"
)

// Valid returns true if the strategy is one of the defined constants.
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategyStockLong, StrategyShortPut, StrategyShortCall, StrategyLongPut, StrategyLongCall:
		return true
	default:
		return false
	}
}

// IsOption returns true for strategies that trade option contracts.
func (k StrategyKind) IsOption() bool {
	return k != StrategyStockLong && k.Valid()
}

// OptionKindFor returns the contract kind an option strategy trades.
func (k StrategyKind) OptionKindFor() OptionKind {
	switch k {
	case StrategyShortPut, StrategyLongPut:
		return OptionPut
	case StrategyShortCall, StrategyLongCall:
		return OptionCall
	default:
		return ""
	}
}

// PriceBasis selects which price a planned target is measured against.
type PriceBasis string

const (
	// BasisUnderlying measures targets against the underlying's price.
	BasisUnderlying PriceBasis = "underlying"
	// BasisPremium measures targets against the option premium.
	BasisPremium PriceBasis = "premium"
)

// Valid returns true if the basis is one of the defined constants.
func (b PriceBasis) Valid() bool {
	return b == BasisUnderlying || b == BasisPremium
}

// OptionPlan holds the option-only plan fields. It is present exactly when
// the position's strategy is an option strategy, enforced at construction.
type OptionPlan struct {
	Expiration  time.Time  `json:"expiration"`
	TargetBasis PriceBasis `json:"target_basis"`
	StopBasis   PriceBasis `json:"stop_basis"`
	Strike      float64    `json:"strike"`
	// Premium is dollars received or paid per contract; the per-share
	// figure is Premium / 100.
	Premium float64 `json:"premium"`
}

// Position is a trade plan plus its realized trade history. Status is always
// derived from the trades; the persisted State field is a cache refreshed on
// every write and never consulted as ground truth.
type Position struct {
	CreatedAt       time.Time    `json:"created_at"`
	Option          *OptionPlan  `json:"option,omitempty"`
	ID              string       `json:"id"`
	Symbol          string       `json:"symbol"`
	Thesis          string       `json:"thesis"`
	Strategy        StrategyKind `json:"strategy"`
	State           Status       `json:"status"`
	Trades          []Trade      `json:"trades"`
	PlannedEntry    float64      `json:"planned_entry"`
	ProfitTarget    float64      `json:"profit_target"`
	StopLoss        float64      `json:"stop_loss"`
	PlannedQuantity int          `json:"planned_quantity"`
}

// NewPosition creates a planned position and validates the plan, including
// the presence and sanity of option-only fields for option strategies.
func NewPosition(symbol string, strategy StrategyKind, plannedEntry float64, plannedQuantity int,
	profitTarget, stopLoss float64, thesis string, option *OptionPlan) (*Position, error) {
	p := &Position{
		ID:              uuid.New().String(),
		Symbol:          symbol,
		Strategy:        strategy,
		PlannedEntry:    plannedEntry,
		PlannedQuantity: plannedQuantity,
		ProfitTarget:    profitTarget,
		StopLoss:        stopLoss,
		Thesis:          thesis,
		Option:          option,
		CreatedAt:       time.Now().UTC(),
		Trades:          make([]Trade, 0),
		State:           StatusPlanned,
	}
	if err := p.ValidatePlan(); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidatePlan checks the plan fields. Option strategies must carry a
// complete option plan; stock strategies must not carry one.
func (p *Position) ValidatePlan() error {
	if p.Symbol == "" {
		return NewValidationError("position.symbol", p.Symbol, "instrument symbol is required")
	}
	if !p.Strategy.Valid() {
		return NewValidationError("position.strategy", p.Strategy, "unknown strategy kind")
	}
	if p.PlannedQuantity <= 0 {
		return NewValidationError("position.planned_quantity", p.PlannedQuantity, "must be a positive integer")
	}
	if p.PlannedEntry <= 0 {
		return NewValidationError("position.planned_entry", p.PlannedEntry, "must be strictly positive")
	}
	if p.Strategy.IsOption() {
		if p.Option == nil {
			return NewValidationError("position.option", nil,
				"option strategies require strike, expiration and premium")
		}
		if p.Option.Strike <= 0 {
			return NewValidationError("position.option.strike", p.Option.Strike, "must be strictly positive")
		}
		if p.Option.Expiration.IsZero() {
			return NewValidationError("position.option.expiration", p.Option.Expiration, "expiration date is required")
		}
		if p.Option.Premium < 0 {
			return NewValidationError("position.option.premium", p.Option.Premium, "must not be negative")
		}
		if p.Option.TargetBasis != "" && !p.Option.TargetBasis.Valid() {
			return NewValidationError("position.option.target_basis", p.Option.TargetBasis,
				"must be 'underlying' or 'premium'")
		}
		if p.Option.StopBasis != "" && !p.Option.StopBasis.Valid() {
			return NewValidationError("position.option.stop_basis", p.Option.StopBasis,
				"must be 'underlying' or 'premium'")
		}
	} else if p.Option != nil {
		return NewValidationError("position.option", p.Option, "stock strategies must not carry option fields")
	}
	return nil
}

// IsOption returns true if the position trades option contracts.
func (p *Position) IsOption() bool {
	return p.Strategy.IsOption()
}

// Status derives the lifecycle state from the trade history.
func (p *Position) Status() Status {
	return ComputeStatus(p.Trades)
}

// RefreshStatus recomputes the cached State field. Write paths call this;
// readers should prefer Status().
func (p *Position) RefreshStatus() {
	p.State = p.Status()
}

// NetQuantity returns open quantity: buys minus sells across all trades.
func (p *Position) NetQuantity() int {
	return NetQuantity(p.Trades)
}

// AppendTrade validates and appends an execution. The net signed quantity
// must never go negative, so oversells are rejected before the trade lands.
// Exits against a planned position (no entry yet) are also rejected.
func (p *Position) AppendTrade(t Trade) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Direction == DirectionSell {
		if len(p.Trades) == 0 {
			return &ValidationError{
				Field:      "trade.direction",
				Value:      t.Direction,
				Constraint: "cannot exit a planned position with no entry trade",
				Hint:       "record the entry execution first",
			}
		}
		if open := p.NetQuantity(); t.Quantity > open {
			return &ValidationError{
				Field:      "trade.quantity",
				Value:      t.Quantity,
				Constraint: fmt.Sprintf("exit quantity exceeds open quantity of %d", open),
				Hint:       "to reverse a position, close it first, then open a new one in the opposite direction",
			}
		}
	}
	if t.ID == "" {
		t.ID = NewTradeID()
	}
	t.PositionID = p.ID
	if p.IsOption() && p.Option != nil {
		if t.OptionKind == "" {
			t.OptionKind = p.Strategy.OptionKindFor()
		}
		if t.Strike == 0 {
			t.Strike = p.Option.Strike
		}
		if t.Expiration.IsZero() {
			t.Expiration = p.Option.Expiration
		}
		if t.Premium == 0 {
			t.Premium = p.Option.Premium
		}
		if t.OptionSymbol == "" {
			t.OptionSymbol = OCCSymbol(t.Underlying, t.Expiration, t.OptionKind, t.Strike)
		}
	}
	p.Trades = append(p.Trades, t)
	p.RefreshStatus()
	return nil
}

// ContractsOpen returns the open contract count for option positions.
func (p *Position) ContractsOpen() int {
	if !p.IsOption() {
		return 0
	}
	return p.NetQuantity()
}

// Clone returns a deep copy so storage can hand out snapshots that callers
// may mutate freely.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Option != nil {
		opt := *p.Option
		cp.Option = &opt
	}
	cp.Trades = make([]Trade, len(p.Trades))
	copy(cp.Trades, p.Trades)
	return &cp
}

// VerifyStoredStatus reports an IntegrityError when the cached status
// disagrees with the derived one. Readers treat this as self-healing: the
// derived value wins.
func (p *Position) VerifyStoredStatus() error {
	if derived := p.Status(); p.State != derived {
		return &IntegrityError{
			PositionID: p.ID,
			Detail:     fmt.Sprintf("stored status %q disagrees with derived status %q", p.State, derived),
		}
	}
	return nil
}
