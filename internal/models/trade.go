package models

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// TradeDirection is the side of an execution.
type TradeDirection string

const (
	// DirectionBuy opens or adds to a position.
	DirectionBuy TradeDirection = "buy"
	// DirectionSell exits some or all of a position.
	DirectionSell TradeDirection = "sell"
)

// Valid returns true if the direction is one of the defined constants.
func (d TradeDirection) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// OptionKind distinguishes puts from calls on option trades.
type OptionKind string

const (
	OptionPut  OptionKind = "put"
	OptionCall OptionKind = "call"
)

// Valid returns true if the kind is one of the defined constants.
func (k OptionKind) Valid() bool {
	return k == OptionPut || k == OptionCall
}

// Trade is an immutable execution record. Once persisted its economic fields
// (direction, quantity, price, timestamp, underlying) never change; trades are
// appended, never edited or deleted.
type Trade struct {
	Timestamp  time.Time      `json:"timestamp"`
	Expiration time.Time      `json:"expiration,omitzero"`
	ID         string         `json:"id"`
	PositionID string         `json:"position_id"`
	Direction  TradeDirection `json:"direction"`
	Underlying string         `json:"underlying"`

	// Option-specific attributes, zero-valued for stock trades.
	OptionKind   OptionKind `json:"option_kind,omitempty"`
	OptionSymbol string     `json:"option_symbol,omitempty"`
	Strike       float64    `json:"strike,omitempty"`
	Premium      float64    `json:"premium,omitempty"`

	// Assignment linkage: set on the synthetic closing trade so the option
	// trade history records where the economics went.
	AssignedPositionID  string  `json:"assigned_position_id,omitempty"`
	CostBasisAdjustment float64 `json:"cost_basis_adjustment,omitempty"`

	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// NewTradeID returns a ULID string. ULIDs are lexicographically sortable by
// generation time, which keeps trade ids aligned with insertion order.
func NewTradeID() string {
	return ulid.Make().String()
}

// SignedQuantity returns +quantity for buys and -quantity for sells.
func (t *Trade) SignedQuantity() int {
	if t.Direction == DirectionSell {
		return -t.Quantity
	}
	return t.Quantity
}

// IsEntry returns true for trades that open or add to the position.
func (t *Trade) IsEntry() bool {
	return t.Direction == DirectionBuy
}

// InstrumentKey identifies the instrument this trade executes against.
// Option legs key on the derived option symbol so lots are never shared
// across instrument groups; stock trades key on the underlying.
func (t *Trade) InstrumentKey() string {
	if t.OptionSymbol != "" {
		return t.OptionSymbol
	}
	return t.Underlying
}

// Validate checks the trade's own fields. Entry prices must be strictly
// positive; exit prices may be zero to represent worthless/expired closes.
func (t *Trade) Validate() error {
	if !t.Direction.Valid() {
		return NewValidationError("trade.direction", t.Direction, "must be 'buy' or 'sell'")
	}
	if t.Quantity <= 0 {
		return NewValidationError("trade.quantity", t.Quantity, "must be a positive integer")
	}
	if t.Price < 0 {
		return NewValidationError("trade.price", t.Price, "must not be negative")
	}
	if t.Direction == DirectionBuy && t.Price == 0 {
		return NewValidationError("trade.price", t.Price, "entry price must be strictly positive")
	}
	if t.Underlying == "" {
		return NewValidationError("trade.underlying", t.Underlying, "instrument identifier is required")
	}
	if t.Timestamp.IsZero() {
		return NewValidationError("trade.timestamp", t.Timestamp, "execution timestamp is required")
	}
	if t.OptionKind != "" && !t.OptionKind.Valid() {
		return NewValidationError("trade.option_kind", t.OptionKind, "must be 'put' or 'call'")
	}
	return nil
}
