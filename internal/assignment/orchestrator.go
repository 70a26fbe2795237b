// Package assignment implements the option-assignment workflow: closing an
// expiring short-option position with a synthetic $0 trade and opening the
// resulting stock position, committed as one atomic unit.
package assignment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eddiefleurent/schrute_ledger/internal/ledger"
	"github.com/eddiefleurent/schrute_ledger/internal/models"
	"github.com/eddiefleurent/schrute_ledger/internal/storage"
)

// Preview holds the economics of a prospective assignment. Computing it has
// no side effects; a validation failure creates nothing.
type Preview struct {
	OptionPositionID  string  `json:"option_position_id"`
	Symbol            string  `json:"symbol"`
	Strike            float64 `json:"strike"`
	PremiumPerShare   float64 `json:"premium_per_share"`
	CostBasisPerShare float64 `json:"cost_basis_per_share"`
	TotalCost         float64 `json:"total_cost"`
	Contracts         int     `json:"contracts"`
	TotalShares       int     `json:"total_shares"`
}

// CompleteInput carries the caller's choices for completing an assignment.
type CompleteInput struct {
	AssignmentDate   time.Time `json:"assignment_date"`
	OptionPositionID string    `json:"option_position_id"`
	Thesis           string    `json:"thesis"`
	// Contracts to assign; zero means all open contracts.
	Contracts int `json:"contracts"`
}

// Result reports the records produced by a completed assignment.
type Result struct {
	OptionPosition *models.Position        `json:"option_position"`
	StockPosition  *models.Position        `json:"stock_position"`
	Event          *models.AssignmentEvent `json:"event"`
}

// Orchestrator decides what an assignment writes; how atomicity is achieved
// belongs to the storage collaborator.
type Orchestrator struct {
	store storage.Interface
	locks *ledger.PositionLocks
	now   func() time.Time
}

// NewOrchestrator creates an orchestrator over the given store. locks must be
// the same registry the ledger service appends under, so an assignment's
// read-modify-write of the option position cannot interleave with a
// concurrent trade append; a nil registry gets a private one.
func NewOrchestrator(store storage.Interface, locks *ledger.PositionLocks) *Orchestrator {
	if locks == nil {
		locks = ledger.NewPositionLocks()
	}
	return &Orchestrator{store: store, locks: locks, now: time.Now}
}

// Initiate validates the assignment and computes its economics without
// mutating anything. contracts == 0 defaults to all open contracts.
func (o *Orchestrator) Initiate(optionPositionID string, contracts int) (*Preview, error) {
	pos, err := o.store.GetPosition(optionPositionID)
	if err != nil {
		return nil, fmt.Errorf("assignment preview: %w", err)
	}
	return o.preview(pos, contracts)
}

func (o *Orchestrator) preview(pos *models.Position, contracts int) (*Preview, error) {
	if !pos.IsOption() || pos.Option == nil {
		return nil, models.NewValidationError("assignment.position", pos.Strategy,
			"assignment requires an option position")
	}
	open := pos.ContractsOpen()
	if open <= 0 {
		return nil, models.NewValidationError("assignment.position", pos.Status(),
			"position has no open contracts")
	}
	today := o.now().UTC().Truncate(24 * time.Hour)
	expiration := pos.Option.Expiration.UTC().Truncate(24 * time.Hour)
	if today.Before(expiration) {
		return nil, &models.ValidationError{
			Field:      "assignment.date",
			Value:      today.Format("2006-01-02"),
			Constraint: fmt.Sprintf("assignment requires the expiration date %s to have been reached", expiration.Format("2006-01-02")),
		}
	}
	if contracts == 0 {
		contracts = open
	}
	if contracts < 0 {
		return nil, models.NewValidationError("assignment.contracts", contracts, "must be a positive integer")
	}
	if contracts > open {
		return nil, models.NewValidationError("assignment.contracts", contracts,
			fmt.Sprintf("exceeds open contracts of %d", open))
	}

	premiumPerShare := pos.Option.Premium / models.SharesPerContract
	shares := contracts * models.SharesPerContract
	return &Preview{
		OptionPositionID:  pos.ID,
		Symbol:            pos.Symbol,
		Contracts:         contracts,
		Strike:            pos.Option.Strike,
		PremiumPerShare:   premiumPerShare,
		CostBasisPerShare: pos.Option.Strike - premiumPerShare,
		TotalShares:       shares,
		TotalCost:         float64(shares) * pos.Option.Strike,
	}, nil
}

// Complete executes the assignment as a single atomic unit of work:
//
//  1. append a $0 closing trade to the option position sized to the
//     assigned contracts,
//  2. create the new stock-long position,
//  3. append its opening buy trade at the premium-adjusted cost basis,
//  4. create the assignment event linking both positions,
//  5. record the linkage fields on the closing trade.
//
// All five effects commit together through the store or none do.
//
// The option position's lock is held from the read until the commit. The
// stock position is freshly created under an id no other writer knows yet,
// so the option's lock covers the whole unit.
func (o *Orchestrator) Complete(input CompleteInput) (*Result, error) {
	lock := o.locks.Get(input.OptionPositionID)
	lock.Lock()
	defer lock.Unlock()

	pos, err := o.store.GetPosition(input.OptionPositionID)
	if err != nil {
		return nil, fmt.Errorf("assignment: %w", err)
	}
	pv, err := o.preview(pos, input.Contracts)
	if err != nil {
		return nil, err
	}

	when := input.AssignmentDate
	if when.IsZero() {
		when = o.now().UTC()
	}

	stock, err := models.NewPosition(
		pos.Symbol,
		models.StrategyStockLong,
		pv.CostBasisPerShare,
		pv.TotalShares,
		0, 0,
		input.Thesis,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("assignment: creating stock position: %w", err)
	}

	// Synthetic closing trade at $0; linkage fields record where the
	// economics went.
	closing := models.Trade{
		ID:                  models.NewTradeID(),
		Direction:           models.DirectionSell,
		Quantity:            pv.Contracts,
		Price:               0,
		Timestamp:           when,
		Underlying:          pos.Symbol,
		AssignedPositionID:  stock.ID,
		CostBasisAdjustment: pv.PremiumPerShare,
	}
	if err := pos.AppendTrade(closing); err != nil {
		return nil, fmt.Errorf("assignment: closing option position: %w", err)
	}

	// The shares land at the premium-adjusted cost basis, not the raw
	// strike; the cash outlay at the strike is what Preview.TotalCost
	// reports.
	opening := models.Trade{
		ID:         models.NewTradeID(),
		Direction:  models.DirectionBuy,
		Quantity:   pv.TotalShares,
		Price:      pv.CostBasisPerShare,
		Timestamp:  when,
		Underlying: pos.Symbol,
	}
	if err := stock.AppendTrade(opening); err != nil {
		return nil, fmt.Errorf("assignment: opening stock position: %w", err)
	}

	event := &models.AssignmentEvent{
		ID:                uuid.New().String(),
		OptionPositionID:  pos.ID,
		StockPositionID:   stock.ID,
		AssignmentDate:    when,
		Contracts:         pv.Contracts,
		Strike:            pv.Strike,
		PremiumPerShare:   pv.PremiumPerShare,
		CostBasisPerShare: pv.CostBasisPerShare,
		CreatedAt:         o.now().UTC(),
	}

	if err := o.store.CommitAssignment(pos, stock, event); err != nil {
		return nil, err
	}
	return &Result{OptionPosition: pos, StockPosition: stock, Event: event}, nil
}
