// Package ledger is the write boundary for trade executions. It validates
// appends, serializes mutations per position, and produces the one-time
// plan-vs-execution comparison when a position closes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/schrute_ledger/internal/analysis"
	"github.com/eddiefleurent/schrute_ledger/internal/fifo"
	"github.com/eddiefleurent/schrute_ledger/internal/marketdata"
	"github.com/eddiefleurent/schrute_ledger/internal/models"
	"github.com/eddiefleurent/schrute_ledger/internal/storage"
)

// Service coordinates validation, persistence and analysis for the journal.
// The calculators it calls are pure; the service owns the read-modify-write
// of each position's trade list and serializes it per position id so two
// concurrent appends can never interleave.
type Service struct {
	store    storage.Interface
	prices   marketdata.Provider
	analyzer *analysis.Analyzer
	logger   *logrus.Logger
	locks    *PositionLocks
}

// NewService creates the ledger service.
func NewService(store storage.Interface, prices marketdata.Provider,
	analyzer *analysis.Analyzer, logger *logrus.Logger) *Service {
	if analyzer == nil {
		analyzer = analysis.NewAnalyzer(analysis.DefaultTolerance)
	}
	return &Service{
		store:    store,
		prices:   prices,
		analyzer: analyzer,
		logger:   logger,
		locks:    NewPositionLocks(),
	}
}

// Locks exposes the per-position lock registry so other writers of the same
// store (the assignment workflow) can serialize against trade appends.
func (s *Service) Locks() *PositionLocks {
	return s.locks
}

// CreatePosition validates the plan and stores a new planned position.
func (s *Service) CreatePosition(p *models.Position) error {
	if err := p.ValidatePlan(); err != nil {
		return err
	}
	if err := s.store.CreatePosition(p); err != nil {
		return err
	}
	s.logger.WithField("position_id", p.ID).Infof("created %s position for %s", p.Strategy, p.Symbol)
	return nil
}

// GetPosition returns the position, verifying the stored status cache. A
// disagreement is logged and self-heals (the derived value wins) rather than
// failing the read.
func (s *Service) GetPosition(id string) (*models.Position, error) {
	p, err := s.store.GetPosition(id)
	if err != nil {
		return nil, err
	}
	if err := p.VerifyStoredStatus(); err != nil {
		s.logger.WithError(err).Warn("stored status disagreed with derived status; using derived")
		p.RefreshStatus()
	}
	return p, nil
}

// ListPositions returns all stored positions.
func (s *Service) ListPositions() ([]models.Position, error) {
	return s.store.GetAllPositions()
}

// DeletePosition removes a position administratively.
func (s *Service) DeletePosition(id string) error {
	return s.store.DeletePosition(id)
}

// AppendTrade validates and records an execution against a position. When
// the append drives the position to closed, the plan-vs-execution comparison
// is produced once and returned alongside the updated position.
//
// Reopening a closed position is forbidden here as a business rule; the
// status calculator itself would simply compute open again.
func (s *Service) AppendTrade(positionID string, t models.Trade) (*models.Position, *analysis.Comparison, error) {
	lock := s.locks.Get(positionID)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.GetPosition(positionID)
	if err != nil {
		return nil, nil, err
	}
	if p.Status() == models.StatusClosed {
		return nil, nil, &models.ValidationError{
			Field:      "position.status",
			Value:      models.StatusClosed,
			Constraint: "cannot append trades to a closed position",
			Hint:       "open a new position to re-enter the trade",
		}
	}
	if err := p.AppendTrade(t); err != nil {
		return nil, nil, err
	}
	if err := s.store.UpdatePosition(p); err != nil {
		return nil, nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"position_id": p.ID,
		"direction":   t.Direction,
		"quantity":    t.Quantity,
	}).Infof("recorded %s trade on %s", t.Direction, p.Symbol)

	var comparison *analysis.Comparison
	if p.Status() == models.StatusClosed {
		c := s.analyzer.AnalyzePosition(p, fifo.ProcessPosition(p, nil))
		comparison = &c
		s.logger.WithFields(logrus.Fields{
			"position_id": p.ID,
			"verdict":     c.OverallVerdict,
			"profit":      c.ActualProfit,
		}).Info("position closed; plan-vs-execution comparison produced")
	}
	return p, comparison, nil
}

// Performance computes the FIFO result for every instrument the position
// trades, valued at the latest known closing prices. Instruments with open
// quantity but no available price are reported in MissingMarks with their
// unrealized P&L omitted; closed groups are unaffected either way.
func (s *Service) Performance(ctx context.Context, positionID string) (fifo.PositionResult, error) {
	p, err := s.GetPosition(positionID)
	if err != nil {
		return fifo.PositionResult{}, err
	}

	marks := make(map[string]float64)
	seen := make(map[string]bool)
	for _, t := range p.Trades {
		key := t.InstrumentKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		price, err := s.prices.ClosingPrice(ctx, key, time.Time{})
		if err != nil {
			if !errors.Is(err, marketdata.ErrPriceUnavailable) {
				s.logger.WithError(err).Warnf("price lookup failed for %s; marking at 0", key)
			}
			continue
		}
		marks[key] = price
	}
	return fifo.ProcessPosition(p, marks), nil
}

// Comparison reproduces the plan-vs-execution artifact for a closed
// position. On any other status the actual-exit figures would not be
// meaningful, so the call is rejected.
func (s *Service) Comparison(positionID string) (*analysis.Comparison, error) {
	p, err := s.GetPosition(positionID)
	if err != nil {
		return nil, err
	}
	if p.Status() != models.StatusClosed {
		return nil, &models.ValidationError{
			Field:      "position.status",
			Value:      p.Status(),
			Constraint: "plan-vs-execution comparison requires a closed position",
		}
	}
	c := s.analyzer.AnalyzePosition(p, fifo.ProcessPosition(p, nil))
	return &c, nil
}

// AssignmentEvents lists assignment events, optionally filtered by the
// option position that was assigned.
func (s *Service) AssignmentEvents(optionPositionID string) ([]models.AssignmentEvent, error) {
	return s.store.GetAssignmentEvents(optionPositionID)
}

// Statistics returns the aggregate rollup over stored positions.
func (s *Service) Statistics() (*storage.Statistics, error) {
	stats, err := s.store.GetStatistics()
	if err != nil {
		return nil, fmt.Errorf("computing statistics: %w", err)
	}
	return stats, nil
}
