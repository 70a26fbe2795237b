package storage

import (
	"fmt"

	"github.com/eddiefleurent/schrute_ledger/internal/fifo"
	"github.com/eddiefleurent/schrute_ledger/internal/models"
)

// Interface defines the contract for position and assignment persistence.
//
// Implementations must be safe for concurrent use - callers can assume all
// methods are goroutine-safe. Positions are persisted as full aggregates
// (plan plus embedded trade collection) in one unit, and returned as deep
// copies callers may mutate freely.
//
// CommitAssignment is the one multi-aggregate write: the updated option
// position, the new stock position and the assignment event are applied as a
// single atomic commit. A failure leaves none of them visible.
type Interface interface {
	// Position management
	GetPosition(id string) (*models.Position, error)
	GetAllPositions() ([]models.Position, error)
	CreatePosition(p *models.Position) error
	UpdatePosition(p *models.Position) error
	DeletePosition(id string) error

	// Assignment
	CommitAssignment(option, stock *models.Position, event *models.AssignmentEvent) error
	GetAssignmentEvents(optionPositionID string) ([]models.AssignmentEvent, error)

	// Analytics
	GetStatistics() (*Statistics, error)

	Close() error
}

// Statistics is an aggregate rollup over closed positions' realized P&L.
// Derived on demand from the position aggregates, never persisted.
type Statistics struct {
	TotalPositions  int     `json:"total_positions"`
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	TotalPnL        float64 `json:"total_pnl"`
	AverageWin      float64 `json:"average_win"`
	AverageLoss     float64 `json:"average_loss"`
}

// computeStatistics derives the rollup shared by all backends. Breakevens
// count as neither wins nor losses.
func computeStatistics(positions []models.Position) *Statistics {
	stats := &Statistics{TotalPositions: len(positions)}
	winTotal, lossTotal := 0.0, 0.0
	for i := range positions {
		p := &positions[i]
		switch p.Status() {
		case models.StatusOpen:
			stats.OpenPositions++
		case models.StatusClosed:
			stats.ClosedPositions++
			pnl := fifo.ProcessPosition(p, nil).RealizedPnL
			stats.TotalPnL += pnl
			if pnl > 0 {
				stats.WinningTrades++
				winTotal += pnl
			} else if pnl < 0 {
				stats.LosingTrades++
				lossTotal += pnl
			}
		}
	}
	if stats.WinningTrades > 0 {
		stats.AverageWin = winTotal / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AverageLoss = lossTotal / float64(stats.LosingTrades)
	}
	if decided := stats.WinningTrades + stats.LosingTrades; decided > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(decided) * 100
	}
	return stats
}

// Backend names accepted by NewStorage.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// NewStorage creates a storage implementation for the configured backend.
func NewStorage(backend, path string) (Interface, error) {
	switch backend {
	case BackendSQLite:
		return NewSQLiteStorage(path)
	case BackendJSON, "":
		return NewJSONStorage(path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", backend)
	}
}

// Ensure all implementations satisfy Interface.
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*SQLiteStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
