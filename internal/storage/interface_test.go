package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/schrute_ledger/internal/models"
)

// backendFactory builds a fresh store for each subtest; the contract suite
// below runs against every implementation.
type backendFactory struct {
	name string
	make func(t *testing.T) Interface
}

func backends() []backendFactory {
	return []backendFactory{
		{name: "mock", make: func(t *testing.T) Interface {
			return NewMockStorage()
		}},
		{name: "json", make: func(t *testing.T) Interface {
			s, err := NewJSONStorage(filepath.Join(t.TempDir(), "ledger.json"))
			require.NoError(t, err)
			return s
		}},
		{name: "sqlite", make: func(t *testing.T) Interface {
			s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

func stockFixture(t *testing.T) *models.Position {
	t.Helper()
	p, err := models.NewPosition("AAPL", models.StrategyStockLong, 150, 100, 165, 140, "fixture", nil)
	require.NoError(t, err)
	return p
}

func shortPutFixture(t *testing.T) *models.Position {
	t.Helper()
	p, err := models.NewPosition("SPY", models.StrategyShortPut, 2.50, 5, 1.25, 5.00, "fixture", &models.OptionPlan{
		Strike:     450,
		Expiration: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		Premium:    250,
	})
	require.NoError(t, err)
	return p
}

func appendFill(t *testing.T, p *models.Position, dir models.TradeDirection, qty int, price float64, when time.Time) {
	t.Helper()
	require.NoError(t, p.AppendTrade(models.Trade{
		Direction: dir, Quantity: qty, Price: price,
		Timestamp: when, Underlying: p.Symbol,
	}))
}

func TestStorageContract_PositionCRUD(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.make(t)
			p := stockFixture(t)

			_, err := store.GetPosition(p.ID)
			assert.ErrorIs(t, err, ErrPositionNotFound)

			require.NoError(t, store.CreatePosition(p))
			assert.ErrorIs(t, store.CreatePosition(p), ErrPositionExists)

			got, err := store.GetPosition(p.ID)
			require.NoError(t, err)
			assert.Equal(t, p.ID, got.ID)
			assert.Equal(t, "AAPL", got.Symbol)
			assert.Equal(t, models.StatusPlanned, got.Status())

			// Returned copies are snapshots; mutating them must not leak back.
			got.Symbol = "MUTATED"
			again, err := store.GetPosition(p.ID)
			require.NoError(t, err)
			assert.Equal(t, "AAPL", again.Symbol)

			appendFill(t, got, models.DirectionBuy, 100, 148, time.Now().UTC())
			got.Symbol = "AAPL"
			require.NoError(t, store.UpdatePosition(got))

			updated, err := store.GetPosition(p.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusOpen, updated.Status())
			require.Len(t, updated.Trades, 1)

			all, err := store.GetAllPositions()
			require.NoError(t, err)
			assert.Len(t, all, 1)

			require.NoError(t, store.DeletePosition(p.ID))
			assert.ErrorIs(t, store.DeletePosition(p.ID), ErrPositionNotFound)
			_, err = store.GetPosition(p.ID)
			assert.ErrorIs(t, err, ErrPositionNotFound)
		})
	}
}

func TestStorageContract_UpdateUnknownPosition(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.make(t)
			p := stockFixture(t)
			assert.ErrorIs(t, store.UpdatePosition(p), ErrPositionNotFound)
		})
	}
}

func TestStorageContract_CommitAssignment(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.make(t)

			option := shortPutFixture(t)
			appendFill(t, option, models.DirectionBuy, 5, 2.50, time.Now().UTC())
			require.NoError(t, store.CreatePosition(option))

			appendFill(t, option, models.DirectionSell, 5, 0, time.Now().UTC().Add(time.Hour))
			stock := stockFixture(t)
			appendFill(t, stock, models.DirectionBuy, 500, 97, time.Now().UTC().Add(time.Hour))
			event := &models.AssignmentEvent{
				ID:               "ev-1",
				OptionPositionID: option.ID,
				StockPositionID:  stock.ID,
				AssignmentDate:   time.Now().UTC(),
				Contracts:        5,
				Strike:           100,
				PremiumPerShare:  3,
			}

			require.NoError(t, store.CommitAssignment(option, stock, event))

			gotOption, err := store.GetPosition(option.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusClosed, gotOption.Status())

			gotStock, err := store.GetPosition(stock.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusOpen, gotStock.Status())

			events, err := store.GetAssignmentEvents(option.ID)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, "ev-1", events[0].ID)

			unrelated, err := store.GetAssignmentEvents("other-position")
			require.NoError(t, err)
			assert.Empty(t, unrelated)
		})
	}
}

func TestStorageContract_CommitAssignmentUnknownOption(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.make(t)
			option := shortPutFixture(t)
			stock := stockFixture(t)
			event := &models.AssignmentEvent{ID: "ev-1", OptionPositionID: option.ID, StockPositionID: stock.ID}

			err := store.CommitAssignment(option, stock, event)
			var te *TransactionError
			require.ErrorAs(t, err, &te)
			assert.ErrorIs(t, err, ErrPositionNotFound)

			// Nothing from the failed commit is visible.
			_, err = store.GetPosition(stock.ID)
			assert.ErrorIs(t, err, ErrPositionNotFound)
			events, err := store.GetAssignmentEvents("")
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestStorageContract_Statistics(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.make(t)
			now := time.Now().UTC()

			winner := stockFixture(t)
			appendFill(t, winner, models.DirectionBuy, 100, 50, now)
			appendFill(t, winner, models.DirectionSell, 100, 55, now.Add(time.Hour))
			require.NoError(t, store.CreatePosition(winner))

			loser := stockFixture(t)
			appendFill(t, loser, models.DirectionBuy, 10, 100, now)
			appendFill(t, loser, models.DirectionSell, 10, 80, now.Add(time.Hour))
			require.NoError(t, store.CreatePosition(loser))

			open := stockFixture(t)
			appendFill(t, open, models.DirectionBuy, 10, 100, now)
			require.NoError(t, store.CreatePosition(open))

			planned := stockFixture(t)
			require.NoError(t, store.CreatePosition(planned))

			stats, err := store.GetStatistics()
			require.NoError(t, err)
			assert.Equal(t, 4, stats.TotalPositions)
			assert.Equal(t, 1, stats.OpenPositions)
			assert.Equal(t, 2, stats.ClosedPositions)
			assert.Equal(t, 1, stats.WinningTrades)
			assert.Equal(t, 1, stats.LosingTrades)
			assert.Equal(t, 50.0, stats.WinRate)
			assert.Equal(t, 300.0, stats.TotalPnL)
			assert.Equal(t, 500.0, stats.AverageWin)
			assert.Equal(t, -200.0, stats.AverageLoss)
		})
	}
}

func TestJSONStorage_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s, err := NewJSONStorage(path)
	require.NoError(t, err)

	p := shortPutFixture(t)
	appendFill(t, p, models.DirectionBuy, 5, 2.50, time.Now().UTC())
	require.NoError(t, s.CreatePosition(p))

	reopened, err := NewJSONStorage(path)
	require.NoError(t, err)
	got, err := reopened.GetPosition(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "SPY", got.Symbol)
	assert.Equal(t, models.StatusOpen, got.Status())
	require.NotNil(t, got.Option)
	assert.Equal(t, 450.0, got.Option.Strike)
	require.Len(t, got.Trades, 1)
	assert.Equal(t, got.Trades[0].OptionSymbol, got.Trades[0].InstrumentKey())
}

// A stale cached status in the file self-heals on load.
func TestJSONStorage_RecomputesStatusOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s, err := NewJSONStorage(path)
	require.NoError(t, err)

	p := stockFixture(t)
	appendFill(t, p, models.DirectionBuy, 100, 150, time.Now().UTC())
	require.NoError(t, s.CreatePosition(p))

	// Corrupt the cached status on disk; the trades say open.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(raw), `"status": "open"`, `"status": "closed"`, 1)
	require.NotEqual(t, string(raw), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

	reopened, err := NewJSONStorage(path)
	require.NoError(t, err)
	got, err := reopened.GetPosition(p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.State)
	require.NoError(t, got.VerifyStoredStatus())
}

func TestSQLiteStorage_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)

	p := stockFixture(t)
	appendFill(t, p, models.DirectionBuy, 100, 150, time.Now().UTC())
	require.NoError(t, s.CreatePosition(p))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.GetPosition(p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status())
	require.Len(t, got.Trades, 1)
}

func TestNewStorage_BackendSelection(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStorage(BackendJSON, filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	_, ok := s.(*JSONStorage)
	assert.True(t, ok)

	s, err = NewStorage(BackendSQLite, filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	_, ok = s.(*SQLiteStorage)
	assert.True(t, ok)
	require.NoError(t, s.Close())

	_, err = NewStorage("cassandra", "x")
	require.Error(t, err)
}

func TestMockStorage_ErrorInjection(t *testing.T) {
	store := NewMockStorage()
	p := stockFixture(t)
	require.NoError(t, store.CreatePosition(p))

	injected := errors.New("boom")
	store.SetUpdateError(injected)
	assert.ErrorIs(t, store.UpdatePosition(p), injected)
	assert.Equal(t, 1, store.UpdateCallCount())

	store.SetUpdateError(nil)
	require.NoError(t, store.UpdatePosition(p))
	assert.Equal(t, 2, store.UpdateCallCount())
}
