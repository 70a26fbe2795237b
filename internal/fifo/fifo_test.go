package fifo

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/schrute_ledger/internal/models"
)

var baseTime = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func trade(id string, dir models.TradeDirection, qty int, price float64, offset time.Duration) models.Trade {
	return models.Trade{
		ID:         id,
		Direction:  dir,
		Quantity:   qty,
		Price:      price,
		Timestamp:  baseTime.Add(offset),
		Underlying: "SPY",
	}
}

func TestProcess_Empty(t *testing.T) {
	res := Process(nil, 100)
	assert.Zero(t, res.RealizedPnL)
	assert.Zero(t, res.UnrealizedPnL)
	assert.Zero(t, res.OpenQuantity)
	assert.True(t, res.IsFullyClosed)
	assert.Empty(t, res.PerTrade)
}

func TestProcess_SingleRoundTrip(t *testing.T) {
	trades := []models.Trade{
		trade("buy-1", models.DirectionBuy, 100, 50, 0),
		trade("sell-1", models.DirectionSell, 100, 55, 24*time.Hour),
	}
	res := Process(trades, 55)

	assert.Equal(t, 500.0, res.RealizedPnL)
	assert.Equal(t, 0, res.OpenQuantity)
	assert.Zero(t, res.UnrealizedPnL)
	assert.Equal(t, 500.0, res.TotalPnL)
	assert.True(t, res.IsFullyClosed)

	require.Len(t, res.PerTrade, 2)
	assert.Zero(t, res.PerTrade[0].RealizedPnL)
	assert.Equal(t, 500.0, res.PerTrade[1].RealizedPnL)
	require.Len(t, res.PerTrade[1].Lots, 1)
	assert.Equal(t, "buy-1", res.PerTrade[1].Lots[0].EntryTradeID)
	assert.Equal(t, 100, res.PerTrade[1].Lots[0].Quantity)
}

func TestProcess_ThreeLotsOldestFirst(t *testing.T) {
	trades := []models.Trade{
		trade("lot-1", models.DirectionBuy, 50, 100, 0),
		trade("lot-2", models.DirectionBuy, 30, 105, time.Hour),
		trade("lot-3", models.DirectionBuy, 20, 110, 2*time.Hour),
		trade("exit", models.DirectionSell, 100, 120, 3*time.Hour),
	}
	res := Process(trades, 120)

	assert.Equal(t, 1650.0, res.RealizedPnL)
	assert.True(t, res.IsFullyClosed)

	exit := res.PerTrade[3]
	require.Len(t, exit.Lots, 3)
	assert.Equal(t, LotMatch{EntryTradeID: "lot-1", EntryPrice: 100, Quantity: 50, RealizedPnL: 1000}, exit.Lots[0])
	assert.Equal(t, LotMatch{EntryTradeID: "lot-2", EntryPrice: 105, Quantity: 30, RealizedPnL: 450}, exit.Lots[1])
	assert.Equal(t, LotMatch{EntryTradeID: "lot-3", EntryPrice: 110, Quantity: 20, RealizedPnL: 200}, exit.Lots[2])
}

func TestProcess_PartialCloseLeavesOpenRemainder(t *testing.T) {
	trades := []models.Trade{
		trade("lot-1", models.DirectionBuy, 50, 100, 0),
		trade("lot-2", models.DirectionBuy, 50, 110, time.Hour),
		trade("exit", models.DirectionSell, 50, 120, 2*time.Hour),
	}
	res := Process(trades, 120)

	assert.Equal(t, 1000.0, res.RealizedPnL)
	assert.Equal(t, 50, res.OpenQuantity)
	assert.Equal(t, 110.0, res.AvgOpenCost)
	assert.Equal(t, 500.0, res.UnrealizedPnL)
	assert.Equal(t, 1500.0, res.TotalPnL)
	assert.False(t, res.IsFullyClosed)
}

func TestProcess_PartialLotConsumption(t *testing.T) {
	trades := []models.Trade{
		trade("lot-1", models.DirectionBuy, 100, 10, 0),
		trade("exit-1", models.DirectionSell, 40, 12, time.Hour),
		trade("exit-2", models.DirectionSell, 40, 14, 2*time.Hour),
	}
	res := Process(trades, 11)

	assert.Equal(t, 80.0+160.0, res.RealizedPnL)
	assert.Equal(t, 20, res.OpenQuantity)
	assert.Equal(t, 10.0, res.AvgOpenCost)
	assert.Equal(t, 20.0, res.UnrealizedPnL)
}

// A zero exit price is valid: an expired short option bought to close at $0
// realizes the full spread against its entry.
func TestProcess_ZeroPriceExit(t *testing.T) {
	trades := []models.Trade{
		trade("entry", models.DirectionBuy, 5, 2.50, 0),
		trade("expire", models.DirectionSell, 5, 0, 30*24*time.Hour),
	}
	res := Process(trades, 0)

	assert.Equal(t, -12.5, res.RealizedPnL)
	assert.True(t, res.IsFullyClosed)
}

// Matching orders by execution timestamp, not slice position.
func TestProcess_OrdersByTimestamp(t *testing.T) {
	trades := []models.Trade{
		trade("late-buy", models.DirectionBuy, 50, 110, 2*time.Hour),
		trade("exit", models.DirectionSell, 50, 120, 3*time.Hour),
		trade("early-buy", models.DirectionBuy, 50, 100, 0),
	}
	res := Process(trades, 120)

	// The $100 lot is older, so the exit consumes it first.
	assert.Equal(t, 1000.0, res.RealizedPnL)
	assert.Equal(t, 50, res.OpenQuantity)
	assert.Equal(t, 110.0, res.AvgOpenCost)
}

// Equal timestamps fall back to insertion order via the stable sort.
func TestProcess_InsertionOrderBreaksTies(t *testing.T) {
	trades := []models.Trade{
		trade("first", models.DirectionBuy, 50, 100, 0),
		trade("second", models.DirectionBuy, 50, 110, 0),
		trade("exit", models.DirectionSell, 50, 120, time.Hour),
	}
	res := Process(trades, 120)

	exit := res.PerTrade[2]
	require.Len(t, exit.Lots, 1)
	assert.Equal(t, "first", exit.Lots[0].EntryTradeID)
	assert.Equal(t, 1000.0, res.RealizedPnL)
}

func TestProcess_DoesNotMutateInput(t *testing.T) {
	trades := []models.Trade{
		trade("late-buy", models.DirectionBuy, 10, 110, time.Hour),
		trade("early-buy", models.DirectionBuy, 10, 100, 0),
	}
	Process(trades, 120)
	assert.Equal(t, "late-buy", trades[0].ID, "caller's slice order must survive")
}

// Quantity conservation: matched plus open always equals total entry
// quantity, for random trade sequences the append boundary would accept.
func TestProcess_QuantityConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 50; iter++ {
		var trades []models.Trade
		net := 0
		entryQty := 0
		for i := 0; i < 12; i++ {
			qty := rng.Intn(20) + 1
			price := 50 + rng.Float64()*100
			dir := models.DirectionBuy
			if net > 0 && rng.Intn(2) == 0 {
				dir = models.DirectionSell
				if qty > net {
					qty = net
				}
			}
			if dir == models.DirectionBuy {
				net += qty
				entryQty += qty
			} else {
				net -= qty
			}
			trades = append(trades, trade("", dir, qty, price, time.Duration(i)*time.Minute))
		}

		res := Process(trades, 100)
		matched := 0
		for _, pt := range res.PerTrade {
			for _, lm := range pt.Lots {
				matched += lm.Quantity
			}
		}
		require.Equal(t, entryQty, matched+res.OpenQuantity, "iteration %d", iter)
		require.Equal(t, net, res.OpenQuantity, "iteration %d", iter)

		// Idempotence: recomputing over the same snapshot is identical.
		again := Process(trades, 100)
		require.Equal(t, res, again, "iteration %d", iter)
	}
}

func TestProcessPosition_GroupsByInstrument(t *testing.T) {
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	p, err := models.NewPosition("SPY", models.StrategyShortPut, 2.50, 5, 1.25, 5.00, "", &models.OptionPlan{
		Strike:     450,
		Expiration: exp,
		Premium:    250,
	})
	require.NoError(t, err)

	// Option leg: open and close.
	require.NoError(t, p.AppendTrade(trade("", models.DirectionBuy, 5, 2.50, 0)))
	require.NoError(t, p.AppendTrade(trade("", models.DirectionSell, 5, 1.00, time.Hour)))

	// Shares booked on the same position under the bare underlying key.
	p.Trades = append(p.Trades, models.Trade{
		ID: models.NewTradeID(), Direction: models.DirectionBuy, Quantity: 100,
		Price: 440, Timestamp: baseTime.Add(2 * time.Hour), Underlying: "SPY",
	})
	p.RefreshStatus()

	occ := models.OCCSymbol("SPY", exp, models.OptionPut, 450)
	res := ProcessPosition(p, map[string]float64{"SPY": 450})

	require.Len(t, res.ByInstrument, 2)
	assert.Equal(t, -7.5, res.ByInstrument[occ].RealizedPnL)
	assert.True(t, res.ByInstrument[occ].IsFullyClosed)
	assert.Equal(t, 1000.0, res.ByInstrument["SPY"].UnrealizedPnL)
	assert.Equal(t, -7.5, res.RealizedPnL)
	assert.Equal(t, 1000.0, res.UnrealizedPnL)
	assert.Equal(t, 100, res.OpenQuantity)
	assert.False(t, res.IsFullyClosed)
}

func TestProcessPosition_NilAndMissingMarks(t *testing.T) {
	res := ProcessPosition(nil, nil)
	assert.True(t, res.IsFullyClosed)
	assert.Empty(t, res.ByInstrument)

	p, err := models.NewPosition("AAPL", models.StrategyStockLong, 150, 10, 0, 0, "", nil)
	require.NoError(t, err)
	require.NoError(t, p.AppendTrade(trade("", models.DirectionBuy, 10, 150, 0)))

	// No mark supplied leaves the open quantity unvalued, flagged.
	got := ProcessPosition(p, nil)
	assert.Zero(t, got.UnrealizedPnL)
	assert.Equal(t, 10, got.OpenQuantity)
	assert.Equal(t, []string{"SPY"}, got.MissingMarks)
	assert.True(t, got.ByInstrument["SPY"].MarkUnavailable)

	// An explicit zero mark is a real valuation, not a missing one.
	zeroMarked := ProcessPosition(p, map[string]float64{"SPY": 0})
	assert.Equal(t, -1500.0, zeroMarked.UnrealizedPnL)
	assert.Empty(t, zeroMarked.MissingMarks)
}
