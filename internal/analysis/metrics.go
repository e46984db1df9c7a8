package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/coldbell/walletrank/backend/internal/model"
)

// Aggregate reduces a wallet's trades into one snapshot stamped with computedAt.
// The result depends only on the inputs; an empty or malformed trade set fails
// with model.ErrData.
func Aggregate(address string, trades []model.TradeRecord, computedAt time.Time) (model.WalletMetrics, error) {
	if len(trades) == 0 {
		return model.WalletMetrics{}, fmt.Errorf("%w: wallet %s has no trades", model.ErrData, address)
	}

	wins := 0
	totalPNL := 0.0
	totalAmount := 0.0
	for i, trade := range trades {
		if err := validateTrade(address, trade); err != nil {
			return model.WalletMetrics{}, fmt.Errorf("trade %d (%s): %w", i, trade.TransactionHash, err)
		}
		totalPNL += trade.ProfitLoss
		totalAmount += trade.Amount
		// break-even is not a win
		if trade.ProfitLoss > 0 {
			wins++
		}
	}

	count := float64(len(trades))
	return model.WalletMetrics{
		Address:         address,
		TotalProfitLoss: totalPNL,
		WinRate:         (float64(wins) / count) * 100,
		AvgTradeSize:    totalAmount / count,
		TradeCount:      uint64(len(trades)),
		LastUpdated:     computedAt.Unix(),
	}, nil
}

func validateTrade(address string, trade model.TradeRecord) error {
	if trade.WalletAddress != address {
		return fmt.Errorf("%w: trade belongs to %s, not %s", model.ErrData, trade.WalletAddress, address)
	}
	if !isFinite(trade.Amount) || !isFinite(trade.ProfitLoss) {
		return fmt.Errorf("%w: non-finite amount or profit/loss", model.ErrData)
	}
	if trade.Amount < 0 {
		return fmt.Errorf("%w: negative amount %f", model.ErrData, trade.Amount)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
