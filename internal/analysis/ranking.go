package analysis

import (
	"sort"

	"github.com/coldbell/walletrank/backend/internal/model"
)

// Rank returns a reordered copy of snapshots: total profit/loss descending, then
// win rate, then trade count. Full ties keep their input order.
func Rank(snapshots []model.WalletMetrics) []model.WalletMetrics {
	ranked := make([]model.WalletMetrics, len(snapshots))
	copy(ranked, snapshots)

	sort.SliceStable(ranked, func(i, j int) bool {
		return rankedBefore(ranked[i], ranked[j])
	})
	return ranked
}

func rankedBefore(a, b model.WalletMetrics) bool {
	if a.TotalProfitLoss != b.TotalProfitLoss {
		return a.TotalProfitLoss > b.TotalProfitLoss
	}
	if a.WinRate != b.WinRate {
		return a.WinRate > b.WinRate
	}
	return a.TradeCount > b.TradeCount
}

// Top truncates an already ranked list to at most limit entries.
func Top(ranked []model.WalletMetrics, limit int) []model.WalletMetrics {
	if limit <= 0 {
		return []model.WalletMetrics{}
	}
	if len(ranked) > limit {
		return ranked[:limit]
	}
	return ranked
}
