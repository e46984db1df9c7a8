package model

// TradeRecord is one decoded trade for a wallet. ProfitLoss and Amount are
// produced by the decoder and taken as given.
type TradeRecord struct {
	WalletAddress   string  `json:"wallet_address"`
	Timestamp       int64   `json:"timestamp"`
	Amount          float64 `json:"amount"`
	ProfitLoss      float64 `json:"profit_loss"`
	TransactionHash string  `json:"transaction_hash"`
}

// WalletMetrics is the aggregate snapshot of one wallet's trades at LastUpdated.
type WalletMetrics struct {
	Address         string  `json:"address"`
	TotalProfitLoss float64 `json:"total_profit_loss"`
	WinRate         float64 `json:"win_rate"`
	AvgTradeSize    float64 `json:"avg_trade_size"`
	TradeCount      uint64  `json:"trade_count"`
	LastUpdated     int64   `json:"last_updated"`
}

// Volume is the total traded notional the snapshot was built from.
func (m WalletMetrics) Volume() float64 {
	return m.AvgTradeSize * float64(m.TradeCount)
}

// Addresses returns the wallet addresses of snapshots in order.
func Addresses(snapshots []WalletMetrics) []string {
	out := make([]string, 0, len(snapshots))
	for _, snapshot := range snapshots {
		out = append(out, snapshot.Address)
	}
	return out
}
