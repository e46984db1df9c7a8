package pipeline

import (
	"github.com/coldbell/walletrank/backend/internal/ingestion"
	"github.com/coldbell/walletrank/backend/internal/model"
)

// tradeGroups is built once per batch and only read afterwards.
type tradeGroups struct {
	order    []string
	byWallet map[string][]model.TradeRecord
	trades   int
	maxSlot  uint64
}

// groupTrades decodes txs and buckets the trades by wallet, keeping wallets in
// first-seen order.
func groupTrades(txs []ingestion.Transaction, decode func(ingestion.Transaction) (model.TradeRecord, bool)) tradeGroups {
	groups := tradeGroups{byWallet: make(map[string][]model.TradeRecord)}
	for _, tx := range txs {
		groups.maxSlot = max(groups.maxSlot, tx.Slot)

		trade, ok := decode(tx)
		if !ok {
			continue
		}
		if _, seen := groups.byWallet[trade.WalletAddress]; !seen {
			groups.order = append(groups.order, trade.WalletAddress)
		}
		groups.byWallet[trade.WalletAddress] = append(groups.byWallet[trade.WalletAddress], trade)
		groups.trades++
	}
	return groups
}
