package ingestion

import (
	"context"

	"github.com/coldbell/walletrank/backend/internal/model"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

//go:generate mockgen -destination=mock/extractor.go -package=mock . Extractor

// Transaction is one confirmed chain transaction with its execution metadata.
// BlockTime is unix seconds; it falls back to fetch time when the node omits it.
type Transaction struct {
	Signature string
	Slot      uint64
	BlockTime int64
	Tx        *solana.Transaction
	Meta      *rpc.TransactionMeta
}

// Extractor is the chain-facing side of the analyzer.
type Extractor interface {
	// FetchRecentTransactions returns up to limit recent transactions, newest first.
	FetchRecentTransactions(ctx context.Context, limit int) ([]Transaction, error)
	// FetchWalletTransactions returns up to limit transactions signed by address.
	FetchWalletTransactions(ctx context.Context, address string, limit int) ([]Transaction, error)
	// DecodeTrade reports false for anything that is not a recognisable swap.
	DecodeTrade(tx Transaction) (model.TradeRecord, bool)
}
