package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coldbell/walletrank/backend/internal/config"
	"github.com/coldbell/walletrank/backend/internal/model"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/semaphore"
)

// rpcClient is the subset of *rpc.Client the extractor calls.
type rpcClient interface {
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// SolanaExtractor reads recent swaps from a Solana JSON-RPC node.
type SolanaExtractor struct {
	client           rpcClient
	watchProgramID   solana.PublicKey
	commitment       rpc.CommitmentType
	decoder          *Decoder
	retry            retryPolicy
	fetchConcurrency int64
	logger           *slog.Logger
	now              func() time.Time
}

var _ Extractor = (*SolanaExtractor)(nil)

func NewSolanaExtractor(cfg config.AnalyzerConfig, logger *slog.Logger) (*SolanaExtractor, error) {
	return newSolanaExtractor(rpc.New(cfg.RPCURL), cfg, logger)
}

func newSolanaExtractor(client rpcClient, cfg config.AnalyzerConfig, logger *slog.Logger) (*SolanaExtractor, error) {
	decoder, err := NewDecoder(cfg.DEXProgramIDs, cfg.TradeAmountDecimals)
	if err != nil {
		return nil, fmt.Errorf("init decoder: %w", err)
	}

	concurrency := cfg.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &SolanaExtractor{
		client:         client,
		watchProgramID: cfg.WatchProgramID,
		commitment:     cfg.Commitment,
		decoder:        decoder,
		retry: retryPolicy{
			maxRetries: cfg.RPCMaxRetries,
			baseDelay:  cfg.RPCRetryBaseDelay,
			maxDelay:   cfg.RPCRetryMaxDelay,
		},
		fetchConcurrency: int64(concurrency),
		logger:           logger,
		now:              time.Now,
	}, nil
}

func (e *SolanaExtractor) FetchRecentTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	return e.fetchForAccount(ctx, e.watchProgramID, limit)
}

func (e *SolanaExtractor) FetchWalletTransactions(ctx context.Context, address string, limit int) ([]Transaction, error) {
	wallet, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid wallet address %q: %w", model.ErrExtraction, address, err)
	}
	return e.fetchForAccount(ctx, wallet, limit)
}

func (e *SolanaExtractor) DecodeTrade(tx Transaction) (model.TradeRecord, bool) {
	return e.decoder.Decode(tx)
}

func (e *SolanaExtractor) fetchForAccount(ctx context.Context, account solana.PublicKey, limit int) ([]Transaction, error) {
	if limit <= 0 {
		return []Transaction{}, nil
	}

	signatures, err := withRetry(ctx, e.retry, e.logger, "getSignaturesForAddress", func(ctx context.Context) ([]*rpc.TransactionSignature, error) {
		return e.client.GetSignaturesForAddressWithOpts(ctx, account, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: e.commitment,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get signatures for %s: %w", model.ErrExtraction, account, err)
	}

	// Failed transactions never decode into trades; skip the round trip.
	pending := make([]*rpc.TransactionSignature, 0, len(signatures))
	for _, sig := range signatures {
		if sig == nil || sig.Err != nil {
			continue
		}
		pending = append(pending, sig)
	}

	results := make([]*Transaction, len(pending))
	sem := semaphore.NewWeighted(e.fetchConcurrency)
	var wg sync.WaitGroup
	for i, sig := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			tx, err := e.fetchTransaction(ctx, sig)
			if err != nil {
				e.logger.Warn("skip transaction", "signature", sig.Signature.String(), "err", err)
				return
			}
			results[i] = tx
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: fetch transactions for %s: %w", model.ErrExtraction, account, err)
	}

	out := make([]Transaction, 0, len(results))
	for _, tx := range results {
		if tx != nil {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (e *SolanaExtractor) fetchTransaction(ctx context.Context, sig *rpc.TransactionSignature) (*Transaction, error) {
	maxVersion := uint64(0)
	result, err := withRetry(ctx, e.retry, e.logger, "getTransaction", func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		return e.client.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     e.commitment,
			MaxSupportedTransactionVersion: &maxVersion,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if result == nil || result.Transaction == nil {
		return nil, fmt.Errorf("get transaction: empty result")
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	blockTime := e.now().Unix()
	switch {
	case result.BlockTime != nil:
		blockTime = int64(*result.BlockTime)
	case sig.BlockTime != nil:
		blockTime = int64(*sig.BlockTime)
	}

	return &Transaction{
		Signature: sig.Signature.String(),
		Slot:      result.Slot,
		BlockTime: blockTime,
		Tx:        tx,
		Meta:      result.Meta,
	}, nil
}
