package ingestion

import (
	"fmt"
	"math"
	"math/big"

	"github.com/coldbell/walletrank/backend/internal/config"
	"github.com/coldbell/walletrank/backend/internal/model"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const lamportDecimals = 9

// swapInstruction is the shared prefix of Raydium AMM v4 and Orca token-swap
// swap instructions: a one-byte tag then two little-endian u64 amounts.
type swapInstruction struct {
	Tag         uint8
	AmountIn    uint64
	OtherAmount uint64
}

type swapLayout struct {
	name string
	tags map[uint8]struct{}
}

var knownSwapLayouts = map[solana.PublicKey]swapLayout{
	// 9 = SwapBaseIn, 11 = SwapBaseOut
	config.DefaultRaydiumAMMID: {name: "raydium-amm-v4", tags: map[uint8]struct{}{9: {}, 11: {}}},
	config.DefaultOrcaSwapID:   {name: "orca-token-swap", tags: map[uint8]struct{}{1: {}}},
}

// Decoder turns swap transactions into trade records.
type Decoder struct {
	layouts        map[solana.PublicKey]swapLayout
	amountDecimals int32
}

func NewDecoder(programIDs []solana.PublicKey, amountDecimals uint32) (*Decoder, error) {
	layouts := make(map[solana.PublicKey]swapLayout, len(programIDs))
	for _, programID := range programIDs {
		layout, ok := knownSwapLayouts[programID]
		if !ok {
			return nil, fmt.Errorf("no swap layout for program %s", programID)
		}
		layouts[programID] = layout
	}
	if len(layouts) == 0 {
		return nil, fmt.Errorf("at least one dex program is required")
	}
	return &Decoder{
		layouts:        layouts,
		amountDecimals: int32(amountDecimals),
	}, nil
}

// Decode finds the first swap instruction addressed to a configured DEX. The
// fee payer is the trading wallet; its SOL balance delta is the trade P/L.
// Failed transactions and anything without balance metadata are not trades.
func (d *Decoder) Decode(tx Transaction) (model.TradeRecord, bool) {
	if tx.Tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		return model.TradeRecord{}, false
	}
	keys := tx.Tx.Message.AccountKeys
	if len(keys) == 0 || len(tx.Meta.PreBalances) == 0 || len(tx.Meta.PostBalances) == 0 {
		return model.TradeRecord{}, false
	}

	swap, ok := d.findSwap(tx.Tx)
	if !ok {
		return model.TradeRecord{}, false
	}

	amount, _ := decimal.NewFromBigInt(new(big.Int).SetUint64(swap.AmountIn), -d.amountDecimals).Float64()
	delta := int64(tx.Meta.PostBalances[0]) - int64(tx.Meta.PreBalances[0])
	profitLoss, _ := decimal.New(delta, -lamportDecimals).Float64()
	if math.IsNaN(amount) || math.IsInf(amount, 0) || math.IsNaN(profitLoss) || math.IsInf(profitLoss, 0) {
		return model.TradeRecord{}, false
	}

	signature := tx.Signature
	if signature == "" && len(tx.Tx.Signatures) > 0 {
		signature = tx.Tx.Signatures[0].String()
	}

	return model.TradeRecord{
		WalletAddress:   keys[0].String(),
		Timestamp:       tx.BlockTime,
		Amount:          amount,
		ProfitLoss:      profitLoss,
		TransactionHash: signature,
	}, true
}

func (d *Decoder) findSwap(tx *solana.Transaction) (swapInstruction, bool) {
	keys := tx.Message.AccountKeys
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) {
			continue
		}
		layout, ok := d.layouts[keys[ix.ProgramIDIndex]]
		if !ok {
			continue
		}

		var swap swapInstruction
		if err := bin.NewBinDecoder(ix.Data).Decode(&swap); err != nil {
			continue
		}
		if _, ok := layout.tags[swap.Tag]; !ok {
			continue
		}
		return swap, true
	}
	return swapInstruction{}, false
}
