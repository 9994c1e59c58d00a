package helius

import (
	"context"
	"strconv"

	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/solana"
)

// ToRecords converts enhanced transactions into store rows for wallet.
// Transfers that neither send from nor deliver to wallet are skipped.
// Native transfers are recorded in lamports under the wrapped SOL mint.
func (c *Client) ToRecords(ctx context.Context, wallet string, txs []EnhancedTransaction) ([]db.Transaction, []db.TokenMovement) {
	records := make([]db.Transaction, 0, len(txs))
	var movements []db.TokenMovement

	for _, tx := range txs {
		if tx.Signature == "" {
			continue
		}
		records = append(records, db.Transaction{
			WalletAddress: wallet,
			Signature:     tx.Signature,
			BlockTime:     tx.Timestamp,
			Status:        !tx.Failed(),
			Fee:           tx.Fee,
		})

		for _, t := range tx.NativeTransfers {
			sign, ok := direction(wallet, t.FromUserAccount, t.ToUserAccount)
			if !ok || t.Amount == 0 {
				continue
			}
			nine := int32(9)
			movements = append(movements, db.TokenMovement{
				WalletAddress: wallet,
				Signature:     tx.Signature,
				Mint:          solana.WrappedSOLMint,
				Amount:        sign * t.Amount,
				Decimals:      &nine,
				Source:        t.FromUserAccount,
				Destination:   t.ToUserAccount,
				BlockTime:     tx.Timestamp,
			})
		}

		for _, t := range tx.TokenTransfers {
			sign, ok := direction(wallet, t.FromUserAccount, t.ToUserAccount)
			if !ok || t.Mint == "" {
				continue
			}
			amount, decimals := c.rawAmount(ctx, t)
			if amount == 0 {
				continue
			}
			movements = append(movements, db.TokenMovement{
				WalletAddress: wallet,
				Signature:     tx.Signature,
				Mint:          t.Mint,
				Amount:        sign * amount,
				Decimals:      &decimals,
				Source:        t.FromUserAccount,
				Destination:   t.ToUserAccount,
				BlockTime:     tx.Timestamp,
			})
		}
	}
	return records, movements
}

// direction is +1 when wallet receives and -1 when it sends. Self
// transfers and transfers between other parties are not movements.
func direction(wallet, from, to string) (int64, bool) {
	switch {
	case from == to:
		return 0, false
	case to == wallet:
		return 1, true
	case from == wallet:
		return -1, true
	}
	return 0, false
}

// rawAmount returns the transfer size in base units and the decimals it
// was scaled by.
func (c *Client) rawAmount(ctx context.Context, t TokenTransfer) (int64, int32) {
	if raw := t.RawTokenAmount; raw != nil {
		if n, err := strconv.ParseInt(raw.TokenAmount, 10, 64); err == nil {
			return abs(n), raw.Decimals
		}
	}
	decimals := c.tokens.Lookup(ctx, t.Mint).Decimals
	return t.TokenAmount.Shift(decimals).Round(0).Abs().IntPart(), decimals
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
