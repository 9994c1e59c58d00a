package solana

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/brojonat/vialytics/service/db"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// signatureToRecord converts an RPC TransactionSignature to a store Transaction.
// Only metadata from the signature list is available here: fee and
// movements require the full transaction.
func signatureToRecord(wallet string, sig *rpc.TransactionSignature) db.Transaction {
	tx := db.Transaction{
		WalletAddress: wallet,
		Signature:     sig.Signature.String(),
		Status:        sig.Err == nil,
	}
	if sig.BlockTime != nil {
		tx.BlockTime = int64(*sig.BlockTime)
	}
	return tx
}

// recordsFromResult derives the wallet's balance changes from a full
// transaction. Native SOL changes are reported under the wrapped SOL mint
// with the fee added back for the fee payer, so a failed transaction yields
// no movements. The counterparty of each movement is the account whose
// balance moved the most in the opposite direction.
func recordsFromResult(wallet solana.PublicKey, sig *rpc.TransactionSignature, result *rpc.GetTransactionResult) (db.Transaction, []db.TokenMovement, error) {
	tx := signatureToRecord(wallet.String(), sig)
	if result == nil || result.Meta == nil {
		return tx, nil, nil
	}
	meta := result.Meta
	tx.Fee = int64(meta.Fee)
	if meta.Err != nil {
		tx.Status = false
	}
	if tx.BlockTime == 0 && result.BlockTime != nil {
		tx.BlockTime = int64(*result.BlockTime)
	}

	decoded, err := result.Transaction.GetTransaction()
	if err != nil {
		return tx, nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	keys := make([]solana.PublicKey, 0, len(decoded.Message.AccountKeys)+len(meta.LoadedAddresses.Writable)+len(meta.LoadedAddresses.ReadOnly))
	keys = append(keys, decoded.Message.AccountKeys...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.ReadOnly...)

	var movements []db.TokenMovement
	if m, ok := nativeMovement(wallet, keys, meta); ok {
		m.Signature = tx.Signature
		m.BlockTime = tx.BlockTime
		movements = append(movements, m)
	}
	for _, m := range tokenMovements(wallet, meta) {
		m.Signature = tx.Signature
		m.BlockTime = tx.BlockTime
		movements = append(movements, m)
	}
	return tx, movements, nil
}

func nativeMovement(wallet solana.PublicKey, keys []solana.PublicKey, meta *rpc.TransactionMeta) (db.TokenMovement, bool) {
	n := min(len(keys), len(meta.PreBalances), len(meta.PostBalances))
	deltas := make([]int64, n)
	walletIdx := -1
	for i := 0; i < n; i++ {
		deltas[i] = int64(meta.PostBalances[i]) - int64(meta.PreBalances[i])
		if i == 0 {
			deltas[i] += int64(meta.Fee)
		}
		if keys[i].Equals(wallet) {
			walletIdx = i
		}
	}
	if walletIdx < 0 || deltas[walletIdx] == 0 {
		return db.TokenMovement{}, false
	}

	delta := deltas[walletIdx]
	counterparty := ""
	var best int64
	for i, d := range deltas {
		if i == walletIdx || d == 0 || (d > 0) == (delta > 0) {
			continue
		}
		if abs64(d) > best {
			best = abs64(d)
			counterparty = keys[i].String()
		}
	}

	decimals := int32(9)
	m := db.TokenMovement{
		WalletAddress: wallet.String(),
		Mint:          WrappedSOLMint,
		Amount:        delta,
		Decimals:      &decimals,
	}
	setParties(&m, wallet.String(), counterparty)
	return m, true
}

type ownerMint struct {
	owner string
	mint  string
}

func tokenMovements(wallet solana.PublicKey, meta *rpc.TransactionMeta) []db.TokenMovement {
	deltas := make(map[ownerMint]int64)
	decimals := make(map[string]int32)
	var mints []string
	seen := make(map[string]bool)

	accumulate := func(balances []rpc.TokenBalance, sign int64) {
		for _, b := range balances {
			if b.Owner == nil || b.UiTokenAmount == nil {
				continue
			}
			amount, err := strconv.ParseInt(b.UiTokenAmount.Amount, 10, 64)
			if err != nil {
				continue
			}
			mint := b.Mint.String()
			deltas[ownerMint{owner: b.Owner.String(), mint: mint}] += sign * amount
			decimals[mint] = int32(b.UiTokenAmount.Decimals)
			if !seen[mint] {
				seen[mint] = true
				mints = append(mints, mint)
			}
		}
	}
	accumulate(meta.PreTokenBalances, -1)
	accumulate(meta.PostTokenBalances, 1)

	self := wallet.String()
	var out []db.TokenMovement
	for _, mint := range mints {
		delta := deltas[ownerMint{owner: self, mint: mint}]
		if delta == 0 {
			continue
		}

		// Owners are ranked by magnitude then address so the pick is deterministic.
		var others []ownerMint
		for k, d := range deltas {
			if k.mint == mint && k.owner != self && d != 0 && (d > 0) != (delta > 0) {
				others = append(others, k)
			}
		}
		sort.Slice(others, func(i, j int) bool {
			di, dj := abs64(deltas[others[i]]), abs64(deltas[others[j]])
			if di != dj {
				return di > dj
			}
			return others[i].owner < others[j].owner
		})
		counterparty := ""
		if len(others) > 0 {
			counterparty = others[0].owner
		}

		d := decimals[mint]
		m := db.TokenMovement{
			WalletAddress: self,
			Mint:          mint,
			Amount:        delta,
			Decimals:      &d,
		}
		setParties(&m, self, counterparty)
		out = append(out, m)
	}
	return out
}

// setParties orients source and destination by the sign of the amount.
func setParties(m *db.TokenMovement, wallet, counterparty string) {
	if m.Amount > 0 {
		m.Source, m.Destination = counterparty, wallet
	} else {
		m.Source, m.Destination = wallet, counterparty
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
