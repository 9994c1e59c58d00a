package helius

import (
	"slices"

	"github.com/brojonat/vialytics/service/solana"
	"github.com/shopspring/decimal"
)

const (
	maxNFTs           = 10
	maxCounterparties = 10
)

var (
	fungibleInterfaces = []string{"FungibleToken", "FungibleAsset"}
	nftInterfaces      = []string{"ProgrammableNFT", "V1_NFT", "V2_NFT"}
)

func (c *Client) normalize(e *Enrichment, address string) Normalized {
	out := Normalized{
		TokenBalances:     []TokenBalance{},
		NFTs:              []NFT{},
		TopCounterparties: []Counterparty{},
	}

	if e.Assets != nil {
		if nb := e.Assets.NativeBalance; nb != nil {
			sol := decimal.New(nb.Lamports, -9)
			out.TokenBalances = append(out.TokenBalances, TokenBalance{
				Mint:     solana.WrappedSOLMint,
				Symbol:   "SOL",
				UIAmount: sol.InexactFloat64(),
				USDValue: sol.Mul(decimal.NewFromFloat(nb.PricePerSOL)).InexactFloat64(),
			})
		}
		for _, item := range e.Assets.Items {
			switch {
			case slices.Contains(fungibleInterfaces, item.Interface):
				out.TokenBalances = append(out.TokenBalances, tokenBalance(item))
			case slices.Contains(nftInterfaces, item.Interface):
				if len(out.NFTs) < maxNFTs {
					out.NFTs = append(out.NFTs, nft(item))
				}
			}
		}
	}

	out.TopCounterparties = c.counterparties(e.Transactions, address)
	return out
}

func tokenBalance(item Asset) TokenBalance {
	tb := TokenBalance{Mint: item.ID, Symbol: item.Content.Metadata.Symbol}
	info := item.TokenInfo
	if info == nil {
		if tb.Symbol == "" {
			tb.Symbol = "Unknown"
		}
		return tb
	}
	if info.Symbol != "" {
		tb.Symbol = info.Symbol
	}
	if tb.Symbol == "" {
		tb.Symbol = "Unknown"
	}

	decimals := int32(9)
	if info.Decimals != nil {
		decimals = *info.Decimals
	}
	tb.UIAmount = info.Balance.Shift(-decimals).InexactFloat64()
	if info.PriceInfo != nil {
		tb.USDValue = info.PriceInfo.TotalPrice
	}
	return tb
}

func nft(item Asset) NFT {
	n := NFT{Mint: item.ID, Name: item.Content.Metadata.Name}
	if n.Name == "" {
		n.Name = "Unknown NFT"
	}
	if len(item.Content.Files) > 0 {
		uri := item.Content.Files[0].URI
		n.Image = &uri
	}
	return n
}

// counterparties ranks addresses by native SOL exchanged with address.
func (c *Client) counterparties(txs []EnhancedTransaction, address string) []Counterparty {
	volumes := make(map[string]int64)
	var order []string
	add := func(addr string, lamports int64) {
		if _, ok := volumes[addr]; !ok {
			order = append(order, addr)
		}
		volumes[addr] += lamports
	}

	for _, tx := range txs[:min(len(txs), MaxPageSize)] {
		for _, t := range tx.NativeTransfers {
			switch {
			case t.FromUserAccount == address && t.ToUserAccount != "":
				add(t.ToUserAccount, t.Amount)
			case t.ToUserAccount == address && t.FromUserAccount != "":
				add(t.FromUserAccount, t.Amount)
			}
		}
	}

	slices.SortStableFunc(order, func(a, b string) int {
		switch {
		case volumes[a] > volumes[b]:
			return -1
		case volumes[a] < volumes[b]:
			return 1
		}
		return 0
	})

	out := make([]Counterparty, 0, min(len(order), maxCounterparties))
	for _, addr := range order[:min(len(order), maxCounterparties)] {
		label := addr
		if c.labels != nil {
			label = c.labels.Label(addr)
		}
		out = append(out, Counterparty{
			Address:   addr,
			Label:     label,
			USDVolume: decimal.New(volumes[addr], -9).InexactFloat64(),
		})
	}
	return out
}
