package helius

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// EnhancedTransaction is a parsed transaction from the Helius enhanced
// transactions API.
type EnhancedTransaction struct {
	Signature        string           `json:"signature"`
	Timestamp        int64            `json:"timestamp"`
	Fee              int64            `json:"fee"`
	FeePayer         string           `json:"feePayer"`
	Type             string           `json:"type,omitempty"`
	Source           string           `json:"source,omitempty"`
	Description      string           `json:"description,omitempty"`
	TransactionError json.RawMessage  `json:"transactionError,omitempty"`
	NativeTransfers  []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers   []TokenTransfer  `json:"tokenTransfers"`
}

// Failed reports whether the transaction carries an execution error.
func (t EnhancedTransaction) Failed() bool {
	return len(t.TransactionError) > 0 && string(t.TransactionError) != "null"
}

// NativeTransfer moves lamports between two accounts.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// TokenTransfer moves SPL tokens between two owners. TokenAmount is in
// display units; RawTokenAmount, when present, carries the exact base units.
type TokenTransfer struct {
	FromUserAccount  string          `json:"fromUserAccount"`
	ToUserAccount    string          `json:"toUserAccount"`
	FromTokenAccount string          `json:"fromTokenAccount,omitempty"`
	ToTokenAccount   string          `json:"toTokenAccount,omitempty"`
	Mint             string          `json:"mint"`
	TokenAmount      decimal.Decimal `json:"tokenAmount"`
	TokenStandard    string          `json:"tokenStandard,omitempty"`
	RawTokenAmount   *RawTokenAmount `json:"rawTokenAmount,omitempty"`
}

type RawTokenAmount struct {
	TokenAmount string `json:"tokenAmount"`
	Decimals    int32  `json:"decimals"`
}

// AssetList is the getAssetsByOwner result.
type AssetList struct {
	Total         int            `json:"total"`
	Limit         int            `json:"limit"`
	Page          int            `json:"page"`
	Items         []Asset        `json:"items"`
	NativeBalance *NativeBalance `json:"nativeBalance,omitempty"`
}

type Asset struct {
	ID        string     `json:"id"`
	Interface string     `json:"interface"`
	Content   Content    `json:"content"`
	TokenInfo *TokenInfo `json:"token_info,omitempty"`
}

type Content struct {
	Metadata Metadata `json:"metadata"`
	Files    []File   `json:"files,omitempty"`
}

type Metadata struct {
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

type File struct {
	URI string `json:"uri"`
}

type TokenInfo struct {
	Symbol    string          `json:"symbol,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	Decimals  *int32          `json:"decimals,omitempty"`
	PriceInfo *PriceInfo      `json:"price_info,omitempty"`
}

type PriceInfo struct {
	PricePerToken float64 `json:"price_per_token"`
	TotalPrice    float64 `json:"total_price"`
}

type NativeBalance struct {
	Lamports    int64   `json:"lamports"`
	PricePerSOL float64 `json:"price_per_sol"`
	TotalPrice  float64 `json:"total_price"`
}

// Enrichment is the combined asset and history view of a wallet.
type Enrichment struct {
	FetchedAt    int64                 `json:"fetched_at"`
	Source       string                `json:"source"`
	Assets       *AssetList            `json:"assets,omitempty"`
	Transactions []EnhancedTransaction `json:"transactions,omitempty"`
	Normalized   Normalized            `json:"normalized"`
}

// Normalized is the frontend-facing digest of an Enrichment.
type Normalized struct {
	TokenBalances     []TokenBalance `json:"token_balances"`
	NFTs              []NFT          `json:"nfts"`
	TopCounterparties []Counterparty `json:"top_counterparties"`
}

type TokenBalance struct {
	Mint     string  `json:"mint"`
	Symbol   string  `json:"symbol"`
	UIAmount float64 `json:"ui_amount"`
	USDValue float64 `json:"usd_value"`
}

type NFT struct {
	Mint  string  `json:"mint"`
	Name  string  `json:"name"`
	Image *string `json:"image"`
}

// Counterparty aggregates native SOL exchanged with one address.
type Counterparty struct {
	Address   string  `json:"address"`
	Label     string  `json:"label"`
	USDVolume float64 `json:"usd_volume"`
}
