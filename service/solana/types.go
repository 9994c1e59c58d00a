package solana

// Well-known mints.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	RAYMint        = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
	BONKMint       = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	MPLXMint       = "METAewgxyPbgwsseH8T16a39CQ5VyVxZi9zXiDPY18m"
	JUPMint        = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
	MSOLMint       = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"
)

// Token metadata sources.
const (
	SourceStatic  = "static"
	SourceChain   = "chain"
	SourceDefault = "default"
)

// TokenInfo describes how to display amounts of a mint.
type TokenInfo struct {
	Mint     string `json:"mint"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals int32  `json:"decimals"`
	Source   string `json:"source"`
}

var knownTokens = map[string]TokenInfo{
	WrappedSOLMint: {Mint: WrappedSOLMint, Symbol: "SOL", Decimals: 9},
	USDCMint:       {Mint: USDCMint, Symbol: "USDC", Decimals: 6},
	USDTMint:       {Mint: USDTMint, Symbol: "USDT", Decimals: 6},
	RAYMint:        {Mint: RAYMint, Symbol: "RAY", Decimals: 6},
	BONKMint:       {Mint: BONKMint, Symbol: "BONK", Decimals: 5},
	MPLXMint:       {Mint: MPLXMint, Symbol: "MPLX", Decimals: 6},
	JUPMint:        {Mint: JUPMint, Symbol: "JUP", Decimals: 6},
	MSOLMint:       {Mint: MSOLMint, Symbol: "mSOL", Decimals: 9},
}

// DefaultDecimals is the fallback used when no metadata is available:
// 9 for wrapped SOL, 6 for everything else.
func DefaultDecimals(mint string) int32 {
	if mint == WrappedSOLMint {
		return 9
	}
	return 6
}
