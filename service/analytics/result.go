package analytics

import "encoding/json"

// Result is the full analytics payload for one wallet. It always carries
// all nine sections, zeroed when the input is empty.
type Result struct {
	PortfolioOverview  PortfolioOverview  `json:"portfolio_overview"`
	EarningsSpending   EarningsSpending   `json:"earnings_spending"`
	TokenInsights      []TokenInsight     `json:"token_insights"`
	ActivityInsights   ActivityInsights   `json:"activity_insights"`
	IncomeStreams      IncomeStreams      `json:"income_streams"`
	SpendingCategories SpendingCategories `json:"spending_categories"`
	Interactions       Interactions       `json:"interactions"`
	Security           Security           `json:"security"`
	Highlights         Highlights         `json:"highlights"`
}

type PortfolioOverview struct {
	TotalBalanceUSD float64 `json:"total_balance_usd"`
	// TotalBalanceHistory is always empty; balances are not reconstructed over time.
	TotalBalanceHistory []any      `json:"total_balance_history"`
	TopTokens           []TopToken `json:"top_tokens"`
}

type TopToken struct {
	Symbol       string  `json:"symbol"`
	Mint         string  `json:"mint"`
	Amount       float64 `json:"amount"`
	ValueUSD     float64 `json:"value_usd"`
	SharePercent float64 `json:"share_percent"`
}

type EarningsSpending struct {
	TotalReceivedUSD       float64  `json:"total_received_usd"`
	TotalSentUSD           float64  `json:"total_sent_usd"`
	NetFlow                float64  `json:"net_flow"`
	BiggestIncoming        Movement `json:"biggest_incoming"`
	BiggestOutgoing        Movement `json:"biggest_outgoing"`
	AverageTransactionSize float64  `json:"average_transaction_size"`
}

// Movement names a single notable transfer.
type Movement struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

type TokenInsight struct {
	Token           string  `json:"token"`
	Mint            string  `json:"mint"`
	CurrentHoldings float64 `json:"current_holdings"`
	TotalReceived   float64 `json:"total_received"`
	TotalSent       float64 `json:"total_sent"`
}

// ActivityInsights is empty when no transaction carries a timestamp, and
// then serializes as {}.
type ActivityInsights struct {
	TotalTransactions int            `json:"total_transactions"`
	FirstActivity     string         `json:"first_activity"`
	LastActivity      string         `json:"last_activity"`
	ActiveDaysCount   int            `json:"active_days_count"`
	MonthlyFrequency  map[string]int `json:"monthly_frequency"`
}

// IsEmpty reports whether there was no timestamped activity.
func (a ActivityInsights) IsEmpty() bool {
	return a.FirstActivity == ""
}

func (a ActivityInsights) MarshalJSON() ([]byte, error) {
	if a.IsEmpty() {
		return []byte("{}"), nil
	}
	type plain ActivityInsights
	return json.Marshal(plain(a))
}

type IncomeStreams struct {
	TopIncomeSources []IncomeSource `json:"top_income_sources"`
}

type IncomeSource struct {
	Source   string  `json:"source"`
	ValueUSD float64 `json:"value_usd"`
}

type SpendingCategories struct {
	TopSpendingCategories []SpendingCategory `json:"top_spending_categories"`
}

type SpendingCategory struct {
	Category string  `json:"category"`
	ValueUSD float64 `json:"value_usd"`
}

type Interactions struct {
	TopAppsPlatforms []Platform `json:"top_apps_platforms"`
}

type Platform struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Security struct {
	FailedTransactionsCount int    `json:"failed_transactions_count"`
	SecurityScore           string `json:"security_score"`
}

type Highlights struct {
	WalletPersonality string `json:"wallet_personality"`
	TopMoment         string `json:"top_moment"`
}
