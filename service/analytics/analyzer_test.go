package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/labels"
	"github.com/brojonat/vialytics/service/prices"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	jup    = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	orca   = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	friend = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
)

type countingOracle struct {
	prices map[string]float64
	calls  map[string]int
}

func (o *countingOracle) Price(ctx context.Context, mint, currency string) float64 {
	if o.calls == nil {
		o.calls = make(map[string]int)
	}
	o.calls[mint]++
	return o.prices[mint]
}

type fakeSource struct {
	txs  []db.Transaction
	movs []db.TokenMovement
	err  error
}

func (f *fakeSource) ListTransactions(ctx context.Context, wallet string) ([]db.Transaction, error) {
	return f.txs, f.err
}

func (f *fakeSource) ListTokenMovements(ctx context.Context, wallet string) ([]db.TokenMovement, error) {
	return f.movs, nil
}

func newTestAnalyzer(oracle PriceOracle) *Analyzer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(oracle, labels.New(), solana.NewRegistry(nil, nil, logger), nil, logger)
}

func mov(mint string, amount int64, source, destination string) db.TokenMovement {
	return db.TokenMovement{
		WalletAddress: wallet,
		Signature:     "sig",
		Mint:          mint,
		Amount:        amount,
		Source:        source,
		Destination:   destination,
	}
}

func TestComputeEmpty(t *testing.T) {
	res := newTestAnalyzer(prices.NewStatic()).Compute(context.Background(), nil, nil)

	assert.Equal(t, 0.0, res.PortfolioOverview.TotalBalanceUSD)
	assert.Equal(t, 0.0, res.EarningsSpending.TotalReceivedUSD)
	assert.True(t, res.ActivityInsights.IsEmpty())
	assert.Equal(t, "None", res.EarningsSpending.BiggestIncoming.Label)
	assert.Equal(t, "None", res.EarningsSpending.BiggestOutgoing.Label)
	assert.Equal(t, "High", res.Security.SecurityScore)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{
		"portfolio_overview", "earnings_spending", "token_insights", "activity_insights",
		"income_streams", "spending_categories", "interactions", "security", "highlights",
	} {
		assert.Contains(t, raw, key)
	}
	assert.Len(t, raw, 9)
	assert.JSONEq(t, `{}`, string(raw["activity_insights"]))
	assert.JSONEq(t, `[]`, string(raw["token_insights"]))
	assert.JSONEq(t, `{"total_balance_usd":0,"total_balance_history":[],"top_tokens":[]}`, string(raw["portfolio_overview"]))
	assert.JSONEq(t, `{"top_spending_categories":[{"category":"Network Fees","value_usd":0}]}`, string(raw["spending_categories"]))
}

func TestPortfolioSingleSOL(t *testing.T) {
	movs := []db.TokenMovement{mov(solana.WrappedSOLMint, 1_000_000_000, friend, wallet)}

	res := newTestAnalyzer(prices.NewStatic()).Compute(context.Background(), nil, movs)

	po := res.PortfolioOverview
	assert.Equal(t, 136.0, po.TotalBalanceUSD)
	require.Len(t, po.TopTokens, 1)
	assert.Equal(t, 136.0, po.TopTokens[0].ValueUSD)
	assert.Equal(t, 100.0, po.TopTokens[0].SharePercent)
	assert.Equal(t, 1.0, po.TopTokens[0].Amount)
	assert.Equal(t, "SOL", po.TopTokens[0].Symbol, "registry ticker wins over the label")
}

func TestPortfolioTopTokens(t *testing.T) {
	oracle := &countingOracle{prices: map[string]float64{}}
	var movs []db.TokenMovement
	mints := []string{"MintA", "MintB", "MintC", "MintD", "MintE", "MintF", "MintG"}
	for i, mint := range mints {
		oracle.prices[mint] = float64(i + 1)
		movs = append(movs, mov(mint, 1_000_000, friend, wallet))
	}
	// Spent everything of one mint: excluded from holdings.
	movs = append(movs, mov("MintG", -1_000_000, wallet, friend))

	res := newTestAnalyzer(oracle).Compute(context.Background(), nil, movs)

	top := res.PortfolioOverview.TopTokens
	require.Len(t, top, 5)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].ValueUSD, top[i].ValueUSD)
	}
	assert.Equal(t, "MintF", top[0].Mint)
	assert.Equal(t, 21.0, res.PortfolioOverview.TotalBalanceUSD, "1+2+3+4+5+6")
}

func TestPortfolioTiesKeepFirstSeenOrder(t *testing.T) {
	oracle := &countingOracle{prices: map[string]float64{"MintA": 1, "MintB": 1}}
	movs := []db.TokenMovement{
		mov("MintB", 1_000_000, friend, wallet),
		mov("MintA", 1_000_000, friend, wallet),
	}

	res := newTestAnalyzer(oracle).Compute(context.Background(), nil, movs)
	require.Len(t, res.PortfolioOverview.TopTokens, 2)
	assert.Equal(t, "MintB", res.PortfolioOverview.TopTokens[0].Mint)
	assert.Equal(t, "MintA", res.PortfolioOverview.TopTokens[1].Mint)
	assert.Equal(t, 50.0, res.PortfolioOverview.TopTokens[0].SharePercent)
}

func TestPortfolioPermutationInvariant(t *testing.T) {
	var movs []db.TokenMovement
	for i := 0; i < 40; i++ {
		mint := []string{solana.WrappedSOLMint, solana.USDCMint, solana.RAYMint}[i%3]
		amount := int64(rand.IntN(5_000_000_000)) - 1_000_000_000
		movs = append(movs, mov(mint, amount, friend, wallet))
	}
	a := newTestAnalyzer(prices.NewStatic())
	want := a.Compute(context.Background(), nil, movs).PortfolioOverview.TotalBalanceUSD

	for i := 0; i < 10; i++ {
		shuffled := append([]db.TokenMovement(nil), movs...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := a.Compute(context.Background(), nil, shuffled).PortfolioOverview.TotalBalanceUSD
		assert.Equal(t, want, got)
	}
}

func TestEarningsSpending(t *testing.T) {
	movs := []db.TokenMovement{
		mov(solana.USDCMint, -10_000_000, wallet, jup),
		mov(solana.USDCMint, -50_000_000, wallet, orca),
		mov(solana.WrappedSOLMint, 500_000_000, friend, wallet),
	}

	res := newTestAnalyzer(prices.NewStatic()).Compute(context.Background(), nil, movs)

	es := res.EarningsSpending
	assert.Equal(t, 50.0, es.BiggestOutgoing.Value)
	assert.Equal(t, "Sent USDC", es.BiggestOutgoing.Label)
	assert.Equal(t, 60.0, es.TotalSentUSD)
	assert.Equal(t, 68.0, es.TotalReceivedUSD)
	assert.Equal(t, 68.0, es.BiggestIncoming.Value)
	assert.Equal(t, "Received Wrapped SOL", es.BiggestIncoming.Label)
	assert.Equal(t, 8.0, es.NetFlow)
	assert.Equal(t, 42.67, es.AverageTransactionSize)
}

func TestEarningsTieKeepsFirst(t *testing.T) {
	oracle := &countingOracle{prices: map[string]float64{"MintA": 1, "MintB": 1}}
	movs := []db.TokenMovement{
		mov("MintA", -5_000_000, wallet, friend),
		mov("MintB", -5_000_000, wallet, friend),
	}
	l := labels.WithLabels(map[string]string{"MintA": "AAA", "MintB": "BBB"})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	res := New(oracle, l, nil, nil, logger).Compute(context.Background(), nil, movs)
	assert.Equal(t, "Sent AAA", res.EarningsSpending.BiggestOutgoing.Label)
}

func TestNetFlowMatchesUnroundedTerms(t *testing.T) {
	oracle := &countingOracle{prices: map[string]float64{"MintA": 0.333}}
	movs := []db.TokenMovement{
		mov("MintA", 10_000_000, friend, wallet),
		mov("MintA", -3_000_000, wallet, friend),
	}

	es := newTestAnalyzer(oracle).Compute(context.Background(), nil, movs).EarningsSpending
	// 3.33 received, 0.999 sent: net is 2.331 before rounding.
	assert.Equal(t, 3.33, es.TotalReceivedUSD)
	assert.Equal(t, 1.0, es.TotalSentUSD)
	assert.Equal(t, 2.33, es.NetFlow)
}

func TestTokenInsights(t *testing.T) {
	movs := []db.TokenMovement{
		mov(solana.USDCMint, 5_000_000, friend, wallet),
		mov(solana.USDCMint, -2_000_000, wallet, friend),
		mov("SpentMint", 1_000_000, friend, wallet),
		mov("SpentMint", -1_000_000, wallet, friend),
		mov("OnlyOut", -1_000_000, wallet, friend),
	}

	insights := newTestAnalyzer(prices.NewStatic()).Compute(context.Background(), nil, movs).TokenInsights

	require.Len(t, insights, 2, "mints with nothing received and no balance are dropped")
	assert.Equal(t, TokenInsight{Token: "USDC", Mint: solana.USDCMint, CurrentHoldings: 3, TotalReceived: 5, TotalSent: 2}, insights[0])
	assert.Equal(t, "SpentMint", insights[1].Mint)
	assert.Equal(t, 0.0, insights[1].CurrentHoldings)
}

func TestActivityInsights(t *testing.T) {
	day := func(s string) int64 {
		ts, err := time.Parse(time.DateTime, s)
		require.NoError(t, err)
		return ts.Unix()
	}
	txs := []db.Transaction{
		{Signature: "a", BlockTime: day("2024-01-15 10:00:00"), Status: true},
		{Signature: "b", BlockTime: day("2024-01-15 23:59:59"), Status: true},
		{Signature: "c", BlockTime: day("2024-02-01 00:00:00"), Status: true},
		{Signature: "d", BlockTime: day("2024-03-31 12:00:00"), Status: true},
	}

	ai := activityInsights(txs)
	assert.Equal(t, 4, ai.TotalTransactions)
	assert.Equal(t, "2024-01-15", ai.FirstActivity)
	assert.Equal(t, "2024-03-31", ai.LastActivity)
	assert.Equal(t, 3, ai.ActiveDaysCount)
	assert.Equal(t, map[string]int{"2024-01": 2, "2024-02": 1, "2024-03": 1}, ai.MonthlyFrequency)

	sum := 0
	for _, n := range ai.MonthlyFrequency {
		sum += n
	}
	assert.Equal(t, ai.TotalTransactions, sum)
}

func TestActivityInsightsWithoutTimestamps(t *testing.T) {
	ai := activityInsights([]db.Transaction{{Signature: "a"}, {Signature: "b"}})
	assert.True(t, ai.IsEmpty())

	data, err := json.Marshal(ai)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestActivityInsightsCountsUntimedTransactions(t *testing.T) {
	ai := activityInsights([]db.Transaction{{Signature: "a", BlockTime: 1700000000}, {Signature: "b"}})
	assert.Equal(t, 2, ai.TotalTransactions)
	assert.Equal(t, 1, ai.ActiveDaysCount)
}

func TestIncomeStreams(t *testing.T) {
	movs := []db.TokenMovement{
		mov(solana.USDCMint, 10_000_000, jup, wallet),
		mov(solana.USDCMint, 30_000_000, friend, wallet),
		mov(solana.USDCMint, 5_000_000, jup, wallet),
		mov(solana.USDCMint, 99_000_000, "", wallet),
		mov(solana.USDCMint, -20_000_000, wallet, orca),
	}

	sources := newTestAnalyzer(prices.NewStatic()).Compute(context.Background(), nil, movs).IncomeStreams.TopIncomeSources

	require.Len(t, sources, 2)
	assert.Equal(t, IncomeSource{Source: "7xKX...gAsU", ValueUSD: 30}, sources[0])
	assert.Equal(t, IncomeSource{Source: "Jupiter", ValueUSD: 15}, sources[1])
}

func TestSpendingCategories(t *testing.T) {
	txs := []db.Transaction{
		{Signature: "a", Fee: 5000, Status: true},
		{Signature: "b", Fee: 995_000, Status: true},
	}

	cats := newTestAnalyzer(prices.NewStatic()).Compute(context.Background(), txs, nil).SpendingCategories.TopSpendingCategories

	require.Len(t, cats, 1)
	assert.Equal(t, "Network Fees", cats[0].Category)
	assert.Equal(t, 0.14, cats[0].ValueUSD, "0.001 SOL at 136")
}

func TestInteractions(t *testing.T) {
	var movs []db.TokenMovement
	for i := 0; i < 3; i++ {
		movs = append(movs, mov(solana.USDCMint, -1, wallet, orca))
	}
	for i := 0; i < 5; i++ {
		movs = append(movs, mov(solana.USDCMint, -1, wallet, jup))
	}
	movs = append(movs, mov(solana.USDCMint, 1, jup, wallet))
	movs = append(movs, mov(solana.USDCMint, -1, wallet, ""))
	for _, addr := range []string{"AAAA1111", "BBBB2222", "CCCC3333", "DDDD4444"} {
		movs = append(movs, mov(solana.USDCMint, -1, wallet, addr))
	}

	platforms := newTestAnalyzer(prices.NewStatic()).Compute(context.Background(), nil, movs).Interactions.TopAppsPlatforms

	require.Len(t, platforms, 5)
	assert.Equal(t, Platform{Name: "Jupiter", Count: 5}, platforms[0])
	assert.Equal(t, Platform{Name: "Orca Whirlpool", Count: 3}, platforms[1])
	assert.Equal(t, "AAAA...1111", platforms[2].Name)
	assert.Equal(t, "CCCC...3333", platforms[4].Name)
}

func TestSecurityChecks(t *testing.T) {
	build := func(failed, total int) []db.Transaction {
		txs := make([]db.Transaction, total)
		for i := range txs {
			txs[i] = db.Transaction{Signature: string(rune('a' + i)), Status: i >= failed}
		}
		return txs
	}

	sec := securityChecks(build(6, 20))
	assert.Equal(t, 6, sec.FailedTransactionsCount)
	assert.Equal(t, "Medium", sec.SecurityScore)

	sec = securityChecks(build(2, 20))
	assert.Equal(t, 2, sec.FailedTransactionsCount)
	assert.Equal(t, "High", sec.SecurityScore)

	assert.Equal(t, "Medium", securityChecks(build(5, 5)).SecurityScore)
}

func TestHighlights(t *testing.T) {
	h := highlights()
	assert.Equal(t, "Hodler", h.WalletPersonality)
	assert.Equal(t, "You made your biggest trade!", h.TopMoment)
}

func TestStoredDecimalsOverrideRegistry(t *testing.T) {
	two := int32(2)
	m := mov("CustomMint", 250, friend, wallet)
	m.Decimals = &two
	oracle := &countingOracle{prices: map[string]float64{"CustomMint": 4}}

	res := newTestAnalyzer(oracle).Compute(context.Background(), nil, []db.TokenMovement{m, mov("CustomMint", 100, friend, wallet)})

	require.Len(t, res.PortfolioOverview.TopTokens, 1)
	assert.Equal(t, 3.5, res.PortfolioOverview.TopTokens[0].Amount)
	assert.Equal(t, 14.0, res.PortfolioOverview.TotalBalanceUSD)
}

func TestLookupsAreMemoized(t *testing.T) {
	oracle := &countingOracle{prices: map[string]float64{solana.USDCMint: 1, solana.WrappedSOLMint: 100}}
	movs := []db.TokenMovement{
		mov(solana.USDCMint, 1_000_000, jup, wallet),
		mov(solana.USDCMint, -500_000, wallet, orca),
		mov(solana.USDCMint, 2_000_000, jup, wallet),
	}
	txs := []db.Transaction{{Signature: "a", Fee: 5000, Status: true}}

	newTestAnalyzer(oracle).Compute(context.Background(), txs, movs)

	assert.Equal(t, 1, oracle.calls[solana.USDCMint])
	assert.Equal(t, 1, oracle.calls[solana.WrappedSOLMint])
}

type countingRegistry struct {
	infos map[string]solana.TokenInfo
	calls map[string]int
}

func (r *countingRegistry) Lookup(ctx context.Context, mint string) solana.TokenInfo {
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[mint]++
	if info, ok := r.infos[mint]; ok {
		return info
	}
	return solana.TokenInfo{Mint: mint, Decimals: solana.DefaultDecimals(mint), Source: solana.SourceDefault}
}

func TestTopTokenSymbols(t *testing.T) {
	registry := &countingRegistry{infos: map[string]solana.TokenInfo{
		"TickerMint": {Mint: "TickerMint", Symbol: "TKR", Decimals: 6, Source: solana.SourceChain},
	}}
	oracle := &countingOracle{prices: map[string]float64{"TickerMint": 2, "AnonMint1234": 1}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(oracle, labels.New(), registry, nil, logger)

	movs := []db.TokenMovement{
		mov("TickerMint", 3_000_000, friend, wallet),
		mov("AnonMint1234", 1_000_000, friend, wallet),
		mov("TickerMint", 1_000_000, friend, wallet),
	}
	res := a.Compute(context.Background(), nil, movs)

	tokens := res.PortfolioOverview.TopTokens
	require.Len(t, tokens, 2)
	assert.Equal(t, "TKR", tokens[0].Symbol)
	assert.Equal(t, "Anon...1234", tokens[1].Symbol, "falls back to the label without a ticker")
	assert.Equal(t, 1, registry.calls["TickerMint"])
	assert.Equal(t, 1, registry.calls["AnonMint1234"])
}

func TestAnalyze(t *testing.T) {
	a := newTestAnalyzer(prices.NewStatic())

	t.Run("loads both collections", func(t *testing.T) {
		src := &fakeSource{
			txs:  []db.Transaction{{Signature: "a", BlockTime: 1700000000, Status: false, Fee: 5000}},
			movs: []db.TokenMovement{mov(solana.WrappedSOLMint, 2_000_000_000, friend, wallet)},
		}
		res, err := a.Analyze(context.Background(), src, wallet)
		require.NoError(t, err)
		assert.Equal(t, 272.0, res.PortfolioOverview.TotalBalanceUSD)
		assert.Equal(t, 1, res.Security.FailedTransactionsCount)
		assert.Equal(t, 1, res.ActivityInsights.TotalTransactions)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		_, err := a.Analyze(context.Background(), &fakeSource{err: errors.New("connection refused")}, wallet)
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestComputeDoesNotMutateInputs(t *testing.T) {
	movs := []db.TokenMovement{
		mov("MintB", 1_000_000, friend, wallet),
		mov("MintA", 3_000_000, friend, wallet),
	}
	before := append([]db.TokenMovement(nil), movs...)

	newTestAnalyzer(&countingOracle{prices: map[string]float64{"MintA": 1, "MintB": 1}}).Compute(context.Background(), nil, movs)
	assert.Equal(t, before, movs)
}
