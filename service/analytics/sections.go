package analytics

import (
	"slices"
	"time"

	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/shopspring/decimal"
)

const topN = 5

// Every ranked list below is built in first-seen order and sorted stably,
// so ties keep the order in which keys first appeared.

func (s *snapshot) portfolioOverview(movs []db.TokenMovement) PortfolioOverview {
	holdings := make(map[string]int64)
	var order []string
	for _, m := range movs {
		if _, ok := holdings[m.Mint]; !ok {
			order = append(order, m.Mint)
		}
		holdings[m.Mint] += m.Amount
	}

	type holding struct {
		mint   string
		amount decimal.Decimal
		value  decimal.Decimal
	}
	var kept []holding
	total := decimal.Zero
	for _, mint := range order {
		amount := s.display(mint, holdings[mint])
		if !amount.IsPositive() {
			continue
		}
		value := amount.Mul(s.price(mint))
		total = total.Add(value)
		kept = append(kept, holding{mint: mint, amount: amount, value: value})
	}

	slices.SortStableFunc(kept, func(a, b holding) int {
		return b.value.Cmp(a.value)
	})

	tokens := make([]TopToken, 0, min(len(kept), topN))
	for _, h := range kept[:min(len(kept), topN)] {
		share := decimal.Zero
		if total.IsPositive() {
			share = h.value.Div(total).Mul(decimal.NewFromInt(100))
		}
		tokens = append(tokens, TopToken{
			Symbol:       s.symbol(h.mint),
			Mint:         h.mint,
			Amount:       h.amount.InexactFloat64(),
			ValueUSD:     round2(h.value),
			SharePercent: round2(share),
		})
	}

	return PortfolioOverview{
		TotalBalanceUSD:     round2(total),
		TotalBalanceHistory: []any{},
		TopTokens:           tokens,
	}
}

func (s *snapshot) earningsSpending(movs []db.TokenMovement) EarningsSpending {
	received, sent, volume := decimal.Zero, decimal.Zero, decimal.Zero
	count := 0
	biggestIn, biggestOut := decimal.Zero, decimal.Zero
	inLabel, outLabel := "None", "None"

	for _, m := range movs {
		value := s.usd(m.Mint, m.Amount)
		if value.IsPositive() {
			volume = volume.Add(value)
			count++
		}

		switch {
		case m.Amount > 0:
			received = received.Add(value)
			if value.GreaterThan(biggestIn) {
				biggestIn = value
				inLabel = "Received " + s.label(m.Mint)
			}
		case m.Amount < 0:
			sent = sent.Add(value)
			if value.GreaterThan(biggestOut) {
				biggestOut = value
				outLabel = "Sent " + s.label(m.Mint)
			}
		}
	}

	average := decimal.Zero
	if count > 0 {
		average = volume.Div(decimal.NewFromInt(int64(count)))
	}

	return EarningsSpending{
		TotalReceivedUSD:       round2(received),
		TotalSentUSD:           round2(sent),
		NetFlow:                round2(received.Sub(sent)),
		BiggestIncoming:        Movement{Value: round2(biggestIn), Label: inLabel},
		BiggestOutgoing:        Movement{Value: round2(biggestOut), Label: outLabel},
		AverageTransactionSize: round2(average),
	}
}

func (s *snapshot) tokenInsights(movs []db.TokenMovement) []TokenInsight {
	type totals struct {
		received, sent, balance decimal.Decimal
	}
	byMint := make(map[string]*totals)
	var order []string
	for _, m := range movs {
		t, ok := byMint[m.Mint]
		if !ok {
			t = &totals{}
			byMint[m.Mint] = t
			order = append(order, m.Mint)
		}
		amount := s.display(m.Mint, m.Amount)
		t.balance = t.balance.Add(amount)
		if amount.IsPositive() {
			t.received = t.received.Add(amount)
		} else {
			t.sent = t.sent.Add(amount.Abs())
		}
	}

	insights := make([]TokenInsight, 0, len(order))
	for _, mint := range order {
		t := byMint[mint]
		if !t.balance.IsPositive() && !t.received.IsPositive() {
			continue
		}
		insights = append(insights, TokenInsight{
			Token:           s.label(mint),
			Mint:            mint,
			CurrentHoldings: t.balance.InexactFloat64(),
			TotalReceived:   t.received.InexactFloat64(),
			TotalSent:       t.sent.InexactFloat64(),
		})
	}
	return insights
}

// activityInsights buckets timestamps by UTC calendar date and month.
func activityInsights(txs []db.Transaction) ActivityInsights {
	var first, last int64
	days := make(map[string]struct{})
	months := make(map[string]int)
	for _, tx := range txs {
		if tx.BlockTime == 0 {
			continue
		}
		if first == 0 || tx.BlockTime < first {
			first = tx.BlockTime
		}
		if tx.BlockTime > last {
			last = tx.BlockTime
		}
		t := time.Unix(tx.BlockTime, 0).UTC()
		days[t.Format(time.DateOnly)] = struct{}{}
		months[t.Format("2006-01")]++
	}
	if len(months) == 0 {
		return ActivityInsights{}
	}

	return ActivityInsights{
		TotalTransactions: len(txs),
		FirstActivity:     time.Unix(first, 0).UTC().Format(time.DateOnly),
		LastActivity:      time.Unix(last, 0).UTC().Format(time.DateOnly),
		ActiveDaysCount:   len(days),
		MonthlyFrequency:  months,
	}
}

func (s *snapshot) incomeStreams(movs []db.TokenMovement) IncomeStreams {
	bySource := make(map[string]decimal.Decimal)
	var order []string
	for _, m := range movs {
		if m.Amount <= 0 || m.Source == "" {
			continue
		}
		label := s.label(m.Source)
		if _, ok := bySource[label]; !ok {
			order = append(order, label)
		}
		bySource[label] = bySource[label].Add(s.usd(m.Mint, m.Amount))
	}

	slices.SortStableFunc(order, func(a, b string) int {
		return bySource[b].Cmp(bySource[a])
	})

	sources := make([]IncomeSource, 0, min(len(order), topN))
	for _, label := range order[:min(len(order), topN)] {
		sources = append(sources, IncomeSource{Source: label, ValueUSD: round2(bySource[label])})
	}
	return IncomeStreams{TopIncomeSources: sources}
}

// spendingCategories reports network fees, charged in lamports and priced at SOL.
func (s *snapshot) spendingCategories(txs []db.Transaction) SpendingCategories {
	var lamports int64
	for _, tx := range txs {
		lamports += tx.Fee
	}
	fees := decimal.New(lamports, -9).Mul(s.price(solana.WrappedSOLMint))

	return SpendingCategories{
		TopSpendingCategories: []SpendingCategory{
			{Category: "Network Fees", ValueUSD: round2(fees)},
		},
	}
}

func (s *snapshot) interactions(movs []db.TokenMovement) Interactions {
	counts := make(map[string]int)
	var order []string
	for _, m := range movs {
		if m.Amount >= 0 || m.Destination == "" {
			continue
		}
		label := s.label(m.Destination)
		if _, ok := counts[label]; !ok {
			order = append(order, label)
		}
		counts[label]++
	}

	slices.SortStableFunc(order, func(a, b string) int {
		return counts[b] - counts[a]
	})

	platforms := make([]Platform, 0, min(len(order), topN))
	for _, label := range order[:min(len(order), topN)] {
		platforms = append(platforms, Platform{Name: label, Count: counts[label]})
	}
	return Interactions{TopAppsPlatforms: platforms}
}

func securityChecks(txs []db.Transaction) Security {
	failed := 0
	for _, tx := range txs {
		if !tx.Status {
			failed++
		}
	}
	score := "High"
	if failed >= 5 {
		score = "Medium"
	}
	return Security{FailedTransactionsCount: failed, SecurityScore: score}
}

func highlights() Highlights {
	return Highlights{
		WalletPersonality: "Hodler",
		TopMoment:         "You made your biggest trade!",
	}
}
