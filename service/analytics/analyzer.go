package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/metrics"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/shopspring/decimal"
)

// PriceOracle maps a mint to a unit price, returning 0 when unknown.
type PriceOracle interface {
	Price(ctx context.Context, mint, currency string) float64
}

// LabelResolver names addresses for display.
type LabelResolver interface {
	Label(addr string) string
	IsKnown(addr string) bool
}

// TokenRegistry supplies display metadata for a mint.
type TokenRegistry interface {
	Lookup(ctx context.Context, mint string) solana.TokenInfo
}

// RecordSource is a readable record store.
type RecordSource interface {
	ListTransactions(ctx context.Context, wallet string) ([]db.Transaction, error)
	ListTokenMovements(ctx context.Context, wallet string) ([]db.TokenMovement, error)
}

// Currency all USD figures are priced in.
const Currency = "USD"

// Analyzer derives the analytics sections from a wallet's records.
type Analyzer struct {
	prices  PriceOracle
	labels  LabelResolver
	tokens  TokenRegistry
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Analyzer. A nil tokens falls back to the static table and
// default decimals; m may be nil.
func New(prices PriceOracle, labels LabelResolver, tokens TokenRegistry, m *metrics.Metrics, logger *slog.Logger) *Analyzer {
	if tokens == nil {
		tokens = solana.NewRegistry(nil, m, logger)
	}
	return &Analyzer{
		prices:  prices,
		labels:  labels,
		tokens:  tokens,
		metrics: m,
		logger:  logger,
	}
}

// Analyze loads all of wallet's records from src once and computes the result.
// It fails only when src fails.
func (a *Analyzer) Analyze(ctx context.Context, src RecordSource, wallet string) (*Result, error) {
	start := time.Now()

	txs, err := src.ListTransactions(ctx, wallet)
	if err != nil {
		a.recordRun("error", start)
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	movs, err := src.ListTokenMovements(ctx, wallet)
	if err != nil {
		a.recordRun("error", start)
		return nil, fmt.Errorf("failed to load token movements: %w", err)
	}

	result := a.Compute(ctx, txs, movs)
	a.recordRun("success", start)

	a.logger.InfoContext(ctx, "analyzed wallet",
		"wallet", wallet,
		"transactions", len(txs),
		"movements", len(movs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Compute derives every section from an in-memory snapshot. It never fails
// and never mutates its inputs.
func (a *Analyzer) Compute(ctx context.Context, txs []db.Transaction, movs []db.TokenMovement) *Result {
	if a.metrics != nil {
		a.metrics.RecordRecordsScanned("transaction", len(txs))
		a.metrics.RecordRecordsScanned("token_movement", len(movs))
	}

	s := newSnapshot(ctx, a, movs)
	return &Result{
		PortfolioOverview:  s.portfolioOverview(movs),
		EarningsSpending:   s.earningsSpending(movs),
		TokenInsights:      s.tokenInsights(movs),
		ActivityInsights:   activityInsights(txs),
		IncomeStreams:      s.incomeStreams(movs),
		SpendingCategories: s.spendingCategories(txs),
		Interactions:       s.interactions(movs),
		Security:           securityChecks(txs),
		Highlights:         highlights(),
	}
}

func (a *Analyzer) recordRun(outcome string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordAnalyticsRun(outcome, time.Since(start).Seconds())
	}
}

// snapshot memoizes collaborator lookups so every section of one
// computation sees the same price, decimals and label for a key.
type snapshot struct {
	ctx      context.Context
	a        *Analyzer
	prices   map[string]decimal.Decimal
	decimals map[string]int32
	infos    map[string]solana.TokenInfo
	labels   map[string]string
	stored   map[string]int32
}

func newSnapshot(ctx context.Context, a *Analyzer, movs []db.TokenMovement) *snapshot {
	s := &snapshot{
		ctx:      ctx,
		a:        a,
		prices:   make(map[string]decimal.Decimal),
		decimals: make(map[string]int32),
		infos:    make(map[string]solana.TokenInfo),
		labels:   make(map[string]string),
		stored:   make(map[string]int32),
	}
	// Decimals recorded by the indexer win over the registry; the first
	// recorded value for a mint applies to all its movements.
	for _, m := range movs {
		if m.Decimals == nil {
			continue
		}
		if _, ok := s.stored[m.Mint]; !ok {
			s.stored[m.Mint] = *m.Decimals
		}
	}
	return s
}

func (s *snapshot) price(mint string) decimal.Decimal {
	if p, ok := s.prices[mint]; ok {
		return p
	}
	p := decimal.Zero
	if s.a.prices != nil {
		p = decimal.NewFromFloat(s.a.prices.Price(s.ctx, mint, Currency))
	}
	s.prices[mint] = p
	return p
}

func (s *snapshot) decimalsFor(mint string) int32 {
	if d, ok := s.decimals[mint]; ok {
		return d
	}
	d, ok := s.stored[mint]
	if !ok {
		d = s.tokenInfo(mint).Decimals
	}
	s.decimals[mint] = d
	return d
}

func (s *snapshot) tokenInfo(mint string) solana.TokenInfo {
	if info, ok := s.infos[mint]; ok {
		return info
	}
	info := s.a.tokens.Lookup(s.ctx, mint)
	s.infos[mint] = info
	return info
}

// symbol is the registry's ticker for mint, or its label when the
// registry has none.
func (s *snapshot) symbol(mint string) string {
	if sym := s.tokenInfo(mint).Symbol; sym != "" {
		return sym
	}
	return s.label(mint)
}

func (s *snapshot) label(addr string) string {
	if l, ok := s.labels[addr]; ok {
		return l
	}
	var l string
	if s.a.labels != nil {
		l = s.a.labels.Label(addr)
	} else if addr == "" {
		l = "Unknown"
	} else {
		l = addr
	}
	s.labels[addr] = l
	return l
}

// display converts a raw amount of mint into display units.
func (s *snapshot) display(mint string, amount int64) decimal.Decimal {
	return decimal.New(amount, -s.decimalsFor(mint))
}

// usd is the absolute USD value of a raw amount of mint.
func (s *snapshot) usd(mint string, amount int64) decimal.Decimal {
	return s.display(mint, amount).Abs().Mul(s.price(mint))
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
