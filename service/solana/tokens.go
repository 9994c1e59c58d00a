package solana

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/vialytics/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// TokenSupplyClient is the RPC capability the registry needs.
type TokenSupplyClient interface {
	GetTokenSupply(ctx context.Context, mint solana.PublicKey) (*rpc.GetTokenSupplyResult, error)
}

// Registry resolves token metadata: the static table first, then the
// mint account on chain, then DefaultDecimals. Chain results are kept
// for the life of the process since decimals never change for a mint.
type Registry struct {
	rpc     TokenSupplyClient
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	resolved map[string]TokenInfo
}

// NewRegistry creates a registry. rpcClient may be nil, in which case only
// the static table and the default heuristic are used.
func NewRegistry(rpcClient TokenSupplyClient, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		rpc:      rpcClient,
		metrics:  m,
		logger:   logger,
		resolved: make(map[string]TokenInfo),
	}
}

// Lookup returns metadata for mint. It never fails.
func (r *Registry) Lookup(ctx context.Context, mint string) TokenInfo {
	if info, ok := knownTokens[mint]; ok {
		info.Source = SourceStatic
		r.record(SourceStatic)
		return info
	}

	r.mu.RLock()
	info, ok := r.resolved[mint]
	r.mu.RUnlock()
	if ok {
		r.record(info.Source)
		return info
	}

	if info, ok := r.fetch(ctx, mint); ok {
		r.mu.Lock()
		r.resolved[mint] = info
		r.mu.Unlock()
		r.record(SourceChain)
		return info
	}

	r.record(SourceDefault)
	return TokenInfo{Mint: mint, Decimals: DefaultDecimals(mint), Source: SourceDefault}
}

func (r *Registry) fetch(ctx context.Context, mint string) (TokenInfo, bool) {
	if r.rpc == nil {
		return TokenInfo{}, false
	}
	key, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return TokenInfo{}, false
	}

	start := time.Now()
	out, err := r.rpc.GetTokenSupply(ctx, key)
	status := "success"
	if err != nil {
		status = "error"
	}
	if r.metrics != nil {
		r.metrics.RecordRPCCall("GetTokenSupply", status, time.Since(start).Seconds())
	}
	if err != nil {
		r.logger.WarnContext(ctx, "failed to fetch token supply, using default decimals",
			"mint", mint,
			"error", err,
		)
		return TokenInfo{}, false
	}
	if out == nil || out.Value == nil {
		return TokenInfo{}, false
	}

	return TokenInfo{
		Mint:     mint,
		Decimals: int32(out.Value.Decimals),
		Source:   SourceChain,
	}, true
}

func (r *Registry) record(source string) {
	if r.metrics != nil {
		r.metrics.RecordTokenLookup(source)
	}
}
