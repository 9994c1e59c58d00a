package solana

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	TokenSupplyClient

	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)
}

// Client reads wallet history straight from an RPC node. It is the history
// source used when no enrichment API key is configured.
type Client struct {
	rpc     RPCClient
	logger  *slog.Logger
	metrics *metrics.Metrics

	// requestDelay spaces GetTransaction calls; public mainnet allows 1-2 RPS.
	requestDelay time.Duration
	backoff      time.Duration
	maxAttempts  int
}

// NewClient creates a new Solana client.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:          rpcClient,
		logger:       logger,
		metrics:      m,
		requestDelay: 600 * time.Millisecond,
		backoff:      time.Second,
		maxAttempts:  3,
	}
}

// WithRequestDelay overrides the pause between transaction fetches and the
// base retry backoff.
func (c *Client) WithRequestDelay(delay, backoff time.Duration) *Client {
	c.requestDelay = delay
	c.backoff = backoff
	return c
}

// FetchHistory returns up to limit of the wallet's transactions older than
// before (newest first), converted to store records. An empty before starts
// from the most recent signature.
func (c *Client) FetchHistory(ctx context.Context, wallet string, before string, limit int) (*db.RecordBatch, error) {
	address, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address: %w", err)
	}

	opts := &rpc.GetSignaturesForAddressOpts{Limit: &limit}
	if before != "" {
		sig, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor signature: %w", err)
		}
		opts.Before = sig
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"wallet", wallet,
		"limit", limit,
		"before", before,
	)

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, address, opts)
	c.recordCall("GetSignaturesForAddress", err, start)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures", "wallet", wallet, "error", err)
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}

	batch := &db.RecordBatch{}
	for i, sig := range signatures {
		if i > 0 && c.requestDelay > 0 {
			if err := sleepContext(ctx, c.requestDelay); err != nil {
				return nil, err
			}
		}

		result, err := c.getTransaction(ctx, sig.Signature)
		if err != nil {
			// The transaction may be pruned; keep what the signature list told us.
			c.logger.WarnContext(ctx, "failed to get transaction details after retries, using metadata only",
				"signature", sig.Signature.String(),
				"error", err,
			)
			batch.Transactions = append(batch.Transactions, signatureToRecord(wallet, sig))
			continue
		}

		tx, movs, err := recordsFromResult(address, sig, result)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to parse transaction, using metadata only",
				"signature", sig.Signature.String(),
				"error", err,
			)
		}
		batch.Transactions = append(batch.Transactions, tx)
		batch.Movements = append(batch.Movements, movs...)
	}

	if len(signatures) == limit && len(signatures) > 0 {
		batch.Cursor = signatures[len(signatures)-1].Signature.String()
	}

	c.logger.InfoContext(ctx, "fetched and parsed transactions",
		"wallet", wallet,
		"transactions", len(batch.Transactions),
		"movements", len(batch.Movements),
	)
	return batch, nil
}

func (c *Client) getTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	var (
		result *rpc.GetTransactionResult
		err    error
	)
	for attempt := range c.maxAttempts {
		opts := &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			MaxSupportedTransactionVersion: &[]uint64{0}[0],
		}
		start := time.Now()
		result, err = c.rpc.GetTransaction(ctx, sig, opts)
		c.recordCall("GetTransaction", err, start)
		if err == nil {
			return result, nil
		}

		// Handle parsing errors for legacy transactions
		if strings.Contains(err.Error(), "expects '\"' or 'n', but found '{'") {
			c.logger.WarnContext(ctx, "could not parse as versioned tx, retrying as legacy",
				"signature", sig.String(),
			)
			start = time.Now()
			result, err = c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{Encoding: solana.EncodingBase64})
			c.recordCall("GetTransaction", err, start)
			if err == nil {
				return result, nil
			}
		}

		backoff := time.Duration(1<<uint(attempt)) * c.backoff
		if strings.Contains(err.Error(), "429") {
			backoff *= 2
		}
		c.logger.WarnContext(ctx, "failed to get transaction on attempt",
			"signature", sig.String(),
			"attempt", attempt+1,
			"error", err,
			"backoff_seconds", backoff.Seconds(),
		)
		if attempt == c.maxAttempts-1 {
			break
		}
		if err := sleepContext(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, err
}

func (c *Client) recordCall(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, time.Since(start).Seconds())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
