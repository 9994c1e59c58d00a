package helius

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/brojonat/vialytics/service/labels"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testFriend = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	testJup    = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
)

const assetsResponse = `{
	"jsonrpc": "2.0",
	"id": "vialytics",
	"result": {
		"total": 3,
		"limit": 100,
		"page": 1,
		"items": [
			{
				"id": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
				"interface": "FungibleToken",
				"content": {"metadata": {"symbol": "USDC"}},
				"token_info": {"symbol": "USDC", "balance": 2500000, "decimals": 6, "price_info": {"total_price": 2.5}}
			},
			{
				"id": "NftMint111",
				"interface": "V1_NFT",
				"content": {"metadata": {"name": "Mad Lad #1"}, "files": [{"uri": "https://example.com/1.png"}]}
			},
			{
				"id": "NftMint222",
				"interface": "ProgrammableNFT",
				"content": {"metadata": {}}
			}
		],
		"nativeBalance": {"lamports": 2000000000, "price_per_sol": 136}
	}
}`

const transactionsResponse = `[
	{
		"signature": "sig1",
		"timestamp": 1700000000,
		"fee": 5000,
		"feePayer": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		"transactionError": null,
		"nativeTransfers": [
			{"fromUserAccount": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", "toUserAccount": "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", "amount": 1000000000}
		],
		"tokenTransfers": []
	},
	{
		"signature": "sig2",
		"timestamp": 1700000100,
		"fee": 5000,
		"feePayer": "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
		"transactionError": {"InstructionError": [0, "Custom"]},
		"nativeTransfers": [
			{"fromUserAccount": "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU", "toUserAccount": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", "amount": 3000000000}
		],
		"tokenTransfers": [
			{"fromUserAccount": "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU", "toUserAccount": "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", "mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "tokenAmount": 12.5}
		]
	}
]`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHelius struct {
	rpcCalls  atomic.Int32
	restCalls atomic.Int32
	failRPC   atomic.Bool
	failREST  atomic.Bool
	lastQuery atomic.Value
}

func (f *fakeHelius) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastQuery.Store(r.URL.Query())
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/":
			f.rpcCalls.Add(1)
			if f.failRPC.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			var req rpcRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "getAssetsByOwner", req.Method)
			w.Write([]byte(assetsResponse))
		case r.Method == http.MethodGet && r.URL.Path == "/v0/addresses/"+testWallet+"/transactions":
			f.restCalls.Add(1)
			if f.failREST.Load() {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(transactionsResponse))
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestClient(t *testing.T, f *fakeHelius) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", nil, 0, labels.New(), nil, nil, discardLogger())
}

func TestEnrichment(t *testing.T) {
	f := &fakeHelius{}
	c := newTestClient(t, f)

	e, err := c.Enrichment(context.Background(), testWallet, true)
	require.NoError(t, err)

	assert.Equal(t, "helius", e.Source)
	require.NotNil(t, e.Assets)
	assert.Len(t, e.Transactions, 2)

	n := e.Normalized
	require.Len(t, n.TokenBalances, 2)
	assert.Equal(t, TokenBalance{Mint: solana.WrappedSOLMint, Symbol: "SOL", UIAmount: 2, USDValue: 272}, n.TokenBalances[0])
	assert.Equal(t, TokenBalance{Mint: solana.USDCMint, Symbol: "USDC", UIAmount: 2.5, USDValue: 2.5}, n.TokenBalances[1])

	require.Len(t, n.NFTs, 2)
	assert.Equal(t, "Mad Lad #1", n.NFTs[0].Name)
	require.NotNil(t, n.NFTs[0].Image)
	assert.Equal(t, "Unknown NFT", n.NFTs[1].Name)
	assert.Nil(t, n.NFTs[1].Image)

	require.Len(t, n.TopCounterparties, 2)
	assert.Equal(t, Counterparty{Address: testFriend, Label: "7xKX...gAsU", USDVolume: 3}, n.TopCounterparties[0])
	assert.Equal(t, Counterparty{Address: testJup, Label: "Jupiter", USDVolume: 1}, n.TopCounterparties[1])

	q := f.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"test-key"}, q["api-key"])
}

func TestEnrichmentCache(t *testing.T) {
	f := &fakeHelius{}
	c := newTestClient(t, f)
	ctx := context.Background()

	_, err := c.Enrichment(ctx, testWallet, true)
	require.NoError(t, err)
	_, err = c.Enrichment(ctx, testWallet, true)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.rpcCalls.Load())
	assert.Equal(t, int32(1), f.restCalls.Load())

	_, err = c.Enrichment(ctx, testWallet, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.rpcCalls.Load(), "cache bypassed")
}

func TestEnrichmentPartialFailure(t *testing.T) {
	f := &fakeHelius{}
	f.failREST.Store(true)
	c := newTestClient(t, f)

	e, err := c.Enrichment(context.Background(), testWallet, true)
	require.NoError(t, err)
	assert.NotNil(t, e.Assets)
	assert.Empty(t, e.Transactions)
	assert.Empty(t, e.Normalized.TopCounterparties)
	assert.NotNil(t, e.Normalized.TopCounterparties)
}

func TestEnrichmentTotalFailure(t *testing.T) {
	f := &fakeHelius{}
	f.failREST.Store(true)
	f.failRPC.Store(true)
	c := newTestClient(t, f)

	_, err := c.Enrichment(context.Background(), testWallet, true)
	require.Error(t, err)

	var statusErr *StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	f.failREST.Store(false)
	f.failRPC.Store(false)
	_, err = c.Enrichment(context.Background(), testWallet, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.rpcCalls.Load(), "failures are not cached")
}

func TestFetchHistory(t *testing.T) {
	f := &fakeHelius{}
	c := newTestClient(t, f)

	batch, err := c.FetchHistory(context.Background(), testWallet, "", 2)
	require.NoError(t, err)
	assert.Len(t, batch.Transactions, 2)
	assert.Equal(t, "sig2", batch.Cursor, "full page carries a cursor")

	q := f.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"2"}, q["limit"])

	batch, err = c.FetchHistory(context.Background(), testWallet, "sig2", 10)
	require.NoError(t, err)
	assert.Empty(t, batch.Cursor)
	q = f.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"sig2"}, q["before"])
}

func TestFetchHistoryError(t *testing.T) {
	f := &fakeHelius{}
	f.failREST.Store(true)
	c := newTestClient(t, f)
	_, err := c.FetchHistory(context.Background(), testWallet, "", 10)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}
