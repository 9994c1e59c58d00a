package solana

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	signatures   []*rpc.TransactionSignature
	transactions map[string]*rpc.GetTransactionResult
	sigErr       error
	txErr        error
	txCalls      int
	lastOpts     *rpc.GetSignaturesForAddressOpts
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	m.lastOpts = opts
	if m.sigErr != nil {
		return nil, m.sigErr
	}
	return m.signatures, nil
}

func (m *mockRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	m.txCalls++
	if m.txErr != nil {
		return nil, m.txErr
	}
	if m.transactions == nil {
		return nil, nil
	}
	return m.transactions[signature.String()], nil
}

func (m *mockRPCClient) GetTokenSupply(ctx context.Context, mint solana.PublicKey) (*rpc.GetTokenSupplyResult, error) {
	return nil, errors.New("not implemented")
}

func newTestClient(mock *mockRPCClient) *Client {
	return NewClient(mock, nil, discardLogger()).WithRequestDelay(0, 0)
}

func TestFetchHistory(t *testing.T) {
	ctx := context.Background()
	meta := &rpc.TransactionMeta{
		Fee:          5000,
		PreBalances:  []uint64{1_000_000_000, 0, 1},
		PostBalances: []uint64{1_000_000_000 + 250_000_000 - 5000, 0, 1},
	}
	mock := &mockRPCClient{
		signatures:   []*rpc.TransactionSignature{testSignature(1700000000)},
		transactions: map[string]*rpc.GetTransactionResult{testSig.String(): testResult(t, meta)},
	}

	batch, err := newTestClient(mock).FetchHistory(ctx, testWallet.String(), "", 10)
	require.NoError(t, err)

	require.Len(t, batch.Transactions, 1)
	require.Len(t, batch.Movements, 1)
	assert.Equal(t, int64(250_000_000), batch.Movements[0].Amount)
	assert.Equal(t, testWallet.String(), batch.Movements[0].Destination)
	assert.Empty(t, batch.Cursor, "short page means history is exhausted")
}

func TestFetchHistory_CursorWhenPageIsFull(t *testing.T) {
	mock := &mockRPCClient{signatures: []*rpc.TransactionSignature{testSignature(1)}}

	batch, err := newTestClient(mock).FetchHistory(context.Background(), testWallet.String(), testSig.String(), 1)
	require.NoError(t, err)
	assert.Equal(t, testSig.String(), batch.Cursor)
	assert.Equal(t, testSig, mock.lastOpts.Before)
}

func TestFetchHistory_MetadataOnlyOnTransactionError(t *testing.T) {
	mock := &mockRPCClient{
		signatures: []*rpc.TransactionSignature{testSignature(1700000000)},
		txErr:      errors.New("transaction pruned"),
	}

	batch, err := newTestClient(mock).FetchHistory(context.Background(), testWallet.String(), "", 10)
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 1)
	assert.Empty(t, batch.Movements)
	assert.Equal(t, int64(1700000000), batch.Transactions[0].BlockTime)
	assert.Equal(t, 3, mock.txCalls, "retried up to the attempt limit")
}

func TestFetchHistory_SignatureError(t *testing.T) {
	mock := &mockRPCClient{sigErr: errors.New("rpc down")}
	_, err := newTestClient(mock).FetchHistory(context.Background(), testWallet.String(), "", 10)
	assert.Error(t, err)
}

func TestFetchHistory_InvalidWallet(t *testing.T) {
	_, err := newTestClient(&mockRPCClient{}).FetchHistory(context.Background(), "not-a-key", "", 10)
	assert.Error(t, err)
}
