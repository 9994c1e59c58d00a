package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32Ptr(v int32) *int32 { return &v }

func TestWriteWalletRecords(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	wallet := "WalletAAAA1111"

	txs := []Transaction{
		{Signature: "sig2", BlockTime: 1700000100, Status: true, Fee: 5000},
		{Signature: "sig1", BlockTime: 1700000000, Status: false, Fee: 5000},
		{Signature: "sig0", BlockTime: 0, Status: true, Fee: 10000},
	}
	movs := []TokenMovement{
		{Signature: "sig1", Mint: "So11111111111111111111111111111111111111112", Amount: 1_000_000_000,
			Decimals: int32Ptr(9), Source: "Other", Destination: wallet, BlockTime: 1700000000},
		{Signature: "sig2", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Amount: -2_000_000,
			Source: wallet, Destination: "Other", BlockTime: 1700000100},
	}

	t.Run("write and list", func(t *testing.T) {
		require.NoError(t, store.WriteWalletRecords(ctx, wallet, txs, movs))

		gotTxs, err := store.ListTransactions(ctx, wallet)
		require.NoError(t, err)
		require.Len(t, gotTxs, 3)
		assert.Equal(t, "sig0", gotTxs[0].Signature, "missing block time sorts first")
		assert.Equal(t, int64(0), gotTxs[0].BlockTime)
		assert.Equal(t, "sig1", gotTxs[1].Signature)
		assert.False(t, gotTxs[1].Status)
		assert.Equal(t, wallet, gotTxs[2].WalletAddress)

		gotMovs, err := store.ListTokenMovements(ctx, wallet)
		require.NoError(t, err)
		require.Len(t, gotMovs, 2)
		require.NotNil(t, gotMovs[0].Decimals)
		assert.Equal(t, int32(9), *gotMovs[0].Decimals)
		assert.Nil(t, gotMovs[1].Decimals)
		assert.Equal(t, int64(-2_000_000), gotMovs[1].Amount)
	})

	t.Run("rewrite is idempotent", func(t *testing.T) {
		require.NoError(t, store.WriteWalletRecords(ctx, wallet, txs, movs))

		txCount, movCount, err := store.CountRecords(ctx, wallet)
		require.NoError(t, err)
		assert.Equal(t, int64(3), txCount)
		assert.Equal(t, int64(2), movCount)
	})

	t.Run("other wallets are isolated", func(t *testing.T) {
		gotTxs, err := store.ListTransactions(ctx, "SomeoneElse")
		require.NoError(t, err)
		assert.Empty(t, gotTxs)
	})
}

func TestAnalyticsCache(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	_, err := store.GetAnalytics(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SaveAnalytics(ctx, "wallet1", []byte(`{"security":{"security_score":"High"}}`)))
	require.NoError(t, store.SaveAnalytics(ctx, "wallet1", []byte(`{"security":{"security_score":"Medium"}}`)))

	cached, err := store.GetAnalytics(ctx, "wallet1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"security":{"security_score":"Medium"}}`, string(cached.Data))
	assert.False(t, cached.UpdatedAt.IsZero())
}

func TestJobs(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	job, err := store.CreateJob(ctx, "job-1", "wallet1")
	require.NoError(t, err)
	assert.Equal(t, JobPending, job.Status)
	assert.Equal(t, 0, job.Progress)

	msg := "helius unavailable"
	job, err = store.UpdateJob(ctx, UpdateJobParams{ID: "job-1", Status: JobFailed, Progress: 0, Error: &msg})
	require.NoError(t, err)
	assert.True(t, job.Status.IsTerminal())
	require.NotNil(t, job.Error)
	assert.Equal(t, msg, *job.Error)

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)

	_, err = store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.UpdateJob(ctx, UpdateJobParams{ID: "missing", Status: JobRunning})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryReadOnly(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	require.NoError(t, store.WriteWalletRecords(ctx, "walletA",
		[]Transaction{{Signature: "a1", BlockTime: 1, Status: true, Fee: 5000}, {Signature: "a2", BlockTime: 2, Status: false, Fee: 5000}}, nil))
	require.NoError(t, store.WriteWalletRecords(ctx, "walletB",
		[]Transaction{{Signature: "b1", BlockTime: 1, Status: true, Fee: 5000}}, nil))

	t.Run("scoped to wallet", func(t *testing.T) {
		res, err := store.QueryReadOnly(ctx, "walletA", "SELECT COUNT(*) AS n FROM transactions", QueryOptions{})
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, int64(2), res.Rows[0]["n"])
	})

	t.Run("status exposed as text", func(t *testing.T) {
		res, err := store.QueryReadOnly(ctx, "walletA",
			"SELECT signature FROM transactions WHERE status = 'Failed'", QueryOptions{})
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "a2", res.Rows[0]["signature"])
	})

	t.Run("row cap", func(t *testing.T) {
		res, err := store.QueryReadOnly(ctx, "walletA", "SELECT signature FROM transactions", QueryOptions{MaxRows: 1})
		require.NoError(t, err)
		assert.Len(t, res.Rows, 1)
		assert.True(t, res.Truncated)
	})

	t.Run("writes rejected", func(t *testing.T) {
		_, err := store.QueryReadOnly(ctx, "walletA", "DELETE FROM transactions", QueryOptions{})
		assert.ErrorIs(t, err, ErrUnsafeQuery)
	})
}
