package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSQLiteFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "wallet.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE transactions (signature TEXT PRIMARY KEY, block_time INTEGER, status TEXT, fee INTEGER)`,
		`CREATE TABLE token_movements (id INTEGER PRIMARY KEY AUTOINCREMENT, signature TEXT, mint TEXT,
			amount REAL, decimals INTEGER, source TEXT, destination TEXT, block_time INTEGER)`,
		`INSERT INTO transactions VALUES ('s2', 1700000100, 'Failed', 5000)`,
		`INSERT INTO transactions VALUES ('s1', 1700000000, 'Success', 5000)`,
		`INSERT INTO transactions VALUES ('s3', NULL, '1', NULL)`,
		`INSERT INTO transactions VALUES ('s4', 1700000200, NULL, 5000)`,
		`INSERT INTO token_movements (signature, mint, amount, decimals, source, destination, block_time)
			VALUES ('s1', 'So11111111111111111111111111111111111111112', 1000000000.0, 9, 'x', 'me', 1700000000)`,
		`INSERT INTO token_movements (signature, mint, amount, decimals, source, destination, block_time)
			VALUES ('s2', 'EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v', -2500000, NULL, 'me', 'y', 1700000100)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

func TestSQLiteSource(t *testing.T) {
	src, err := OpenSQLite(writeSQLiteFixture(t))
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()

	txs, err := src.ListTransactions(ctx, "me")
	require.NoError(t, err)
	require.Len(t, txs, 4)
	assert.Equal(t, "s3", txs[0].Signature, "NULL block time sorts first in sqlite")
	assert.Equal(t, int64(0), txs[0].BlockTime)
	assert.True(t, txs[0].Status)
	assert.True(t, txs[1].Status)
	assert.False(t, txs[2].Status)
	assert.Equal(t, "s4", txs[3].Signature)
	assert.False(t, txs[3].Status, "NULL status counts as failed")
	assert.Equal(t, "me", txs[1].WalletAddress)

	movs, err := src.ListTokenMovements(ctx, "me")
	require.NoError(t, err)
	require.Len(t, movs, 2)
	assert.Equal(t, int64(1_000_000_000), movs[0].Amount)
	require.NotNil(t, movs[0].Decimals)
	assert.Equal(t, int32(9), *movs[0].Decimals)
	assert.Nil(t, movs[1].Decimals)
	assert.Equal(t, int64(-2_500_000), movs[1].Amount)
}

func TestOpenSQLiteMissingFile(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	assert.False(t, parseStatus(nil), "NULL status is a failure")
	assert.True(t, parseStatus(int64(1)))
	assert.False(t, parseStatus(int64(0)))
	assert.False(t, parseStatus("Failed"))
	assert.True(t, parseStatus([]byte("Success")))
	assert.False(t, parseStatus("0"))
	assert.True(t, parseStatus(true))
}
